// Package flatten converts nested documents into flat column/value mappings
// and reconstructs them.
//
// Flattening walks the document depth-first; each path reaching a scalar
// becomes a flat key (path segments joined with "/"), which is encoded to a
// column identifier and recorded in the name mapping store. All scalar
// values are rendered to text; the original scalar type is not preserved.
//
// Arrays are rejected: the mapping scheme has no column representation for
// positional values, and serializing them as opaque text would make them
// indistinguishable from strings on read. Null values are skipped, matching
// the null filtering applied when rows are read back.
package flatten

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/flatbeddb/flatbed/core/colname"
	"github.com/flatbeddb/flatbed/core/errors"
	"github.com/flatbeddb/flatbed/core/namemap"
)

// Codec flattens and reconstructs documents against one name mapping store.
type Codec struct {
	names *namemap.Store
}

// NewCodec creates a codec backed by the given name mapping store.
func NewCodec(names *namemap.Store) *Codec {
	return &Codec{names: names}
}

// Flatten converts a nested document into a column-identifier -> text-value
// mapping, recording every new flat key in the name mapping store.
// Duplicate flat keys within one document resolve last-wins, since the
// result is a mapping.
func (c *Codec) Flatten(ctx context.Context, doc map[string]any) (map[string]string, error) {
	flat := make(map[string]string)
	if err := c.flattenInto(ctx, doc, "", flat); err != nil {
		return nil, err
	}
	return flat, nil
}

func (c *Codec) flattenInto(ctx context.Context, doc map[string]any, prefix string, out map[string]string) error {
	for key, value := range doc {
		if key == "" {
			return errors.NewArgument("document", "empty key at path "+strconv.Quote(prefix))
		}
		flatKey := key
		if prefix != "" {
			flatKey = prefix + colname.Separator + key
		}

		switch v := value.(type) {
		case map[string]any:
			if err := c.flattenInto(ctx, v, flatKey, out); err != nil {
				return err
			}
		case []any:
			return errors.NewArgument("document", "array value at "+strconv.Quote(flatKey)+" is not supported")
		case nil:
			// Stored as NULL by omission; reads drop NULL columns.
		default:
			text, err := renderScalar(flatKey, value)
			if err != nil {
				return err
			}
			columnID, err := c.names.Encode(ctx, flatKey)
			if err != nil {
				return err
			}
			out[columnID] = text
		}
	}
	return nil
}

// renderScalar converts a scalar value to its stored text form.
func renderScalar(flatKey string, value any) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case bool:
		return strconv.FormatBool(v), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32), nil
	case int:
		return strconv.Itoa(v), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case json.Number:
		return v.String(), nil
	default:
		return "", errors.NewArgument("document",
			"unsupported value type at "+strconv.Quote(flatKey))
	}
}

// Unflatten reconstructs one nested document from a flat row. The caller has
// already dropped NULL-valued columns. Column identifiers without a recorded
// flat key are kept as opaque top-level keys (best-effort reconstruction).
//
// A flat key whose non-terminal prefix collides with a scalar already placed
// at that path, or whose terminal segment lands on an existing sub-document,
// indicates inconsistent flat keys and fails with a schema conflict.
func (c *Codec) Unflatten(row map[string]string) (map[string]any, error) {
	doc := make(map[string]any)
	for columnID, value := range row {
		flatKey, err := c.names.Lookup(columnID)
		if err != nil {
			if errors.Is(err, errors.ErrUnknownColumn) {
				flatKey = columnID
			} else {
				return nil, err
			}
		}

		segments := colname.Split(flatKey)
		node := doc
		for _, seg := range segments[:len(segments)-1] {
			child, ok := node[seg]
			if !ok {
				next := make(map[string]any)
				node[seg] = next
				node = next
				continue
			}
			next, ok := child.(map[string]any)
			if !ok {
				return nil, errors.NewSchemaConflict(columnID, seg, flatKey)
			}
			node = next
		}

		leaf := segments[len(segments)-1]
		if existing, ok := node[leaf]; ok {
			if _, isMap := existing.(map[string]any); isMap {
				return nil, errors.NewSchemaConflict(columnID, leaf, flatKey)
			}
		}
		node[leaf] = value
	}
	return doc, nil
}

// UnflattenAll reconstructs a document per flat row.
func (c *Codec) UnflattenAll(rows []map[string]string) ([]map[string]any, error) {
	docs := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		doc, err := c.Unflatten(row)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}
