package flatten

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/flatbeddb/flatbed/core/colname"
	"github.com/flatbeddb/flatbed/core/errors"
	"github.com/flatbeddb/flatbed/core/namemap"
	"github.com/flatbeddb/flatbed/core/sqlite"
)

func newTestCodec(t *testing.T) *Codec {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "flatten.db"))
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	names, err := namemap.New(context.Background(), db)
	if err != nil {
		t.Fatalf("failed to create name map: %v", err)
	}
	return NewCodec(names)
}

func TestFlatten(t *testing.T) {
	codec := newTestCodec(t)
	ctx := context.Background()

	doc := map[string]any{
		"user_pri": "U1",
		"details": map[string]any{
			"age_ind": 25,
			"address": map[string]any{
				"city": "Shanghai",
			},
		},
	}

	flat, err := codec.Flatten(ctx, doc)
	if err != nil {
		t.Fatalf("flatten failed: %v", err)
	}

	want := map[string]string{
		colname.Encode("user_pri"):             "U1",
		colname.Encode("details/age_ind"):      "25",
		colname.Encode("details/address/city"): "Shanghai",
	}
	if diff := cmp.Diff(want, flat); diff != "" {
		t.Errorf("flattened row mismatch (-want +got):\n%s", diff)
	}
}

func TestFlattenScalarRendering(t *testing.T) {
	codec := newTestCodec(t)
	ctx := context.Background()

	doc := map[string]any{
		"s": "text",
		"b": true,
		"i": 42,
		"f": 40.7128,
		// JSON numbers decode as float64; whole values must not grow
		// a decimal point.
		"n": float64(30),
	}

	flat, err := codec.Flatten(ctx, doc)
	if err != nil {
		t.Fatalf("flatten failed: %v", err)
	}

	want := map[string]string{
		colname.Encode("s"): "text",
		colname.Encode("b"): "true",
		colname.Encode("i"): "42",
		colname.Encode("f"): "40.7128",
		colname.Encode("n"): "30",
	}
	if diff := cmp.Diff(want, flat); diff != "" {
		t.Errorf("scalar rendering mismatch (-want +got):\n%s", diff)
	}
}

func TestFlattenRejectsArrays(t *testing.T) {
	codec := newTestCodec(t)
	doc := map[string]any{
		"tags": []any{"home", "primary"},
	}
	_, err := codec.Flatten(context.Background(), doc)
	if !errors.Is(err, errors.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument for array value, got %v", err)
	}
}

func TestFlattenSkipsNull(t *testing.T) {
	codec := newTestCodec(t)
	flat, err := codec.Flatten(context.Background(), map[string]any{
		"present": "x",
		"absent":  nil,
	})
	if err != nil {
		t.Fatalf("flatten failed: %v", err)
	}
	if len(flat) != 1 {
		t.Errorf("null value should be skipped, got %v", flat)
	}
}

// TestRoundTrip verifies unflatten(flatten(D)) == D modulo text normalization.
func TestRoundTrip(t *testing.T) {
	codec := newTestCodec(t)
	ctx := context.Background()

	doc := map[string]any{
		"user_pri": "U1",
		"details": map[string]any{
			"age_ind": "25",
			"address": map[string]any{
				"city":   "Shanghai",
				"street": "123 Nanjing Rd",
			},
		},
	}

	flat, err := codec.Flatten(ctx, doc)
	if err != nil {
		t.Fatalf("flatten failed: %v", err)
	}
	got, err := codec.Unflatten(flat)
	if err != nil {
		t.Fatalf("unflatten failed: %v", err)
	}
	if diff := cmp.Diff(doc, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

// TestUnflattenUnknownColumn verifies the opaque-leaf fallback for columns
// with no recorded flat key, such as the implicit row identifier.
func TestUnflattenUnknownColumn(t *testing.T) {
	codec := newTestCodec(t)

	doc, err := codec.Unflatten(map[string]string{
		"doc_id": "1234",
	})
	if err != nil {
		t.Fatalf("unflatten failed: %v", err)
	}
	if doc["doc_id"] != "1234" {
		t.Errorf("expected opaque leaf fallback, got %v", doc)
	}
}

// TestUnflattenPrefixConflict verifies that a scalar at a path prefix of a
// deeper key fails loudly instead of overwriting either value.
func TestUnflattenPrefixConflict(t *testing.T) {
	codec := newTestCodec(t)
	ctx := context.Background()

	// Record "a" and "a/b" through the store so both decode.
	idA, err := codec.names.Encode(ctx, "a")
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	idAB, err := codec.names.Encode(ctx, "a/b")
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	_, err = codec.Unflatten(map[string]string{
		idA:  "scalar",
		idAB: "nested",
	})
	if !errors.Is(err, errors.ErrSchemaConflict) {
		t.Errorf("expected schema conflict, got %v", err)
	}
}

func TestUnflattenAll(t *testing.T) {
	codec := newTestCodec(t)
	ctx := context.Background()

	id, err := codec.names.Encode(ctx, "name")
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	docs, err := codec.UnflattenAll([]map[string]string{
		{id: "first"},
		{id: "second"},
	})
	if err != nil {
		t.Fatalf("unflatten all failed: %v", err)
	}
	if len(docs) != 2 || docs[0]["name"] != "first" || docs[1]["name"] != "second" {
		t.Errorf("unexpected documents: %v", docs)
	}
}
