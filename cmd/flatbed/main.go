// Command flatbed is the CLI for the flatbed document store.
// It serves the HTTP API and offers direct put/get/list/query access
// to a database file.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/flatbeddb/flatbed/core/docstore"
	"github.com/flatbeddb/flatbed/core/sqlite"
	"github.com/flatbeddb/flatbed/internal/api"
	"github.com/flatbeddb/flatbed/internal/logging"
)

const version = "0.1.0"

// CLI defines the command-line interface for flatbed.
var CLI struct {
	// Global flags
	DB       string `name:"db" short:"d" help:"SQLite database file" default:"flatbed.db" type:"path"`
	LogLevel string `name:"log-level" help:"Log level (debug, info, warn, error)" default:"info" enum:"debug,info,warn,error"`

	Serve       ServeCmd       `cmd:"" help:"Start the REST API server"`
	Put         PutCmd         `cmd:"" help:"Store a JSON document in a collection"`
	Get         GetCmd         `cmd:"" help:"Fetch a document by id"`
	List        ListCmd        `cmd:"" help:"List documents in a collection"`
	Query       QueryCmd       `cmd:"" help:"Page through a collection in field order"`
	Update      UpdateCmd      `cmd:"" help:"Update matching documents with partial fields"`
	Delete      DeleteCmd      `cmd:"" help:"Delete matching documents"`
	Collections CollectionsCmd `cmd:"" help:"List known collections"`
	Version     VersionCmd     `cmd:"" help:"Print version information"`
}

// ServeCmd starts the HTTP API server.
type ServeCmd struct {
	Addr   string `help:"Listen address" default:":8080"`
	APIKey string `name:"api-key" help:"Require X-API-Key on requests" env:"FLATBED_API_KEY"`
}

func (c *ServeCmd) Run() error {
	store, closeDB, err := openStore()
	if err != nil {
		return err
	}
	defer closeDB()

	cfg := api.Config{
		Addr:   c.Addr,
		DBPath: CLI.DB,
		Auth:   api.AuthConfig{Enabled: c.APIKey != "", APIKey: c.APIKey},
	}
	srv := api.NewServer(store, cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return srv.ListenAndServe(ctx)
}

// PutCmd stores one document read from a file or stdin.
type PutCmd struct {
	Collection string `arg:"" help:"Collection path, e.g. user_data or logs/app"`
	File       string `short:"f" help:"JSON file to store (defaults to stdin)" type:"existingfile"`
}

func (c *PutCmd) Run() error {
	in := os.Stdin
	if c.File != "" {
		f, err := os.Open(c.File)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	var doc docstore.Document
	if err := json.NewDecoder(in).Decode(&doc); err != nil {
		return fmt.Errorf("decode document: %w", err)
	}

	store, closeDB, err := openStore()
	if err != nil {
		return err
	}
	defer closeDB()

	id, err := store.Put(context.Background(), c.Collection, doc)
	if err != nil {
		return err
	}
	fmt.Println(id)
	return nil
}

// GetCmd fetches a document by its generated id.
type GetCmd struct {
	Collection string `arg:"" help:"Collection path"`
	ID         string `arg:"" help:"Document id"`
}

func (c *GetCmd) Run() error {
	store, closeDB, err := openStore()
	if err != nil {
		return err
	}
	defer closeDB()

	doc, err := store.Get(context.Background(), c.Collection, c.ID)
	if err != nil {
		return err
	}
	return printJSON(doc)
}

// ListCmd prints every document in a collection.
type ListCmd struct {
	Collection string `arg:"" help:"Collection path"`
}

func (c *ListCmd) Run() error {
	store, closeDB, err := openStore()
	if err != nil {
		return err
	}
	defer closeDB()

	docs, err := store.List(context.Background(), c.Collection)
	if err != nil {
		return err
	}
	return printJSON(docs)
}

// QueryCmd pages through a collection ordered by a field.
type QueryCmd struct {
	Collection string `arg:"" help:"Collection path"`
	Order      string `arg:"" help:"Field to order by, e.g. details/age_ind"`
	Desc       bool   `help:"Sort descending"`
	Page       int    `help:"Page number (1-based)" default:"1"`
	Size       int    `help:"Page size" default:"50"`
}

func (c *QueryCmd) Run() error {
	store, closeDB, err := openStore()
	if err != nil {
		return err
	}
	defer closeDB()

	docs, err := store.Query(context.Background(), c.Collection, c.Order, c.Desc, c.Page, c.Size)
	if err != nil {
		return err
	}
	return printJSON(docs)
}

// UpdateCmd sets fields on all documents matching a condition.
type UpdateCmd struct {
	Collection string `arg:"" help:"Collection path"`
	Where      string `arg:"" help:"Condition, e.g. \"user_pri = 'U1'\""`
	Set        string `arg:"" help:"JSON object of fields to set"`
}

func (c *UpdateCmd) Run() error {
	var partial docstore.Document
	if err := json.Unmarshal([]byte(c.Set), &partial); err != nil {
		return fmt.Errorf("decode fields: %w", err)
	}

	store, closeDB, err := openStore()
	if err != nil {
		return err
	}
	defer closeDB()

	n, err := store.Update(context.Background(), c.Collection, partial, c.Where)
	if err != nil {
		return err
	}
	fmt.Printf("updated %d\n", n)
	return nil
}

// DeleteCmd removes all documents matching a condition.
type DeleteCmd struct {
	Collection string `arg:"" help:"Collection path"`
	Where      string `arg:"" help:"Condition, e.g. \"user_pri = 'U1'\""`
}

func (c *DeleteCmd) Run() error {
	store, closeDB, err := openStore()
	if err != nil {
		return err
	}
	defer closeDB()

	n, err := store.Delete(context.Background(), c.Collection, c.Where)
	if err != nil {
		return err
	}
	fmt.Printf("deleted %d\n", n)
	return nil
}

// CollectionsCmd lists every collection in the database.
type CollectionsCmd struct{}

func (c *CollectionsCmd) Run() error {
	store, closeDB, err := openStore()
	if err != nil {
		return err
	}
	defer closeDB()

	names, err := store.Collections(context.Background())
	if err != nil {
		return err
	}
	for _, name := range names {
		fmt.Println(name)
	}
	return nil
}

type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	info := sqlite.GetInfo()
	fmt.Printf("flatbed version %s (%s driver)\n", version, info.DriverType)
	return nil
}

// Helper functions

func openStore() (*docstore.Store, func(), error) {
	db, err := sqlite.Open(CLI.DB)
	if err != nil {
		return nil, nil, err
	}
	store, err := docstore.New(context.Background(), db)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return store, func() { db.Close() }, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func logLevel(s string) logging.Level {
	switch s {
	case "debug":
		return logging.LevelDebug
	case "warn":
		return logging.LevelWarn
	case "error":
		return logging.LevelError
	default:
		return logging.LevelInfo
	}
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("flatbed"),
		kong.Description("Flatbed - schema-on-write JSON document store over SQLite"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
	)
	logging.InitLogger(logLevel(CLI.LogLevel), logging.FormatText)
	err := ctx.Run(ctx)
	ctx.FatalIfErrorf(err)
}
