// Package datarecording stores flat records, such as the trace of every job
// of a dispatch, in a SQLite database.
package datarecording

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"reflect"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	// Registers the sqlite3 driver.
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/xid"
	"github.com/tebeka/atexit"
)

// ErrUnsupportedEntry is returned for entries that are not flat structs.
var ErrUnsupportedEntry = errors.New("datarecording: unsupported entry")

// DataRecorder buffers records and writes them to tables in batches.
type DataRecorder interface {
	// CreateTable creates a table whose columns are the fields of
	// sampleEntry.
	CreateTable(tableName string, sampleEntry any) error

	// InsertData buffers an entry of the type the table was created with.
	InsertData(tableName string, entry any) error

	// ListTables returns the tables created so far, in creation order.
	ListTables() []string

	// Flush writes the buffered entries.
	Flush() error

	// Path returns the database file name, or "" for a borrowed database.
	Path() string

	// Close flushes and releases the database.
	Close() error
}

// DefaultBatchSize is the number of buffered entries that triggers a flush.
const DefaultBatchSize = 10000

// New creates a recorder that writes to path. An empty path creates a file
// with a unique name in the working directory. Buffered entries are flushed
// when the program exits through atexit.
func New(path string) (DataRecorder, error) {
	if path == "" {
		path = "wavefreq_" + xid.New().String() + ".sqlite3"
	}

	// sql.Open does not create the file, so reserve the path first.
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil, fmt.Errorf("datarecording: file %s already exists", path)
		}

		return nil, fmt.Errorf("datarecording: create %s: %w", path, err)
	}

	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("datarecording: create %s: %w", path, err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("datarecording: open %s: %w", path, err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("datarecording: open %s: %w", path, err)
	}

	log.Info("recording to database", "path", path)

	return newWriter(db, path), nil
}

// NewWithDB creates a recorder that writes to an open database. Close does
// not close db.
func NewWithDB(db *sql.DB) DataRecorder {
	return newWriter(db, "")
}

func newWriter(db *sql.DB, path string) *sqliteWriter {
	w := &sqliteWriter{
		db:        db,
		path:      path,
		batchSize: DefaultBatchSize,
		tables:    make(map[string]*table),
	}

	atexit.Register(func() {
		if err := w.Flush(); err != nil {
			log.Error("flushing recorder", "err", err)
		}
	})

	return w
}

type table struct {
	structType reflect.Type
	columns    []string
	entries    []any
}

type sqliteWriter struct {
	mu sync.Mutex

	db         *sql.DB
	path       string
	tables     map[string]*table
	order      []string
	batchSize  int
	entryCount int
	closed     bool
}

func isAllowedKind(kind reflect.Kind) bool {
	switch kind {
	case
		reflect.Bool,
		reflect.Int,
		reflect.Int8,
		reflect.Int16,
		reflect.Int32,
		reflect.Int64,
		reflect.Uint,
		reflect.Uint8,
		reflect.Uint16,
		reflect.Uint32,
		reflect.Float32,
		reflect.Float64,
		reflect.String:
		return true
	default:
		return false
	}
}

// columnsOf returns the exported field names of a flat struct.
func columnsOf(t reflect.Type) ([]string, error) {
	if t == nil || t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: %v is not a struct", ErrUnsupportedEntry, t)
	}

	columns := make([]string, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() || !isAllowedKind(field.Type.Kind()) {
			return nil, fmt.Errorf("%w: field %s of %v",
				ErrUnsupportedEntry, field.Name, t)
		}

		columns = append(columns, field.Name)
	}

	return columns, nil
}

// quote makes an SQL identifier of a table or column name.
func quote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (w *sqliteWriter) Path() string {
	return w.path
}

func (w *sqliteWriter) CreateTable(tableName string, sampleEntry any) error {
	t := reflect.TypeOf(sampleEntry)

	columns, err := columnsOf(t)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, exists := w.tables[tableName]; exists {
		return fmt.Errorf("datarecording: table %s already exists", tableName)
	}

	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = quote(c)
	}

	stmt := "CREATE TABLE " + quote(tableName) +
		" (\n\t" + strings.Join(quoted, ",\n\t") + "\n);"
	if _, err := w.db.Exec(stmt); err != nil {
		return fmt.Errorf("datarecording: create table %s: %w", tableName, err)
	}

	w.tables[tableName] = &table{structType: t, columns: columns}
	w.order = append(w.order, tableName)

	return nil
}

func (w *sqliteWriter) InsertData(tableName string, entry any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	t, exists := w.tables[tableName]
	if !exists {
		return fmt.Errorf("datarecording: table %s does not exist", tableName)
	}

	if reflect.TypeOf(entry) != t.structType {
		return fmt.Errorf("%w: %T in table %s of %v",
			ErrUnsupportedEntry, entry, tableName, t.structType)
	}

	t.entries = append(t.entries, entry)

	w.entryCount++
	if w.entryCount >= w.batchSize {
		return w.flush()
	}

	return nil
}

func (w *sqliteWriter) ListTables() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	return append([]string(nil), w.order...)
}

func (w *sqliteWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.flush()
}

func (w *sqliteWriter) flush() error {
	if w.entryCount == 0 || w.closed {
		return nil
	}

	tx, err := w.db.Begin()
	if err != nil {
		return fmt.Errorf("datarecording: begin: %w", err)
	}

	for _, name := range w.order {
		t := w.tables[name]
		if len(t.entries) == 0 {
			continue
		}

		if err := insertAll(tx, name, t); err != nil {
			_ = tx.Rollback()
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("datarecording: commit: %w", err)
	}

	for _, t := range w.tables {
		t.entries = nil
	}
	w.entryCount = 0

	return nil
}

func insertAll(tx *sql.Tx, name string, t *table) error {
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(t.columns)), ", ")

	stmt, err := tx.Prepare("INSERT INTO " + quote(name) + " VALUES (" + marks + ")")
	if err != nil {
		return fmt.Errorf("datarecording: prepare insert into %s: %w", name, err)
	}
	defer stmt.Close()

	values := make([]any, len(t.columns))
	for _, entry := range t.entries {
		v := reflect.ValueOf(entry)
		for i := range values {
			values[i] = v.Field(i).Interface()
		}

		if _, err := stmt.Exec(values...); err != nil {
			return fmt.Errorf("datarecording: insert into %s: %w", name, err)
		}
	}

	return nil
}

func (w *sqliteWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}

	err := w.flush()
	w.closed = true

	if w.path == "" {
		return err
	}

	return errors.Join(err, w.db.Close())
}
