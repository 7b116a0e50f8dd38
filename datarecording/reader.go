package datarecording

import (
	"context"
	"database/sql"
	"fmt"
	"reflect"
	"strings"
)

// QueryParams narrows a query.
type QueryParams struct {
	// Where is a WHERE clause without the keyword, for example
	// "Index > ? AND Err = ''".
	Where string

	// Args fill the placeholders of Where.
	Args []any

	// Limit caps the number of rows. Zero means no limit.
	Limit int

	Offset int

	// OrderBy is an ORDER BY clause without the keywords.
	OrderBy string
}

// DataReader reads tables written by a DataRecorder back into structs.
type DataReader interface {
	// MapTable associates a table with the struct type of sampleEntry.
	MapTable(tableName string, sampleEntry any) error

	// Query returns pointers to structs of the mapped type and the total
	// number of matching rows, ignoring Limit and Offset.
	Query(ctx context.Context, tableName string, params QueryParams) (
		results []any,
		totalCount int,
		err error,
	)

	Close() error
}

type sqliteReader struct {
	db      *sql.DB
	owned   bool
	typeMap map[string]reflect.Type
}

// NewReader opens a database file written by a DataRecorder.
func NewReader(path string) (DataReader, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("datarecording: open %s: %w", path, err)
	}

	return &sqliteReader{
		db:      db,
		owned:   true,
		typeMap: make(map[string]reflect.Type),
	}, nil
}

// NewReaderWithDB creates a reader over an open database. Close does not
// close db.
func NewReaderWithDB(db *sql.DB) DataReader {
	return &sqliteReader{
		db:      db,
		typeMap: make(map[string]reflect.Type),
	}
}

func (r *sqliteReader) MapTable(tableName string, sampleEntry any) error {
	t := reflect.TypeOf(sampleEntry)
	if _, err := columnsOf(t); err != nil {
		return err
	}

	r.typeMap[tableName] = t

	return nil
}

func (r *sqliteReader) Query(
	ctx context.Context,
	tableName string,
	params QueryParams,
) ([]any, int, error) {
	structType, ok := r.typeMap[tableName]
	if !ok {
		return nil, 0, fmt.Errorf("datarecording: no mapping for table %s", tableName)
	}

	from := " FROM " + quote(tableName) + params.whereClause()

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*)"+from, params.Args...).
		Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("datarecording: count %s: %w", tableName, err)
	}

	rows, err := r.db.QueryContext(ctx, "SELECT *"+from+params.pageClause(), params.Args...)
	if err != nil {
		return nil, 0, fmt.Errorf("datarecording: query %s: %w", tableName, err)
	}
	defer rows.Close()

	results, err := scanRows(rows, structType)
	if err != nil {
		return nil, 0, fmt.Errorf("datarecording: scan %s: %w", tableName, err)
	}

	return results, total, nil
}

func (p QueryParams) whereClause() string {
	if p.Where == "" {
		return ""
	}

	return " WHERE " + p.Where
}

// pageClause orders and limits the rows. Offset applies only with a limit.
func (p QueryParams) pageClause() string {
	var b strings.Builder

	if p.OrderBy != "" {
		b.WriteString(" ORDER BY " + p.OrderBy)
	}

	if p.Limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", p.Limit)
	}

	if p.Limit > 0 && p.Offset > 0 {
		fmt.Fprintf(&b, " OFFSET %d", p.Offset)
	}

	return b.String()
}

func scanRows(rows *sql.Rows, structType reflect.Type) ([]any, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	fields := make(map[string]int, structType.NumField())
	for i := 0; i < structType.NumField(); i++ {
		fields[structType.Field(i).Name] = i
	}

	var results []any
	for rows.Next() {
		ptr := reflect.New(structType)
		targets := make([]any, len(columns))

		for i, col := range columns {
			if idx, ok := fields[col]; ok {
				targets[i] = ptr.Elem().Field(idx).Addr().Interface()
				continue
			}

			var discard any
			targets[i] = &discard
		}

		if err := rows.Scan(targets...); err != nil {
			return nil, err
		}

		results = append(results, ptr.Interface())
	}

	return results, rows.Err()
}

func (r *sqliteReader) Close() error {
	if !r.owned {
		return nil
	}

	return r.db.Close()
}
