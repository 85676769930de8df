package datasource

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/vanderheijden86/slidetree/pkg/loader"
)

// SQLiteReader provides read access to a database written by the SQLite
// exporter. Its items table is read back as a weighted image list.
type SQLiteReader struct {
	db   *sql.DB
	path string
}

// NewSQLiteReader opens an exported database for reading
func NewSQLiteReader(path string) (*SQLiteReader, error) {
	dsn := fmt.Sprintf("file:%s?mode=ro&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	// Set pragmas for read performance
	pragmas := []string{
		"PRAGMA cache_size = -16000", // 16MB cache
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		_, _ = db.Exec(pragma) // non-fatal
	}

	return &SQLiteReader{db: db, path: path}, nil
}

// Close closes the database connection
func (r *SQLiteReader) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// SchemaVersion returns the exporter schema version stored in the meta table.
func (r *SQLiteReader) SchemaVersion() (int, error) {
	var v int
	err := r.db.QueryRow(`SELECT value FROM meta WHERE key = 'schema_version'`).Scan(&v)
	if err != nil {
		return 0, fmt.Errorf("%s: reading schema version: %w", r.path, err)
	}
	return v, nil
}

// LoadEntries reads every item with a positive weight, in export order.
func (r *SQLiteReader) LoadEntries() ([]loader.ListEntry, error) {
	rows, err := r.db.Query(`SELECT path, weight FROM items WHERE weight > 0 ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("%s: querying items: %w", r.path, err)
	}
	defer rows.Close()

	var entries []loader.ListEntry
	for rows.Next() {
		var e loader.ListEntry
		if err := rows.Scan(&e.Path, &e.Weight); err != nil {
			return nil, fmt.Errorf("%s: scanning item: %w", r.path, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: reading items: %w", r.path, err)
	}
	return entries, nil
}

// CountItems returns the number of exported items.
func (r *SQLiteReader) CountItems() (int, error) {
	var count int
	if err := r.db.QueryRow(`SELECT COUNT(*) FROM items`).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}
