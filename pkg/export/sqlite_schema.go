package export

import (
	"database/sql"
	"fmt"
)

// SchemaVersion of the exported database. Readers check the meta table
// before trusting the items table.
const SchemaVersion = 1

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

// CreateSchema creates all tables, indexes and views.
func CreateSchema(db execer) error {
	if err := createCoreTables(db); err != nil {
		return fmt.Errorf("create core tables: %w", err)
	}
	if err := createIndexes(db); err != nil {
		return fmt.Errorf("create indexes: %w", err)
	}
	if err := createMetaTable(db); err != nil {
		return fmt.Errorf("create meta table: %w", err)
	}
	if err := createViews(db); err != nil {
		return fmt.Errorf("create views: %w", err)
	}
	return nil
}

// createCoreTables creates the nodes and items tables.
func createCoreTables(db execer) error {
	nodesSQL := `
		CREATE TABLE IF NOT EXISTS nodes (
			id INTEGER PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			path TEXT,
			parent_id INTEGER,
			rung INTEGER NOT NULL,
			group_name TEXT,
			proportion REAL,
			user_proportion REAL,
			weight REAL NOT NULL DEFAULT 0,
			weight_modifier INTEGER NOT NULL DEFAULT 100,
			is_percentage INTEGER NOT NULL DEFAULT 1,
			mode_modifier TEXT,
			flat INTEGER NOT NULL DEFAULT 0,
			video INTEGER,
			image_count INTEGER NOT NULL DEFAULT 0
		)
	`
	if _, err := db.Exec(nodesSQL); err != nil {
		return fmt.Errorf("create nodes table: %w", err)
	}

	// One row per sampled item, in sampler order
	itemsSQL := `
		CREATE TABLE IF NOT EXISTS items (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			path TEXT NOT NULL,
			weight REAL NOT NULL,
			node_id INTEGER NOT NULL,
			FOREIGN KEY (node_id) REFERENCES nodes(id)
		)
	`
	if _, err := db.Exec(itemsSQL); err != nil {
		return fmt.Errorf("create items table: %w", err)
	}
	return nil
}

func createIndexes(db execer) error {
	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_nodes_parent ON nodes(parent_id)`,
		`CREATE INDEX IF NOT EXISTS idx_nodes_rung ON nodes(rung)`,
		`CREATE INDEX IF NOT EXISTS idx_items_node ON items(node_id)`,
	}
	for _, idx := range indexes {
		if _, err := db.Exec(idx); err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}
	return nil
}

func createMetaTable(db execer) error {
	metaSQL := `
		CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT
		)
	`
	if _, err := db.Exec(metaSQL); err != nil {
		return fmt.Errorf("create meta table: %w", err)
	}
	return nil
}

// createViews adds per-node totals for ad-hoc queries.
func createViews(db execer) error {
	viewSQL := `
		CREATE VIEW IF NOT EXISTS node_totals AS
		SELECT
			n.id,
			n.name,
			n.rung,
			n.weight,
			COUNT(i.id) AS items,
			COALESCE(SUM(i.weight), 0) AS item_weight
		FROM nodes n
		LEFT JOIN items i ON i.node_id = n.id
		GROUP BY n.id
	`
	if _, err := db.Exec(viewSQL); err != nil {
		return fmt.Errorf("create node_totals view: %w", err)
	}
	return nil
}

// OptimizeDatabase compacts the database once all rows are written. It must
// run outside a transaction.
func OptimizeDatabase(db *sql.DB, pageSize int) error {
	if pageSize <= 0 {
		pageSize = 4096
	}

	optimizations := []string{
		`PRAGMA journal_mode=DELETE`,
		fmt.Sprintf(`PRAGMA page_size=%d`, pageSize),
		`ANALYZE`,
		`PRAGMA optimize`,
	}
	for _, stmt := range optimizations {
		if _, err := db.Exec(stmt); err != nil {
			// Some pragmas may fail depending on state, continue
			continue
		}
	}

	if _, err := db.Exec(`VACUUM`); err != nil {
		return fmt.Errorf("vacuum: %w", err)
	}
	return nil
}

// InsertMetaValue inserts or replaces a meta key/value pair.
func InsertMetaValue(db execer, key, value string) error {
	_, err := db.Exec(`INSERT OR REPLACE INTO meta (key, value) VALUES (?, ?)`, key, value)
	return err
}
