package export

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/vanderheijden86/slidetree/pkg/metrics"
	"github.com/vanderheijden86/slidetree/pkg/model"
)

// SQLiteExporter writes a weighted tree to a SQLite database: the node
// hierarchy, one row per sampled item, and a meta table.
type SQLiteExporter struct {
	Tree   *model.Tree
	Inputs []string
	Config SQLiteExportConfig
}

// NewSQLiteExporter creates a new exporter for tree.
func NewSQLiteExporter(tree *model.Tree, inputs []string) *SQLiteExporter {
	return &SQLiteExporter{
		Tree:   tree,
		Inputs: inputs,
		Config: DefaultSQLiteExportConfig(),
	}
}

// Export writes the database to dbPath, replacing any existing file. All
// rows are written in one transaction.
func (e *SQLiteExporter) Export(dbPath string) error {
	defer metrics.Timer(metrics.Export)()

	nodes, items, err := collectRows(e.Tree)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	if err := os.Remove(dbPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing database: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	dbClosed := false
	defer func() {
		if !dbClosed {
			db.Close()
		}
	}()

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := CreateSchema(tx); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if err := insertNodes(tx, nodes); err != nil {
		return fmt.Errorf("insert nodes: %w", err)
	}
	if err := insertItems(tx, items); err != nil {
		return fmt.Errorf("insert items: %w", err)
	}
	if err := e.insertMeta(tx, items); err != nil {
		return fmt.Errorf("insert meta: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	if err := OptimizeDatabase(db, e.Config.PageSize); err != nil {
		return fmt.Errorf("optimize database: %w", err)
	}
	if err := db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	dbClosed = true
	return nil
}

func insertNodes(tx *sql.Tx, nodes []NodeRow) error {
	stmt, err := tx.Prepare(`
		INSERT INTO nodes (id, name, path, parent_id, rung, group_name, proportion, user_proportion,
			weight, weight_modifier, is_percentage, mode_modifier, flat, video, image_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, n := range nodes {
		_, err := stmt.Exec(
			n.ID,
			n.Name,
			nullString(n.Path),
			n.ParentID,
			n.Rung,
			nullString(n.Group),
			n.Proportion,
			n.UserProportion,
			n.Weight,
			n.WeightModifier,
			n.IsPercentage,
			nullString(n.ModeModifier),
			n.Flat,
			n.Video,
			n.ImageCount,
		)
		if err != nil {
			return fmt.Errorf("node %s: %w", n.Name, err)
		}
	}
	return nil
}

func insertItems(tx *sql.Tx, items []ItemRow) error {
	stmt, err := tx.Prepare(`INSERT INTO items (path, weight, node_id) VALUES (?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, it := range items {
		if _, err := stmt.Exec(it.Path, it.Weight, it.NodeID); err != nil {
			return fmt.Errorf("item %s: %w", it.Path, err)
		}
	}
	return nil
}

func (e *SQLiteExporter) insertMeta(tx *sql.Tx, items []ItemRow) error {
	meta := map[string]string{
		"schema_version": strconv.Itoa(SchemaVersion),
		"generated_at":   time.Now().UTC().Format(time.RFC3339),
		"mode":           e.Tree.Mode.String(),
		"node_count":     strconv.Itoa(e.Tree.Len()),
		"item_count":     strconv.Itoa(len(items)),
		"inputs":         strings.Join(e.Inputs, "\n"),
		"data_hash":      dataHash(items),
	}
	if e.Config.Title != "" {
		meta["title"] = e.Config.Title
	}

	for key, value := range meta {
		if err := InsertMetaValue(tx, key, value); err != nil {
			return fmt.Errorf("insert meta %s: %w", key, err)
		}
	}
	return nil
}

// dataHash fingerprints the sampled items so two exports can be compared
// without reading every row.
func dataHash(items []ItemRow) string {
	h := sha256.New()
	for _, it := range items {
		fmt.Fprintf(h, "%s\x00%s\n", it.Path, strconv.FormatFloat(it.Weight, 'g', -1, 64))
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
