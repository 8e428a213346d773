// Package archive stores tile records in a single SQLite file laid out like
// an MBTiles archive: a tiles table keyed by (lod, tx, ty) and a name/value
// metadata table.
//
// Tile indices are metric grid indices and may be negative, so rows are stored
// as given without the TMS row flip.
package archive

import (
	"database/sql"
	"errors"
	"fmt"
	"os"

	_ "github.com/mattn/go-sqlite3" // import sqlite3 driver

	"github.com/beetlebugorg/shptiles/internal/tiling"
)

// Writer appends tiles to an archive inside one transaction committed by Close.
type Writer struct {
	path string
	db   *sql.DB
	tx   *sql.Tx

	insertTile *sql.Stmt
	count      int
}

// Create creates the archive at path, replacing any existing file.
func Create(path string) (*Writer, error) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("remove old archive: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{
		"PRAGMA synchronous=0",
		"PRAGMA journal_mode=DELETE",
		"create table if not exists tiles (lod integer, tile_x integer, tile_y integer, tile_data blob);",
		"create table if not exists metadata (name text, value text);",
		"create unique index if not exists name on metadata (name);",
		"create unique index if not exists tile_index on tiles (lod, tile_x, tile_y);",
	} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("prepare archive schema: %w", err)
		}
	}

	tx, err := db.Begin()
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("begin archive transaction: %w", err)
	}
	insert, err := tx.Prepare("insert or replace into tiles (lod, tile_x, tile_y, tile_data) values (?, ?, ?, ?);")
	if err != nil {
		tx.Rollback()
		db.Close()
		return nil, fmt.Errorf("prepare tile insert: %w", err)
	}

	return &Writer{path: path, db: db, tx: tx, insertTile: insert}, nil
}

// WriteTile stores one encoded tile record.
func (w *Writer) WriteTile(lod int, k tiling.Key, data []byte) error {
	if w.tx == nil {
		return errors.New("archive: writer closed")
	}
	if _, err := w.insertTile.Exec(lod, k.X, k.Y, data); err != nil {
		return fmt.Errorf("write tile %d/%s: %w", lod, k, err)
	}
	w.count++
	return nil
}

// SetMetadata stores a metadata value, replacing any previous one.
func (w *Writer) SetMetadata(name, value string) error {
	if w.tx == nil {
		return errors.New("archive: writer closed")
	}
	if _, err := w.tx.Exec("insert or replace into metadata (name, value) values (?, ?);", name, value); err != nil {
		return fmt.Errorf("write metadata %s: %w", name, err)
	}
	return nil
}

// Count returns the number of tiles written.
func (w *Writer) Count() int {
	return w.count
}

// Close commits the transaction and closes the database.
func (w *Writer) Close() error {
	if w.db == nil {
		return nil
	}
	defer func() { w.db = nil }()

	var errs []error
	if w.tx != nil {
		w.insertTile.Close()
		if err := w.tx.Commit(); err != nil {
			errs = append(errs, fmt.Errorf("commit archive: %w", err))
		}
		w.tx = nil
	}
	if _, err := w.db.Exec("ANALYZE;"); err != nil {
		errs = append(errs, fmt.Errorf("analyze archive: %w", err))
	}
	if err := w.db.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close archive: %w", err))
	}
	return errors.Join(errs...)
}

// Abort rolls back the transaction, closes the database and removes the
// archive file. It is a no-op after Close or Abort.
func (w *Writer) Abort() error {
	if w.db == nil {
		return nil
	}
	defer func() { w.db = nil }()

	var errs []error
	if w.tx != nil {
		w.insertTile.Close()
		if err := w.tx.Rollback(); err != nil {
			errs = append(errs, fmt.Errorf("roll back archive: %w", err))
		}
		w.tx = nil
	}
	if err := w.db.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close archive: %w", err))
	}
	if err := os.Remove(w.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		errs = append(errs, fmt.Errorf("remove archive: %w", err))
	}
	return errors.Join(errs...)
}

// ReadTile returns the stored record for (lod, k), or sql.ErrNoRows.
func ReadTile(db *sql.DB, lod int, k tiling.Key) ([]byte, error) {
	var data []byte
	err := db.QueryRow("select tile_data from tiles where lod = ? and tile_x = ? and tile_y = ?;", lod, k.X, k.Y).Scan(&data)
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Metadata returns every metadata pair of an archive.
func Metadata(db *sql.DB) (map[string]string, error) {
	rows, err := db.Query("select name, value from metadata;")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, err
		}
		out[name] = value
	}
	return out, rows.Err()
}

// Open opens an existing archive for reading.
func Open(path string) (*sql.DB, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	return db, nil
}
