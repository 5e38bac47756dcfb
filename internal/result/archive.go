package result

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // pure-Go SQLite driver

	"formulagraph/internal/types"
)

// Archive persists computed values across runs in SQLite, keyed by a
// monotonically increasing registry version. It is a durability layer
// under the in-memory Store: a run loads the latest version, recomputes
// incrementally, and saves the next version.
type Archive struct {
	mu sync.Mutex
	db *sql.DB
}

// OpenArchive opens (and if needed creates) the archive database at
// path.
func OpenArchive(path string) (*Archive, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening archive: %w", err)
	}
	a := &Archive{db: db}
	if err := a.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return a, nil
}

// Close releases the underlying database.
func (a *Archive) Close() error { return a.db.Close() }

func (a *Archive) migrate() error {
	_, err := a.db.Exec(`
		CREATE TABLE IF NOT EXISTS computed_values (
			version     INTEGER NOT NULL,
			formula_id  TEXT    NOT NULL,
			value       TEXT,
			fingerprint TEXT    NOT NULL,
			status      TEXT    NOT NULL,
			error       TEXT,
			computed_at TEXT    NOT NULL,
			PRIMARY KEY (version, formula_id)
		);
		CREATE INDEX IF NOT EXISTS idx_computed_values_version
			ON computed_values(version);
	`)
	if err != nil {
		return fmt.Errorf("migrating archive schema: %w", err)
	}
	return nil
}

// LatestVersion returns the highest saved registry version, or 0 when
// the archive is empty.
func (a *Archive) LatestVersion() (int64, error) {
	var v sql.NullInt64
	err := a.db.QueryRow(`SELECT MAX(version) FROM computed_values`).Scan(&v)
	if err != nil {
		return 0, fmt.Errorf("querying latest version: %w", err)
	}
	if !v.Valid {
		return 0, nil
	}
	return v.Int64, nil
}

// SaveVersion writes every stored value under the given version. The
// version must be strictly greater than the latest saved one; saving
// backwards or in place is a caller bug, not a merge.
func (a *Archive) SaveVersion(version int64, values []types.ComputedValue) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	latest, err := a.LatestVersion()
	if err != nil {
		return err
	}
	if version <= latest {
		return fmt.Errorf("version %d is not greater than latest saved version %d", version, latest)
	}

	tx, err := a.db.Begin()
	if err != nil {
		return fmt.Errorf("starting save transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO computed_values
			(version, formula_id, value, fingerprint, status, error, computed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, cv := range values {
		var valueJSON []byte
		if cv.Value != nil {
			valueJSON, err = json.Marshal(cv.Value)
			if err != nil {
				return fmt.Errorf("encoding value for %q: %w", cv.FormulaID, err)
			}
		}
		_, err = stmt.Exec(
			version,
			string(cv.FormulaID),
			string(valueJSON),
			cv.InputsFingerprint,
			string(cv.Status),
			cv.Error,
			cv.ComputedAt.UTC().Format(time.RFC3339Nano),
		)
		if err != nil {
			return fmt.Errorf("saving %q: %w", cv.FormulaID, err)
		}
	}
	return tx.Commit()
}

// LoadVersion reads all values saved under version into a fresh Store.
func (a *Archive) LoadVersion(version int64) (*Store, error) {
	rows, err := a.db.Query(`
		SELECT formula_id, value, fingerprint, status, error, computed_at
		FROM computed_values WHERE version = ?
	`, version)
	if err != nil {
		return nil, fmt.Errorf("loading version %d: %w", version, err)
	}
	defer rows.Close()

	store := NewStore()
	for rows.Next() {
		var (
			id, valueJSON, fingerprint, status, errText, at string
		)
		if err := rows.Scan(&id, &valueJSON, &fingerprint, &status, &errText, &at); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		cv := types.ComputedValue{
			FormulaID:         types.ID(id),
			InputsFingerprint: fingerprint,
			Status:            types.Status(status),
			Error:             errText,
		}
		if valueJSON != "" {
			if err := json.Unmarshal([]byte(valueJSON), &cv.Value); err != nil {
				return nil, fmt.Errorf("decoding value for %q: %w", id, err)
			}
		}
		if ts, err := time.Parse(time.RFC3339Nano, at); err == nil {
			cv.ComputedAt = ts
		}
		store.Put(cv)
	}
	return store, rows.Err()
}

// LoadLatest reads the most recently saved version. An empty archive
// yields an empty store and version 0.
func (a *Archive) LoadLatest() (*Store, int64, error) {
	version, err := a.LatestVersion()
	if err != nil {
		return nil, 0, err
	}
	if version == 0 {
		return NewStore(), 0, nil
	}
	store, err := a.LoadVersion(version)
	if err != nil {
		return nil, 0, err
	}
	return store, version, nil
}
