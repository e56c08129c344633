// Package navstore keeps a history of vault net asset value snapshots in
// SQLite.
package navstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
)

// ErrInvalidAmount is returned when a stored amount cannot be parsed.
var ErrInvalidAmount = errors.New("navstore: invalid stored amount")

// Snapshot is the accounting state of one vault at one instant. Amounts are in
// base units of the vault asset; SharePrice is the assets redeemable for one
// whole share.
type Snapshot struct {
	ID          uuid.UUID
	Vault       string
	TakenAt     int64
	TotalAssets *big.Int
	TotalSupply *big.Int
	Liquidity   *big.Int
	SharePrice  *big.Int
}

type Store struct {
	db *sql.DB
}

// Open opens or creates the SQLite database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open(sqlite.DriverName, path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	store := &Store{db: db}
	if err := store.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) init() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS nav_snapshots (
            id TEXT PRIMARY KEY,
            vault TEXT NOT NULL,
            taken_at INTEGER NOT NULL,
            total_assets TEXT NOT NULL,
            total_supply TEXT NOT NULL,
            liquidity TEXT NOT NULL,
            share_price TEXT NOT NULL,
            recorded_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
        );`,
		`CREATE INDEX IF NOT EXISTS nav_snapshots_vault_taken ON nav_snapshots(vault, taken_at);`,
	}
	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("navstore: init schema: %w", err)
		}
	}
	return nil
}

// Record stores snap and returns its id. A zero ID is replaced by a new one.
func (s *Store) Record(ctx context.Context, snap Snapshot) (uuid.UUID, error) {
	if snap.ID == uuid.Nil {
		snap.ID = uuid.New()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO nav_snapshots (id, vault, taken_at, total_assets, total_supply, liquidity, share_price, recorded_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		snap.ID.String(), snap.Vault, snap.TakenAt,
		amountText(snap.TotalAssets), amountText(snap.TotalSupply),
		amountText(snap.Liquidity), amountText(snap.SharePrice),
		time.Now().UTC(),
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("navstore: record %s: %w", snap.Vault, err)
	}
	return snap.ID, nil
}

// History returns the most recent snapshots of vault, newest first. A
// non-positive limit returns every snapshot.
func (s *Store) History(ctx context.Context, vault string, limit int) ([]Snapshot, error) {
	query := `SELECT id, vault, taken_at, total_assets, total_supply, liquidity, share_price
        FROM nav_snapshots WHERE vault = ? ORDER BY taken_at DESC, recorded_at DESC`
	args := []any{vault}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Snapshot
	for rows.Next() {
		var (
			id                               string
			snap                             Snapshot
			assets, supply, liquidity, price string
		)
		if err := rows.Scan(&id, &snap.Vault, &snap.TakenAt, &assets, &supply, &liquidity, &price); err != nil {
			return nil, err
		}
		if snap.ID, err = uuid.Parse(id); err != nil {
			return nil, err
		}
		for _, field := range []struct {
			dst **big.Int
			src string
		}{
			{&snap.TotalAssets, assets},
			{&snap.TotalSupply, supply},
			{&snap.Liquidity, liquidity},
			{&snap.SharePrice, price},
		} {
			value, ok := new(big.Int).SetString(field.src, 10)
			if !ok {
				return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, field.src)
			}
			*field.dst = value
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

func (s *Store) Close() error {
	return s.db.Close()
}

func amountText(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
