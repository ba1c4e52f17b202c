// Package sqlite persists ledger checkpoints in a SQLite database. A
// checkpoint is the full committed state at one block, stored table by
// table with each object kept in its canonical CBOR encoding.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	_ "modernc.org/sqlite"

	"github.com/xraph/chainledger/chainbase"
	"github.com/xraph/chainledger/id"
	"github.com/xraph/chainledger/protocol"
	"github.com/xraph/chainledger/store"
	"github.com/xraph/chainledger/types"
)

// ErrNotFound is returned when no checkpoint matches.
var ErrNotFound = errors.New("sqlite: checkpoint not found")

// Checkpoint is the committed state at one block. Snapshot is nil in
// listings. ID is assigned on Save when unset; rows written before the
// checkpoint_id column existed load with id.Nil.
type Checkpoint struct {
	ID        id.ID
	BlockNum  uint32
	BlockID   protocol.BlockID
	BlockTime types.Timestamp
	Digest    [32]byte
	CreatedAt time.Time
	Snapshot  *store.Snapshot
}

// Store implements checkpoint persistence on database/sql.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database file at path and migrates it.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+
		"?_pragma=journal_mode(WAL)"+
		"&_pragma=foreign_keys(ON)"+
		"&_pragma=busy_timeout(5000)"+
		"&_pragma=synchronous(NORMAL)")
	if err != nil {
		return nil, fmt.Errorf("sqlite: open database: %w", err)
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	s := New(db)
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an open database. Call Migrate before use.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// DB returns the underlying database for direct access.
func (s *Store) DB() *sql.DB { return s.db }

// Migrate creates the required tables.
func (s *Store) Migrate(ctx context.Context) error {
	if err := migrate(ctx, s.db); err != nil {
		return fmt.Errorf("sqlite: migration failed: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ──────────────────────────────────────────────────
// Checkpoints
// ──────────────────────────────────────────────────

// Save writes cp, replacing any checkpoint at the same block.
func (s *Store) Save(ctx context.Context, cp *Checkpoint) error {
	if cp.Snapshot == nil {
		return fmt.Errorf("sqlite: checkpoint %d has no snapshot", cp.BlockNum)
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	if cp.ID.IsNil() {
		cp.ID = id.NewCheckpointID()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	if err := deleteChildren(ctx, tx, cp.BlockNum); err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
INSERT INTO checkpoints (block_num, checkpoint_id, block_id, block_time, revision, digest, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (block_num) DO UPDATE SET
    checkpoint_id = excluded.checkpoint_id,
    block_id = excluded.block_id,
    block_time = excluded.block_time,
    revision = excluded.revision,
    digest = excluded.digest,
    created_at = excluded.created_at`,
		cp.BlockNum, cp.ID, cp.BlockID.String(), int64(cp.BlockTime), cp.Snapshot.Revision,
		cp.Digest[:], cp.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("sqlite: insert checkpoint %d: %w", cp.BlockNum, err)
	}

	tableStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO checkpoint_tables (block_num, ordinal, table_name, next_id) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer tableStmt.Close()
	objectStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO checkpoint_objects (block_num, ordinal, seq, data) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer objectStmt.Close()

	for ordinal, t := range cp.Snapshot.Tables {
		if _, err := tableStmt.ExecContext(ctx, cp.BlockNum, ordinal, t.Name, int64(t.NextID)); err != nil {
			return fmt.Errorf("sqlite: insert table %s: %w", t.Name, err)
		}
		for seq, raw := range t.Records {
			if _, err := objectStmt.ExecContext(ctx, cp.BlockNum, ordinal, seq, []byte(raw)); err != nil {
				return fmt.Errorf("sqlite: insert %s object %d: %w", t.Name, seq, err)
			}
		}
	}
	return tx.Commit()
}

// Latest returns the checkpoint with the highest block number.
func (s *Store) Latest(ctx context.Context) (*Checkpoint, error) {
	var num uint32
	err := s.db.QueryRowContext(ctx, `SELECT block_num FROM checkpoints ORDER BY block_num DESC LIMIT 1`).Scan(&num)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return s.Load(ctx, num)
}

// Load returns the checkpoint at block num with its snapshot.
func (s *Store) Load(ctx context.Context, num uint32) (*Checkpoint, error) {
	cp, err := scanCheckpoint(s.db.QueryRowContext(ctx, `
SELECT block_num, checkpoint_id, block_id, block_time, revision, digest, created_at
FROM checkpoints WHERE block_num = ?`, num))
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT table_name, next_id FROM checkpoint_tables WHERE block_num = ? ORDER BY ordinal`, num)
	if err != nil {
		return nil, err
	}
	var tables []store.TableSnapshot
	for rows.Next() {
		var (
			name string
			next int64
		)
		if err := rows.Scan(&name, &next); err != nil {
			rows.Close()
			return nil, err
		}
		tables = append(tables, store.TableSnapshot{Name: name, NextID: chainbase.ID(next)})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = s.db.QueryContext(ctx,
		`SELECT ordinal, data FROM checkpoint_objects WHERE block_num = ? ORDER BY ordinal, seq`, num)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			ordinal int
			data    []byte
		)
		if err := rows.Scan(&ordinal, &data); err != nil {
			return nil, err
		}
		if ordinal < 0 || ordinal >= len(tables) {
			return nil, fmt.Errorf("sqlite: checkpoint %d: object in unknown table %d", num, ordinal)
		}
		tables[ordinal].Records = append(tables[ordinal].Records, cbor.RawMessage(data))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	cp.Snapshot.Tables = tables
	return cp, nil
}

// LoadByID returns the checkpoint with the given checkpoint id.
func (s *Store) LoadByID(ctx context.Context, cid id.ID) (*Checkpoint, error) {
	if cid.IsNil() {
		return nil, ErrNotFound
	}
	var num uint32
	err := s.db.QueryRowContext(ctx, `SELECT block_num FROM checkpoints WHERE checkpoint_id = ?`, cid).Scan(&num)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return s.Load(ctx, num)
}

// List returns every checkpoint without snapshots, newest first.
func (s *Store) List(ctx context.Context) ([]*Checkpoint, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT block_num, checkpoint_id, block_id, block_time, revision, digest, created_at
FROM checkpoints ORDER BY block_num DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Checkpoint
	for rows.Next() {
		cp, err := scanCheckpoint(rows)
		if err != nil {
			return nil, err
		}
		cp.Snapshot = nil
		out = append(out, cp)
	}
	return out, rows.Err()
}

// Prune keeps the newest keep checkpoints and deletes the rest. It returns
// the number of deleted checkpoints.
func (s *Store) Prune(ctx context.Context, keep int) (int, error) {
	if keep < 1 {
		return 0, fmt.Errorf("sqlite: prune must keep at least one checkpoint, got %d", keep)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback() //nolint:errcheck

	rows, err := tx.QueryContext(ctx,
		`SELECT block_num FROM checkpoints ORDER BY block_num DESC LIMIT -1 OFFSET ?`, keep)
	if err != nil {
		return 0, err
	}
	var doomed []uint32
	for rows.Next() {
		var num uint32
		if err := rows.Scan(&num); err != nil {
			rows.Close()
			return 0, err
		}
		doomed = append(doomed, num)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	for _, num := range doomed {
		if err := deleteChildren(ctx, tx, num); err != nil {
			return 0, err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM checkpoints WHERE block_num = ?`, num); err != nil {
			return 0, err
		}
	}
	return len(doomed), tx.Commit()
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCheckpoint(row rowScanner) (*Checkpoint, error) {
	var (
		cp        Checkpoint
		blockID   string
		blockTime int64
		revision  int64
		digest    []byte
		createdAt string
	)
	err := row.Scan(&cp.BlockNum, &cp.ID, &blockID, &blockTime, &revision, &digest, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := cp.BlockID.UnmarshalText([]byte(blockID)); err != nil {
		return nil, fmt.Errorf("sqlite: checkpoint %d block id: %w", cp.BlockNum, err)
	}
	if len(digest) != len(cp.Digest) {
		return nil, fmt.Errorf("sqlite: checkpoint %d digest has %d bytes", cp.BlockNum, len(digest))
	}
	copy(cp.Digest[:], digest)
	cp.BlockTime = types.Timestamp(blockTime)
	cp.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("sqlite: checkpoint %d created_at: %w", cp.BlockNum, err)
	}
	cp.Snapshot = &store.Snapshot{Revision: revision}
	return &cp, nil
}

func deleteChildren(ctx context.Context, tx *sql.Tx, num uint32) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM checkpoint_objects WHERE block_num = ?`, num); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, `DELETE FROM checkpoint_tables WHERE block_num = ?`, num)
	return err
}
