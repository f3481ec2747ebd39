package store

import (
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
)

//go:embed schema.sql
var schemaSQL string

// SQLiteStore is a TxStore backend over a SQLite database.
//
// It satisfies the same contract as MemoryStore; the database is run-scoped
// and exists to demonstrate that the ledger only depends on the TxStore
// capability, not on any particular backing. Amounts are stored as decimal
// strings to avoid float round-tripping.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite creates or opens a SQLite-backed transaction store at path.
// Applies required pragmas and the schema automatically; safe to call on an
// existing database.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time; a single connection keeps
	// every check-then-write pair on the same transaction and avoids
	// SQLITE_BUSY errors.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Get implements TxStore.
func (s *SQLiteStore) Get(client uint16, tx uint32) (TxState, bool, error) {
	var owner uint16
	var status string
	var amount string
	err := s.db.QueryRow(
		"SELECT client_id, status, amount FROM transactions WHERE tx_id = ?", tx,
	).Scan(&owner, &status, &amount)
	if errors.Is(err, sql.ErrNoRows) {
		return TxState{}, false, nil
	}
	if err != nil {
		return TxState{}, false, fmt.Errorf("failed to read transaction %d: %w", tx, err)
	}

	// Foreign ownership folds into absence.
	if owner != client {
		return TxState{}, false, nil
	}

	a, err := decimal.NewFromString(amount)
	if err != nil {
		return TxState{}, false, fmt.Errorf("corrupt amount for transaction %d: %w", tx, err)
	}
	return TxState{Status: Status(status), Amount: a}, true, nil
}

// Put implements TxStore. The existence check and the insert run inside one
// database transaction so that two clients racing on the same id resolve to
// a single winner.
func (s *SQLiteStore) Put(client uint16, tx uint32, state TxState) error {
	dbTx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer dbTx.Rollback()

	var owner uint16
	err = dbTx.QueryRow("SELECT client_id FROM transactions WHERE tx_id = ?", tx).Scan(&owner)
	switch {
	case err == nil:
		if owner == client {
			return ErrDuplicateTransaction
		}
		return ErrOwnershipConflict
	case errors.Is(err, sql.ErrNoRows):
		// id is free
	default:
		return fmt.Errorf("failed to read transaction %d: %w", tx, err)
	}

	if _, err := dbTx.Exec(
		"INSERT INTO transactions (tx_id, client_id, status, amount) VALUES (?, ?, ?, ?)",
		tx, client, string(state.Status), state.Amount.String(),
	); err != nil {
		return fmt.Errorf("failed to insert transaction %d: %w", tx, err)
	}
	return dbTx.Commit()
}

// Upsert implements TxStore.
func (s *SQLiteStore) Upsert(client uint16, tx uint32, state TxState) error {
	dbTx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer dbTx.Rollback()

	var owner uint16
	err = dbTx.QueryRow("SELECT client_id FROM transactions WHERE tx_id = ?", tx).Scan(&owner)
	switch {
	case err == nil:
		if owner != client {
			return ErrOwnershipConflict
		}
		if _, err := dbTx.Exec(
			"UPDATE transactions SET status = ?, amount = ? WHERE tx_id = ?",
			string(state.Status), state.Amount.String(), tx,
		); err != nil {
			return fmt.Errorf("failed to update transaction %d: %w", tx, err)
		}
	case errors.Is(err, sql.ErrNoRows):
		if _, err := dbTx.Exec(
			"INSERT INTO transactions (tx_id, client_id, status, amount) VALUES (?, ?, ?, ?)",
			tx, client, string(state.Status), state.Amount.String(),
		); err != nil {
			return fmt.Errorf("failed to insert transaction %d: %w", tx, err)
		}
	default:
		return fmt.Errorf("failed to read transaction %d: %w", tx, err)
	}
	return dbTx.Commit()
}
