package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresLedger persists cleared purchases in PostgreSQL.
type PostgresLedger struct {
	db *pgxpool.Pool
}

// NewPostgresLedger constructs a Postgres-backed ledger implementation.
func NewPostgresLedger(db *pgxpool.Pool) *PostgresLedger {
	return &PostgresLedger{db: db}
}

// RecordPurchase inserts the purchase unless its reference already exists.
func (l *PostgresLedger) RecordPurchase(ctx context.Context, p Purchase) (Receipt, error) {
	if p.Reference == "" {
		return Receipt{}, fmt.Errorf("purchase reference is required")
	}
	if p.Amount.IsNegative() {
		return Receipt{}, fmt.Errorf("amount must not be negative")
	}

	tx, err := l.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Receipt{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	id := uuid.New()
	recordedAt := time.Now().UTC()
	cmd, err := tx.Exec(ctx, `INSERT INTO purchases
        (id, reference, device_id, instrument_key, merchant, amount, channel, status, recorded_at)
        VALUES ($1, $2, $3, $4, $5, $6::numeric, $7, $8, $9)
        ON CONFLICT (reference) DO NOTHING`,
		id, p.Reference, p.DeviceID, p.InstrumentKey, p.Merchant, p.Amount.String(), p.Channel, StatusCompleted, recordedAt)
	if err != nil {
		return Receipt{}, err
	}
	if cmd.RowsAffected() == 0 {
		existing, err := receiptByReference(ctx, tx, p.Reference)
		if err != nil {
			return Receipt{}, err
		}
		return existing, ErrDuplicateTransaction
	}

	if err := tx.Commit(ctx); err != nil {
		return Receipt{}, err
	}
	return Receipt{ID: id.String(), Reference: p.Reference, Status: StatusCompleted, RecordedAt: recordedAt}, nil
}

// Receipt fetches the receipt recorded under reference.
func (l *PostgresLedger) Receipt(ctx context.Context, reference string) (Receipt, error) {
	tx, err := l.db.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return Receipt{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck
	return receiptByReference(ctx, tx, reference)
}

func receiptByReference(ctx context.Context, tx pgx.Tx, reference string) (Receipt, error) {
	const query = `SELECT id, reference, status, recorded_at FROM purchases WHERE reference = $1`
	var (
		id  uuid.UUID
		res Receipt
	)
	if err := tx.QueryRow(ctx, query, reference).Scan(&id, &res.Reference, &res.Status, &res.RecordedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Receipt{}, ErrNotFound
		}
		return Receipt{}, err
	}
	res.ID = id.String()
	res.RecordedAt = res.RecordedAt.UTC()
	return res, nil
}
