package approval

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// PostgresStore persists approval requests in PostgreSQL. Approve and Expire
// lock the row for the duration of the transaction.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore builds a Postgres-backed approval store.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

const selectRequest = `SELECT transaction_id, device_id, instrument_key, merchant, amount::text,
        created_at, expires_at, status, approved_at
        FROM approval_requests WHERE transaction_id = $1`

func (s *PostgresStore) Insert(ctx context.Context, req Request) error {
	cmd, err := s.db.Exec(ctx, `INSERT INTO approval_requests
        (transaction_id, device_id, instrument_key, merchant, amount, created_at, expires_at, status)
        VALUES ($1, $2, $3, $4, $5::numeric, $6, $7, $8)
        ON CONFLICT (transaction_id) DO NOTHING`,
		req.TransactionID, req.DeviceID, req.InstrumentKey, req.Merchant, req.Amount.String(),
		req.CreatedAt.UTC(), req.ExpiresAt.UTC(), StatusPending)
	if err != nil {
		return fmt.Errorf("insert approval request: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrDuplicateID
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (Request, error) {
	return scanRequest(s.db.QueryRow(ctx, selectRequest, id))
}

func (s *PostgresStore) Approve(ctx context.Context, id string, at time.Time) (Request, bool, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Request{}, false, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	req, err := scanRequest(tx.QueryRow(ctx, selectRequest+` FOR UPDATE`, id))
	if err != nil {
		return Request{}, false, err
	}
	if req.Status == StatusApproved {
		return req, true, nil
	}
	if at.After(req.ExpiresAt) {
		return Request{}, false, ErrExpired
	}

	approvedAt := at.UTC()
	if _, err := tx.Exec(ctx, `UPDATE approval_requests SET status = $1, approved_at = $2
        WHERE transaction_id = $3`, StatusApproved, approvedAt, id); err != nil {
		return Request{}, false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Request{}, false, err
	}
	req.Status = StatusApproved
	req.ApprovedAt = &approvedAt
	return req, false, nil
}

func (s *PostgresStore) Expire(ctx context.Context, id string, at time.Time) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	req, err := scanRequest(tx.QueryRow(ctx, selectRequest+` FOR UPDATE`, id))
	if err != nil {
		return err
	}
	if req.Status == StatusApproved {
		return ErrAlreadyApproved
	}
	if at.Before(req.ExpiresAt) {
		if _, err := tx.Exec(ctx, `UPDATE approval_requests SET expires_at = $1 WHERE transaction_id = $2`,
			at.UTC(), id); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) PurgeExpired(ctx context.Context, before time.Time) (int64, error) {
	cmd, err := s.db.Exec(ctx, `DELETE FROM approval_requests WHERE expires_at < $1`, before.UTC())
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func scanRequest(row pgx.Row) (Request, error) {
	var (
		req        Request
		amount     string
		status     string
		approvedAt *time.Time
	)
	if err := row.Scan(&req.TransactionID, &req.DeviceID, &req.InstrumentKey, &req.Merchant, &amount,
		&req.CreatedAt, &req.ExpiresAt, &status, &approvedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Request{}, ErrNotFound
		}
		return Request{}, err
	}
	parsed, err := decimal.NewFromString(amount)
	if err != nil {
		return Request{}, fmt.Errorf("decode amount: %w", err)
	}
	req.Amount = parsed
	req.Status = Status(status)
	req.CreatedAt = req.CreatedAt.UTC()
	req.ExpiresAt = req.ExpiresAt.UTC()
	if approvedAt != nil {
		t := approvedAt.UTC()
		req.ApprovedAt = &t
	}
	return req, nil
}
