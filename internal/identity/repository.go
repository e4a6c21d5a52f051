package identity

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when no verified user matches the lookup.
var ErrNotFound = errors.New("verified user not found")

// Repository persists verified users keyed by (device, instrument key).
type Repository interface {
	Find(ctx context.Context, deviceID, instrumentKey string) (VerifiedUser, error)
	// Upsert stores user and reports whether a new record was inserted.
	Upsert(ctx context.Context, user VerifiedUser) (bool, error)
	// SetLinkage applies linkage to every record of the device and returns the count.
	SetLinkage(ctx context.Context, deviceID string, linkage Linkage, cred Credential) (int64, error)
	IsDeviceLinked(ctx context.Context, deviceID string) (bool, error)
	PurgeLinkage(ctx context.Context) (int64, error)
}

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a Postgres-backed identity repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Find fetches a verified user by device and instrument key.
func (r *PostgresRepository) Find(ctx context.Context, deviceID, instrumentKey string) (VerifiedUser, error) {
	row := r.db.QueryRow(ctx, `SELECT device_id, instrument_key, instrument_mask, holder, proof_token,
        verified_at, first_time, linkage, stepup_subject, stepup_display_name, stepup_email,
        stepup_access_token, stepup_refresh_token, stepup_linked_at
        FROM verified_users WHERE device_id = $1 AND instrument_key = $2`, deviceID, instrumentKey)

	var (
		user                                  VerifiedUser
		linkage                               string
		subject, display, email, access, refr *string
		linkedAt                              *time.Time
	)
	if err := row.Scan(&user.DeviceID, &user.InstrumentKey, &user.InstrumentMask, &user.Holder, &user.ProofToken,
		&user.VerifiedAt, &user.FirstTime, &linkage, &subject, &display, &email, &access, &refr, &linkedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return VerifiedUser{}, ErrNotFound
		}
		return VerifiedUser{}, err
	}
	user.VerifiedAt = user.VerifiedAt.UTC()
	user.Linkage = Linkage(linkage)
	if subject != nil {
		cred := Credential{Subject: *subject}
		if display != nil {
			cred.DisplayName = *display
		}
		if email != nil {
			cred.Email = *email
		}
		if access != nil {
			cred.AccessToken = *access
		}
		if refr != nil {
			cred.RefreshToken = *refr
		}
		if linkedAt != nil {
			cred.LinkedAt = linkedAt.UTC()
		}
		user.Credential = &cred
	}
	return user, nil
}

// Upsert inserts the user or refreshes the proof fields of an existing record.
// A new record inherits the device's completed step-up link, and linkage
// survives re-verification.
func (r *PostgresRepository) Upsert(ctx context.Context, user VerifiedUser) (bool, error) {
	var inserted bool
	err := r.db.QueryRow(ctx, `INSERT INTO verified_users
        (device_id, instrument_key, instrument_mask, holder, proof_token, verified_at, first_time, linkage,
         stepup_subject, stepup_display_name, stepup_email, stepup_access_token, stepup_refresh_token, stepup_linked_at)
        SELECT $1::text, $2::text, $3::text, $4::jsonb, $5::text, $6::timestamptz, TRUE, COALESCE(l.linkage, $7::text),
            l.stepup_subject, l.stepup_display_name, l.stepup_email, l.stepup_access_token,
            l.stepup_refresh_token, l.stepup_linked_at
        FROM (SELECT 1) AS seed
        LEFT JOIN LATERAL (
            SELECT linkage, stepup_subject, stepup_display_name, stepup_email, stepup_access_token,
                stepup_refresh_token, stepup_linked_at
            FROM verified_users
            WHERE device_id = $1::text AND linkage = $8::text AND stepup_subject IS NOT NULL
            ORDER BY stepup_linked_at DESC NULLS LAST
            LIMIT 1
        ) AS l ON TRUE
        ON CONFLICT (device_id, instrument_key) DO UPDATE SET
            instrument_mask = EXCLUDED.instrument_mask,
            holder = EXCLUDED.holder,
            proof_token = EXCLUDED.proof_token,
            verified_at = EXCLUDED.verified_at,
            first_time = FALSE
        RETURNING (xmax = 0)`,
		user.DeviceID, user.InstrumentKey, user.InstrumentMask, user.Holder, user.ProofToken,
		user.VerifiedAt.UTC(), string(LinkageUnlinked), string(LinkageLinked)).Scan(&inserted)
	return inserted, err
}

// SetLinkage stores the step-up credential on every record of the device.
func (r *PostgresRepository) SetLinkage(ctx context.Context, deviceID string, linkage Linkage, cred Credential) (int64, error) {
	cmd, err := r.db.Exec(ctx, `UPDATE verified_users SET linkage = $2, stepup_subject = $3,
        stepup_display_name = $4, stepup_email = $5, stepup_access_token = NULLIF($6, ''),
        stepup_refresh_token = NULLIF($7, ''), stepup_linked_at = $8
        WHERE device_id = $1`,
		deviceID, string(linkage), cred.Subject, cred.DisplayName, cred.Email, cred.AccessToken, cred.RefreshToken, cred.LinkedAt.UTC())
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

// IsDeviceLinked reports whether any record of the device carries a completed
// step-up link, the same state VerifiedUser.IsLinked accepts.
func (r *PostgresRepository) IsDeviceLinked(ctx context.Context, deviceID string) (bool, error) {
	var linked bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM verified_users
        WHERE device_id = $1 AND linkage = $2 AND stepup_subject IS NOT NULL)`, deviceID, string(LinkageLinked)).Scan(&linked)
	return linked, err
}

// PurgeLinkage removes all step-up linkage data.
func (r *PostgresRepository) PurgeLinkage(ctx context.Context) (int64, error) {
	cmd, err := r.db.Exec(ctx, `UPDATE verified_users SET linkage = $1, stepup_subject = NULL,
        stepup_display_name = NULL, stepup_email = NULL, stepup_access_token = NULL,
        stepup_refresh_token = NULL, stepup_linked_at = NULL
        WHERE linkage <> $1`, string(LinkageUnlinked))
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}
