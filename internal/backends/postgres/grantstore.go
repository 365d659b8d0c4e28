// Package postgres reads and writes grants kept in the billing database. The
// tables are owned by the billing schema migrations; this package never creates them.
package postgres

import (
	"context"
	"database/sql"
	"entitled/internal/types"
	"errors"
	"time"

	_ "github.com/lib/pq"
)

const roleAdmin = "admin"

type GrantStore struct {
	db *sql.DB
}

func NewGrantStore(db *sql.DB) *GrantStore {
	return &GrantStore{db: db}
}

// Open connects with the lib/pq driver and verifies the connection.
func Open(ctx context.Context, url string) (*sql.DB, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// LoadGrants reads the four grant tables inside one read-only repeatable-read
// transaction so a snapshot never mixes rows from before and after a write.
func (s *GrantStore) LoadGrants(ctx context.Context, userID string) (types.RawGrantData, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true, Isolation: sql.LevelRepeatableRead})
	if err != nil {
		return types.RawGrantData{}, types.Err(types.ErrDataStoreAccess, err, "begin snapshot for %s", userID)
	}
	defer func() { _ = tx.Rollback() }()

	var g types.RawGrantData

	var (
		sub       types.PaidSubscription
		periodEnd sql.NullTime
		payload   sql.NullString
	)
	err = tx.QueryRowContext(ctx, `
		SELECT status, COALESCE(plan_type, ''), period_end, source_payload
		FROM subscriptions WHERE user_id = $1
	`, userID).Scan(&sub.Status, &sub.PlanType, &periodEnd, &payload)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return types.RawGrantData{}, types.Err(types.ErrDataStoreAccess, err, "load subscription for %s", userID)
	default:
		if periodEnd.Valid {
			t := periodEnd.Time.UTC()
			sub.PeriodEnd = &t
		}
		sub.SourcePayload = payload.String
		g.Subscription = &sub
	}

	var trialEnd time.Time
	err = tx.QueryRowContext(ctx, `SELECT trial_end FROM trial_grants WHERE user_id = $1`, userID).Scan(&trialEnd)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return types.RawGrantData{}, types.Err(types.ErrDataStoreAccess, err, "load trial for %s", userID)
	default:
		g.Trial = &types.TrialGrant{TrialEnd: trialEnd.UTC()}
	}

	var temp types.TemporaryGrant
	err = tx.QueryRowContext(ctx, `
		SELECT expires_at, COALESCE(reason, ''), COALESCE(granted_by, '')
		FROM temporary_grants WHERE user_id = $1
	`, userID).Scan(&temp.ExpiresAt, &temp.Reason, &temp.GrantedBy)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return types.RawGrantData{}, types.Err(types.ErrDataStoreAccess, err, "load temporary grant for %s", userID)
	default:
		temp.ExpiresAt = temp.ExpiresAt.UTC()
		g.Temporary = &temp
	}

	var isAdmin bool
	err = tx.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM user_roles WHERE user_id = $1 AND role = $2)
	`, userID, roleAdmin).Scan(&isAdmin)
	if err != nil {
		return types.RawGrantData{}, types.Err(types.ErrDataStoreAccess, err, "load roles for %s", userID)
	}
	if isAdmin {
		g.Admin = &types.AdminFlag{}
	}
	if err := tx.Commit(); err != nil {
		return types.RawGrantData{}, types.Err(types.ErrDataStoreAccess, err, "commit snapshot for %s", userID)
	}
	return g, nil
}

func (s *GrantStore) PutSubscription(ctx context.Context, userID string, sub types.PaidSubscription) error {
	var periodEnd sql.NullTime
	if sub.PeriodEnd != nil {
		periodEnd = sql.NullTime{Time: *sub.PeriodEnd, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO subscriptions (user_id, status, plan_type, period_end, source_payload, updated_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), now())
		ON CONFLICT (user_id) DO UPDATE SET
			status = EXCLUDED.status,
			plan_type = EXCLUDED.plan_type,
			period_end = EXCLUDED.period_end,
			source_payload = EXCLUDED.source_payload,
			updated_at = now()
	`, userID, sub.Status, sub.PlanType, periodEnd, sub.SourcePayload)
	return err
}

func (s *GrantStore) PutTrial(ctx context.Context, userID string, trial types.TrialGrant) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO trial_grants (user_id, trial_end) VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET trial_end = EXCLUDED.trial_end
	`, userID, trial.TrialEnd)
	return err
}

func (s *GrantStore) PutTemporaryGrant(ctx context.Context, userID string, grant types.TemporaryGrant) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO temporary_grants (user_id, expires_at, reason, granted_by) VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE SET
			expires_at = EXCLUDED.expires_at,
			reason = EXCLUDED.reason,
			granted_by = EXCLUDED.granted_by
	`, userID, grant.ExpiresAt, grant.Reason, grant.GrantedBy)
	return err
}

func (s *GrantStore) DeleteTemporaryGrant(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM temporary_grants WHERE user_id = $1`, userID)
	return err
}

func (s *GrantStore) SetAdmin(ctx context.Context, userID string, admin bool) error {
	var err error
	if admin {
		_, err = s.db.ExecContext(ctx, `
			INSERT INTO user_roles (user_id, role) VALUES ($1, $2) ON CONFLICT DO NOTHING
		`, userID, roleAdmin)
	} else {
		_, err = s.db.ExecContext(ctx, `DELETE FROM user_roles WHERE user_id = $1 AND role = $2`, userID, roleAdmin)
	}
	return err
}

// ClearAll empties every grant table. Only for tests.
func (s *GrantStore) ClearAll(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `TRUNCATE subscriptions, trial_grants, temporary_grants, user_roles`)
	return err
}
