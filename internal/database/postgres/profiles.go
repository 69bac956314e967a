package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/kozaktomas/facegate/internal/database"
	"github.com/kozaktomas/facegate/internal/features"
)

// ProfileRepository provides PostgreSQL-backed profile storage. Feature
// vectors live in face_profile_features; the flattened signature is kept
// on face_profiles for nearest-neighbour shortlisting with pgvector.
type ProfileRepository struct {
	pool *Pool
}

// NewProfileRepository creates a new PostgreSQL profile repository.
func NewProfileRepository(pool *Pool) *ProfileRepository {
	return &ProfileRepository{pool: pool}
}

// AuditEntry is one enrolment or revocation event.
type AuditEntry struct {
	Identity        string
	Action          string
	SourceReference string
	CreatedAt       time.Time
}

const (
	actionEnroll = "enroll"
	actionRevoke = "revoke"
)

// List returns every profile ordered by identity. Both queries run in one
// read-only repeatable-read transaction so a concurrent Put is seen whole
// or not at all.
func (r *ProfileRepository) List(ctx context.Context) ([]database.FaceProfile, error) {
	tx, err := r.pool.BeginTx(ctx, &sql.TxOptions{ReadOnly: true, Isolation: sql.LevelRepeatableRead})
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	profiles, err := queryProfiles(ctx, tx, "")
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return profiles, nil
}

// Get returns the profile for identity, or nil if it is not enrolled.
func (r *ProfileRepository) Get(ctx context.Context, identity string) (*database.FaceProfile, error) {
	tx, err := r.pool.BeginTx(ctx, &sql.TxOptions{ReadOnly: true, Isolation: sql.LevelRepeatableRead})
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	profiles, err := queryProfiles(ctx, tx, identity)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	if len(profiles) == 0 {
		return nil, nil
	}
	return &profiles[0], nil
}

// queryProfiles loads all profiles, or only identity when it is non-empty.
func queryProfiles(ctx context.Context, tx *sql.Tx, identity string) ([]database.FaceProfile, error) {
	filter := ""
	var args []any
	if identity != "" {
		filter = "WHERE identity = $1"
		args = append(args, identity)
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT identity, enrolled_at, source_reference
		FROM face_profiles `+filter+`
		ORDER BY identity
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("query profiles: %w", err)
	}
	var profiles []database.FaceProfile
	index := make(map[string]int)
	for rows.Next() {
		var p database.FaceProfile
		if err := rows.Scan(&p.Identity, &p.EnrolledAt, &p.SourceReference); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		p.EnrolledAt = p.EnrolledAt.UTC()
		p.Bundle = features.Bundle{}
		index[p.Identity] = len(profiles)
		profiles = append(profiles, p)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate profiles: %w", err)
	}
	rows.Close()

	rows, err = tx.QueryContext(ctx, `
		SELECT identity, family, vector
		FROM face_profile_features `+filter+`
		ORDER BY identity, family
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("query profile features: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, family string
		var vec pq.Float64Array
		if err := rows.Scan(&id, &family, &vec); err != nil {
			return nil, fmt.Errorf("scan profile features: %w", err)
		}
		i, ok := index[id]
		if !ok {
			continue
		}
		f, err := features.ParseFamily(family)
		if err != nil {
			return nil, fmt.Errorf("profile %s: %w", id, err)
		}
		profiles[i].Bundle[f] = []float64(vec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate profile features: %w", err)
	}
	return profiles, nil
}

// Count returns the number of enrolled profiles.
func (r *ProfileRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM face_profiles").Scan(&count); err != nil {
		return 0, fmt.Errorf("count profiles: %w", err)
	}
	return count, nil
}

// Put stores the profile, replacing any profile of the same identity, in a
// single transaction.
func (r *ProfileRepository) Put(ctx context.Context, p database.FaceProfile) error {
	if err := p.Validate(); err != nil {
		return err
	}

	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO face_profiles (identity, enrolled_at, source_reference, layout, signature, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (identity) DO UPDATE SET
			enrolled_at = EXCLUDED.enrolled_at,
			source_reference = EXCLUDED.source_reference,
			layout = EXCLUDED.layout,
			signature = EXCLUDED.signature,
			updated_at = NOW()
	`, p.Identity, p.EnrolledAt.UTC(), p.SourceReference, p.Bundle.Layout().String(),
		pgvector.NewVector(database.Signature(p.Bundle)))
	if err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM face_profile_features WHERE identity = $1", p.Identity); err != nil {
		return fmt.Errorf("delete existing features: %w", err)
	}
	for _, f := range p.Bundle.Families() {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO face_profile_features (identity, family, vector) VALUES ($1, $2, $3)",
			p.Identity, string(f), pq.Float64Array(p.Bundle[f]))
		if err != nil {
			return fmt.Errorf("insert %s features: %w", f, err)
		}
	}

	if err := audit(ctx, tx, p.Identity, actionEnroll, p.SourceReference); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Delete removes the profile and its features and reports whether it existed.
func (r *ProfileRepository) Delete(ctx context.Context, identity string) (bool, error) {
	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, "DELETE FROM face_profiles WHERE identity = $1", identity)
	if err != nil {
		return false, fmt.Errorf("delete profile: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return false, nil
	}
	if err := audit(ctx, tx, identity, actionRevoke, ""); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit transaction: %w", err)
	}
	return true, nil
}

// Nearest returns up to k identities ordered by signature cosine distance.
func (r *ProfileRepository) Nearest(ctx context.Context, probe features.Bundle, k int) ([]string, error) {
	if k <= 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, `
		SELECT identity
		FROM face_profiles
		WHERE layout = $2
		ORDER BY signature <=> $1::vector, identity
		LIMIT $3
	`, pgvector.NewVector(database.Signature(probe)), probe.Layout().String(), k)
	if err != nil {
		return nil, fmt.Errorf("query nearest profiles: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan identity: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate identities: %w", err)
	}
	return ids, nil
}

// History returns the audit trail of identity, oldest first.
func (r *ProfileRepository) History(ctx context.Context, identity string) ([]AuditEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT identity, action, source_reference, created_at
		FROM enrollment_audit
		WHERE identity = $1
		ORDER BY created_at, id
	`, identity)
	if err != nil {
		return nil, fmt.Errorf("query audit: %w", err)
	}
	defer rows.Close()

	var entries []AuditEntry
	for rows.Next() {
		var e AuditEntry
		if err := rows.Scan(&e.Identity, &e.Action, &e.SourceReference, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit: %w", err)
	}
	return entries, nil
}

func audit(ctx context.Context, tx *sql.Tx, identity, action, sourceRef string) error {
	_, err := tx.ExecContext(ctx,
		"INSERT INTO enrollment_audit (identity, action, source_reference) VALUES ($1, $2, $3)",
		identity, action, sourceRef)
	if err != nil {
		return fmt.Errorf("record %s audit: %w", action, err)
	}
	return nil
}

var (
	_ database.ProfileStore = (*ProfileRepository)(nil)
	_ database.Shortlister  = (*ProfileRepository)(nil)
)
