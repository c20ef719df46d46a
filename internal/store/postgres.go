package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"ceramicprofile/api/internal/profile"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) SaveSession(ctx context.Context, tokenHash string, session IdentitySession) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO identity_sessions (token_hash, did, address, chain_id, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (token_hash) DO UPDATE SET did=EXCLUDED.did, address=EXCLUDED.address,
			chain_id=EXCLUDED.chain_id, expires_at=EXCLUDED.expires_at, revoked_at=NULL
	`, tokenHash, session.DID, session.Address, session.ChainID, session.ExpiresAt)
	if err != nil {
		return fmt.Errorf("save identity session: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupSession(ctx context.Context, tokenHash string) (IdentitySession, error) {
	const query = `
		SELECT did, address, chain_id, created_at, expires_at
		FROM identity_sessions
		WHERE token_hash = $1
			AND revoked_at IS NULL
			AND expires_at > NOW()
	`
	var session IdentitySession
	err := s.db.QueryRowContext(ctx, query, tokenHash).Scan(
		&session.DID, &session.Address, &session.ChainID, &session.CreatedAt, &session.ExpiresAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return IdentitySession{}, ErrNotFound
	}
	if err != nil {
		return IdentitySession{}, fmt.Errorf("lookup identity session: %w", err)
	}
	return session, nil
}

func (s *PostgresStore) RevokeSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE identity_sessions SET revoked_at=NOW() WHERE token_hash=$1 AND revoked_at IS NULL`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke identity session: %w", err)
	}
	return nil
}

func (s *PostgresStore) LoadProfile(ctx context.Context, did string) (profile.Snapshot, error) {
	var (
		raw     []byte
		version int64
	)
	err := s.db.QueryRowContext(ctx, `SELECT content, version FROM basic_profiles WHERE did=$1`, did).Scan(&raw, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return profile.Snapshot{}, nil
	}
	if err != nil {
		return profile.Snapshot{}, fmt.Errorf("load basic profile: %w", err)
	}
	return decodeProfile(raw, version)
}

// MergeProfile overlays patch onto the stored content with jsonb concatenation
// and appends the patch to basic_profile_commits in the same transaction.
func (s *PostgresStore) MergeProfile(ctx context.Context, did string, patch profile.Content) (profile.Snapshot, error) {
	patchJSON, err := json.Marshal(patch)
	if err != nil {
		return profile.Snapshot{}, fmt.Errorf("marshal profile patch: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return profile.Snapshot{}, fmt.Errorf("begin merge tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var (
		raw     []byte
		version int64
	)
	err = tx.QueryRowContext(ctx, `
		INSERT INTO basic_profiles (did, content, version, updated_at)
		VALUES ($1, $2::jsonb, 1, NOW())
		ON CONFLICT (did) DO UPDATE SET
			content = basic_profiles.content || EXCLUDED.content,
			version = basic_profiles.version + 1,
			updated_at = NOW()
		RETURNING content, version
	`, did, string(patchJSON)).Scan(&raw, &version)
	if err != nil {
		return profile.Snapshot{}, fmt.Errorf("merge basic profile: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO basic_profile_commits (did, version, patch)
		VALUES ($1, $2, $3::jsonb)
	`, did, version, string(patchJSON)); err != nil {
		return profile.Snapshot{}, fmt.Errorf("record profile commit: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return profile.Snapshot{}, fmt.Errorf("commit merge tx: %w", err)
	}
	return decodeProfile(raw, version)
}

func (s *PostgresStore) History(ctx context.Context, did string, limit int) ([]profile.Commit, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT version, patch, created_at
		FROM basic_profile_commits
		WHERE did = $1
		ORDER BY version DESC
		LIMIT $2
	`, did, limit)
	if err != nil {
		return nil, fmt.Errorf("list profile commits: %w", err)
	}
	defer rows.Close()

	commits := []profile.Commit{}
	for rows.Next() {
		var (
			version   int64
			patch     []byte
			createdAt time.Time
		)
		if err := rows.Scan(&version, &patch, &createdAt); err != nil {
			return nil, fmt.Errorf("scan profile commit: %w", err)
		}
		commits = append(commits, profile.Commit{
			Version:   strconv.FormatInt(version, 10),
			Message:   "merge " + string(patch),
			Author:    did,
			Timestamp: createdAt,
		})
	}
	return commits, rows.Err()
}

func decodeProfile(raw []byte, version int64) (profile.Snapshot, error) {
	content := profile.Content{}
	if err := json.Unmarshal(raw, &content); err != nil {
		return profile.Snapshot{}, fmt.Errorf("decode basic profile: %w", err)
	}
	return profile.Snapshot{Content: content, Version: strconv.FormatInt(version, 10)}, nil
}
