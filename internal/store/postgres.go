package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("duplicate")
)

const uniqueViolation = "23505"

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

// classify maps driver errors onto the package sentinels.
func classify(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.SQLState() == uniqueViolation {
		return fmt.Errorf("%w: %s", ErrDuplicate, pgErr.ConstraintName)
	}
	return err
}

func requireAffected(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

const profileColumns = `id, email, password_hash, full_name, avatar_url, role, created_at, updated_at, deleted_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner) (Profile, error) {
	var p Profile
	var deletedAt sql.NullTime
	if err := row.Scan(&p.ID, &p.Email, &p.PasswordHash, &p.FullName, &p.AvatarURL, &p.Role, &p.CreatedAt, &p.UpdatedAt, &deletedAt); err != nil {
		return Profile{}, err
	}
	if deletedAt.Valid {
		t := deletedAt.Time
		p.DeletedAt = &t
	}
	return p, nil
}

func (s *PostgresStore) CreateProfile(ctx context.Context, p Profile) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO profiles (id, email, password_hash, full_name, avatar_url, role)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, p.ID, strings.ToLower(strings.TrimSpace(p.Email)), p.PasswordHash, p.FullName, p.AvatarURL, p.Role)
	if err != nil {
		return fmt.Errorf("insert profile: %w", classify(err))
	}
	return nil
}

// GetProfileByID returns the profile even when soft-deleted; callers decide
// whether a deleted profile is visible.
func (s *PostgresStore) GetProfileByID(ctx context.Context, id string) (Profile, error) {
	p, err := scanProfile(s.db.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id=$1`, id))
	if err != nil {
		return Profile{}, fmt.Errorf("get profile: %w", classify(err))
	}
	return p, nil
}

func (s *PostgresStore) GetProfileByEmail(ctx context.Context, email string) (Profile, error) {
	p, err := scanProfile(s.db.QueryRowContext(ctx, `
		SELECT `+profileColumns+`
		FROM profiles
		WHERE LOWER(email)=LOWER($1) AND deleted_at IS NULL
	`, strings.TrimSpace(email)))
	if err != nil {
		return Profile{}, fmt.Errorf("get profile by email: %w", classify(err))
	}
	return p, nil
}

// ListActiveProfiles returns non-deleted profiles, newest first.
func (s *PostgresStore) ListActiveProfiles(ctx context.Context) ([]Profile, error) {
	return s.listProfiles(ctx, `ORDER BY created_at DESC`)
}

// ListAssignableProfiles returns non-deleted profiles ordered by email.
func (s *PostgresStore) ListAssignableProfiles(ctx context.Context) ([]Profile, error) {
	return s.listProfiles(ctx, `ORDER BY email ASC`)
}

func (s *PostgresStore) listProfiles(ctx context.Context, orderBy string) ([]Profile, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+profileColumns+` FROM profiles WHERE deleted_at IS NULL `+orderBy)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	defer rows.Close()

	items := make([]Profile, 0)
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		items = append(items, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate profiles: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) UpdateProfileRole(ctx context.Context, id, role string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE profiles SET role=$2, updated_at=NOW()
		WHERE id=$1 AND deleted_at IS NULL
	`, id, role)
	if err != nil {
		return fmt.Errorf("update profile role: %w", err)
	}
	if err := requireAffected(result); err != nil {
		return fmt.Errorf("update profile role: %w", err)
	}
	return nil
}

func (s *PostgresStore) SoftDeleteProfile(ctx context.Context, id string, at time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE profiles SET deleted_at=$2, updated_at=NOW()
		WHERE id=$1 AND deleted_at IS NULL
	`, id, at)
	if err != nil {
		return fmt.Errorf("soft delete profile: %w", err)
	}
	if err := requireAffected(result); err != nil {
		return fmt.Errorf("soft delete profile: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateProfileDetails(ctx context.Context, id, fullName, avatarURL string) (Profile, error) {
	p, err := scanProfile(s.db.QueryRowContext(ctx, `
		UPDATE profiles SET full_name=$2, avatar_url=$3, updated_at=NOW()
		WHERE id=$1 AND deleted_at IS NULL
		RETURNING `+profileColumns,
		id, fullName, avatarURL))
	if err != nil {
		return Profile{}, fmt.Errorf("update profile: %w", classify(err))
	}
	return p, nil
}

func (s *PostgresStore) UpdateProfileAvatar(ctx context.Context, id, avatarURL string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE profiles SET avatar_url=$2, updated_at=NOW()
		WHERE id=$1 AND deleted_at IS NULL
	`, id, avatarURL)
	if err != nil {
		return fmt.Errorf("update avatar: %w", err)
	}
	if err := requireAffected(result); err != nil {
		return fmt.Errorf("update avatar: %w", err)
	}
	return nil
}

func (s *PostgresStore) SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET user_id=EXCLUDED.user_id, expires_at=EXCLUDED.expires_at, revoked_at=NULL
	`, tokenHash, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE refresh_sessions SET revoked_at=NOW() WHERE token_hash=$1`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupRefreshSession(ctx context.Context, tokenHash string) (string, error) {
	var userID string
	err := s.db.QueryRowContext(ctx, `
		SELECT rs.user_id
		FROM refresh_sessions rs
		JOIN profiles p ON p.id = rs.user_id
		WHERE rs.token_hash = $1
			AND rs.revoked_at IS NULL
			AND rs.expires_at > NOW()
			AND p.deleted_at IS NULL
	`, tokenHash).Scan(&userID)
	if err != nil {
		return "", fmt.Errorf("lookup refresh session: %w", classify(err))
	}
	return userID, nil
}

func (s *PostgresStore) RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO revoked_access_tokens (jti, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (jti) DO NOTHING
	`, jti, exp)
	if err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	return nil
}

func (s *PostgresStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var revoked bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM revoked_access_tokens WHERE jti=$1)`, jti).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return revoked, nil
}
