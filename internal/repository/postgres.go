package repository

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/JuhanV/Sleep-Game/internal/domain"
)

// Schema creates the profiles and friendships tables when missing.
//
//go:embed schema.sql
var Schema string

// DBTX is the subset of pgxpool.Pool used by the repositories.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Compile-time interface assertions.
var (
	_ ProfileRepository    = (*PostgresProfileRepo)(nil)
	_ FriendshipRepository = (*PostgresFriendshipRepo)(nil)
)

const uniqueViolation = "23505"

const profileColumns = `id, oura_user_id, COALESCE(email, ''), display_name, oura_tokens,
avg_sleep_score, last_sleep_score, is_admin, last_login, created_at, updated_at`

// PostgresProfileRepo implements ProfileRepository.
type PostgresProfileRepo struct {
	db DBTX
}

func NewPostgresProfileRepo(db DBTX) *PostgresProfileRepo {
	return &PostgresProfileRepo{db: db}
}

func (r *PostgresProfileRepo) GetByID(ctx context.Context, id int64) (domain.Profile, error) {
	row := r.db.QueryRow(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id = $1`, id)
	profile, err := scanProfile(row)
	if err != nil {
		return domain.Profile{}, fmt.Errorf("get profile: %w", notFound(err))
	}
	return profile, nil
}

func (r *PostgresProfileRepo) GetByOuraUserID(ctx context.Context, ouraUserID string) (domain.Profile, error) {
	row := r.db.QueryRow(ctx, `SELECT `+profileColumns+` FROM profiles WHERE oura_user_id = $1`, ouraUserID)
	profile, err := scanProfile(row)
	if err != nil {
		return domain.Profile{}, fmt.Errorf("get profile by oura user: %w", notFound(err))
	}
	return profile, nil
}

func (r *PostgresProfileRepo) GetByEmail(ctx context.Context, email string) (domain.Profile, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE LOWER(email) = LOWER($1) ORDER BY created_at LIMIT 1`,
		strings.TrimSpace(email),
	)
	profile, err := scanProfile(row)
	if err != nil {
		return domain.Profile{}, fmt.Errorf("get profile by email: %w", notFound(err))
	}
	return profile, nil
}

func (r *PostgresProfileRepo) List(ctx context.Context) ([]domain.Profile, error) {
	rows, err := r.db.Query(ctx, `SELECT `+profileColumns+` FROM profiles ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	defer rows.Close()

	var profiles []domain.Profile
	for rows.Next() {
		profile, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		profiles = append(profiles, profile)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	return profiles, nil
}

const leaderboardSQL = `SELECT id, display_name, avg_sleep_score, last_sleep_score
FROM profiles
ORDER BY avg_sleep_score DESC NULLS LAST, display_name ASC, id ASC`

func (r *PostgresProfileRepo) Leaderboard(ctx context.Context) ([]domain.PublicProfile, error) {
	rows, err := r.db.Query(ctx, leaderboardSQL)
	if err != nil {
		return nil, fmt.Errorf("leaderboard: %w", err)
	}
	defer rows.Close()

	var out []domain.PublicProfile
	for rows.Next() {
		var p domain.PublicProfile
		if err := rows.Scan(&p.ID, &p.DisplayName, &p.AvgSleepScore, &p.LastSleepScore); err != nil {
			return nil, fmt.Errorf("scan leaderboard row: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("leaderboard: %w", err)
	}
	return out, nil
}

const insertProfileSQL = `INSERT INTO profiles (id, oura_user_id, email, display_name, oura_tokens, is_admin, last_login)
VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7)
RETURNING ` + profileColumns

func (r *PostgresProfileRepo) Create(ctx context.Context, profile domain.Profile) (domain.Profile, error) {
	if err := profile.Validate(); err != nil {
		return domain.Profile{}, err
	}
	row := r.db.QueryRow(ctx, insertProfileSQL,
		profile.ID,
		profile.OuraUserID,
		profile.Email,
		profile.DisplayName,
		profile.OuraTokens,
		profile.IsAdmin,
		profile.LastLogin,
	)
	created, err := scanProfile(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domain.Profile{}, fmt.Errorf("insert profile: %w", domain.ErrProfileExists)
		}
		return domain.Profile{}, fmt.Errorf("insert profile: %w", err)
	}
	return created, nil
}

const updateLoginSQL = `UPDATE profiles
SET email = NULLIF($2, ''), display_name = $3, oura_tokens = $4, is_admin = is_admin OR $5,
    last_login = $6, updated_at = NOW()
WHERE id = $1
RETURNING ` + profileColumns

func (r *PostgresProfileRepo) UpdateLogin(ctx context.Context, profile domain.Profile) (domain.Profile, error) {
	if err := profile.Validate(); err != nil {
		return domain.Profile{}, err
	}
	row := r.db.QueryRow(ctx, updateLoginSQL,
		profile.ID,
		profile.Email,
		profile.DisplayName,
		profile.OuraTokens,
		profile.IsAdmin,
		profile.LastLogin,
	)
	updated, err := scanProfile(row)
	if err != nil {
		return domain.Profile{}, fmt.Errorf("update profile login: %w", notFound(err))
	}
	return updated, nil
}

func (r *PostgresProfileRepo) UpdateTokens(ctx context.Context, id int64, record string) error {
	if strings.TrimSpace(record) == "" {
		return fmt.Errorf("update tokens: %w", domain.ErrInvalidInput)
	}
	tag, err := r.db.Exec(ctx, `UPDATE profiles SET oura_tokens = $2, updated_at = NOW() WHERE id = $1`, id, record)
	if err != nil {
		return fmt.Errorf("update tokens: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update tokens: %w", domain.ErrProfileNotFound)
	}
	return nil
}

func (r *PostgresProfileRepo) UpdateSleepScores(ctx context.Context, id int64, summary domain.SleepSummary) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE profiles SET avg_sleep_score = $2, last_sleep_score = $3, updated_at = NOW() WHERE id = $1`,
		id, summary.Average, summary.Last,
	)
	if err != nil {
		return fmt.Errorf("update sleep scores: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update sleep scores: %w", domain.ErrProfileNotFound)
	}
	return nil
}

func (r *PostgresProfileRepo) SetAdmin(ctx context.Context, id int64, isAdmin bool) error {
	tag, err := r.db.Exec(ctx, `UPDATE profiles SET is_admin = $2, updated_at = NOW() WHERE id = $1`, id, isAdmin)
	if err != nil {
		return fmt.Errorf("set admin: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("set admin: %w", domain.ErrProfileNotFound)
	}
	return nil
}

func (r *PostgresProfileRepo) PromoteByEmail(ctx context.Context, email string) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE profiles SET is_admin = TRUE, updated_at = NOW() WHERE LOWER(email) = LOWER($1) AND NOT is_admin`,
		strings.TrimSpace(email),
	)
	if err != nil {
		return 0, fmt.Errorf("promote admin: %w", err)
	}
	return tag.RowsAffected(), nil
}

// PostgresFriendshipRepo implements FriendshipRepository.
type PostgresFriendshipRepo struct {
	db DBTX
}

func NewPostgresFriendshipRepo(db DBTX) *PostgresFriendshipRepo {
	return &PostgresFriendshipRepo{db: db}
}

func (r *PostgresFriendshipRepo) Exists(ctx context.Context, userID, friendID int64) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM friendships WHERE user_id = $1 AND friend_id = $2)`,
		userID, friendID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check friendship: %w", err)
	}
	return exists, nil
}

func (r *PostgresFriendshipRepo) Create(ctx context.Context, friendship domain.Friendship) error {
	createdAt := friendship.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO friendships (id, user_id, friend_id, created_at) VALUES ($1, $2, $3, $4)`,
		friendship.ID, friendship.UserID, friendship.FriendID, createdAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domain.ErrAlreadyFriends
		}
		return fmt.Errorf("insert friendship: %w", err)
	}
	return nil
}

func (r *PostgresFriendshipRepo) Delete(ctx context.Context, userID, friendID int64) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM friendships WHERE user_id = $1 AND friend_id = $2`, userID, friendID); err != nil {
		return fmt.Errorf("delete friendship: %w", err)
	}
	return nil
}

const listFriendsSQL = `SELECT p.id, p.display_name, p.avg_sleep_score, p.last_sleep_score, f.created_at
FROM friendships f
JOIN profiles p ON p.id = f.friend_id
WHERE f.user_id = $1
ORDER BY p.avg_sleep_score DESC NULLS LAST, p.display_name ASC`

func (r *PostgresFriendshipRepo) ListFriends(ctx context.Context, userID int64) ([]domain.Friend, error) {
	rows, err := r.db.Query(ctx, listFriendsSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("list friends: %w", err)
	}
	defer rows.Close()

	var friends []domain.Friend
	for rows.Next() {
		var f domain.Friend
		if err := rows.Scan(&f.ID, &f.DisplayName, &f.AvgSleepScore, &f.LastSleepScore, &f.Since); err != nil {
			return nil, fmt.Errorf("scan friend: %w", err)
		}
		friends = append(friends, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list friends: %w", err)
	}
	return friends, nil
}

func scanProfile(row pgx.Row) (domain.Profile, error) {
	var p domain.Profile
	err := row.Scan(
		&p.ID,
		&p.OuraUserID,
		&p.Email,
		&p.DisplayName,
		&p.OuraTokens,
		&p.AvgSleepScore,
		&p.LastSleepScore,
		&p.IsAdmin,
		&p.LastLogin,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	return p, err
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrProfileNotFound
	}
	return err
}
