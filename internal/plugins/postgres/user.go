package postgres

import (
	"context"
	"database/sql"
	"strconv"
	"strings"

	"chirp/internal/core/domain"
)

type UserRepo struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepo {
	return &UserRepo{db: db}
}

/*
	-- Users
	CREATE TABLE users (
		id           TEXT PRIMARY KEY,
		name         TEXT NOT NULL DEFAULT '',
		avatar_url   TEXT NOT NULL DEFAULT '',
		bio          TEXT NOT NULL DEFAULT '',
		device_token TEXT NOT NULL DEFAULT '',
		created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
	);
*/

func (r *UserRepo) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	if id == "" {
		return nil, domain.ErrInvalidUserID
	}
	user := &domain.User{ID: id}
	query := `SELECT name, avatar_url, bio, device_token, created_at FROM users WHERE id = $1`
	exec := GetExecutor(ctx, r.db)
	err := exec.QueryRowContext(ctx, query, id).
		Scan(&user.Name, &user.AvatarURL, &user.Bio, &user.DeviceToken, &user.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

func (r *UserRepo) GetUsersByIDs(ctx context.Context, ids []string) (map[string]*domain.User, error) {
	out := make(map[string]*domain.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "$" + strconv.Itoa(i+1)
		args[i] = id
	}
	query := `SELECT id, name, avatar_url, bio, device_token, created_at FROM users WHERE id IN (` +
		strings.Join(placeholders, ", ") + `)`
	exec := GetExecutor(ctx, r.db)
	rows, err := exec.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		user := &domain.User{}
		if err := rows.Scan(&user.ID, &user.Name, &user.AvatarURL, &user.Bio, &user.DeviceToken, &user.CreatedAt); err != nil {
			return nil, err
		}
		out[user.ID] = user
	}
	return out, rows.Err()
}

func (r *UserRepo) CreateUser(ctx context.Context, id string) (*domain.User, error) {
	if id == "" {
		return nil, domain.ErrInvalidUserID
	}
	user := &domain.User{ID: id}
	// Insert new user or do nothing if the id already exists
	query :=
		`INSERT INTO users (id)
        VALUES ($1)
        ON CONFLICT (id) DO NOTHING
        RETURNING created_at`

	exec := GetExecutor(ctx, r.db)
	err := exec.QueryRowContext(ctx, query, id).Scan(&user.CreatedAt)
	switch {
	case err == nil:
		// Created
		return user, nil

	case err == sql.ErrNoRows:
		// Already exists
		return r.GetUserByID(ctx, id)

	default:
		return nil, err
	}
}

func (r *UserRepo) UpdateProfile(ctx context.Context, id string, name, avatarURL, bio, deviceToken *string) (*domain.User, error) {
	if id == "" {
		return nil, domain.ErrInvalidUserID
	}
	// COALESCE keeps the stored value for every field the caller left nil
	query :=
		`UPDATE users
        SET name         = COALESCE($2, name),
            avatar_url   = COALESCE($3, avatar_url),
            bio          = COALESCE($4, bio),
            device_token = COALESCE($5, device_token)
        WHERE id = $1
        RETURNING name, avatar_url, bio, device_token, created_at`

	user := &domain.User{ID: id}
	exec := GetExecutor(ctx, r.db)
	err := exec.QueryRowContext(ctx, query, id, name, avatarURL, bio, deviceToken).
		Scan(&user.Name, &user.AvatarURL, &user.Bio, &user.DeviceToken, &user.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

func (r *UserRepo) DeleteUser(ctx context.Context, id string) error {
	if id == "" {
		return domain.ErrInvalidUserID
	}
	query := `DELETE FROM users WHERE id = $1`
	exec := GetExecutor(ctx, r.db)
	result, err := exec.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}
