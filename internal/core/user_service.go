package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
)

type userService struct {
	pool pgxQuerier
}

// NewUserService constructs a UserService backed by PostgreSQL.
func NewUserService(pool pgxQuerier) UserService {
	return &userService{pool: pool}
}

const userColumns = `id, username, full_name, role, team_id, is_active, created_at`

func scanUser(row pgx.Row) (*User, error) {
	u := &User{}
	if err := row.Scan(&u.ID, &u.Username, &u.FullName, &u.Role, &u.TeamID, &u.IsActive, &u.CreatedAt); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *userService) GetByUsername(ctx context.Context, username string) (*User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE username = $1 AND is_active = true
		LIMIT 1`,
		username,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("user %q: %w", username, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load user %q: %w", username, err)
	}
	return u, nil
}

func (s *userService) GetByID(ctx context.Context, userID int64) (*User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE id = $1`,
		userID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("user id=%d: %w", userID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load user id=%d: %w", userID, err)
	}
	return u, nil
}

func (s *userService) List(ctx context.Context, teamID *int64) ([]User, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE is_active = true AND ($1::bigint IS NULL OR team_id = $1)
		ORDER BY username`, teamID)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	users := []User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

func (s *userService) Create(ctx context.Context, in NewUser) (*User, error) {
	in.Username = strings.TrimSpace(in.Username)
	if err := validate.Struct(in); err != nil {
		return nil, validationError("%s", describeValidation(err))
	}
	u, err := scanUser(s.pool.QueryRow(ctx, `
		INSERT INTO users (username, full_name, role, team_id)
		VALUES ($1, $2, $3, $4)
		RETURNING `+userColumns,
		in.Username, strings.TrimSpace(in.FullName), string(in.Role), in.TeamID,
	))
	if err != nil {
		switch code, _ := pgErrorCode(err); code {
		case pgUniqueViolation:
			return nil, validationError("username %q is taken", in.Username)
		case pgForeignKeyViolation:
			return nil, validationError("team %d does not exist", derefInt64(in.TeamID))
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return u, nil
}
