package core

import (
	"context"
	"time"
)

// Role is the trust tier of an actor.
type Role string

const (
	// RoleAdmin applies changes directly and decides pending updates.
	RoleAdmin Role = "admin"
	// RoleAgent may only propose changes through the approval queue.
	RoleAgent Role = "agent"
)

func (r Role) Privileged() bool { return r == RoleAdmin }

func (r Role) Valid() bool { return r == RoleAdmin || r == RoleAgent }

// User is a field agent or an administrator.
type User struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	FullName  string    `json:"full_name"`
	Role      Role      `json:"role"`
	TeamID    *int64    `json:"team_id,omitempty"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// NewUser is the input for creating a user.
type NewUser struct {
	Username string `validate:"required,max=64"`
	FullName string `validate:"max=128"`
	Role     Role   `validate:"required,oneof=admin agent"`
	TeamID   *int64 `validate:"omitempty,gt=0"`
}

// UserService provides user lookup operations.
type UserService interface {
	// GetByUsername finds an active user by username.
	GetByUsername(ctx context.Context, username string) (*User, error)

	// GetByID returns a user by primary key, active or not.
	GetByID(ctx context.Context, userID int64) (*User, error)

	// List returns active users, optionally narrowed to one team.
	List(ctx context.Context, teamID *int64) ([]User, error)

	// Create inserts a user. Username clashes are validation errors.
	Create(ctx context.Context, in NewUser) (*User, error)
}
