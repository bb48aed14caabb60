package domain

import (
	"fmt"
	"strconv"
	"time"
)

// UserFlags is the bitfield stored on users.flags.
type UserFlags int64

const (
	UserFlagNewsletterConsentPrompt UserFlags = 1 << iota
	UserFlagDemoMode
)

// Has reports whether every bit of f is set.
func (u UserFlags) Has(f UserFlags) bool {
	return u&f == f
}

// Scan implements sql.Scanner. The column is nullable; NULL reads as no flags.
func (u *UserFlags) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*u = 0
	case int64:
		*u = UserFlags(v)
	case []byte:
		return u.Scan(string(v))
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("scan user flags %q: %w", v, err)
		}
		*u = UserFlags(n)
	default:
		return fmt.Errorf("scan user flags: unsupported type %T", src)
	}
	return nil
}

// User represents an account that can own notification settings.
type User struct {
	ID          int64     `json:"id" db:"id"`
	Email       string    `json:"email" db:"email"`
	DisplayName string    `json:"display_name" db:"display_name"`
	Flags       UserFlags `json:"flags" db:"flags"`
	ActorID     *int64    `json:"actor_id,omitempty" db:"actor_id"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// UserEmail is an address attached to a user. Only verified addresses may
// be used for email routing.
type UserEmail struct {
	ID         int64  `json:"id" db:"id"`
	UserID     int64  `json:"user_id" db:"user_id"`
	Email      string `json:"email" db:"email"`
	IsVerified bool   `json:"is_verified" db:"is_verified"`
}

// UserOption is a row of the legacy key/value option table.
type UserOption struct {
	ID             int64  `json:"id" db:"id"`
	UserID         int64  `json:"user_id" db:"user_id"`
	ProjectID      *int64 `json:"project_id,omitempty" db:"project_id"`
	OrganizationID *int64 `json:"organization_id,omitempty" db:"organization_id"`
	Key            string `json:"key" db:"key"`
	Value          string `json:"value" db:"value"`
}

// UserOptionKey addresses a legacy option. Nil ProjectID/OrganizationID
// mean the option is not keyed by that object.
type UserOptionKey struct {
	UserID         int64
	ProjectID      *int64
	OrganizationID *int64
	Key            string
}
