// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package models

import (
	"time"
)

// User is an identity record. PasswordHash never leaves the credential store.
type User struct { //nolint:govet // fieldalignment: readability over optimization
	ID              string    `db:"id" json:"id"`
	Username        string    `db:"username" json:"username"`
	Email           string    `db:"email" json:"email"`
	PasswordHash    string    `db:"password_hash" json:"-"`
	Role            Role      `db:"role" json:"role"`
	IsEmailVerified bool      `db:"is_email_verified" json:"isEmailVerified"`
	CreatedAt       time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time `db:"updated_at" json:"updatedAt"`
}

// HasRole reports whether the user's role ranks at least min.
func (u *User) HasRole(min Role) bool {
	return u.Role.AtLeast(min)
}
