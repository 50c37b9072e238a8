package entity

import "time"

// User represents an account row in the `users` table. Rows are immutable
// once registered.
type User struct {
	ID        string    `db:"id" json:"id"`
	Email     string    `db:"email" json:"email"`
	FirstName string    `db:"first_name" json:"firstName"`
	LastName  string    `db:"last_name" json:"lastName"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// Credential is the row in `passwords` belonging to exactly one user.
type Credential struct {
	Salt string `db:"salt"`
	Hash string `db:"hash"`
}

// UserWithCredential is the login projection. Credential is nil when the
// user row has no matching password row.
type UserWithCredential struct {
	User
	Credential *Credential
}

// NewUser carries everything needed to create a user and its credential in
// one unit.
type NewUser struct {
	ID         string
	Email      string
	FirstName  string
	LastName   string
	Credential Credential
}
