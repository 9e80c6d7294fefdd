package model

import "time"

// Roles carried in the access token.
const (
	RoleCustomer = "CUSTOMER"
)

// User represents an account in the `users` table.
//
// Fields:
//  ID           – primary key identifier of the user.
//  Email        – unique, lower-cased email address.
//  PasswordHash – bcrypt hashed password.
//  FullName     – name printed on the rental agreement.
//  Role         – role name (CUSTOMER).
//  IsActive     – whether the account may sign in.
//  DriversLicenseURL / IDDocumentURL – profile documents copied into
//  new drafts; empty until uploaded.
type User struct {
	ID                uint64    // users.id
	Email             string    // users.email
	PasswordHash      string    // users.password_hash
	FullName          string    // users.full_name
	Role              string    // users.role
	IsActive          bool      // users.is_active
	DriversLicenseURL string    // users.drivers_license_url (nullable)
	IDDocumentURL     string    // users.id_document_url (nullable)
	CreatedAt         time.Time // users.created_at
	UpdatedAt         time.Time // users.updated_at
}

// RefreshToken models an entry in the `refresh_tokens` table. The plain
// token is never stored; only its SHA-256 hash.
type RefreshToken struct {
	ID        uint64     // refresh_tokens.id
	UserID    uint64     // refresh_tokens.user_id
	TokenHash string     // refresh_tokens.token_hash
	ExpiresAt time.Time  // refresh_tokens.expires_at
	RevokedAt *time.Time // refresh_tokens.revoked_at (nullable)
	CreatedAt time.Time  // refresh_tokens.created_at
}
