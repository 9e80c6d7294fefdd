package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"

	"github.com/driveshare/rental-booking/internal/model"
	"github.com/driveshare/rental-booking/internal/utils"
	"github.com/driveshare/rental-booking/internal/workflow"
)

type UserRepo struct{ db *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{db: db} }

const userColumns = `id, email, password_hash, full_name, role, is_active,
	drivers_license_url, id_document_url, created_at, updated_at`

// Create hashes the password, inserts the user and returns its id.
func (r *UserRepo) Create(ctx context.Context, email, password, fullName, role string, cost int) (uint64, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return 0, err
	}
	res, err := r.db.ExecContext(ctx,
		"INSERT INTO users (email, password_hash, full_name, role) VALUES (?,?,?,?)",
		email, hash, strings.TrimSpace(fullName), role)
	if err != nil {
		var me *mysql.MySQLError
		if errors.As(err, &me) && me.Number == 1062 {
			return 0, ErrEmailExists
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// GetByEmail fetches a user by normalized email. sql.ErrNoRows when absent.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return scanUser(r.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email=? LIMIT 1", email))
}

// GetByID fetches a user by id. sql.ErrNoRows when absent.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	return scanUser(r.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", id))
}

// SetDocument stores a profile document URL. kind picks the column.
func (r *UserRepo) SetDocument(ctx context.Context, userID uint64, kind workflow.DocumentKind, url string) error {
	col := ""
	switch kind {
	case workflow.DocumentLicense:
		col = "drivers_license_url"
	case workflow.DocumentID:
		col = "id_document_url"
	default:
		return fmt.Errorf("unknown document kind %q", kind)
	}
	res, err := r.db.ExecContext(ctx, "UPDATE users SET "+col+"=? WHERE id=?", url, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func scanUser(s rowScanner) (model.User, error) {
	var (
		u       model.User
		license sql.NullString
		idDoc   sql.NullString
	)
	err := s.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.FullName, &u.Role, &u.IsActive,
		&license, &idDoc, &u.CreatedAt, &u.UpdatedAt)
	u.DriversLicenseURL, u.IDDocumentURL = license.String, idDoc.String
	return u, err
}
