// Package users provides the PostgreSQL-backed repository for user records.
package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/csiflex/identity/internal/common"
	"github.com/csiflex/identity/internal/dbx"
	"github.com/csiflex/identity/internal/server/models"
)

const userColumns = `id, username, password_hash, salt, first_name, last_name,
display_name, email, user_type, ref_id, title, dept, machines, phone_ext,
edit_timeline, edit_part_number, is_active, created_at, updated_at`

// PostgresRepository implements user storage over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func scanUser(row interface{ Scan(dest ...any) error }) (*models.User, error) {
	var (
		u         models.User
		updatedAt sql.NullTime
	)
	err := row.Scan(
		&u.ID, &u.UserName, &u.PasswordHash, &u.Salt, &u.FirstName, &u.LastName,
		&u.DisplayName, &u.Email, &u.UserType, &u.RefID, &u.Title, &u.Dept,
		&u.Machines, &u.PhoneExt, &u.EditTimeline, &u.EditPartNumber,
		&u.IsActive, &u.CreatedAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	if updatedAt.Valid {
		t := updatedAt.Time
		u.UpdatedAt = &t
	}
	return &u, nil
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, args ...any) (*models.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return user, nil
}

func (r *PostgresRepository) getMany(ctx context.Context, query string, args ...any) ([]*models.User, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return r.getOne(ctx, query, id)
}

func (r *PostgresRepository) GetByUserName(ctx context.Context, userName string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE LOWER(username) = LOWER($1)`
	return r.getOne(ctx, query, userName)
}

func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE LOWER(email) = LOWER($1)`
	return r.getOne(ctx, query, email)
}

func (r *PostgresRepository) GetAll(ctx context.Context) ([]*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users ORDER BY username`
	return r.getMany(ctx, query)
}

func (r *PostgresRepository) GetActive(ctx context.Context) ([]*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE is_active ORDER BY username`
	return r.getMany(ctx, query)
}

func (r *PostgresRepository) GetByType(ctx context.Context, userType string) ([]*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE LOWER(user_type) = LOWER($1) ORDER BY username`
	return r.getMany(ctx, query, userType)
}

// Search matches the term as a case-insensitive substring against username,
// first/last/display name, and email.
func (r *PostgresRepository) Search(ctx context.Context, term string) ([]*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users
		WHERE username ILIKE $1 OR first_name ILIKE $1 OR last_name ILIKE $1
		   OR display_name ILIKE $1 OR email ILIKE $1
		ORDER BY username`
	return r.getMany(ctx, query, "%"+term+"%")
}

// Add inserts the user and returns the record with its assigned id.
func (r *PostgresRepository) Add(ctx context.Context, user *models.User) (*models.User, error) {
	query := `
		INSERT INTO users (username, password_hash, salt, first_name, last_name,
			display_name, email, user_type, ref_id, title, dept, machines,
			phone_ext, edit_timeline, edit_part_number, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		RETURNING id`

	err := r.db.QueryRowContext(ctx, query,
		user.UserName, user.PasswordHash, user.Salt, user.FirstName, user.LastName,
		user.DisplayName, user.Email, user.UserType, user.RefID, user.Title,
		user.Dept, user.Machines, user.PhoneExt, user.EditTimeline,
		user.EditPartNumber, user.IsActive, user.CreatedAt,
	).Scan(&user.ID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return user, nil
}

// Update rewrites every mutable column of the row and returns the refreshed
// record. Callers are expected to have restored the immutable fields first.
func (r *PostgresRepository) Update(ctx context.Context, user *models.User) (*models.User, error) {
	query := `
		UPDATE users SET
			password_hash = $2, salt = $3, first_name = $4, last_name = $5,
			display_name = $6, email = $7, user_type = $8, ref_id = $9,
			title = $10, dept = $11, machines = $12, phone_ext = $13,
			edit_timeline = $14, edit_part_number = $15, is_active = $16,
			updated_at = $17
		WHERE id = $1
		RETURNING ` + userColumns

	updated, err := scanUser(r.db.QueryRowContext(ctx, query,
		user.ID, user.PasswordHash, user.Salt, user.FirstName, user.LastName,
		user.DisplayName, user.Email, user.UserType, user.RefID, user.Title,
		user.Dept, user.Machines, user.PhoneExt, user.EditTimeline,
		user.EditPartNumber, user.IsActive, user.UpdatedAt,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return updated, nil
}

// Delete removes the row and reports whether anything was deleted.
func (r *PostgresRepository) Delete(ctx context.Context, id int64) (bool, error) {
	query := `DELETE FROM users WHERE id = $1`

	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected error: %w", err)
	}

	return n > 0, nil
}

// ExistsByUserName reports whether any user holds the name, optionally
// ignoring the row with excludeID so updates do not collide with themselves.
func (r *PostgresRepository) ExistsByUserName(ctx context.Context, userName string, excludeID *int64) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM users WHERE LOWER(username) = LOWER($1) AND ($2::bigint IS NULL OR id <> $2))`
	return r.exists(ctx, query, userName, excludeID)
}

// ExistsByEmail is the email counterpart of ExistsByUserName.
func (r *PostgresRepository) ExistsByEmail(ctx context.Context, email string, excludeID *int64) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM users WHERE LOWER(email) = LOWER($1) AND ($2::bigint IS NULL OR id <> $2))`
	return r.exists(ctx, query, email, excludeID)
}

func (r *PostgresRepository) exists(ctx context.Context, query string, value string, excludeID *int64) (bool, error) {
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, value, excludeID).Scan(&exists); err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return exists, nil
}
