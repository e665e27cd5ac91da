package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/csiflex/identity/internal/common"
	"github.com/csiflex/identity/internal/credential"
	"github.com/csiflex/identity/internal/dbx"
	"github.com/csiflex/identity/internal/logging"
	"github.com/csiflex/identity/internal/server/models"
	"github.com/csiflex/identity/internal/server/repositories/repomanager"
)

// errPasswordMismatch stays inside this package: callers of ChangePassword
// only ever see a boolean, so credential failures cannot be told apart from
// a missing user.
var errPasswordMismatch = errors.New("current password mismatch")

// UserService implements user management: reads, create/update/delete,
// password rotation, and the uniqueness pre-checks backing them. Each public
// operation is a single independent unit of work against the store; mutating
// operations run inside their own transaction, released on every exit path.
type UserService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	logger      logging.Logger
	now         func() time.Time
}

// NewUserService constructs a UserService.
func NewUserService(db *sql.DB, m repomanager.RepositoryManager, logger logging.Logger) *UserService {
	return &UserService{
		db:          db,
		repomanager: m,
		logger:      logger.With("module", "user_service"),
		now:         time.Now,
	}
}

// GetAll returns every user, active or not.
func (s *UserService) GetAll(ctx context.Context) ([]*models.User, error) {
	return s.repomanager.Users(s.db).GetAll(ctx)
}

// GetByID returns the user with the given id, or nil when absent.
func (s *UserService) GetByID(ctx context.Context, id int64) (*models.User, error) {
	return s.asOptional(s.repomanager.Users(s.db).GetByID(ctx, id))
}

// GetByUserName returns the user with the given username, or nil when absent.
func (s *UserService) GetByUserName(ctx context.Context, userName string) (*models.User, error) {
	return s.asOptional(s.repomanager.Users(s.db).GetByUserName(ctx, userName))
}

// Search returns users whose username, name fields, or email contain the term.
func (s *UserService) Search(ctx context.Context, term string) ([]*models.User, error) {
	return s.repomanager.Users(s.db).Search(ctx, term)
}

// GetByType returns users with the given type, matched case-insensitively.
func (s *UserService) GetByType(ctx context.Context, userType string) ([]*models.User, error) {
	return s.repomanager.Users(s.db).GetByType(ctx, userType)
}

// GetActive returns users whose active flag is set.
func (s *UserService) GetActive(ctx context.Context) ([]*models.User, error) {
	return s.repomanager.Users(s.db).GetActive(ctx)
}

// Create persists a new user with freshly derived credentials. It fails with
// common.ErrorConflict when the username or email is already taken by any
// user, active or not. The existence checks are a fast-path rejection; the
// store's unique indexes remain the authoritative guard under concurrency.
func (s *UserService) Create(ctx context.Context, user *models.User, password string) (*models.User, error) {
	hash, salt, err := credential.HashPasswordNew(password)
	if err != nil {
		return nil, err
	}

	var created *models.User
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Users(tx)

		taken, err := repo.ExistsByUserName(ctx, user.UserName, nil)
		if err != nil {
			return err
		}
		if taken {
			s.logger.Warn(ctx, "create rejected, username taken", "username", user.UserName)
			return fmt.Errorf("user name %q: %w", user.UserName, common.ErrorConflict)
		}

		taken, err = repo.ExistsByEmail(ctx, user.Email, nil)
		if err != nil {
			return err
		}
		if taken {
			s.logger.Warn(ctx, "create rejected, email taken", "email", user.Email)
			return fmt.Errorf("email %q: %w", user.Email, common.ErrorConflict)
		}

		user.PasswordHash = hash
		user.Salt = salt
		user.CreatedAt = s.now()
		user.UpdatedAt = nil
		user.IsActive = true

		if strings.TrimSpace(user.DisplayName) == "" {
			user.DisplayName = user.FullName()
		}
		if strings.TrimSpace(user.RefID) == "" {
			user.RefID = uuid.NewString()
		}

		created, err = repo.Add(ctx, user)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "user created", "username", created.UserName, "id", created.ID)
	return created, nil
}

// Update rewrites a user's profile. The username, credential fields, active
// flag, and creation timestamp are not caller-controlled through this path
// and are restored from the stored record before persisting.
func (s *UserService) Update(ctx context.Context, user *models.User) (*models.User, error) {
	var updated *models.User
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Users(tx)

		existing, err := repo.GetByID(ctx, user.ID)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return fmt.Errorf("user id %d: %w", user.ID, common.ErrorNotFound)
			}
			return err
		}

		taken, err := repo.ExistsByEmail(ctx, user.Email, &user.ID)
		if err != nil {
			return err
		}
		if taken {
			s.logger.Warn(ctx, "update rejected, email taken", "email", user.Email, "id", user.ID)
			return fmt.Errorf("email %q: %w", user.Email, common.ErrorConflict)
		}

		user.UserName = existing.UserName
		user.PasswordHash = existing.PasswordHash
		user.Salt = existing.Salt
		user.CreatedAt = existing.CreatedAt
		user.IsActive = existing.IsActive

		now := s.now()
		user.UpdatedAt = &now

		if strings.TrimSpace(user.DisplayName) == "" {
			user.DisplayName = user.FullName()
		}

		updated, err = repo.Update(ctx, user)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "user updated", "username", updated.UserName, "id", updated.ID)
	return updated, nil
}

// Delete removes the user and reports whether a row was deleted. A missing
// id yields false, not an error.
func (s *UserService) Delete(ctx context.Context, id int64) (bool, error) {
	deleted, err := s.repomanager.Users(s.db).Delete(ctx, id)
	if err != nil {
		return false, err
	}
	if deleted {
		s.logger.Info(ctx, "user deleted", "id", id)
	} else {
		s.logger.Warn(ctx, "delete of missing user", "id", id)
	}
	return deleted, nil
}

// ChangePassword rotates the credential pair after verifying the current
// password against the stored hash. A missing user or a failed verification
// both return false with the stored credentials untouched.
func (s *UserService) ChangePassword(ctx context.Context, id int64, currentPassword, newPassword string) (bool, error) {
	err := s.rotateCredentials(ctx, id, newPassword, func(user *models.User) error {
		if !credential.VerifyPassword(currentPassword, user.PasswordHash, user.Salt) {
			s.logger.Warn(ctx, "change password rejected, current password mismatch", "username", user.UserName)
			return errPasswordMismatch
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) || errors.Is(err, errPasswordMismatch) {
			return false, nil
		}
		return false, err
	}

	s.logger.Info(ctx, "password changed", "id", id)
	return true, nil
}

// ResetPassword rotates the credential pair without checking the current
// password; an administrative override.
func (s *UserService) ResetPassword(ctx context.Context, id int64, newPassword string) (bool, error) {
	err := s.rotateCredentials(ctx, id, newPassword, func(*models.User) error { return nil })
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return false, nil
		}
		return false, err
	}

	s.logger.Info(ctx, "password reset", "id", id)
	return true, nil
}

// UserNameExists reports whether the username is taken, optionally ignoring
// the user with excludeID.
func (s *UserService) UserNameExists(ctx context.Context, userName string, excludeID *int64) (bool, error) {
	return s.repomanager.Users(s.db).ExistsByUserName(ctx, userName, excludeID)
}

// EmailExists reports whether the email is taken, optionally ignoring the
// user with excludeID.
func (s *UserService) EmailExists(ctx context.Context, email string, excludeID *int64) (bool, error) {
	return s.repomanager.Users(s.db).ExistsByEmail(ctx, email, excludeID)
}

// rotateCredentials loads the user, runs the supplied guard, and persists a
// fresh salt+hash pair inside one transaction.
func (s *UserService) rotateCredentials(ctx context.Context, id int64, newPassword string, guard func(*models.User) error) error {
	hash, salt, err := credential.HashPasswordNew(newPassword)
	if err != nil {
		return err
	}

	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Users(tx)

		user, err := repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if err := guard(user); err != nil {
			return err
		}

		user.PasswordHash = hash
		user.Salt = salt
		now := s.now()
		user.UpdatedAt = &now

		_, err = repo.Update(ctx, user)
		return err
	})
}

// asOptional converts a not-found lookup into a nil result, which is a valid
// outcome for reads.
func (s *UserService) asOptional(user *models.User, err error) (*models.User, error) {
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return user, nil
}
