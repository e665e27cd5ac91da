// Package services contains the business logic of the identity core:
// AuthService runs the login decision pipeline and UserService manages
// user records. Neither performs cryptography itself beyond delegating
// to the credential package.
package services

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/csiflex/identity/internal/common"
	"github.com/csiflex/identity/internal/credential"
	"github.com/csiflex/identity/internal/logging"
	"github.com/csiflex/identity/internal/server/models"
	"github.com/csiflex/identity/internal/server/repositories/repomanager"
)

// MasterUserName is reserved for a master account that this version does not
// implement. The name must never authenticate through the normal path, even
// if a matching row exists in the store.
const MasterUserName = "csimasteradmin"

// Login result messages. The invalid-credentials message is shared by the
// unknown-user and wrong-password cases so that neither can be told apart.
const (
	msgUserNameRequired   = "user name is required"
	msgPasswordRequired   = "password is required"
	msgMasterNotAvailable = "master account is not available in this version"
	msgInvalidCredentials = "invalid user name or password"
	msgAccessDenied       = "access denied: only administrators may sign in"
	msgLoginOK            = "login successful"
	msgLoginRetry         = "unable to process login, please try again"
)

// Credentials is a username/password pair submitted for login.
type Credentials struct {
	UserName string
	Password string
}

// PublicUser is the sanitized view of an authenticated user. It never
// carries credential fields.
type PublicUser struct {
	UserName    string
	FirstName   string
	LastName    string
	DisplayName string
	Email       string
	UserType    string
	IsAdmin     bool
	Machines    string
}

// LoginResult is the user-facing outcome of a login attempt. User is only
// set on success.
type LoginResult struct {
	Success bool
	Message string
	User    *PublicUser
}

// AuthService authenticates username/password pairs against the user store
// and applies the administrator-only login gate.
type AuthService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	logger      logging.Logger
}

// NewAuthService constructs an AuthService.
func NewAuthService(db *sql.DB, m repomanager.RepositoryManager, logger logging.Logger) *AuthService {
	return &AuthService{
		db:          db,
		repomanager: m,
		logger:      logger.With("module", "auth_service"),
	}
}

// Authenticate resolves the user and verifies the password. A nil user with
// a nil error means "no match": blank input, unknown username, and failed
// verification are indistinguishable to the caller, which prevents username
// enumeration at this layer. Store failures propagate.
func (s *AuthService) Authenticate(ctx context.Context, userName, password string) (*models.User, error) {
	if strings.TrimSpace(userName) == "" || strings.TrimSpace(password) == "" {
		s.logger.Warn(ctx, "authentication attempt with blank credentials")
		return nil, nil
	}

	repo := s.repomanager.Users(s.db)
	user, err := repo.GetByUserName(ctx, userName)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.logger.Warn(ctx, "authentication failed", "username", userName)
			return nil, nil
		}
		return nil, err
	}

	if !credential.VerifyPassword(password, user.PasswordHash, user.Salt) {
		s.logger.Warn(ctx, "authentication failed", "username", userName)
		return nil, nil
	}

	return user, nil
}

// Login validates input, authenticates, and applies the authorization gate.
// The stages short-circuit at the first failure:
//
//  1. blank username
//  2. blank password
//  3. reserved master username, rejected before any store access
//  4. credential check (generic message on failure)
//  5. administrator-only gate
//
// Only on success does the result carry a sanitized user view.
func (s *AuthService) Login(ctx context.Context, creds Credentials) *LoginResult {
	if strings.TrimSpace(creds.UserName) == "" {
		return &LoginResult{Success: false, Message: msgUserNameRequired}
	}
	if strings.TrimSpace(creds.Password) == "" {
		return &LoginResult{Success: false, Message: msgPasswordRequired}
	}
	if strings.EqualFold(strings.TrimSpace(creds.UserName), MasterUserName) {
		s.logger.Warn(ctx, "login attempt with reserved master account", "username", creds.UserName)
		return &LoginResult{Success: false, Message: msgMasterNotAvailable}
	}

	user, err := s.Authenticate(ctx, creds.UserName, creds.Password)
	if err != nil {
		s.logger.Error(ctx, "login failed on store error", "username", creds.UserName, "error", err.Error())
		return &LoginResult{Success: false, Message: msgLoginRetry}
	}
	if user == nil {
		return &LoginResult{Success: false, Message: msgInvalidCredentials}
	}

	if !user.IsAdmin() {
		s.logger.Warn(ctx, "login denied for non-administrator",
			"username", user.UserName, "user_type", user.UserType)
		return &LoginResult{Success: false, Message: msgAccessDenied}
	}

	s.logger.Info(ctx, "login successful", "username", user.UserName, "user_type", user.UserType)

	return &LoginResult{
		Success: true,
		Message: msgLoginOK,
		User: &PublicUser{
			UserName:    user.UserName,
			FirstName:   user.FirstName,
			LastName:    user.LastName,
			DisplayName: user.DisplayName,
			Email:       user.Email,
			UserType:    user.UserType,
			IsAdmin:     user.IsAdmin(),
			Machines:    user.Machines,
		},
	}
}

// HashPassword generates a fresh salt and hash for new credentials. It is a
// thin passthrough kept so that callers of the auth layer never import the
// credential package directly.
func (s *AuthService) HashPassword(password string) (hash, salt string, err error) {
	return credential.HashPasswordNew(password)
}

// VerifyPassword checks a plaintext password against a stored hash/salt pair.
func (s *AuthService) VerifyPassword(password, storedHash, storedSalt string) bool {
	return credential.VerifyPassword(password, storedHash, storedSalt)
}
