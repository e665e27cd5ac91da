// Package models holds the persisted entity types of the identity core.
package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/csiflex/identity/internal/common"
)

// AdminUserType is the user type value that grants administrator
// capability. The comparison is always case-insensitive.
const AdminUserType = "admin"

// User represents one system account. The credential pair (PasswordHash,
// Salt) is always set together; a record fetched from storage always has
// both populated.
type User struct {
	ID             int64
	UserName       string
	PasswordHash   string
	Salt           string
	FirstName      string
	LastName       string
	DisplayName    string
	Email          string
	UserType       string
	RefID          string
	Title          string
	Dept           string
	Machines       string
	PhoneExt       string
	EditTimeline   bool
	EditPartNumber bool
	IsActive       bool
	CreatedAt      time.Time
	UpdatedAt      *time.Time
}

// IsAdmin reports whether the user type grants administrator capability.
// Derived on every call, never stored.
func (u *User) IsAdmin() bool {
	return strings.EqualFold(u.UserType, AdminUserType)
}

// FullName returns "first last" and is used as the display name default.
func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// NewUser builds a not-yet-persisted user. It is one of exactly two ways to
// obtain a User value; the other is RehydrateUser. The id is left zero until
// the store assigns one.
func NewUser(userName, passwordHash, salt, firstName, lastName, email string) (*User, error) {
	required := []struct {
		field string
		value string
	}{
		{"user name", userName},
		{"password hash", passwordHash},
		{"salt", salt},
		{"first name", firstName},
		{"last name", lastName},
		{"email", email},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return nil, fmt.Errorf("%s must not be empty: %w", r.field, common.ErrorInvalidArgument)
		}
	}

	return &User{
		UserName:     userName,
		PasswordHash: passwordHash,
		Salt:         salt,
		FirstName:    firstName,
		LastName:     lastName,
		Email:        email,
		UserType:     "user",
		IsActive:     true,
	}, nil
}

// RehydrateUser rebuilds a user from stored columns. Stored data is trusted,
// so no validation happens here; the id is taken explicitly.
func RehydrateUser(
	id int64,
	userName, passwordHash, salt string,
	firstName, lastName, displayName, email, userType string,
	refID, title, dept, machines, phoneExt string,
	editTimeline, editPartNumber, isActive bool,
	createdAt time.Time, updatedAt *time.Time,
) *User {
	return &User{
		ID:             id,
		UserName:       userName,
		PasswordHash:   passwordHash,
		Salt:           salt,
		FirstName:      firstName,
		LastName:       lastName,
		DisplayName:    displayName,
		Email:          email,
		UserType:       userType,
		RefID:          refID,
		Title:          title,
		Dept:           dept,
		Machines:       machines,
		PhoneExt:       phoneExt,
		EditTimeline:   editTimeline,
		EditPartNumber: editPartNumber,
		IsActive:       isActive,
		CreatedAt:      createdAt,
		UpdatedAt:      updatedAt,
	}
}
