package users

import (
	"context"

	"github.com/csiflex/identity/internal/server/models"
)

// Repository is the store contract consumed by the services. Lookups that
// find nothing return common.ErrorNotFound; every other store failure is
// wrapped and propagated unchanged. Username and email matching is
// case-insensitive throughout, mirroring the schema's unique indexes.
//
// The service-level uniqueness checks built on ExistsByUserName and
// ExistsByEmail are a fast-path rejection only: the schema's unique indexes
// on username and email are the authoritative guard, and a racing insert
// surfaces as a store error.
type Repository interface {
	GetByID(ctx context.Context, id int64) (*models.User, error)
	GetByUserName(ctx context.Context, userName string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetAll(ctx context.Context) ([]*models.User, error)
	GetActive(ctx context.Context) ([]*models.User, error)
	GetByType(ctx context.Context, userType string) ([]*models.User, error)
	Search(ctx context.Context, term string) ([]*models.User, error)
	Add(ctx context.Context, user *models.User) (*models.User, error)
	Update(ctx context.Context, user *models.User) (*models.User, error)
	Delete(ctx context.Context, id int64) (bool, error)
	ExistsByUserName(ctx context.Context, userName string, excludeID *int64) (bool, error)
	ExistsByEmail(ctx context.Context, email string, excludeID *int64) (bool, error)
}
