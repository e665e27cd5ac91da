package services

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"sort"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/csiflex/identity/internal/common"
	"github.com/csiflex/identity/internal/dbx"
	"github.com/csiflex/identity/internal/logging"
	"github.com/csiflex/identity/internal/server/models"
	usersrepo "github.com/csiflex/identity/internal/server/repositories/users"
)

// memRepo is an in-memory users.Repository used by service tests. It copies
// records on the way in and out so tests can check that services do not leak
// aliased state.
type memRepo struct {
	nextID int64
	data   map[int64]*models.User

	// forced errors per operation name, e.g. "GetByID" -> err
	failures map[string]error
}

func newMemRepo() *memRepo {
	return &memRepo{nextID: 1, data: map[int64]*models.User{}, failures: map[string]error{}}
}

func (m *memRepo) fail(op string) error { return m.failures[op] }

func clone(u *models.User) *models.User {
	c := *u
	if u.UpdatedAt != nil {
		t := *u.UpdatedAt
		c.UpdatedAt = &t
	}
	return &c
}

func (m *memRepo) GetByID(ctx context.Context, id int64) (*models.User, error) {
	if err := m.fail("GetByID"); err != nil {
		return nil, err
	}
	u, ok := m.data[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return clone(u), nil
}

func (m *memRepo) GetByUserName(ctx context.Context, userName string) (*models.User, error) {
	if err := m.fail("GetByUserName"); err != nil {
		return nil, err
	}
	for _, u := range m.data {
		if strings.EqualFold(u.UserName, userName) {
			return clone(u), nil
		}
	}
	return nil, common.ErrorNotFound
}

func (m *memRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	for _, u := range m.data {
		if strings.EqualFold(u.Email, email) {
			return clone(u), nil
		}
	}
	return nil, common.ErrorNotFound
}

func (m *memRepo) GetAll(ctx context.Context) ([]*models.User, error) {
	if err := m.fail("GetAll"); err != nil {
		return nil, err
	}
	return m.collect(func(u *models.User) bool { return true }), nil
}

func (m *memRepo) GetActive(ctx context.Context) ([]*models.User, error) {
	return m.collect(func(u *models.User) bool { return u.IsActive }), nil
}

func (m *memRepo) GetByType(ctx context.Context, userType string) ([]*models.User, error) {
	return m.collect(func(u *models.User) bool { return strings.EqualFold(u.UserType, userType) }), nil
}

func (m *memRepo) Search(ctx context.Context, term string) ([]*models.User, error) {
	t := strings.ToLower(term)
	return m.collect(func(u *models.User) bool {
		for _, f := range []string{u.UserName, u.FirstName, u.LastName, u.DisplayName, u.Email} {
			if strings.Contains(strings.ToLower(f), t) {
				return true
			}
		}
		return false
	}), nil
}

func (m *memRepo) Add(ctx context.Context, user *models.User) (*models.User, error) {
	if err := m.fail("Add"); err != nil {
		return nil, err
	}
	u := clone(user)
	u.ID = m.nextID
	m.nextID++
	m.data[u.ID] = u
	return clone(u), nil
}

func (m *memRepo) Update(ctx context.Context, user *models.User) (*models.User, error) {
	if err := m.fail("Update"); err != nil {
		return nil, err
	}
	if _, ok := m.data[user.ID]; !ok {
		return nil, common.ErrorNotFound
	}
	m.data[user.ID] = clone(user)
	return clone(user), nil
}

func (m *memRepo) Delete(ctx context.Context, id int64) (bool, error) {
	if err := m.fail("Delete"); err != nil {
		return false, err
	}
	if _, ok := m.data[id]; !ok {
		return false, nil
	}
	delete(m.data, id)
	return true, nil
}

func (m *memRepo) ExistsByUserName(ctx context.Context, userName string, excludeID *int64) (bool, error) {
	if err := m.fail("ExistsByUserName"); err != nil {
		return false, err
	}
	for _, u := range m.data {
		if excludeID != nil && u.ID == *excludeID {
			continue
		}
		if strings.EqualFold(u.UserName, userName) {
			return true, nil
		}
	}
	return false, nil
}

func (m *memRepo) ExistsByEmail(ctx context.Context, email string, excludeID *int64) (bool, error) {
	if err := m.fail("ExistsByEmail"); err != nil {
		return false, err
	}
	for _, u := range m.data {
		if excludeID != nil && u.ID == *excludeID {
			continue
		}
		if strings.EqualFold(u.Email, email) {
			return true, nil
		}
	}
	return false, nil
}

func (m *memRepo) collect(keep func(*models.User) bool) []*models.User {
	var result []*models.User
	for _, u := range m.data {
		if keep(u) {
			result = append(result, clone(u))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].UserName < result[j].UserName })
	return result
}

type fakeRepoManager struct {
	repo *memRepo
}

func (f *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (f *fakeRepoManager) Users(db dbx.DBTX) usersrepo.Repository      { return f.repo }

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

// expectCommit registers the begin/commit pair a successful mutating
// operation drives against the database handle.
func expectCommit(mock sqlmock.Sqlmock) {
	mock.ExpectBegin()
	mock.ExpectCommit()
}

// expectRollback registers the begin/rollback pair a failed mutating
// operation drives against the database handle.
func expectRollback(mock sqlmock.Sqlmock) {
	mock.ExpectBegin()
	mock.ExpectRollback()
}

func testLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError})))
}
