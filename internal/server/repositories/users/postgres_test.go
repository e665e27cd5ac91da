package users

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/csiflex/identity/internal/common"
	"github.com/csiflex/identity/internal/server/models"
)

var userCols = []string{
	"id", "username", "password_hash", "salt", "first_name", "last_name",
	"display_name", "email", "user_type", "ref_id", "title", "dept",
	"machines", "phone_ext", "edit_timeline", "edit_part_number",
	"is_active", "created_at", "updated_at",
}

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

func addUserRow(rows *sqlmock.Rows, id int64, username, email, userType string) *sqlmock.Rows {
	return rows.AddRow(
		id, username, "hash", "salt", "John", "Doe",
		"John Doe", email, userType, "", "", "",
		"", "", false, false,
		true, time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), nil,
	)
}

func TestGetByUserName_Found(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	rows := addUserRow(sqlmock.NewRows(userCols), 1, "jdoe", "jdoe@example.com", "admin")
	mock.ExpectQuery(`(?s)SELECT\s+id,\s*username,.*FROM users WHERE LOWER\(username\) = LOWER\(\$1\)`).
		WithArgs("jdoe").
		WillReturnRows(rows)

	got, err := repo.GetByUserName(context.Background(), "jdoe")
	if err != nil {
		t.Fatalf("GetByUserName error: %v", err)
	}
	if got.ID != 1 || got.UserName != "jdoe" || !got.IsAdmin() {
		t.Fatalf("unexpected user: %+v", got)
	}
	if got.UpdatedAt != nil {
		t.Fatalf("expected nil UpdatedAt, got %v", got.UpdatedAt)
	}
}

func TestGetByUserName_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`FROM users WHERE LOWER\(username\) = LOWER\(\$1\)`).
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByUserName(context.Background(), "ghost")
	if !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want common.ErrorNotFound, got %v", err)
	}
}

func TestGetByID_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`FROM users WHERE id = \$1`).
		WithArgs(int64(1)).
		WillReturnError(errors.New("db down"))

	_, err := repo.GetByID(context.Background(), 1)
	if err == nil || !regexp.MustCompile(`db error: .*db down`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestGetAll_ReturnsAllRows(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	rows := sqlmock.NewRows(userCols)
	addUserRow(rows, 1, "adoe", "adoe@example.com", "admin")
	addUserRow(rows, 2, "jdoe", "jdoe@example.com", "user")
	mock.ExpectQuery(`FROM users ORDER BY username`).WillReturnRows(rows)

	got, err := repo.GetAll(context.Background())
	if err != nil {
		t.Fatalf("GetAll error: %v", err)
	}
	if len(got) != 2 || got[0].UserName != "adoe" || got[1].UserName != "jdoe" {
		t.Fatalf("unexpected result: %+v", got)
	}
}

func TestGetActive_FiltersOnFlag(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	rows := addUserRow(sqlmock.NewRows(userCols), 1, "jdoe", "jdoe@example.com", "user")
	mock.ExpectQuery(`FROM users WHERE is_active ORDER BY username`).WillReturnRows(rows)

	got, err := repo.GetActive(context.Background())
	if err != nil {
		t.Fatalf("GetActive error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected one user, got %d", len(got))
	}
}

func TestSearch_WrapsTermWithWildcards(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	rows := addUserRow(sqlmock.NewRows(userCols), 1, "jdoe", "jdoe@example.com", "user")
	mock.ExpectQuery(`(?s)username ILIKE \$1 OR first_name ILIKE \$1`).
		WithArgs("%doe%").
		WillReturnRows(rows)

	got, err := repo.Search(context.Background(), "doe")
	if err != nil {
		t.Fatalf("Search error: %v", err)
	}
	if len(got) != 1 || got[0].UserName != "jdoe" {
		t.Fatalf("unexpected result: %+v", got)
	}
}

func TestAdd_AssignsID(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)INSERT INTO users .*RETURNING id`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(42)))

	u := &models.User{UserName: "jdoe", PasswordHash: "hash", Salt: "salt",
		FirstName: "John", LastName: "Doe", Email: "jdoe@example.com",
		UserType: "user", IsActive: true, CreatedAt: time.Now()}

	got, err := repo.Add(context.Background(), u)
	if err != nil {
		t.Fatalf("Add error: %v", err)
	}
	if got.ID != 42 {
		t.Fatalf("expected assigned id 42, got %d", got.ID)
	}
}

func TestAdd_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`INSERT INTO users`).
		WillReturnError(errors.New("duplicate key value violates unique constraint"))

	_, err := repo.Add(context.Background(), &models.User{UserName: "jdoe"})
	if err == nil || !regexp.MustCompile(`db error: .*unique constraint`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestUpdate_ReturnsRefreshedRecord(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	updated := time.Date(2024, 4, 2, 9, 30, 0, 0, time.UTC)
	rows := sqlmock.NewRows(userCols).AddRow(
		int64(7), "jdoe", "hash", "salt", "John", "Doe",
		"John Doe", "new@example.com", "user", "", "", "",
		"", "", false, false,
		true, time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), updated,
	)
	mock.ExpectQuery(`(?s)UPDATE users SET.*RETURNING`).WillReturnRows(rows)

	u := &models.User{ID: 7, UserName: "jdoe", Email: "new@example.com", UpdatedAt: &updated}
	got, err := repo.Update(context.Background(), u)
	if err != nil {
		t.Fatalf("Update error: %v", err)
	}
	if got.Email != "new@example.com" || got.UpdatedAt == nil || !got.UpdatedAt.Equal(updated) {
		t.Fatalf("unexpected user: %+v", got)
	}
}

func TestUpdate_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`UPDATE users SET`).WillReturnError(sql.ErrNoRows)

	_, err := repo.Update(context.Background(), &models.User{ID: 99})
	if !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want common.ErrorNotFound, got %v", err)
	}
}

func TestDelete(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`DELETE FROM users WHERE id = \$1`).
		WithArgs(int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := repo.Delete(context.Background(), 7)
	if err != nil || !ok {
		t.Fatalf("Delete = (%v, %v), want (true, nil)", ok, err)
	}

	mock.ExpectExec(`DELETE FROM users WHERE id = \$1`).
		WithArgs(int64(8)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err = repo.Delete(context.Background(), 8)
	if err != nil || ok {
		t.Fatalf("Delete = (%v, %v), want (false, nil)", ok, err)
	}
}

func TestExistsByUserName(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT EXISTS .*LOWER\(username\)`).
		WithArgs("jdoe", nil).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := repo.ExistsByUserName(context.Background(), "jdoe", nil)
	if err != nil || !ok {
		t.Fatalf("ExistsByUserName = (%v, %v), want (true, nil)", ok, err)
	}
}

func TestExistsByEmail_WithExcludeID(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	id := int64(7)
	mock.ExpectQuery(`SELECT EXISTS .*LOWER\(email\)`).
		WithArgs("jdoe@example.com", &id).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	ok, err := repo.ExistsByEmail(context.Background(), "jdoe@example.com", &id)
	if err != nil || ok {
		t.Fatalf("ExistsByEmail = (%v, %v), want (false, nil)", ok, err)
	}
}
