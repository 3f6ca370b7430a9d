package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/and161185/drivepass/internal/errs"
	"github.com/and161185/drivepass/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"
)

func newDB(t *testing.T) (*DB, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	return &DB{Pool: mock}, mock
}

const lookupSQL = `SELECT id, email, status, email_verified FROM users WHERE id=\$1`

func TestUserRepo_LookupByID(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewUserRepo(db)
	ctx := context.Background()
	id := uuid.Must(uuid.NewV4())

	mock.ExpectQuery(lookupSQL).
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"id", "email", "status", "email_verified"}).
			AddRow(id, "driver@x.com", "active", true))
	row, err := r.LookupByID(ctx, id)
	require.NoError(t, err)
	require.Equal(t, id, row.ID)
	require.Equal(t, model.StatusActive, row.Status)
	require.True(t, row.EmailVerified)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepo_LookupByID_Inactive(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewUserRepo(db)
	id := uuid.Must(uuid.NewV4())

	mock.ExpectQuery(lookupSQL).
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"id", "email", "status", "email_verified"}).
			AddRow(id, "driver@x.com", "suspended", false))
	row, err := r.LookupByID(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, model.AccountStatus("suspended"), row.Status)
}

func TestUserRepo_LookupByID_NotFoundVsNetwork(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewUserRepo(db)
	ctx := context.Background()
	id := uuid.Must(uuid.NewV4())

	mock.ExpectQuery(lookupSQL).WithArgs(id).WillReturnError(pgx.ErrNoRows)
	_, err := r.LookupByID(ctx, id)
	require.ErrorIs(t, err, errs.ErrNotFound)

	mock.ExpectQuery(lookupSQL).WithArgs(id).WillReturnError(errors.New("conn reset"))
	_, err = r.LookupByID(ctx, id)
	require.ErrorIs(t, err, errs.ErrNetwork)
	require.NotErrorIs(t, err, errs.ErrNotFound)

	mock.ExpectQuery(lookupSQL).WithArgs(id).WillReturnError(context.Canceled)
	_, err = r.LookupByID(ctx, id)
	require.ErrorIs(t, err, context.Canceled)
}

const updateSQL = `UPDATE users SET full_name = COALESCE\(\$2, full_name\), phone = COALESCE\(\$3, phone\), profile_photo_url = COALESCE\(\$4, profile_photo_url\), updated_at = now\(\) WHERE id = \$1`

func TestUserRepo_UpdateProfile(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewUserRepo(db)
	ctx := context.Background()
	id := uuid.Must(uuid.NewV4())
	name := "Jane Driver"
	upd := model.ProfileUpdate{FullName: &name}

	mock.ExpectExec(updateSQL).
		WithArgs(id, upd.FullName, upd.Phone, upd.PhotoURL).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, r.UpdateProfile(ctx, id, upd))

	mock.ExpectExec(updateSQL).
		WithArgs(id, upd.FullName, upd.Phone, upd.PhotoURL).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	require.ErrorIs(t, r.UpdateProfile(ctx, id, upd), errs.ErrNotFound)

	mock.ExpectExec(updateSQL).
		WithArgs(id, upd.FullName, upd.Phone, upd.PhotoURL).
		WillReturnError(errors.New("broken pipe"))
	require.ErrorIs(t, r.UpdateProfile(ctx, id, upd), errs.ErrNetwork)
	require.NoError(t, mock.ExpectationsWereMet())
}
