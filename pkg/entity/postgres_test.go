package entity_test

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/statekit/pkg/entity"
	"github.com/dmitrymomot/statekit/pkg/statemachine"
)

var (
	_ statemachine.Accessor = (*entity.Postgres)(nil)
	_ statemachine.Loader   = (*entity.Postgres)(nil)
)

type mockQuerier struct {
	mock.Mock
}

func (m *mockQuerier) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	ret := m.Called(sql, args)
	return ret.Get(0).(pgconn.CommandTag), ret.Error(1)
}

func (m *mockQuerier) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	ret := m.Called(sql, args)
	return ret.Get(0).(pgx.Row)
}

type fakeRow struct {
	value any
	err   error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	switch d := dest[0].(type) {
	case **string:
		if r.value == nil {
			*d = nil
			return nil
		}
		s := r.value.(string)
		*d = &s
	case *int:
		*d = r.value.(int)
	}
	return nil
}

func TestPostgres(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	doc := entity.NewRef("document", "7")

	t.Run("get reads the column as text", func(t *testing.T) {
		t.Parallel()

		q := &mockQuerier{}
		q.On("QueryRow", `SELECT "status"::text FROM "documents" WHERE "id"::text = $1`, []any{"7"}).
			Return(fakeRow{value: "draft"})

		store := entity.NewPostgres(q, entity.WithTable("document", "documents"))
		v, err := store.Get(ctx, doc, "status")
		require.NoError(t, err)
		assert.Equal(t, "draft", v)
		q.AssertExpectations(t)
	})

	t.Run("null column reads as empty", func(t *testing.T) {
		t.Parallel()

		q := &mockQuerier{}
		q.On("QueryRow", mock.Anything, mock.Anything).Return(fakeRow{})

		v, err := entity.NewPostgres(q).Get(ctx, doc, "status")
		require.NoError(t, err)
		assert.Empty(t, v)
	})

	t.Run("missing row", func(t *testing.T) {
		t.Parallel()

		q := &mockQuerier{}
		q.On("QueryRow", mock.Anything, mock.Anything).Return(fakeRow{err: pgx.ErrNoRows})

		store := entity.NewPostgres(q)
		_, err := store.Get(ctx, doc, "status")
		assert.ErrorIs(t, err, entity.ErrNotFound)

		_, err = store.Load(ctx, "document", "7")
		assert.ErrorIs(t, err, entity.ErrNotFound)
	})

	t.Run("query errors are wrapped", func(t *testing.T) {
		t.Parallel()

		boom := errors.New("connection reset")
		q := &mockQuerier{}
		q.On("QueryRow", mock.Anything, mock.Anything).Return(fakeRow{err: boom})

		_, err := entity.NewPostgres(q).Get(ctx, doc, "status")
		assert.ErrorIs(t, err, boom)
		assert.NotErrorIs(t, err, entity.ErrNotFound)
	})

	t.Run("set updates one row", func(t *testing.T) {
		t.Parallel()

		q := &mockQuerier{}
		q.On("Exec", `UPDATE "docs" SET "state" = $1 WHERE "uuid"::text = $2`, []any{"published", "7"}).
			Return(pgconn.NewCommandTag("UPDATE 1"), nil)

		store := entity.NewPostgres(q, entity.WithTable("document", "docs"), entity.WithIDColumn("uuid"))
		require.NoError(t, store.Set(ctx, doc, "state", "published"))
		q.AssertExpectations(t)
	})

	t.Run("set on missing row", func(t *testing.T) {
		t.Parallel()

		q := &mockQuerier{}
		q.On("Exec", mock.Anything, mock.Anything).Return(pgconn.NewCommandTag("UPDATE 0"), nil)

		assert.ErrorIs(t, entity.NewPostgres(q).Set(ctx, doc, "status", "x"), entity.ErrNotFound)
	})

	t.Run("identifiers are quoted", func(t *testing.T) {
		t.Parallel()

		q := &mockQuerier{}
		q.On("QueryRow", `SELECT "st""atus"::text FROM "document" WHERE "id"::text = $1`, []any{"7"}).
			Return(fakeRow{value: "x"})

		_, err := entity.NewPostgres(q).Get(ctx, doc, `st"atus`)
		require.NoError(t, err)
		q.AssertExpectations(t)
	})

	t.Run("empty field", func(t *testing.T) {
		t.Parallel()

		store := entity.NewPostgres(&mockQuerier{})
		_, err := store.Get(ctx, doc, "")
		assert.ErrorIs(t, err, entity.ErrInvalidField)
		assert.ErrorIs(t, store.Set(ctx, doc, "", "x"), entity.ErrInvalidField)
	})

	t.Run("load", func(t *testing.T) {
		t.Parallel()

		q := &mockQuerier{}
		q.On("QueryRow", `SELECT 1 FROM "document" WHERE "id"::text = $1`, []any{"7"}).
			Return(fakeRow{value: 1})

		e, err := entity.NewPostgres(q).Load(ctx, "document", "7")
		require.NoError(t, err)
		assert.Equal(t, doc, e)
	})
}
