package logger_test

import (
	"errors"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/statekit/pkg/logger"
)

func TestGroup(t *testing.T) {
	attr := logger.Group("req", slog.String("id", "1"), slog.Int("n", 2))
	require.Equal(t, "req", attr.Key)
	require.Equal(t, slog.KindGroup, attr.Value.Kind())
	g := attr.Value.Group()
	require.Len(t, g, 2)
	assert.Equal(t, "id", g[0].Key)
	assert.Equal(t, "n", g[1].Key)
}

func TestErrors(t *testing.T) {
	err1 := errors.New("first")
	err2 := errors.New("second")

	attr := logger.Errors(err1, nil, err2)
	require.Equal(t, "errors", attr.Key)
	require.Equal(t, slog.KindGroup, attr.Value.Kind())
	g := attr.Value.Group()
	require.Len(t, g, 2)
	assert.Equal(t, err1, g[0].Value.Any())
	assert.Equal(t, err2, g[1].Value.Any())

	empty := logger.Errors(nil)
	assert.True(t, empty.Equal(slog.Attr{}))
}

func TestError(t *testing.T) {
	err := errors.New("boom")
	attr := logger.Error(err)
	require.Equal(t, "error", attr.Key)
	assert.Equal(t, err, attr.Value.Any())

	empty := logger.Error(nil)
	assert.True(t, empty.Equal(slog.Attr{}))
}

func TestInvocationIDs(t *testing.T) {
	id := uuid.New()

	tr := logger.TrID(id)
	require.Equal(t, "tr_id", tr.Key)
	assert.Equal(t, id, tr.Value.Any())

	assert.Equal(t, "root_id", logger.RootID(id).Key)
	assert.Equal(t, "parent_id", logger.ParentID(id).Key)
	assert.True(t, logger.TrID(nil).Equal(slog.Attr{}))
}

func TestCallerID(t *testing.T) {
	attr := logger.CallerID("u-1")
	require.Equal(t, "caller_id", attr.Key)
	assert.Equal(t, "u-1", attr.Value.String())

	assert.True(t, logger.CallerID("").Equal(slog.Attr{}))
}

func TestTransitionAttrs(t *testing.T) {
	assert.Equal(t, "submit", logger.Action("submit").Value.String())
	assert.Equal(t, "invoice", logger.Process("invoice").Value.String())
	assert.Equal(t, "state:invoice:1:status", logger.EntityKey("state:invoice:1:status").Value.String())
	assert.Equal(t, "draft", logger.State("draft").Value.String())
}
