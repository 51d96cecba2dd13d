package mcp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_noOptions(t *testing.T) {
	srv := New(Config{})
	require.NotNil(t, srv)
	assert.NotNil(t, srv.mcp)
	assert.Nil(t, srv.store) // no store by default
	assert.Nil(t, srv.vec)
	assert.NotNil(t, srv.logger)
	assert.NotNil(t, srv.limiter)
	assert.Equal(t, defRateLimit, srv.cfg.RateLimit)
}

func TestNew_withLogger_nil(t *testing.T) {
	// A nil logger must not panic and must fall back to slog.Default().
	assert.NotPanics(t, func() {
		srv := New(Config{}, WithLogger(nil))
		assert.NotNil(t, srv.logger)
	})
}

func TestNew_registry(t *testing.T) {
	srv := New(Config{})
	var names []string
	for _, tool := range srv.registry {
		names = append(names, tool.Tool.Name)
	}
	assert.ElementsMatch(t, []string{
		"search_items",
		"get_item",
		"health",
		"get_documentation",
		"save_documentation",
	}, names)
}

func TestDispatch(t *testing.T) {
	srv := New(Config{})

	t.Run("known tool executes", func(t *testing.T) {
		res, err := srv.dispatch(t.Context(), "health", nil)
		require.NoError(t, err)
		require.NotNil(t, res)
		assert.False(t, res.IsError)
	})

	t.Run("unknown tool fails with errUnknownTool", func(t *testing.T) {
		res, err := srv.dispatch(t.Context(), "no_such_tool", nil)
		require.ErrorIs(t, err, errUnknownTool)
		assert.Nil(t, res)
	})
}

func TestInstructions(t *testing.T) {
	got := instructions()
	assert.Contains(t, got, "search_items")
	assert.Contains(t, got, "save_documentation")
}
