package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_ForTableKeepsRegistrationOrder(t *testing.T) {
	r := NewRegistry()
	for _, key := range []string{"a", "b", "c"} {
		_, err := r.Register(martingale(key, "B then P", 1))
		require.NoError(t, err)
	}
	require.NoError(t, r.Attach("t1", "c"))
	require.NoError(t, r.Attach("t1", "a"))
	require.NoError(t, r.Attach("t1", "a"))
	require.NoError(t, r.Attach("t2", "a"))

	var keys []string
	for _, def := range r.ForTable("t1") {
		keys = append(keys, def.Key)
	}
	assert.Equal(t, []string{"a", "c"}, keys)
	assert.Equal(t, []string{"t1", "t2"}, r.TablesFor("a"))

	assert.True(t, r.Detach("t1", "a"))
	assert.False(t, r.Detach("t1", "a"))
	assert.Len(t, r.ForTable("t1"), 1)
}
