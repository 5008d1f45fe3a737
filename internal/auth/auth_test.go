package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup(t *testing.T) {
	a, err := New([]string{"alpha", "", "ops=s3cret"})
	require.NoError(t, err)
	assert.True(t, a.Enabled())

	c, ok := a.Lookup("alpha")
	require.True(t, ok)
	assert.Equal(t, "key-1", c.ID)

	c, ok = a.Lookup("s3cret")
	require.True(t, ok)
	assert.Equal(t, "ops", c.ID)

	_, ok = a.Lookup("ops=s3cret")
	assert.False(t, ok)
	_, ok = a.Lookup("")
	assert.False(t, ok)
}

func TestDuplicateKeyRejected(t *testing.T) {
	_, err := New([]string{"k", "other=k"})
	assert.Error(t, err)
}

func TestDisabled(t *testing.T) {
	a, err := New(nil)
	require.NoError(t, err)
	assert.False(t, a.Enabled())

	var nilAuth *Auth
	assert.False(t, nilAuth.Enabled())
	_, ok := nilAuth.Lookup("x")
	assert.False(t, ok)
}

func TestClientContext(t *testing.T) {
	assert.Equal(t, "anonymous", ClientFromContext(context.Background()).ID)
	ctx := WithClient(context.Background(), Client{ID: "ops"})
	assert.Equal(t, "ops", ClientFromContext(ctx).ID)
}
