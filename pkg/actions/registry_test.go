package actions

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keeldb/keel/pkg/types"
)

func noopHandler() Handler {
	return HandlerFunc(func(ctx context.Context, inv Invocation) (ProgressChanges, error) {
		return ProgressChanges{State: types.ActionStateDone}, nil
	})
}

func TestRegisterAndLookup(t *testing.T) {
	registry := NewRegistry()

	err := registry.Register(Entry{
		Kind:    "cluster.test",
		Handler: noopHandler(),
		Mode:    types.ScheduleModeExclusive,
		Timeout: 10 * time.Minute,
	})
	require.NoError(t, err)

	entry, ok := registry.Lookup("cluster.test")
	require.True(t, ok)
	assert.Equal(t, types.ScheduleModeExclusive, entry.Mode)
	assert.Equal(t, 10*time.Minute, entry.Timeout)

	_, ok = registry.Lookup("missing")
	assert.False(t, ok)
}

func TestRegisterValidation(t *testing.T) {
	registry := NewRegistry()

	assert.Error(t, registry.Register(Entry{Handler: noopHandler()}))
	assert.Error(t, registry.Register(Entry{Kind: "no.handler"}))
}

func TestRegisterDuplicateKind(t *testing.T) {
	registry := NewRegistry()

	require.NoError(t, registry.Register(Entry{Kind: "dup", Handler: noopHandler()}))
	err := registry.Register(Entry{Kind: "dup", Handler: noopHandler()})
	assert.ErrorIs(t, err, ErrAlreadyRegistered)
}

func TestRegisterDefaultsTimeout(t *testing.T) {
	registry := NewRegistry()

	require.NoError(t, registry.Register(Entry{Kind: "no.timeout", Handler: noopHandler()}))
	entry, ok := registry.Lookup("no.timeout")
	require.True(t, ok)
	assert.Equal(t, DefaultTimeout, entry.Timeout)
}

func TestKindsSorted(t *testing.T) {
	registry := NewRegistry()
	for _, kind := range []string{"c", "a", "b"} {
		require.NoError(t, registry.Register(Entry{Kind: kind, Handler: noopHandler()}))
	}

	assert.Equal(t, []string{"a", "b", "c"}, registry.Kinds())
}
