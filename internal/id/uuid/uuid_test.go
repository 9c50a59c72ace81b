package uuid

import (
	"testing"

	goUUID "github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestNewRunIDIsVersion7(t *testing.T) {
	t.Parallel()

	a, err := NewRunID()
	require.NoError(t, err)
	b, err := NewRunID()
	require.NoError(t, err)
	require.NotEqual(t, a, b)
	require.Equal(t, goUUID.Version(7), a.Version())
}

func TestResolveRunID(t *testing.T) {
	t.Parallel()

	minted, err := ResolveRunID("  ")
	require.NoError(t, err)
	require.Equal(t, goUUID.Version(7), minted.Version())

	given, err := ResolveRunID("0b6f5d1e-8a4f-4c61-9d0e-3f2a1b7c9d10")
	require.NoError(t, err)
	require.Equal(t, "0b6f5d1e-8a4f-4c61-9d0e-3f2a1b7c9d10", given.String())

	_, err = ResolveRunID("run-42")
	require.ErrorContains(t, err, "parse run id")

	_, err = ResolveRunID(goUUID.Nil.String())
	require.ErrorContains(t, err, "nil uuid")
}
