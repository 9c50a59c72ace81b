package store

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHostDeltaAdd(t *testing.T) {
	t.Parallel()

	var d HostDelta
	require.True(t, d.IsZero())

	d = d.Add(HostDelta{Fetched: 1, Bytes: 100})
	d = d.Add(HostDelta{Fetched: 1, Records: 3, Bytes: 50})
	d = d.Add(HostDelta{Failed: 1})

	require.Equal(t, HostDelta{Fetched: 2, Failed: 1, Records: 3, Bytes: 150}, d)
	require.False(t, d.IsZero())
}
