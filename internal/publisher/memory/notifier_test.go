package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/review-scraper/internal/dataset"
)

func TestNotifierRecords(t *testing.T) {
	t.Parallel()

	n := New()
	require.NoError(t, n.Notify(context.Background(), dataset.FlushNotice{RunID: "a", Rows: 1}))
	require.NoError(t, n.Notify(context.Background(), dataset.FlushNotice{RunID: "a", Rows: 2}))

	got := n.Notices()
	require.Len(t, got, 2)
	require.Equal(t, 2, got[1].Rows)

	got[0].Rows = 99
	require.Equal(t, 1, n.Notices()[0].Rows, "Notices returns a copy")
}
