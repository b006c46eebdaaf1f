package stream

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/lookingglass/internal/testutil"
)

// observe subscribes a recorder to obs.
func observe[V any](t *testing.T, obs Observable[V]) *testutil.Recorder[V] {
	t.Helper()
	rec := testutil.NewRecorder[V]()
	_, err := obs.Subscribe(Observer[V]{
		Next:     rec.Next,
		Error:    rec.Error,
		Complete: rec.Complete,
	})
	require.NoError(t, err)
	return rec
}
