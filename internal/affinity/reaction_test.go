package affinity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReactors_Defaults(t *testing.T) {
	exec, _, rec := newQueueExecutor(t)

	// Property changes react inline with the raw error.
	x := 0
	err := exec.PropertyChanged()(func() error {
		x = 1
		return errBoom
	})
	assert.Equal(t, 1, x)
	assert.Equal(t, errBoom, err)
	assert.Equal(t, int64(0), rec.sends.Load())

	// Collection changes go through RunSync.
	err = exec.CollectionChanged()(func() error { return errBoom })
	var ie *InvocationError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, int64(1), rec.sends.Load())
}

func TestReactors_Replace(t *testing.T) {
	exec := NewExecutor()

	var calls int
	custom := func(action Action) error {
		calls++
		return action()
	}

	require.NoError(t, exec.SetPropertyChanged(custom))
	require.NoError(t, exec.SetCollectionChanged(custom))

	_ = exec.PropertyChanged()(func() error { return nil })
	_ = exec.CollectionChanged()(func() error { return nil })
	assert.Equal(t, 2, calls)
}

func TestReactors_RejectNil(t *testing.T) {
	exec := NewExecutor()

	assert.ErrorIs(t, exec.SetPropertyChanged(nil), ErrNilReactor)
	assert.ErrorIs(t, exec.SetCollectionChanged(nil), ErrNilReactor)
	assert.NotNil(t, exec.PropertyChanged())
	assert.NotNil(t, exec.CollectionChanged())
}
