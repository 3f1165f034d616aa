package graph

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore records lifecycle calls in order and can fail selectively.
type fakeStore struct {
	calls    []string
	buildErr error
	clearErr error
}

func (f *fakeStore) Search(ctx context.Context, query string) ([]RawFact, error) {
	f.calls = append(f.calls, "search")
	return nil, nil
}

func (f *fakeStore) BuildIndices(ctx context.Context) error {
	f.calls = append(f.calls, "build")
	return f.buildErr
}

func (f *fakeStore) ClearData(ctx context.Context) error {
	f.calls = append(f.calls, "clear")
	return f.clearErr
}

func (f *fakeStore) Close(ctx context.Context) error {
	f.calls = append(f.calls, "close")
	return nil
}

func TestPrepareWithoutClear(t *testing.T) {
	store := &fakeStore{}
	require.NoError(t, Prepare(context.Background(), store, false))
	assert.Equal(t, []string{"build"}, store.calls)
}

func TestPrepareClearForcesRebuild(t *testing.T) {
	store := &fakeStore{}
	require.NoError(t, Prepare(context.Background(), store, true))

	// A successful clear is always followed by exactly one more index build.
	assert.Equal(t, []string{"build", "clear", "build"}, store.calls)
}

func TestPrepareBuildFailureIsNonFatalWithoutClear(t *testing.T) {
	store := &fakeStore{buildErr: errors.New("index service unavailable")}
	require.NoError(t, Prepare(context.Background(), store, false))
	assert.Equal(t, []string{"build"}, store.calls)
}

func TestPrepareBuildFailureIsFatalWithClear(t *testing.T) {
	store := &fakeStore{buildErr: errors.New("index service unavailable")}
	err := Prepare(context.Background(), store, true)
	require.Error(t, err)
	assert.Equal(t, []string{"build"}, store.calls)
}

func TestPrepareClearFailure(t *testing.T) {
	store := &fakeStore{clearErr: errors.New("denied")}
	err := Prepare(context.Background(), store, true)
	require.Error(t, err)
	assert.Equal(t, []string{"build", "clear"}, store.calls)
}

func TestPrepareRebuildFailureAfterClear(t *testing.T) {
	// First build succeeds, rebuild after clear fails.
	calls := 0
	wrapped := &hookStore{fakeStore: &fakeStore{}, onBuild: func() error {
		calls++
		if calls == 2 {
			return errors.New("rebuild failed")
		}
		return nil
	}}

	err := Prepare(context.Background(), wrapped, true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rebuild")
}

// hookStore lets a test vary BuildIndices behavior per call.
type hookStore struct {
	*fakeStore
	onBuild func() error
}

func (h *hookStore) BuildIndices(ctx context.Context) error {
	h.calls = append(h.calls, "build")
	return h.onBuild()
}
