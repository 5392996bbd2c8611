package assetsvc_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkrupp/feed/internal/domain"

	. "github.com/mkrupp/feed/internal/svc/assetsvc"
)

var errLookup = errors.New("lookup failed")

type referenceSet map[domain.AssetRef]bool

func (s referenceSet) ImageReferenced(_ context.Context, ref domain.AssetRef) (bool, error) {
	return s[ref], nil
}

type failingReferences struct{}

func (failingReferences) ImageReferenced(context.Context, domain.AssetRef) (bool, error) {
	return false, errLookup
}

func TestSweeper_Sweep(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	blobs := newMemoryBlobRepository()
	store := NewStore(blobs, testConfig())

	referenced, err := store.Save(ctx, pngData, "image/png")
	require.NoError(t, err)

	orphan, err := store.Save(ctx, pngData, "image/png")
	require.NoError(t, err)

	blobs.now = blobs.now.Add(10 * time.Minute)

	fresh, err := store.Save(ctx, pngData, "image/png")
	require.NoError(t, err)

	// Foreign objects outside the asset ref format are left alone.
	require.NoError(t, blobs.Store(ctx, domain.NewBlob("images/readme.txt", []byte("x"))))

	now := blobs.now.Add(10 * time.Minute)
	sweeper := NewSweeper(blobs, referenceSet{referenced: true}, testConfig()).
		WithClock(func() time.Time { return now })

	deleted, err := sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	assert.True(t, blobs.has(referenced))
	assert.False(t, blobs.has(orphan))
	assert.True(t, blobs.has(fresh))
	assert.True(t, blobs.has("images/readme.txt"))

	now = now.Add(time.Hour)

	deleted, err = sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)
	assert.False(t, blobs.has(fresh))
}

func TestSweeper_SweepErrors(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	blobs := newMemoryBlobRepository()
	store := NewStore(blobs, testConfig())

	ref, err := store.Save(ctx, pngData, "image/png")
	require.NoError(t, err)

	later := func() time.Time { return blobs.now.Add(time.Hour) }

	deleted, err := NewSweeper(blobs, failingReferences{}, testConfig()).WithClock(later).Sweep(ctx)
	require.ErrorIs(t, err, errLookup)
	assert.Zero(t, deleted)
	assert.True(t, blobs.has(ref))

	blobs.deleteErr = errDeleteFailed

	deleted, err = NewSweeper(blobs, referenceSet{}, testConfig()).WithClock(later).Sweep(ctx)
	require.ErrorIs(t, err, errDeleteFailed)
	assert.Zero(t, deleted)
}

func TestSweeper_Run(t *testing.T) {
	t.Parallel()

	blobs := newMemoryBlobRepository()

	cfg := testConfig()
	cfg.SweepSchedule = ""

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, NewSweeper(blobs, referenceSet{}, cfg).Run(ctx))

	cfg.SweepSchedule = "not a schedule"
	require.Error(t, NewSweeper(blobs, referenceSet{}, cfg).Run(ctx))

	cfg.SweepSchedule = "@every 1h"
	done := make(chan error, 1)

	go func() {
		done <- NewSweeper(blobs, referenceSet{}, cfg).Run(ctx)
	}()

	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("sweeper did not stop")
	}
}
