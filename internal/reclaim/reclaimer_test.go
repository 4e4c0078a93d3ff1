package reclaim

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gokando-wam/wamcore/pkg/wam"
)

func newTestDB(t *testing.T, name string) (*wam.ClauseDB, wam.Functor) {
	t.Helper()
	atoms := wam.NewAtomTable()
	db := wam.NewClauseDB(atoms)
	idx := atoms.Intern(name)
	key := wam.Functor{Name: idx, Arity: 1}
	_, err := db.DefinePredicate(key, wam.ModeUnprofiled)
	require.NoError(t, err)
	return db, key
}

func TestReclaimerSweepNowDrainsBin(t *testing.T) {
	db, key := newTestDB(t, "counter")
	d, ok := db.Lookup(key)
	require.True(t, ok)
	db.Abolish(d)
	require.Equal(t, 1, db.BinSize())

	pool := NewPool(1)
	defer pool.Shutdown()
	r := NewReclaimer(db, pool, time.Hour) // ticker never fires in this test

	require.NoError(t, r.SweepNow(context.Background()))

	require.Eventually(t, func() bool {
		return db.BinSize() == 0
	}, time.Second, 5*time.Millisecond)

	count, acc, _ := r.Counters().Snapshot()
	require.Equal(t, uint64(1), count)
	require.Equal(t, uint64(1), acc)
}

func TestReclaimerStartSweepsOnATicker(t *testing.T) {
	db, key := newTestDB(t, "ticking")
	d, ok := db.Lookup(key)
	require.True(t, ok)
	db.Abolish(d)

	pool := NewPool(1)
	defer pool.Shutdown()
	r := NewReclaimer(db, pool, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	r.Start(ctx)
	defer r.Stop()

	require.Eventually(t, func() bool {
		return db.BinSize() == 0
	}, time.Second, 5*time.Millisecond)

	cancel()
}
