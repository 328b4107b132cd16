package audit

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/clpe-bridge/internal/clpe"
	"github.com/banshee-data/clpe-bridge/internal/db"
	"github.com/banshee-data/clpe-bridge/internal/eeprom"
	"github.com/banshee-data/clpe-bridge/internal/testutil"
	"github.com/banshee-data/clpe-bridge/internal/timeutil"
)

type fixture struct {
	sim    *clpe.Simulator
	client *clpe.Client[*clpe.Simulator]
	store  *db.DB
	clock  *timeutil.MockClock
	audit  *Auditor
}

func newFixture(t *testing.T, cameras ...int) *fixture {
	t.Helper()
	testutil.QuietLogs(t)

	clock := timeutil.NewMockClock(time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC))
	sim := clpe.NewSimulator(clock)
	sim.Manual = true
	mask, err := clpe.MaskOf(cameras...)
	require.NoError(t, err)
	client := clpe.NewClient(sim, clpe.WithCameras(mask))
	require.NoError(t, client.Connect(""))

	store, err := db.NewDB(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return &fixture{
		sim:    sim,
		client: client,
		store:  store,
		clock:  clock,
		audit:  New(client, store, clock),
	}
}

func TestRunOnceRecordsFirstRead(t *testing.T) {
	f := newFixture(t, 0, 2)

	res := f.audit.RunOnce(context.Background())
	assert.Equal(t, Result{Checked: 2, Recorded: 2}, res)

	got, err := f.store.LatestCalibration(2)
	require.NoError(t, err)
	assert.Equal(t, clpe.DefaultRecord(2), got.Record)
	assert.True(t, got.ReadAt.Equal(f.clock.Now()))

	_, err = f.store.LatestCalibration(1)
	assert.True(t, errors.Is(err, db.ErrNoCalibration))
}

func TestRunOnceSkipsUnchanged(t *testing.T) {
	f := newFixture(t, 1)

	f.audit.RunOnce(context.Background())
	res := f.audit.RunOnce(context.Background())
	assert.Equal(t, Result{Checked: 1}, res)

	history, err := f.store.CalibrationHistory(1, 0)
	require.NoError(t, err)
	assert.Len(t, history, 1)
	assert.Equal(t, uint64(0), f.audit.Counters().Changes)
}

func TestRunOnceRecordsChange(t *testing.T) {
	f := newFixture(t, 3)
	f.audit.RunOnce(context.Background())

	rec := clpe.DefaultRecord(3)
	rec.Fx = 1010.25
	f.sim.SetRecord(3, rec)
	f.clock.Advance(time.Minute)

	res := f.audit.RunOnce(context.Background())
	assert.Equal(t, Result{Checked: 1, Recorded: 1}, res)

	history, err := f.store.CalibrationHistory(3, 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, float32(1010.25), history[0].Record.Fx)
	assert.Equal(t, uint64(1), f.audit.Counters().Changes)
}

func TestRunOnceReadFailureIsCounted(t *testing.T) {
	f := newFixture(t, 0, 1)
	f.sim.EepromCode = -7

	res := f.audit.RunOnce(context.Background())
	assert.Equal(t, Result{Checked: 2, Failed: 2}, res)
	assert.Equal(t, uint64(2), f.audit.Counters().ReadErrors)

	f.sim.EepromCode = 0
	res = f.audit.RunOnce(context.Background())
	assert.Equal(t, Result{Checked: 2, Recorded: 2}, res)
	assert.Equal(t, uint64(2), f.audit.Counters().Runs)
}

func TestRunOnceCountsSingularIntrinsics(t *testing.T) {
	f := newFixture(t, 2)
	rec := clpe.DefaultRecord(2)
	rec.Fx = 0
	f.sim.SetRecord(2, rec)

	res := f.audit.RunOnce(context.Background())
	assert.Equal(t, Result{Checked: 1, Recorded: 1}, res)
	assert.Equal(t, uint64(1), f.audit.Counters().SingularIntrinsics)

	got, err := f.store.LatestCalibration(2)
	require.NoError(t, err)
	assert.Equal(t, float32(0), got.Record.Fx)

	f.sim.SetRecord(2, clpe.DefaultRecord(2))
	f.audit.RunOnce(context.Background())
	assert.Equal(t, uint64(1), f.audit.Counters().SingularIntrinsics)
}

type failingStore struct{}

func (failingStore) RecordCalibration(string, int, eeprom.Record, time.Time) (int64, error) {
	return 0, errors.New("disk full")
}

func (failingStore) LatestCalibration(int) (db.CalibrationRead, error) {
	return db.CalibrationRead{}, db.ErrNoCalibration
}

func TestRunOnceStoreFailureIsCounted(t *testing.T) {
	f := newFixture(t, 0)
	a := New(f.client, failingStore{}, f.clock)

	res := a.RunOnce(context.Background())
	assert.Equal(t, Result{Checked: 1, Failed: 1}, res)
	assert.Equal(t, uint64(1), a.Counters().StoreErrors)
}

func TestRunOnceCancelled(t *testing.T) {
	f := newFixture(t, 0, 1, 2, 3)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := f.audit.RunOnce(ctx)
	assert.Equal(t, Result{}, res)
}

func TestRunTicks(t *testing.T) {
	f := newFixture(t, 0)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.audit.Run(ctx, time.Minute)
		close(done)
	}()

	require.Eventually(t, func() bool { return f.clock.TickerCount() == 1 }, time.Second, time.Millisecond)

	f.clock.Advance(time.Minute)
	require.Eventually(t, func() bool {
		_, err := f.store.LatestCalibration(0)
		return err == nil
	}, time.Second, time.Millisecond)

	rec := clpe.DefaultRecord(0)
	rec.Cy = 541
	f.sim.SetRecord(0, rec)
	f.clock.Advance(time.Minute)
	require.Eventually(t, func() bool { return f.audit.Counters().Changes == 1 }, time.Second, time.Millisecond)

	cancel()
	<-done

	history, err := f.store.CalibrationHistory(0, 0)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestRunDisabled(t *testing.T) {
	f := newFixture(t, 0)
	f.audit.Run(context.Background(), 0)
	assert.Equal(t, 0, f.clock.TickerCount())
}
