package clpe

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/clpe-bridge/internal/eeprom"
	"github.com/banshee-data/clpe-bridge/internal/frame"
	"github.com/banshee-data/clpe-bridge/internal/timeutil"
)

func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestSimulatorClockDrivenDelivery(t *testing.T) {
	clock := timeutil.NewMockClock(epoch)
	sim := NewSimulator(clock)
	sim.FrameBytes = testFrameBytes

	frames := make(chan frame.Timeval, 8)
	cb := func(instance uint32, buf []byte, ts frame.Timeval) int {
		frames <- ts
		return 0
	}
	require.Equal(t, 0, sim.StartStream(cb, 20, 1<<0))
	waitFor(t, func() bool { return clock.TickerCount() == 1 }, "delivery goroutine")

	clock.Advance(50 * time.Millisecond)
	select {
	case ts := <-frames:
		assert.Equal(t, frame.TimevalFromTime(epoch.Add(50*time.Millisecond)), ts)
	case <-time.After(2 * time.Second):
		t.Fatal("no frame after one 20 fps interval")
	}

	require.Equal(t, 0, sim.SetFrameRate(25))
	waitFor(t, func() bool { return clock.TickerCount() == 2 }, "ticker reset")

	clock.Advance(40 * time.Millisecond)
	select {
	case <-frames:
	case <-time.After(2 * time.Second):
		t.Fatal("no frame after one 25 fps interval")
	}

	require.Equal(t, 0, sim.StopStream())
	assert.Equal(t, uint32(2), sim.Sequence(0))
	assert.Equal(t, SIM_NOT_STREAMING, sim.StopStream())
}

func TestSimulatorRingReuse(t *testing.T) {
	sim := newTestSimulator()

	first, _, code := sim.ReadFrameOnce(1)
	require.Equal(t, 0, code)
	for i := 1; i < frame.SDKBufferDepth; i++ {
		_, _, code = sim.ReadFrameOnce(1)
		require.Equal(t, 0, code)
	}
	_, seq, _ := FrameHeader(first)
	assert.Equal(t, uint32(0), seq, "buffer valid for the full ring depth")

	_, _, code = sim.ReadFrameOnce(1)
	require.Equal(t, 0, code)
	_, seq, _ = FrameHeader(first)
	assert.Equal(t, uint32(frame.SDKBufferDepth), seq, "slot is reused after the ring wraps")
}

func TestSimulatorEeprom(t *testing.T) {
	sim := newTestSimulator()

	out := make([]byte, eeprom.RecordSize)
	require.Equal(t, 0, sim.ReadEeprom(3, out))
	rec, err := eeprom.Decode(out)
	require.NoError(t, err)
	assert.Equal(t, DefaultRecord(3), rec)
	assert.Equal(t, "2021-06-01", rec.ProductionDateString())

	assert.Equal(t, SIM_BUFFER_TOO_SMALL, sim.ReadEeprom(0, out[:10]))
	assert.Equal(t, SIM_INVALID_CAMERA, sim.ReadEeprom(4, out))
}

func TestSimulatorRejectsDoubleStart(t *testing.T) {
	sim := newTestSimulator()
	require.Equal(t, 0, sim.StartStream(noopCallback, 30, AllCameras))
	assert.Equal(t, SIM_ALREADY_STREAMING, sim.StartStream(noopCallback, 30, AllCameras))
	assert.Equal(t, 0, sim.StopStream())
	assert.Equal(t, SIM_NOT_STREAMING, sim.SetFrameRate(20))
}
