package timerx_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/srg/btcomm/internal/timerx"
	"github.com/stretchr/testify/require"
)

func TestTimerFires(t *testing.T) {
	var fired atomic.Bool
	tm := timerx.New(20*time.Millisecond, func() { fired.Store(true) })
	tm.Start()

	require.Eventually(t, fired.Load, time.Second, time.Millisecond)
}

func TestCancelledTimerIsNoOp(t *testing.T) {
	var fired atomic.Bool
	tm := timerx.New(20*time.Millisecond, func() { fired.Store(true) })
	tm.Start()
	tm.Cancel()

	time.Sleep(60 * time.Millisecond)
	require.False(t, fired.Load())
}

func TestResetRestartsCountdown(t *testing.T) {
	var fireCount atomic.Int32
	tm := timerx.New(30*time.Millisecond, func() { fireCount.Add(1) })
	tm.Start()
	time.Sleep(15 * time.Millisecond)
	tm.Reset()
	time.Sleep(15 * time.Millisecond)
	require.Equal(t, int32(0), fireCount.Load())

	require.Eventually(t, func() bool { return fireCount.Load() == 1 }, time.Second, time.Millisecond)
}

func TestSplitBytesChunking(t *testing.T) {
	data := make([]byte, 501)
	for i := range data {
		data[i] = byte(i)
	}
	chunks := timerx.SplitBytes(data, 184)
	require.Len(t, chunks, 3)
	require.Len(t, chunks[0], 184)
	require.Len(t, chunks[1], 184)
	require.Len(t, chunks[2], 133)
}

func TestSplitBytesEmptyYieldsOneEmptyChunk(t *testing.T) {
	chunks := timerx.SplitBytes(nil, 184)
	require.Len(t, chunks, 1)
	require.Empty(t, chunks[0])
}

func TestTruncateUTF8NeverSplitsRune(t *testing.T) {
	s := "héllo" // 'é' is 2 bytes in UTF-8
	got := timerx.TruncateUTF8(s, 2)
	require.LessOrEqual(t, len(got), 2)
	require.True(t, len(got) == 1 || len(got) == 2)
}
