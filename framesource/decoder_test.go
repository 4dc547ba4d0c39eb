package framesource

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/avinpaint/frame"
	"github.com/xaionaro-go/avinpaint/framesink"
	"github.com/xaionaro-go/avinpaint/types"
	"github.com/xaionaro-go/typing"
)

func requireEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func encodeSolid(t *testing.T, count int, rate types.Rational) []byte {
	frames := make([]frame.Frame, count)
	for i := range frames {
		frames[i] = frame.Solid(32, 32, 10, 20, uint8(i))
	}
	data, err := framesink.NewEncoder(t.TempDir(), "", 0).Encode(context.Background(), frames, rate, frame.ChannelModeColor)
	require.NoError(t, err)
	return data
}

func TestDecodeEmptyInput(t *testing.T) {
	tempDir := t.TempDir()
	d := NewDecoder(tempDir)
	for _, data := range [][]byte{nil, {}} {
		_, err := d.Decode(context.Background(), data, typing.Optional[time.Duration]{})
		require.ErrorAs(t, err, &ErrEmptyStream{})
	}
	requireEmptyDir(t, tempDir)
}

func TestDecodeGarbage(t *testing.T) {
	tempDir := t.TempDir()
	_, err := NewDecoder(tempDir).Decode(context.Background(), []byte("definitely not a video container"), typing.Optional[time.Duration]{})
	var unreadable ErrUnreadable
	require.ErrorAs(t, err, &unreadable)
	requireEmptyDir(t, tempDir)
}

func TestDecodeDurationExceeded(t *testing.T) {
	// 10 frames at 2 fps last 5s
	data := encodeSolid(t, 10, types.Rational{Num: 2, Den: 1})
	tempDir := t.TempDir()
	d := NewDecoder(tempDir)

	_, err := d.Decode(context.Background(), data, typing.Opt(2*time.Second))
	var exceeded ErrDurationExceeded
	require.ErrorAs(t, err, &exceeded)
	require.Equal(t, 2*time.Second, exceeded.Limit)
	require.Greater(t, exceeded.Duration, 4*time.Second)
	requireEmptyDir(t, tempDir)

	frames, err := d.Decode(context.Background(), data, typing.Opt(30*time.Second))
	require.NoError(t, err)
	require.Len(t, frames, 10)
}

func TestDecodeOrderAndProgress(t *testing.T) {
	data := encodeSolid(t, 8, types.Rational{Num: 25, Den: 1})
	var reports []float64
	frames, err := NewDecoder(t.TempDir()).DecodeWithProgress(
		context.Background(), data, typing.Optional[time.Duration]{},
		func(fraction float64) { reports = append(reports, fraction) },
	)
	require.NoError(t, err)
	require.Len(t, frames, 8)
	require.NotEmpty(t, reports)
	require.Equal(t, 1.0, reports[len(reports)-1])
	for i := 1; i < len(reports); i++ {
		require.GreaterOrEqual(t, reports[i], reports[i-1])
	}
}

func TestDecodeCancelled(t *testing.T) {
	data := encodeSolid(t, 4, types.Rational{Num: 25, Den: 1})
	ctx, cancelFn := context.WithCancel(context.Background())
	cancelFn()
	tempDir := t.TempDir()
	_, err := NewDecoder(tempDir).Decode(ctx, data, typing.Optional[time.Duration]{})
	require.ErrorIs(t, err, context.Canceled)
	requireEmptyDir(t, tempDir)
}

func TestCheckDuration(t *testing.T) {
	unset := typing.Optional[time.Duration]{}
	require.NoError(t, checkDuration(unset, typing.Opt(time.Second)))
	require.NoError(t, checkDuration(typing.Opt(time.Hour), unset))
	require.NoError(t, checkDuration(typing.Opt(time.Second), typing.Opt(time.Second)))
	require.Error(t, checkDuration(typing.Opt(time.Second+1), typing.Opt(time.Second)))
}
