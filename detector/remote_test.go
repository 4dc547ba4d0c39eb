package detector

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
	"github.com/xaionaro-go/avinpaint/frame"
	"github.com/xaionaro-go/avinpaint/mask"
	"github.com/xaionaro-go/avinpaint/modelworker"
)

func newRemote(
	t *testing.T,
	detect modelworker.HandlerFunc,
) *modelworker.Worker {
	ctx, cancelFn := context.WithCancel(context.Background())
	client, server := net.Pipe()
	go modelworker.Serve(ctx, server, map[string]modelworker.HandlerFunc{
		modelworker.MethodDetect: detect,
	})
	w := modelworker.New(ctx, "detector", client)
	t.Cleanup(func() {
		w.Close(context.Background())
		server.Close()
		cancelFn()
	})
	return w
}

func TestRemoteDetect(t *testing.T) {
	ctx := context.Background()
	var received DetectParams
	w := newRemote(t, func(ctx context.Context, raw msgpack.RawMessage) (any, error) {
		if err := msgpack.Unmarshal(raw, &received); err != nil {
			return nil, err
		}
		return DetectResult{Detections: []mask.DetectionBox{
			{Region: mask.Region{X1: 1, Y1: 2, X2: 10, Y2: 20}, Label: "watermark", Confidence: 0.9},
			{Region: mask.Region{X1: 0, Y1: 0, X2: 5, Y2: 5}, Label: "person", Confidence: 0.95},
			{Region: mask.Region{X1: 3, Y1: 3, X2: 4, Y2: 4}, Label: "watermark", Confidence: 0.1},
		}}, nil
	})

	f := frame.Solid(32, 24, 1, 2, 3)
	boxes, err := NewRemote(w, 0.5, "watermark").Detect(ctx, f)
	require.NoError(t, err)
	require.Equal(t, 32, received.Width)
	require.Equal(t, 24, received.Height)
	require.Equal(t, 3, received.Channels)
	require.Equal(t, f.Pix, received.Image)

	require.Len(t, boxes, 1)
	require.Equal(t, mask.Region{X1: 1, Y1: 2, X2: 10, Y2: 20}, boxes[0].Region)
	require.Equal(t, "watermark", boxes[0].Label)
}

func TestRemoteDetectFailure(t *testing.T) {
	w := newRemote(t, func(ctx context.Context, raw msgpack.RawMessage) (any, error) {
		return nil, errors.New("model crashed")
	})

	_, err := NewRemote(w, 0).Detect(context.Background(), frame.Solid(4, 4, 0, 0, 0))
	var remoteErr modelworker.ErrRemote
	require.ErrorAs(t, err, &remoteErr)
}

func TestFilter(t *testing.T) {
	boxes := []mask.DetectionBox{
		{Label: "a", Confidence: 0.2},
		{Label: "b", Confidence: 0.8},
		{Label: "a", Confidence: 0.7},
	}
	require.Len(t, Filter(boxes, 0, nil), 3)
	require.Len(t, Filter(boxes, 0.5, nil), 2)
	require.Equal(t, []mask.DetectionBox{{Label: "a", Confidence: 0.7}}, Filter(boxes, 0.5, []string{"a"}))
	require.Len(t, boxes, 3)
}
