// Package framesource decodes a video held in memory into an ordered
// sequence of packed BGR frames.
package framesource

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/asticode/go-astiav"
	"github.com/asticode/go-astikit"
	"github.com/dustin/go-humanize"
	"github.com/xaionaro-go/avinpaint/frame"
	"github.com/xaionaro-go/avinpaint/logger"
	"github.com/xaionaro-go/avinpaint/scaler"
	"github.com/xaionaro-go/avinpaint/types"
	typesastiav "github.com/xaionaro-go/avinpaint/types/astiav"
	"github.com/xaionaro-go/typing"
)

// avTimeBase is AV_TIME_BASE: container durations are in microseconds.
const avTimeBase = 1000000

// ProgressFunc receives the fraction of the decoding done so far.
type ProgressFunc func(fraction float64)

type Decoder struct {
	// TempDir is where the input is staged; empty means os.TempDir().
	TempDir string

	// Options are passed to the decoder (e.g. "threads").
	Options types.DictionaryItems
}

func NewDecoder(tempDir string, opts ...types.DictionaryItem) *Decoder {
	return &Decoder{
		TempDir: tempDir,
		Options: opts,
	}
}

func (d *Decoder) String() string {
	return "Decoder"
}

// Decode returns every frame of the first video stream in presentation
// order. If maxDuration is set, longer videos are rejected without
// returning any frames.
func (d *Decoder) Decode(
	ctx context.Context,
	data []byte,
	maxDuration typing.Optional[time.Duration],
) ([]frame.Frame, error) {
	return d.DecodeWithProgress(ctx, data, maxDuration, nil)
}

func (d *Decoder) DecodeWithProgress(
	ctx context.Context,
	data []byte,
	maxDuration typing.Optional[time.Duration],
	onProgress ProgressFunc,
) (_ret []frame.Frame, _err error) {
	logger.Debugf(ctx, "Decode(ctx, %s, %v)", humanize.Bytes(uint64(len(data))), maxDuration)
	defer func() {
		logger.Debugf(ctx, "/Decode(ctx, %s): %d frames, %v", humanize.Bytes(uint64(len(data))), len(_ret), _err)
	}()
	if len(data) == 0 {
		return nil, ErrEmptyStream{}
	}

	path, err := d.stage(ctx, data)
	if err != nil {
		return nil, err
	}
	defer removeFile(ctx, path)

	in, err := openInput(ctx, path, d.Options)
	if err != nil {
		return nil, err
	}
	defer in.Close()

	info := in.Info()
	logger.Debugf(ctx, "input: %s", info)
	if err := checkDuration(info.Duration, maxDuration); err != nil {
		return nil, err
	}

	frames, err := in.decodeAll(ctx, info.FrameCount, onProgress)
	if err != nil {
		return nil, err
	}
	if len(frames) == 0 {
		return nil, ErrEmptyStream{}
	}
	if !info.Duration.IsSet() && info.FrameRate.IsPositive() {
		estimated := time.Duration(float64(len(frames)) / info.FrameRate.Float64() * float64(time.Second))
		if err := checkDuration(typing.Opt(estimated), maxDuration); err != nil {
			return nil, err
		}
	}
	return frames, nil
}

// Probe returns the stream description without decoding the pictures.
func (d *Decoder) Probe(
	ctx context.Context,
	data []byte,
) (_ Info, _err error) {
	logger.Debugf(ctx, "Probe(ctx, %s)", humanize.Bytes(uint64(len(data))))
	defer func() { logger.Debugf(ctx, "/Probe: %v", _err) }()
	if len(data) == 0 {
		return Info{}, ErrEmptyStream{}
	}
	path, err := d.stage(ctx, data)
	if err != nil {
		return Info{}, err
	}
	defer removeFile(ctx, path)

	in, err := openInput(ctx, path, d.Options)
	if err != nil {
		return Info{}, err
	}
	defer in.Close()
	return in.Info(), nil
}

func checkDuration(
	duration typing.Optional[time.Duration],
	limit typing.Optional[time.Duration],
) error {
	if !limit.IsSet() || !duration.IsSet() {
		return nil
	}
	if duration.Get() > limit.Get() {
		return ErrDurationExceeded{Duration: duration.Get(), Limit: limit.Get()}
	}
	return nil
}

func (d *Decoder) stage(ctx context.Context, data []byte) (string, error) {
	f, err := os.CreateTemp(d.TempDir, "avinpaint-source-*")
	if err != nil {
		return "", fmt.Errorf("unable to create a temporary file: %w", err)
	}
	path := f.Name()
	_, err = f.Write(data)
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		removeFile(ctx, path)
		return "", fmt.Errorf("unable to write the input into '%s': %w", path, err)
	}
	logger.Tracef(ctx, "staged the input into '%s'", path)
	return path, nil
}

func removeFile(ctx context.Context, path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Errorf(ctx, "unable to remove '%s': %v", path, err)
	}
}

type input struct {
	closer        *astikit.Closer
	formatContext *astiav.FormatContext
	stream        *astiav.Stream
	codecContext  *astiav.CodecContext
}

func openInput(
	ctx context.Context,
	path string,
	opts types.DictionaryItems,
) (_ret *input, _err error) {
	in := &input{closer: astikit.NewCloser()}
	defer func() {
		if _err != nil {
			in.Close()
		}
	}()

	if in.formatContext = astiav.AllocFormatContext(); in.formatContext == nil {
		return nil, errors.New("unable to allocate a format context")
	}
	in.closer.Add(in.formatContext.Free)

	if err := in.formatContext.OpenInput(path, nil, nil); err != nil {
		return nil, ErrUnreadable{Err: fmt.Errorf("unable to open the container: %w", err)}
	}
	in.closer.Add(in.formatContext.CloseInput)

	if err := in.formatContext.FindStreamInfo(nil); err != nil {
		return nil, ErrUnreadable{Err: fmt.Errorf("unable to find the stream info: %w", err)}
	}

	for _, s := range in.formatContext.Streams() {
		if s.CodecParameters().MediaType() == astiav.MediaTypeVideo {
			in.stream = s
			break
		}
	}
	if in.stream == nil {
		return nil, ErrUnreadable{Err: errors.New("no video stream")}
	}

	codecParams := in.stream.CodecParameters()
	codec := astiav.FindDecoder(codecParams.CodecID())
	if codec == nil {
		return nil, ErrUnreadable{Err: fmt.Errorf("no decoder for codec %s", codecParams.CodecID())}
	}
	if in.codecContext = astiav.AllocCodecContext(codec); in.codecContext == nil {
		return nil, errors.New("unable to allocate a codec context")
	}
	in.closer.Add(in.codecContext.Free)

	if err := codecParams.ToCodecContext(in.codecContext); err != nil {
		return nil, ErrUnreadable{Err: fmt.Errorf("unable to configure the decoder: %w", err)}
	}
	in.codecContext.SetFramerate(in.formatContext.GuessFrameRate(in.stream, nil))

	dict := typesastiav.DictionaryItemsToAstiav(ctx, opts)
	if dict != nil {
		defer dict.Free()
	}
	if err := in.codecContext.Open(codec, dict); err != nil {
		return nil, ErrUnreadable{Err: fmt.Errorf("unable to open the decoder %s: %w", codec.Name(), err)}
	}
	in.codecContext.SetTimeBase(in.stream.TimeBase())
	return in, nil
}

func (in *input) Close() {
	if err := in.closer.Close(); err != nil {
		logger.Errorf(context.Background(), "unable to release the input: %v", err)
	}
}

func (in *input) Info() Info {
	codecParams := in.stream.CodecParameters()
	info := Info{
		Resolution: types.Resolution{
			Width:  uint32(codecParams.Width()),
			Height: uint32(codecParams.Height()),
		},
		FrameRate:  typesastiav.RationalFromAstiav(in.formatContext.GuessFrameRate(in.stream, nil)),
		FrameCount: in.stream.NbFrames(),
		Codec:      codecParams.CodecID().Name(),
	}
	if inputFormat := in.formatContext.InputFormat(); inputFormat != nil {
		info.Format = inputFormat.Name()
	}
	timeBase := typesastiav.RationalFromAstiav(in.stream.TimeBase())
	switch {
	case in.stream.Duration() > 0 && timeBase.IsPositive():
		info.Duration = typing.Opt(time.Duration(float64(in.stream.Duration()) * timeBase.Float64() * float64(time.Second)))
	case in.formatContext.Duration() > 0:
		info.Duration = typing.Opt(time.Duration(in.formatContext.Duration()) * time.Second / avTimeBase)
	case info.FrameCount > 0 && info.FrameRate.IsPositive():
		info.Duration = typing.Opt(time.Duration(float64(info.FrameCount) / info.FrameRate.Float64() * float64(time.Second)))
	}
	return info
}

func (in *input) decodeAll(
	ctx context.Context,
	expectedFrames int64,
	onProgress ProgressFunc,
) ([]frame.Frame, error) {
	pkt := astiav.AllocPacket()
	defer pkt.Free()
	decFrame := astiav.AllocFrame()
	defer decFrame.Free()
	converter := scaler.NewConverter()
	defer converter.Close(ctx)

	var frames []frame.Frame
	receive := func() error {
		for {
			err := in.codecContext.ReceiveFrame(decFrame)
			switch {
			case err == nil:
			case errors.Is(err, astiav.ErrEof), errors.Is(err, astiav.ErrEagain):
				return nil
			default:
				return ErrUnreadable{Err: fmt.Errorf("unable to decode frame #%d: %w", len(frames), err)}
			}
			f, err := converter.ToFrame(ctx, decFrame, frame.ChannelModeColor)
			decFrame.Unref()
			if err != nil {
				return fmt.Errorf("unable to convert frame #%d: %w", len(frames), err)
			}
			frames = append(frames, f)
			if onProgress != nil && expectedFrames > 0 {
				onProgress(min(1, float64(len(frames))/float64(expectedFrames)))
			}
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := in.formatContext.ReadFrame(pkt); err != nil {
			if errors.Is(err, astiav.ErrEof) {
				break
			}
			return nil, ErrUnreadable{Err: fmt.Errorf("unable to read a packet: %w", err)}
		}
		if pkt.StreamIndex() != in.stream.Index() {
			pkt.Unref()
			continue
		}
		err := in.codecContext.SendPacket(pkt)
		pkt.Unref()
		if err != nil && !errors.Is(err, astiav.ErrEagain) {
			return nil, ErrUnreadable{Err: fmt.Errorf("unable to send a packet to the decoder: %w", err)}
		}
		if err := receive(); err != nil {
			return nil, err
		}
	}

	// flush
	if err := in.codecContext.SendPacket(nil); err != nil && !errors.Is(err, astiav.ErrEof) {
		return nil, ErrUnreadable{Err: fmt.Errorf("unable to flush the decoder: %w", err)}
	}
	if err := receive(); err != nil {
		return nil, err
	}
	if onProgress != nil {
		onProgress(1)
	}
	return frames, nil
}
