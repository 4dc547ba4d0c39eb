// Package framesink encodes a frame sequence into an MP4 video held in
// memory.
package framesink

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/asticode/go-astiav"
	"github.com/asticode/go-astikit"
	"github.com/dustin/go-humanize"
	"github.com/xaionaro-go/avinpaint/frame"
	"github.com/xaionaro-go/avinpaint/logger"
	"github.com/xaionaro-go/avinpaint/scaler"
	"github.com/xaionaro-go/avinpaint/types"
	typesastiav "github.com/xaionaro-go/avinpaint/types/astiav"
)

const (
	DefaultCodecName = "mpeg4"
	ContainerFormat  = "mp4"
)

// ProgressFunc receives the fraction of the encoding done so far.
type ProgressFunc func(fraction float64)

type Encoder struct {
	// TempDir is where the output is assembled; empty means os.TempDir().
	TempDir string

	// CodecName is a libav encoder name; empty means DefaultCodecName.
	CodecName string

	// BitRate in bits per second; zero leaves the encoder default.
	BitRate uint64

	// Options are passed to the encoder.
	Options types.DictionaryItems
}

func NewEncoder(tempDir, codecName string, bitRate uint64, opts ...types.DictionaryItem) *Encoder {
	return &Encoder{
		TempDir:   tempDir,
		CodecName: codecName,
		BitRate:   bitRate,
		Options:   opts,
	}
}

func (e *Encoder) String() string {
	return fmt.Sprintf("Encoder(%s)", e.codecName())
}

func (e *Encoder) codecName() string {
	if e.CodecName == "" {
		return DefaultCodecName
	}
	return e.CodecName
}

// Encode writes frames (all of the same size and of the given channel
// mode) at frameRate, with frame i presented at i/frameRate.
func (e *Encoder) Encode(
	ctx context.Context,
	frames []frame.Frame,
	frameRate types.Rational,
	mode frame.ChannelMode,
) ([]byte, error) {
	return e.EncodeWithProgress(ctx, frames, frameRate, mode, nil)
}

func (e *Encoder) EncodeWithProgress(
	ctx context.Context,
	frames []frame.Frame,
	frameRate types.Rational,
	mode frame.ChannelMode,
	onProgress ProgressFunc,
) (_ret []byte, _err error) {
	logger.Debugf(ctx, "Encode(ctx, %d frames, %s, %s)", len(frames), frameRate, mode)
	defer func() {
		logger.Debugf(ctx, "/Encode(ctx, %d frames): %s, %v", len(frames), humanize.Bytes(uint64(len(_ret))), _err)
	}()
	if err := validate(frames, frameRate, mode); err != nil {
		return nil, err
	}

	tempFile, err := os.CreateTemp(e.TempDir, "avinpaint-output-*.mp4")
	if err != nil {
		return nil, ErrWriterInitFailed{Err: fmt.Errorf("unable to create a temporary file: %w", err)}
	}
	path := tempFile.Name()
	tempFile.Close()
	defer func() {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.Errorf(ctx, "unable to remove '%s': %v", path, err)
		}
	}()

	out, err := e.openOutput(ctx, path, frames[0].Resolution(), frameRate)
	if err != nil {
		return nil, err
	}
	defer out.Close(ctx)

	converter := scaler.NewConverter()
	defer converter.Close(ctx)
	for idx, f := range frames {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		avFrame, err := converter.FromFrame(ctx, f, out.codecContext.PixelFormat())
		if err != nil {
			return nil, fmt.Errorf("unable to convert frame #%d: %w", idx, err)
		}
		avFrame.SetPts(int64(idx))
		err = out.encode(avFrame)
		avFrame.Free()
		if err != nil {
			return nil, fmt.Errorf("unable to encode frame #%d: %w", idx, err)
		}
		if onProgress != nil {
			onProgress(float64(idx+1) / float64(len(frames)))
		}
	}
	if err := out.encode(nil); err != nil {
		return nil, fmt.Errorf("unable to flush the encoder: %w", err)
	}
	if err := out.formatContext.WriteTrailer(); err != nil {
		return nil, fmt.Errorf("unable to write the trailer: %w", err)
	}
	if err := out.Close(ctx); err != nil {
		return nil, fmt.Errorf("unable to finalize '%s': %w", path, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read back '%s': %w", path, err)
	}
	return data, nil
}

func validate(
	frames []frame.Frame,
	frameRate types.Rational,
	mode frame.ChannelMode,
) error {
	if len(frames) == 0 {
		return ErrEmptySequence{}
	}
	if !frameRate.IsPositive() {
		return ErrInvalidFrameRate{FrameRate: frameRate}
	}
	first := frames[0]
	for idx, f := range frames {
		if f.Width != first.Width || f.Height != first.Height {
			return ErrDimensionMismatch{Index: idx, Expected: first.Resolution(), Actual: f.Resolution()}
		}
		if f.Channels != mode.Channels() {
			return ErrChannelModeMismatch{Index: idx, Mode: mode, Channels: f.Channels}
		}
		if err := f.Validate(); err != nil {
			return fmt.Errorf("frame #%d is malformed: %w", idx, err)
		}
	}
	return nil
}

type output struct {
	closer        *astikit.Closer
	closed        bool
	formatContext *astiav.FormatContext
	stream        *astiav.Stream
	codecContext  *astiav.CodecContext
	packet        *astiav.Packet
}

func (e *Encoder) openOutput(
	ctx context.Context,
	path string,
	resolution types.Resolution,
	frameRate types.Rational,
) (_ret *output, _err error) {
	out := &output{closer: astikit.NewCloser()}
	defer func() {
		if _err != nil {
			out.Close(ctx)
		}
	}()

	formatContext, err := astiav.AllocOutputFormatContext(nil, ContainerFormat, path)
	if err != nil {
		return nil, ErrWriterInitFailed{Err: fmt.Errorf("unable to allocate the output format context: %w", err)}
	}
	if formatContext == nil {
		return nil, ErrWriterInitFailed{Err: errors.New("the output format context is nil")}
	}
	out.formatContext = formatContext
	out.closer.Add(formatContext.Free)

	codec := astiav.FindEncoderByName(e.codecName())
	if codec == nil {
		return nil, ErrWriterInitFailed{Err: fmt.Errorf("encoder '%s' not found", e.codecName())}
	}
	if out.codecContext = astiav.AllocCodecContext(codec); out.codecContext == nil {
		return nil, ErrWriterInitFailed{Err: errors.New("unable to allocate a codec context")}
	}
	out.closer.Add(out.codecContext.Free)

	pixFmt := astiav.PixelFormatYuv420P
	if supported := codec.PixelFormats(); len(supported) > 0 && !hasPixelFormat(supported, pixFmt) {
		pixFmt = supported[0]
	}
	timeBase := typesastiav.RationalToAstiav(frameRate.Reverse())
	out.codecContext.SetWidth(int(resolution.Width))
	out.codecContext.SetHeight(int(resolution.Height))
	out.codecContext.SetPixelFormat(pixFmt)
	out.codecContext.SetTimeBase(timeBase)
	out.codecContext.SetFramerate(typesastiav.RationalToAstiav(frameRate))
	if e.BitRate > 0 {
		out.codecContext.SetBitRate(int64(e.BitRate))
	}
	if formatContext.OutputFormat().Flags().Has(astiav.IOFormatFlagGlobalheader) {
		out.codecContext.SetFlags(out.codecContext.Flags().Add(astiav.CodecContextFlagGlobalHeader))
	}

	dict := typesastiav.DictionaryItemsToAstiav(ctx, e.Options)
	if dict != nil {
		defer dict.Free()
	}
	if err := out.codecContext.Open(codec, dict); err != nil {
		return nil, ErrWriterInitFailed{Err: fmt.Errorf("unable to open encoder '%s': %w", codec.Name(), err)}
	}

	if out.stream = formatContext.NewStream(nil); out.stream == nil {
		return nil, ErrWriterInitFailed{Err: errors.New("unable to create an output stream")}
	}
	if err := out.stream.CodecParameters().FromCodecContext(out.codecContext); err != nil {
		return nil, ErrWriterInitFailed{Err: fmt.Errorf("unable to copy the codec parameters: %w", err)}
	}
	out.stream.SetTimeBase(timeBase)

	if !formatContext.OutputFormat().Flags().Has(astiav.IOFormatFlagNofile) {
		ioContext, err := astiav.OpenIOContext(path, astiav.NewIOContextFlags(astiav.IOContextFlagWrite), nil, nil)
		if err != nil {
			return nil, ErrWriterInitFailed{Err: fmt.Errorf("unable to open '%s' for writing: %w", path, err)}
		}
		out.closer.AddWithError(ioContext.Close)
		formatContext.SetPb(ioContext)
	}

	if err := formatContext.WriteHeader(nil); err != nil {
		return nil, ErrWriterInitFailed{Err: fmt.Errorf("unable to write the header: %w", err)}
	}

	out.packet = astiav.AllocPacket()
	out.closer.Add(out.packet.Free)
	return out, nil
}

func hasPixelFormat(s []astiav.PixelFormat, pixFmt astiav.PixelFormat) bool {
	for _, item := range s {
		if item == pixFmt {
			return true
		}
	}
	return false
}

// encode sends f (nil flushes) and writes every packet the encoder yields.
func (out *output) encode(f *astiav.Frame) error {
	if err := out.codecContext.SendFrame(f); err != nil {
		return fmt.Errorf("unable to send the frame: %w", err)
	}
	for {
		err := out.codecContext.ReceivePacket(out.packet)
		switch {
		case err == nil:
		case errors.Is(err, astiav.ErrEof), errors.Is(err, astiav.ErrEagain):
			return nil
		default:
			return fmt.Errorf("unable to receive a packet: %w", err)
		}
		out.packet.SetStreamIndex(out.stream.Index())
		out.packet.RescaleTs(out.codecContext.TimeBase(), out.stream.TimeBase())
		err = out.formatContext.WriteInterleavedFrame(out.packet)
		out.packet.Unref()
		if err != nil {
			return fmt.Errorf("unable to write a packet: %w", err)
		}
	}
}

func (out *output) Close(ctx context.Context) error {
	if out.closed {
		return nil
	}
	out.closed = true
	return out.closer.Close()
}
