package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"

	"github.com/davecgh/go-spew/spew"
	"github.com/dustin/go-humanize"
	"github.com/facebookincubator/go-belt"
	beltlogger "github.com/facebookincubator/go-belt/tool/logger"
	"github.com/facebookincubator/go-belt/tool/logger/implementation/logrus"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/pflag"
	"github.com/xaionaro-go/avinpaint/config"
	"github.com/xaionaro-go/avinpaint/frame"
	"github.com/xaionaro-go/avinpaint/logger"
	"github.com/xaionaro-go/avinpaint/mask"
	"github.com/xaionaro-go/avinpaint/metrics"
	"github.com/xaionaro-go/avinpaint/pipeline"
	"github.com/xaionaro-go/avinpaint/storage"
	"github.com/xaionaro-go/avinpaint/types"
	"github.com/xaionaro-go/observability"
)

const progressBarMax = 1000

func main() {
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "syntax: %s [options] <input> <output>\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  a location is a file path, '-' for stdin/stdout or 's3://bucket/key'\n\n")
		pflag.PrintDefaults()
	}

	loggerLevel := logger.LevelWarning
	pflag.Var(&loggerLevel, "log-level", "Log level")
	configPath := pflag.String("config", "", "path to a YAML config file")
	frameRate := types.Rational{Num: 30, Den: 1}
	pflag.Var(&frameRate, "frame-rate", "the frame rate of the produced video, e.g. 30000/1001")
	maskingStrategy := pipeline.MaskingStrategyStatic
	pflag.Var(&maskingStrategy, "mask", "masking strategy: static|detector")
	inpaintBackend := pipeline.InpaintBackendClassical
	pflag.Var(&inpaintBackend, "inpaint", "inpainting backend: classical|generative")
	regions := pflag.StringArray("region", nil, "a region to remove, as 'x1,y1,x2,y2' (repeatable)")
	regionPadding := pflag.Int("region-padding", 0, "grow every masked box by this many pixels")
	maskDilation := pflag.Int("mask-dilation", 0, "grow every generated mask by this many pixels")
	maxDuration := pflag.Float64("max-duration", 0, "reject inputs longer than this many seconds; 0 disables the limit")
	guidance := pflag.String("guidance", "", "a text hint passed to the generative model")
	channelMode := frame.ChannelModeColor
	pflag.Var(&channelMode, "channel-mode", "color|grayscale")
	workers := pflag.Int("workers", 0, "frames processed concurrently; 0 means the number of CPUs")
	detectorCommand := pflag.String("detector-command", "", "a command serving the object detector model")
	generatorCommand := pflag.String("generator-command", "", "a command serving the generative inpainting model")
	haarCascade := pflag.String("haar-cascade", "", "path to an OpenCV Haar cascade XML used as the detector")
	encoderCodec := pflag.String("encoder", "", "the output video codec name")
	tempDir := pflag.String("temp-dir", "", "a directory for intermediate files")
	netPprofAddr := pflag.String("net-pprof-listen-addr", "", "an address to listen for incoming net/pprof connections")
	metricsAddr := pflag.String("metrics-listen-addr", "", "an address to serve Prometheus metrics at")
	pflag.Parse()
	if len(pflag.Args()) != 2 {
		pflag.Usage()
		os.Exit(1)
	}

	l := logrus.Default().WithLevel(loggerLevel)
	ctx := beltlogger.CtxWithLogger(context.Background(), l)
	ctx, cancelFn := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancelFn()
	logger.SetDefault(func() logger.Logger {
		return l
	})
	defer belt.Flush(ctx)
	logger.BridgeAstiav(l)

	if *netPprofAddr != "" {
		observability.Go(ctx, func(ctx context.Context) {
			l.Error(http.ListenAndServe(*netPprofAddr, nil))
		})
	}
	if *metricsAddr != "" {
		metrics.StartServer(ctx, *metricsAddr)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		l.Fatal(err)
	}

	flags := pflag.CommandLine
	if flags.Changed("frame-rate") {
		cfg.FrameRate = frameRate
	}
	if flags.Changed("mask") {
		cfg.MaskingStrategy = maskingStrategy
	}
	if flags.Changed("inpaint") {
		cfg.InpaintBackend = inpaintBackend
	}
	for _, s := range *regions {
		r, err := mask.ParseRegion(s)
		if err != nil {
			l.Fatalf("invalid --region '%s': %v", s, err)
		}
		cfg.Regions = append(cfg.Regions, r)
	}
	if flags.Changed("region-padding") {
		cfg.RegionPadding = *regionPadding
	}
	if flags.Changed("mask-dilation") {
		cfg.MaskDilation = *maskDilation
	}
	if flags.Changed("max-duration") {
		cfg.MaxDurationSeconds = *maxDuration
	}
	if flags.Changed("guidance") {
		cfg.GuidanceText = *guidance
	}
	if flags.Changed("channel-mode") {
		cfg.ChannelMode = channelMode
	}
	if flags.Changed("workers") {
		cfg.Workers = *workers
	}
	if flags.Changed("detector-command") {
		cfg.Detector.Command = *detectorCommand
	}
	if flags.Changed("generator-command") {
		cfg.Generator.Command = *generatorCommand
	}
	if flags.Changed("haar-cascade") {
		cfg.HaarCascade = *haarCascade
	}
	if flags.Changed("encoder") {
		cfg.Encoder.Codec = *encoderCodec
	}
	if flags.Changed("temp-dir") {
		cfg.TempDir = *tempDir
	}
	if err := cfg.Validate(); err != nil {
		l.Fatal(err)
	}
	if l.Level() >= logger.LevelDebug {
		logger.Debugf(ctx, "config: %s", spew.Sdump(cfg))
	}

	input, err := storage.ParseLocation(pflag.Arg(0))
	if err != nil {
		l.Fatalf("invalid input location: %v", err)
	}
	output, err := storage.ParseLocation(pflag.Arg(1))
	if err != nil {
		l.Fatalf("invalid output location: %v", err)
	}

	s3Cfg, err := storage.LoadS3Config()
	if err != nil {
		l.Fatal(err)
	}
	store := storage.New(s3Cfg)

	deps, resources, err := cfg.Build(ctx)
	if err != nil {
		l.Fatal(err)
	}
	defer resources.Close(ctx)

	bar := progressbar.NewOptions(progressBarMax,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription(pipeline.StageIdle.String()),
		progressbar.OptionSetWidth(50),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionClearOnFinish(),
	)
	observer := pipeline.ObserverFunc(func(ctx context.Context, report pipeline.ProgressReport) {
		bar.Describe(report.Label)
		bar.Set(int(report.Fraction * progressBarMax))
	})

	p, err := pipeline.New(cfg.Pipeline(), deps, observer)
	if err != nil {
		l.Fatal(err)
	}

	videoBytes, err := store.Read(ctx, input)
	if err != nil {
		l.Fatalf("unable to read '%s': %v", input, err)
	}
	logger.Infof(ctx, "read %s from '%s'", humanize.Bytes(uint64(len(videoBytes))), input)

	result, err := p.Run(ctx, videoBytes)
	bar.Finish()
	if err != nil {
		var pErr *pipeline.Error
		if errors.As(err, &pErr) {
			l.Errorf("the %s stage failed", pErr.Stage)
		}
		resources.Close(ctx)
		l.Fatal(err)
	}

	if err := store.Write(ctx, output, result); err != nil {
		resources.Close(ctx)
		l.Fatalf("unable to write '%s': %v", output, err)
	}
	logger.Infof(ctx, "wrote %s to '%s'", humanize.Bytes(uint64(len(result))), output)
}
