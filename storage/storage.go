// Package storage reads input videos and writes the results: local files,
// stdin/stdout and S3-compatible object stores.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/dustin/go-humanize"
	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/xaionaro-go/avinpaint/logger"
	"github.com/xaionaro-go/secret"
	"github.com/xaionaro-go/xsync"
)

const ContentType = "video/mp4"

type S3Config struct {
	Endpoint  string        `env:"ENDPOINT"   envDefault:"localhost:9000"`
	AccessKey string        `env:"ACCESS_KEY"`
	SecretKey secret.String `env:"-"`
	UseSSL    bool          `env:"USE_SSL"    envDefault:"false"`
	Region    string        `env:"REGION"`
}

// LoadS3Config reads AVINPAINT_S3_* environment variables.
func LoadS3Config() (S3Config, error) {
	var cfg S3Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: "AVINPAINT_S3_"}); err != nil {
		return S3Config{}, fmt.Errorf("unable to parse the S3 config: %w", err)
	}
	cfg.SecretKey = secret.New(os.Getenv("AVINPAINT_S3_SECRET_KEY"))
	return cfg, nil
}

type Storage struct {
	S3     S3Config
	Stdin  io.Reader
	Stdout io.Writer

	locker xsync.Mutex
	client *miniogo.Client
}

func New(s3 S3Config) *Storage {
	return &Storage{
		S3:     s3,
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
	}
}

func (s *Storage) s3Client(ctx context.Context) (*miniogo.Client, error) {
	return xsync.DoR2(ctx, &s.locker, func() (*miniogo.Client, error) {
		if s.client != nil {
			return s.client, nil
		}
		client, err := miniogo.New(s.S3.Endpoint, &miniogo.Options{
			Creds:  credentials.NewStaticV4(s.S3.AccessKey, s.S3.SecretKey.Get(), ""),
			Secure: s.S3.UseSSL,
			Region: s.S3.Region,
		})
		if err != nil {
			return nil, fmt.Errorf("unable to create an S3 client for '%s': %w", s.S3.Endpoint, err)
		}
		s.client = client
		return client, nil
	})
}

func (s *Storage) Read(
	ctx context.Context,
	loc Location,
) (_ret []byte, _err error) {
	logger.Debugf(ctx, "Read(ctx, '%s')", loc)
	defer func() { logger.Debugf(ctx, "/Read(ctx, '%s'): %s, %v", loc, humanize.Bytes(uint64(len(_ret))), _err) }()
	switch loc.Kind {
	case LocationKindLocal:
		return os.ReadFile(loc.Path)
	case LocationKindStdio:
		return io.ReadAll(s.Stdin)
	case LocationKindS3:
		client, err := s.s3Client(ctx)
		if err != nil {
			return nil, err
		}
		obj, err := client.GetObject(ctx, loc.Bucket, loc.Key, miniogo.GetObjectOptions{})
		if err != nil {
			return nil, fmt.Errorf("unable to get '%s': %w", loc, err)
		}
		defer obj.Close()
		data, err := io.ReadAll(obj)
		if err != nil {
			return nil, fmt.Errorf("unable to download '%s': %w", loc, err)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("unsupported location kind %s", loc.Kind)
	}
}

func (s *Storage) Write(
	ctx context.Context,
	loc Location,
	data []byte,
) (_err error) {
	logger.Debugf(ctx, "Write(ctx, '%s', %s)", loc, humanize.Bytes(uint64(len(data))))
	defer func() { logger.Debugf(ctx, "/Write(ctx, '%s'): %v", loc, _err) }()
	switch loc.Kind {
	case LocationKindLocal:
		return os.WriteFile(loc.Path, data, 0o644)
	case LocationKindStdio:
		_, err := s.Stdout.Write(data)
		return err
	case LocationKindS3:
		client, err := s.s3Client(ctx)
		if err != nil {
			return err
		}
		_, err = client.PutObject(ctx, loc.Bucket, loc.Key, bytes.NewReader(data), int64(len(data)), miniogo.PutObjectOptions{
			ContentType: ContentType,
		})
		if err != nil {
			return fmt.Errorf("unable to upload '%s': %w", loc, err)
		}
		return nil
	default:
		return fmt.Errorf("unsupported location kind %s", loc.Kind)
	}
}
