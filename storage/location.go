package storage

import (
	"fmt"
	"strings"
)

type LocationKind int

const (
	LocationKindUndefined = LocationKind(iota)
	LocationKindLocal
	LocationKindStdio
	LocationKindS3
)

func (k LocationKind) String() string {
	switch k {
	case LocationKindUndefined:
		return "<undefined>"
	case LocationKindLocal:
		return "local"
	case LocationKindStdio:
		return "stdio"
	case LocationKindS3:
		return "s3"
	default:
		return fmt.Sprintf("unknown_location_kind_%d", int(k))
	}
}

const (
	StdioLocation = "-"
	s3Scheme      = "s3://"
)

// Location is a place a video is read from or written to.
type Location struct {
	Kind LocationKind

	// Path is set for LocationKindLocal.
	Path string

	// Bucket and Key are set for LocationKindS3.
	Bucket string
	Key    string
}

// ParseLocation accepts a file path, "-" (stdin/stdout) or "s3://bucket/key".
func ParseLocation(s string) (Location, error) {
	switch {
	case s == "":
		return Location{}, fmt.Errorf("empty location")
	case s == StdioLocation:
		return Location{Kind: LocationKindStdio}, nil
	case strings.HasPrefix(s, s3Scheme):
		bucket, key, ok := strings.Cut(strings.TrimPrefix(s, s3Scheme), "/")
		if !ok || bucket == "" || key == "" {
			return Location{}, fmt.Errorf("expected 's3://bucket/key', got '%s'", s)
		}
		return Location{Kind: LocationKindS3, Bucket: bucket, Key: key}, nil
	default:
		return Location{Kind: LocationKindLocal, Path: s}, nil
	}
}

func (l Location) String() string {
	switch l.Kind {
	case LocationKindLocal:
		return l.Path
	case LocationKindStdio:
		return StdioLocation
	case LocationKindS3:
		return s3Scheme + l.Bucket + "/" + l.Key
	default:
		return l.Kind.String()
	}
}
