package storage

import (
	"context"
	"fmt"
	"net/http"
	"path"

	"igtags/pkg/config"
)

// Mirror keeps a remote copy of files written to the output directory.
type Mirror interface {
	Save(ctx context.Context, name string, data []byte) error
	Name() string
}

// NewMirror builds the mirror selected by cfg.Provider.
func NewMirror(ctx context.Context, cfg config.MirrorConfig) (Mirror, error) {
	switch cfg.Provider {
	case config.MirrorNone, "":
		return NopMirror{}, nil
	case config.MirrorGCS:
		return NewGCSMirror(ctx, cfg.Bucket, cfg.Prefix)
	case config.MirrorS3:
		return NewS3Mirror(ctx, S3Config{
			Bucket:    cfg.Bucket,
			Prefix:    cfg.Prefix,
			Region:    cfg.Region,
			Endpoint:  cfg.Endpoint,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
		})
	default:
		return nil, fmt.Errorf("unknown mirror provider %q", cfg.Provider)
	}
}

// NopMirror discards everything.
type NopMirror struct{}

func (NopMirror) Save(context.Context, string, []byte) error { return nil }

func (NopMirror) Name() string { return config.MirrorNone }

func objectKey(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return path.Join(prefix, name)
}

func contentType(data []byte) string {
	return http.DetectContentType(data)
}
