package remote

import (
	"context"
	"fmt"

	"recipebox/internal/config"
	"recipebox/internal/recipebox"
)

// NewRemoteFromConfig creates a RemoteService implementation based on the remote config type.
// sealer is used by the document-store backends (filesystem, s3) and may be nil.
func NewRemoteFromConfig(ctx context.Context, cfg config.RemoteConfig, sealer *Sealer) (recipebox.RemoteService, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryRemote(), nil
	case "filesystem":
		if cfg.FSRoot == "" {
			return nil, fmt.Errorf("filesystem remote requires fs_root to be set")
		}
		r, err := NewFileSystemRemote(cfg.FSRoot, sealer)
		if err != nil {
			return nil, err
		}
		return r, nil
	case "s3":
		r, err := NewS3Remote(ctx, cfg, sealer)
		if err != nil {
			return nil, err
		}
		return r, nil
	case "http":
		if sealer != nil {
			return nil, fmt.Errorf("http remote does not support client-side encryption")
		}
		r, err := NewHTTPRemote(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return r, nil
	default:
		return nil, fmt.Errorf("unknown remote type: %s", cfg.Type)
	}
}
