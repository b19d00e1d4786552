package assets

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"recipebox/internal/config"
	"recipebox/internal/model"
)

// DefaultMaxSize applies when the config leaves max_size at zero.
const DefaultMaxSize = 5 << 20

var (
	// ErrNotAllowed means the file name matches none of the allowed patterns.
	ErrNotAllowed = errors.New("file type not allowed")

	// ErrTooLarge means the file exceeds the configured size limit.
	ErrTooLarge = errors.New("file too large")
)

// Loader reads image files from disk into uploadable assets.
type Loader struct {
	matcher *Matcher
	maxSize int64
}

// NewLoader creates a Loader from the assets config.
func NewLoader(cfg config.AssetsConfig) *Loader {
	maxSize := cfg.MaxSize
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &Loader{
		matcher: NewMatcher(cfg.Allowed),
		maxSize: maxSize,
	}
}

// Load validates and reads the file at path. The content type is sniffed
// from the data, not taken from the extension.
func (l *Loader) Load(path string) (*model.Asset, error) {
	if !l.matcher.Allowed(path) {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), ErrNotAllowed)
	}

	info, err := os.Lstat(path)
	if err != nil {
		return nil, fmt.Errorf("stat asset: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("not a regular file: %s", path)
	}
	if info.Size() > l.maxSize {
		return nil, fmt.Errorf("%s is %d bytes, limit %d: %w", filepath.Base(path), info.Size(), l.maxSize, ErrTooLarge)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening asset: %w", err)
	}
	defer f.Close()

	// Read one byte past the limit in case the file grew after the stat.
	data, err := io.ReadAll(io.LimitReader(f, l.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading asset: %w", err)
	}
	if int64(len(data)) > l.maxSize {
		return nil, fmt.Errorf("%s exceeds limit %d: %w", filepath.Base(path), l.maxSize, ErrTooLarge)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("asset is empty: %s", path)
	}

	return &model.Asset{
		Name:        filepath.Base(path),
		ContentType: http.DetectContentType(data),
		Data:        data,
	}, nil
}
