package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"recipebox/internal/model"
	"recipebox/internal/recipebox"
)

// FileSystemRemote stores recipes as JSON documents in a directory tree,
// typically a synced or network-mounted folder:
//
//	<root>/
//	  recipes/
//	    <id>.json        (one document per recipe, optionally age-encrypted)
//	  assets/
//	    <owner>/<name>   (uploaded images)
type FileSystemRemote struct {
	root      string
	recipeDir string
	assetDir  string
	sealer    *Sealer

	// mu serializes read-modify-write cycles such as Like.
	mu sync.Mutex
}

// NewFileSystemRemote creates a filesystem remote rooted at the given path.
// sealer may be nil to store plaintext documents.
func NewFileSystemRemote(root string, sealer *Sealer) (*FileSystemRemote, error) {
	recipeDir := filepath.Join(root, "recipes")
	assetDir := filepath.Join(root, "assets")

	if err := os.MkdirAll(recipeDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create recipes directory: %w", err)
	}
	if err := os.MkdirAll(assetDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create assets directory: %w", err)
	}

	return &FileSystemRemote{
		root:      root,
		recipeDir: recipeDir,
		assetDir:  assetDir,
		sealer:    sealer,
	}, nil
}

// Create writes the recipe document, overwriting any existing one.
func (v *FileSystemRemote) Create(ctx context.Context, recipe *model.Recipe) (string, error) {
	if err := validID(recipe.ID); err != nil {
		return "", err
	}
	if err := v.writeRecipe(recipe); err != nil {
		return "", err
	}
	return recipe.ID, nil
}

func (v *FileSystemRemote) Read(ctx context.Context, id string) (*model.Recipe, error) {
	if err := validID(id); err != nil {
		return nil, fmt.Errorf("reading recipe: %w: %w", recipebox.ErrNotFound, err)
	}
	return v.readRecipe(v.recipePath(id))
}

func (v *FileSystemRemote) Update(ctx context.Context, id string, recipe *model.Recipe) error {
	if err := validID(id); err != nil {
		return fmt.Errorf("updating recipe: %w: %w", recipebox.ErrNotFound, err)
	}
	if _, err := os.Stat(v.recipePath(id)); err != nil {
		return v.mapError("updating recipe "+id, err)
	}

	r := recipe.Clone()
	r.ID = id
	return v.writeRecipe(r)
}

// Delete removes the recipe document. A missing document is not an error.
func (v *FileSystemRemote) Delete(ctx context.Context, id string) error {
	if validID(id) != nil {
		return nil
	}
	if err := os.Remove(v.recipePath(id)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return v.mapError("deleting recipe "+id, err)
	}
	return nil
}

// List reads every document and pages through them in memory.
// Unreadable documents are skipped.
func (v *FileSystemRemote) List(ctx context.Context, query model.Query) (*model.Page, error) {
	entries, err := os.ReadDir(v.recipeDir)
	if err != nil {
		return nil, fmt.Errorf("listing recipes: %w: %w", recipebox.ErrUnreachable, err)
	}

	all := make([]*model.Recipe, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("listing recipes: %w: %w", recipebox.ErrUnreachable, err)
		}
		r, err := v.readRecipe(filepath.Join(v.recipeDir, e.Name()))
		if err != nil {
			if errors.Is(err, recipebox.ErrUnauthorized) {
				return nil, err
			}
			continue
		}
		all = append(all, r)
	}

	return paginate(all, query)
}

func (v *FileSystemRemote) Like(ctx context.Context, id string, likerID string) (*model.Recipe, error) {
	if err := validID(id); err != nil {
		return nil, fmt.Errorf("liking recipe: %w: %w", recipebox.ErrNotFound, err)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	r, err := v.readRecipe(v.recipePath(id))
	if err != nil {
		return nil, err
	}
	if r.Like(likerID) {
		if err := v.writeRecipe(r); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// UploadAsset writes the asset under the owner's directory and returns a file URL.
func (v *FileSystemRemote) UploadAsset(ctx context.Context, owner string, asset *model.Asset) (string, error) {
	dir := filepath.Join(v.assetDir, filepath.Base("/"+owner))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", v.mapError("creating asset directory", err)
	}

	data, err := v.sealer.seal(asset.Data)
	if err != nil {
		return "", err
	}

	dest := filepath.Join(dir, filepath.Base("/"+asset.Name))
	if err := writeFileAtomic(dest, bytes.NewReader(data), int64(len(data))); err != nil {
		return "", v.mapError("writing asset "+asset.Name, err)
	}
	return "file://" + filepath.ToSlash(dest), nil
}

// Ping verifies that the remote directories are accessible.
func (v *FileSystemRemote) Ping(ctx context.Context) error {
	info, err := os.Stat(v.root)
	if err != nil {
		return fmt.Errorf("remote root not accessible: %w: %w", recipebox.ErrUnreachable, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("remote root is not a directory: %s: %w", v.root, recipebox.ErrUnreachable)
	}

	for _, dir := range []string{v.recipeDir, v.assetDir} {
		info, err := os.Stat(dir)
		if err != nil {
			return fmt.Errorf("remote directory not accessible: %w: %w", recipebox.ErrUnreachable, err)
		}
		if !info.IsDir() {
			return fmt.Errorf("remote path is not a directory: %s: %w", dir, recipebox.ErrUnreachable)
		}
	}
	return nil
}

func (v *FileSystemRemote) recipePath(id string) string {
	return filepath.Join(v.recipeDir, id+".json")
}

func (v *FileSystemRemote) writeRecipe(r *model.Recipe) error {
	data, err := v.sealer.encodeRecipe(r)
	if err != nil {
		return err
	}
	if err := writeFileAtomic(v.recipePath(r.ID), bytes.NewReader(data), int64(len(data))); err != nil {
		return v.mapError("writing recipe "+r.ID, err)
	}
	return nil
}

func (v *FileSystemRemote) readRecipe(path string) (*model.Recipe, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, v.mapError("reading "+filepath.Base(path), err)
	}
	return v.sealer.decodeRecipe(data)
}

// mapError translates filesystem errors into the remote error kinds.
func (v *FileSystemRemote) mapError(op string, err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%s: %w", op, recipebox.ErrNotFound)
	case errors.Is(err, fs.ErrPermission):
		return fmt.Errorf("%s: %w: %w", op, recipebox.ErrUnauthorized, err)
	default:
		return fmt.Errorf("%s: %w: %w", op, recipebox.ErrUnreachable, err)
	}
}

// writeFileAtomic writes data from r to destPath using a temp file and rename.
func writeFileAtomic(destPath string, r io.Reader, expectedSize int64) error {
	// Temp file in the same directory so the rename stays on one filesystem.
	tmpFile, err := os.CreateTemp(filepath.Dir(destPath), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	written, err := io.Copy(tmpFile, r)
	if err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if written != expectedSize {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", expectedSize, written)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}

// Compile-time check that FileSystemRemote implements recipebox.RemoteService interface
var _ recipebox.RemoteService = (*FileSystemRemote)(nil)
