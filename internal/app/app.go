package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"recipebox/internal/assets"
	"recipebox/internal/config"
	"recipebox/internal/connectivity"
	"recipebox/internal/database"
	"recipebox/internal/encryption"
	"recipebox/internal/model"
	"recipebox/internal/recipebox"
	"recipebox/internal/remote"
)

// PassphraseFunc supplies the passphrase that unlocks the private key.
type PassphraseFunc func() (string, error)

// Options control how a RecipeApp is wired.
type Options struct {
	// Offline keeps the coordinator offline: no probes, no remote calls.
	Offline bool

	// Passphrase is called once when encryption is enabled. When nil, the
	// remote can still be written to, but sealed documents cannot be read.
	Passphrase PassphraseFunc

	// Verbose lowers the log level to debug.
	Verbose bool
}

// RecipeApp is the application layer between the CLI and the Coordinator.
// It constructs all dependencies from config, exposes high-level operations
// that accept raw strings and paths, and manages the store lifecycle on Close.
type RecipeApp struct {
	cfg         *config.Config
	store       recipebox.LocalStore
	coordinator *recipebox.Coordinator
	monitor     *connectivity.Monitor
	assets      *assets.Loader
	logFile     *os.File
	offline     bool
}

// NewRecipeApp creates a fully wired RecipeApp from the given config.
// The coordinator starts offline; call Connect to probe the remote.
// The caller must call Close when done.
func NewRecipeApp(ctx context.Context, cfg *config.Config, opts Options) (*RecipeApp, error) {
	if cfg.DeviceID == "" {
		return nil, fmt.Errorf("config has no device_id")
	}

	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}
	session := time.Now().UTC().Format("20060102T150405Z")
	slogger, logFile, err := newLogger(cfg.LogDir, session, level)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := &slogAdapter{l: slogger}

	sealer, err := newSealer(cfg.Encryption, opts.Passphrase)
	if err != nil {
		logFile.Close()
		return nil, err
	}

	rem, err := remote.NewRemoteFromConfig(ctx, cfg.Remote, sealer)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("creating remote: %w", err)
	}

	store, err := database.NewLocalStoreFromConfig(cfg.Database, cfg.DeviceID)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("creating local store: %w", err)
	}

	logger.Debug("session started", "device", cfg.DeviceID, "remote", cfg.Remote.Type, "offline", opts.Offline)

	coord := recipebox.NewCoordinator(store, rem, logger, recipebox.RealClock{}, recipebox.UUIDGenerator{}, cfg.DeviceID)

	return &RecipeApp{
		cfg:         cfg,
		store:       store,
		coordinator: coord,
		monitor:     connectivity.NewMonitor(rem, coord, logger, cfg.Connectivity),
		assets:      assets.NewLoader(cfg.Assets),
		logFile:     logFile,
		offline:     opts.Offline,
	}, nil
}

// newSealer builds the remote document sealer, or nil when encryption is off.
func newSealer(cfg config.EncryptionConfig, passphrase PassphraseFunc) (*remote.Sealer, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	enc, err := encryption.NewEncryptorFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating encryptor: %w", err)
	}
	if !enc.IsConfigured() {
		return nil, fmt.Errorf("encryption is enabled but no keys exist: run `recipebox keys init`")
	}

	var dec recipebox.DecryptionContext
	if passphrase != nil {
		p, err := passphrase()
		if err != nil {
			return nil, fmt.Errorf("reading passphrase: %w", err)
		}
		dec, err = enc.Unlock(p)
		if err != nil {
			return nil, fmt.Errorf("unlocking private key: %w", err)
		}
	}
	return remote.NewSealer(enc, dec), nil
}

// Connect probes the remote once and reports whether it is reachable.
// Becoming reachable drains the queue. In offline mode it returns false without probing.
func (a *RecipeApp) Connect(ctx context.Context) bool {
	if a.offline {
		return false
	}
	return a.monitor.Probe(ctx)
}

// Online reports whether the last probe reached the remote.
func (a *RecipeApp) Online() bool {
	return a.coordinator.Online()
}

// DeviceID returns the identity this app writes recipes and likes as.
func (a *RecipeApp) DeviceID() string {
	return a.cfg.DeviceID
}

// AddRecipe validates and saves a new recipe. The id is returned even when
// the error reports that the remote rejected our credentials.
func (a *RecipeApp) AddRecipe(ctx context.Context, r *model.Recipe) (string, error) {
	if err := r.Validate(); err != nil {
		return "", fmt.Errorf("invalid recipe: %w", err)
	}
	return a.coordinator.AddRecipe(ctx, r)
}

// UpdateRecipe validates and saves an edited recipe.
func (a *RecipeApp) UpdateRecipe(ctx context.Context, r *model.Recipe) error {
	if err := r.Validate(); err != nil {
		return fmt.Errorf("invalid recipe: %w", err)
	}
	return a.coordinator.UpdateRecipe(ctx, r)
}

// GetRecipe returns the recipe with the given id or an error wrapping recipebox.ErrNotFound.
func (a *RecipeApp) GetRecipe(ctx context.Context, id string) (*model.Recipe, error) {
	r, ok := a.coordinator.GetRecipe(ctx, id)
	if !ok {
		return nil, fmt.Errorf("recipe %s: %w", id, recipebox.ErrNotFound)
	}
	return r, nil
}

// ListRecipes returns the merged recipe collection matching query.
func (a *RecipeApp) ListRecipes(ctx context.Context, query model.Query) []*model.Recipe {
	return a.coordinator.GetRecipes(ctx, query)
}

// DeleteRecipe removes a recipe locally and remotely.
func (a *RecipeApp) DeleteRecipe(ctx context.Context, id string) error {
	return a.coordinator.DeleteRecipe(ctx, id)
}

// LikeRecipe likes a recipe as this device.
func (a *RecipeApp) LikeRecipe(ctx context.Context, id string) (*model.Recipe, error) {
	return a.coordinator.LikeRecipe(ctx, id, a.cfg.DeviceID)
}

// AttachImage loads the image at path, uploads it (or embeds it when the
// remote is unavailable) and points the recipe's ImageURL at the result.
func (a *RecipeApp) AttachImage(ctx context.Context, id string, path string) (string, error) {
	r, err := a.GetRecipe(ctx, id)
	if err != nil {
		return "", err
	}

	asset, err := a.assets.Load(path)
	if err != nil {
		return "", fmt.Errorf("loading image: %w", err)
	}

	url, err := a.coordinator.UploadImage(ctx, asset)
	if err != nil {
		return "", err
	}

	r.ImageURL = url
	if err := a.coordinator.UpdateRecipe(ctx, r); err != nil {
		return "", err
	}
	return url, nil
}

// Sync probes the remote and drains the queue, returning the result of the pass.
func (a *RecipeApp) Sync(ctx context.Context) (model.SyncResult, error) {
	pending := len(a.coordinator.Pending())
	if a.offline {
		return model.SyncResult{Remaining: pending}, fmt.Errorf("cannot sync in offline mode")
	}

	// A probe that brings us online drains the queue itself.
	var result model.SyncResult
	drained := false
	unsubscribe := a.coordinator.Subscribe(func(e recipebox.Event) {
		if e.Kind == recipebox.EventSynced {
			result = e.Result
			drained = true
		}
	})
	defer unsubscribe()

	if !a.monitor.Probe(ctx) {
		return model.SyncResult{Remaining: pending}, fmt.Errorf("sync: %w", recipebox.ErrUnreachable)
	}
	if !drained {
		result = a.coordinator.ProcessSyncQueue(ctx)
	}
	return result, nil
}

// Pending returns the undelivered mutations in queue order.
func (a *RecipeApp) Pending() []*model.QueueItem {
	return a.coordinator.Pending()
}

// History returns the most recent sync passes.
func (a *RecipeApp) History(limit int) ([]*model.SyncRun, error) {
	return a.coordinator.History(limit)
}

// Watch reports every change event to fn and keeps probing the remote until
// ctx is done. It returns ctx.Err().
func (a *RecipeApp) Watch(ctx context.Context, fn func(recipebox.Event)) error {
	if a.offline {
		return fmt.Errorf("cannot watch in offline mode")
	}
	unsubscribe := a.coordinator.Subscribe(fn)
	defer unsubscribe()
	return a.monitor.Run(ctx)
}

// Close closes the local store and the log file.
func (a *RecipeApp) Close() error {
	var firstErr error
	if err := a.store.Close(); err != nil {
		firstErr = fmt.Errorf("closing local store: %w", err)
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
	return firstErr
}
