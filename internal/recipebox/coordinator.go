package recipebox

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"recipebox/internal/model"
)

// Coordinator is the single entry point for recipe reads and writes.
// Writes land in the LocalStore first and are delivered to the RemoteService
// immediately when online, or queued for a later drain otherwise. Reads merge
// the local and remote collections. A failure on one side never blocks the other.
//
// Coordinator is safe for concurrent use.
type Coordinator struct {
	local  LocalStore
	remote RemoteService
	logger Logger
	clock  Clock
	idgen  IDGenerator
	owner  string

	online  atomic.Bool
	syncing atomic.Bool

	// mu guards queue, the in-memory mirror of the durable queue.
	// It stays usable when the store is not.
	mu    sync.Mutex
	queue []*model.QueueItem

	events eventBus
}

// NewCoordinator creates a Coordinator and loads the persisted queue.
// owner is the opaque device or account id stamped on recipes that have none.
// The coordinator starts offline; call SetOnline once connectivity is known.
func NewCoordinator(local LocalStore, remote RemoteService, logger Logger, clock Clock, idgen IDGenerator, owner string) *Coordinator {
	c := &Coordinator{
		local:  local,
		remote: remote,
		logger: logger,
		clock:  clock,
		idgen:  idgen,
		owner:  owner,
	}

	items, err := local.QueueItems()
	if err != nil {
		logger.Error("loading sync queue", "error", err)
	}
	c.queue = items

	return c
}

// Owner returns the identity stamped on new recipes and used for likes.
func (c *Coordinator) Owner() string {
	return c.owner
}

// Online reports the current connectivity state.
func (c *Coordinator) Online() bool {
	return c.online.Load()
}

// Pending returns a snapshot of the undelivered mutations in queue order.
func (c *Coordinator) Pending() []*model.QueueItem {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.queue)
}

// SetOnline records a connectivity transition. Repeated signals with the same
// state are ignored. Going online triggers an immediate queue drain; going
// offline only flips the flag.
func (c *Coordinator) SetOnline(ctx context.Context, online bool) {
	if c.online.Swap(online) == online {
		return
	}

	c.logger.Info("connectivity changed", "online", online)
	c.events.publish(Event{Kind: EventConnectivity, Online: online})

	if online {
		c.ProcessSyncQueue(ctx)
	}
}

// AddRecipe stores a new recipe locally and delivers or queues it.
// The recipe gets a fresh id if it has none, and CreatedAt/UpdatedAt are set to now.
// The id is always returned. The error is non-nil only when the remote
// rejected our credentials, in which case the mutation is not queued.
func (c *Coordinator) AddRecipe(ctx context.Context, recipe *model.Recipe) (string, error) {
	r := recipe.Clone()
	if r.ID == "" {
		r.ID = c.idgen.New()
	}
	if r.Owner == "" {
		r.Owner = c.owner
	}
	now := c.clock.Now()
	r.CreatedAt = now
	r.UpdatedAt = now

	c.saveLocal(r)

	err := c.mirror(ctx, model.ActionAdd, r, r.ID, func(ctx context.Context) error {
		_, err := c.remote.Create(ctx, r)
		return err
	})
	return r.ID, err
}

// UpdateRecipe stores an edit locally, so local reads reflect it immediately,
// then delivers or queues it. UpdatedAt is bumped but never moves backwards.
func (c *Coordinator) UpdateRecipe(ctx context.Context, recipe *model.Recipe) error {
	if recipe.ID == "" {
		return fmt.Errorf("updating recipe: missing id")
	}

	r := recipe.Clone()
	existing, err := c.local.GetRecipe(r.ID)
	if err != nil {
		c.logger.Error("reading recipe before update", "id", r.ID, "error", err)
	}
	if existing != nil {
		if r.CreatedAt.IsZero() {
			r.CreatedAt = existing.CreatedAt
		}
		if r.UpdatedAt.Before(existing.UpdatedAt) {
			r.UpdatedAt = existing.UpdatedAt
		}
	}
	if r.Owner == "" {
		r.Owner = c.owner
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = c.clock.Now()
	}
	r.Touch(c.clock.Now())

	c.saveLocal(r)

	return c.mirror(ctx, model.ActionUpdate, r, r.ID, func(ctx context.Context) error {
		return c.remote.Update(ctx, r.ID, r)
	})
}

// DeleteRecipe removes a recipe locally, then delivers or queues the delete.
// Deleting an unknown id is not an error.
func (c *Coordinator) DeleteRecipe(ctx context.Context, id string) error {
	if err := c.local.DeleteRecipe(id); err != nil {
		c.logger.Error("deleting recipe locally", "id", id, "error", err)
	}
	c.events.publish(Event{Kind: EventDeleted, RecipeID: id})

	return c.mirror(ctx, model.ActionDelete, nil, id, func(ctx context.Context) error {
		return ignoreNotFound(c.remote.Delete(ctx, id))
	})
}

// LikeRecipe records likerID as a liker of the recipe. An empty likerID means
// the coordinator's owner. Liking twice with the same id changes nothing.
// UpdatedAt is not bumped: a like is not an edit.
func (c *Coordinator) LikeRecipe(ctx context.Context, id string, likerID string) (*model.Recipe, error) {
	if likerID == "" {
		likerID = c.owner
	}

	r, err := c.local.GetRecipe(id)
	if err != nil {
		c.logger.Error("reading recipe before like", "id", id, "error", err)
	}

	if r == nil {
		if !c.online.Load() {
			return nil, fmt.Errorf("liking recipe %s: %w", id, ErrNotFound)
		}
		liked, err := c.remote.Like(ctx, id, likerID)
		if err != nil {
			return nil, fmt.Errorf("liking recipe %s: %w", id, err)
		}
		c.saveLocal(liked)
		return liked, nil
	}

	if !r.Like(likerID) {
		return r, nil
	}
	c.saveLocal(r)

	err = c.mirror(ctx, model.ActionUpdate, r, id, func(ctx context.Context) error {
		_, err := c.remote.Like(ctx, id, likerID)
		return err
	})
	return r, err
}

// GetRecipe returns the local copy when there is one, since it may carry edits
// the remote has not seen yet. Otherwise, when online, it falls back to the remote,
// unless a delete of the id is still queued. Any failure is reported as not found.
func (c *Coordinator) GetRecipe(ctx context.Context, id string) (*model.Recipe, bool) {
	r, err := c.local.GetRecipe(id)
	if err != nil {
		c.logger.Error("reading recipe locally", "id", id, "error", err)
	}
	if r != nil {
		return r, true
	}

	if !c.online.Load() {
		return nil, false
	}
	if c.pendingActions()[id] == model.ActionDelete {
		return nil, false
	}

	r, err = c.remote.Read(ctx, id)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			c.logger.Warn("remote read failed", "id", id, "error", err)
		}
		return nil, false
	}
	return r, true
}

// GetRecipes returns the merged local and remote collections, filtered by the
// query's search term, flag filters and owner. When offline, or when the remote
// listing fails, only local recipes are returned, newest first.
func (c *Coordinator) GetRecipes(ctx context.Context, query model.Query) []*model.Recipe {
	local, err := c.local.ListRecipes()
	if err != nil {
		c.logger.Error("listing local recipes", "error", err)
		local = nil
	}

	var merged []*model.Recipe
	if c.online.Load() {
		remote, err := c.listRemote(ctx, query.Owner)
		if err != nil {
			c.logger.Warn("remote listing failed, using local recipes", "error", err)
			merged = sortNewestFirst(local)
		} else {
			merged = mergeRecipes(local, remote, c.pendingActions())
		}
	} else {
		merged = sortNewestFirst(local)
	}

	return filterRecipes(merged, query)
}

// UploadImage stores an image and returns a URL the UI can render.
// Offline, or when the upload fails for any reason other than credentials,
// the image is embedded as a data URL instead.
func (c *Coordinator) UploadImage(ctx context.Context, asset *model.Asset) (string, error) {
	if asset == nil || len(asset.Data) == 0 {
		return "", fmt.Errorf("uploading image: empty asset")
	}

	if c.online.Load() {
		url, err := c.remote.UploadAsset(ctx, c.owner, asset)
		if err == nil {
			return url, nil
		}
		if errors.Is(err, ErrUnauthorized) {
			return "", fmt.Errorf("uploading image %s: %w", asset.Name, err)
		}
		c.logger.Warn("image upload failed, embedding locally", "name", asset.Name, "error", err)
	}

	return asset.DataURL(), nil
}

// History returns the most recent queue drain passes, newest first.
func (c *Coordinator) History(limit int) ([]*model.SyncRun, error) {
	runs, err := c.local.ListSyncRuns(limit)
	if err != nil {
		return nil, fmt.Errorf("listing sync runs: %w", err)
	}
	return runs, nil
}

// Subscribe registers fn for change events and returns a function that
// removes it. fn is called synchronously on the goroutine that caused the change.
func (c *Coordinator) Subscribe(fn func(Event)) (unsubscribe func()) {
	return c.events.subscribe(fn)
}

// saveLocal upserts a recipe, logging instead of failing.
func (c *Coordinator) saveLocal(r *model.Recipe) {
	if _, err := c.local.PutRecipe(r); err != nil {
		c.logger.Error("saving recipe locally", "id", r.ID, "error", err)
	}
	c.events.publish(Event{Kind: EventSaved, RecipeID: r.ID})
}

// mirror delivers a mutation right away when online and queues it when
// offline or when delivery fails. Only ErrUnauthorized is returned: every
// other failure is absorbed by the queue.
func (c *Coordinator) mirror(ctx context.Context, action model.Action, recipe *model.Recipe, id string, deliver func(context.Context) error) error {
	if c.online.Load() {
		err := deliver(ctx)
		if err == nil {
			c.logger.Debug("mutation delivered", "action", action, "id", id)
			return nil
		}
		if errors.Is(err, ErrUnauthorized) {
			c.logger.Error("remote rejected credentials", "action", action, "id", id, "error", err)
			return fmt.Errorf("%s recipe %s: %w", action, id, err)
		}
		c.logger.Warn("remote write failed, queueing", "action", action, "id", id, "error", err)
	}

	c.enqueue(action, recipe, id)
	return nil
}

// ignoreNotFound treats a missing remote record as a successful delete.
func ignoreNotFound(err error) error {
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}
