package recipebox

import (
	"context"
	"fmt"
	"slices"

	"recipebox/internal/model"
)

// enqueue appends a mutation to the in-memory queue and the durable queue.
// Both appends happen under mu so the two stay in the same order.
func (c *Coordinator) enqueue(action model.Action, recipe *model.Recipe, recipeID string) {
	item := &model.QueueItem{
		ID:         c.idgen.New(),
		Action:     action,
		RecipeID:   recipeID,
		Recipe:     recipe.Clone(),
		EnqueuedAt: c.clock.Now(),
	}

	c.mu.Lock()
	c.queue = append(c.queue, item)
	if err := c.local.AppendQueue(item); err != nil {
		c.logger.Error("persisting queued mutation", "action", action, "id", recipeID, "error", err)
	}
	c.mu.Unlock()

	c.logger.Info("mutation queued", "action", action, "id", recipeID, "item", item.ID)
}

// ProcessSyncQueue attempts remote delivery of every queued mutation in
// enqueue order. It is a no-op when offline, when another drain is running,
// or when the queue is empty. One item's failure does not stop the pass;
// failed items stay queued for the next trigger. Delivered items are removed
// from memory and storage after the whole pass.
func (c *Coordinator) ProcessSyncQueue(ctx context.Context) model.SyncResult {
	if !c.online.Load() {
		return model.SyncResult{Remaining: c.queueLen()}
	}

	if !c.syncing.CompareAndSwap(false, true) {
		c.logger.Debug("sync already in progress")
		return model.SyncResult{Remaining: c.queueLen()}
	}
	defer c.syncing.Store(false)

	c.mu.Lock()
	items := slices.Clone(c.queue)
	c.mu.Unlock()

	if len(items) == 0 {
		return model.SyncResult{}
	}

	run := &model.SyncRun{StartedAt: c.clock.Now()}

	var delivered []string
	for _, item := range items {
		if err := c.deliver(ctx, item); err != nil {
			c.logger.Warn("queued mutation not delivered", "action", item.Action, "id", item.TargetID(), "item", item.ID, "error", err)
			continue
		}
		delivered = append(delivered, item.ID)
	}

	remaining := c.removeDelivered(delivered)

	result := model.SyncResult{
		Attempted: len(items),
		Delivered: len(delivered),
		Remaining: remaining,
	}

	run.FinishedAt = c.clock.Now()
	run.Attempted = result.Attempted
	run.Delivered = result.Delivered
	run.Remaining = result.Remaining
	if err := c.local.RecordSyncRun(run); err != nil {
		c.logger.Error("recording sync run", "error", err)
	}

	c.logger.Info("sync pass complete", "attempted", result.Attempted, "delivered", result.Delivered, "remaining", result.Remaining)
	c.events.publish(Event{Kind: EventSynced, Result: result})
	return result
}

// deliver sends one queued mutation to the remote.
// Malformed items are logged and reported delivered so they cannot wedge the queue.
func (c *Coordinator) deliver(ctx context.Context, item *model.QueueItem) error {
	switch item.Action {
	case model.ActionAdd:
		if item.Recipe == nil {
			c.logger.Warn("dropping add without recipe", "item", item.ID)
			return nil
		}
		_, err := c.remote.Create(ctx, item.Recipe)
		return err
	case model.ActionUpdate:
		if item.Recipe == nil {
			c.logger.Warn("dropping update without recipe", "item", item.ID)
			return nil
		}
		return c.remote.Update(ctx, item.Recipe.ID, item.Recipe)
	case model.ActionDelete:
		id := item.TargetID()
		if id == "" {
			c.logger.Warn("dropping delete without id", "item", item.ID)
			return nil
		}
		return ignoreNotFound(c.remote.Delete(ctx, id))
	default:
		c.logger.Warn("dropping item with unknown action", "item", item.ID, "action", item.Action)
		return nil
	}
}

// removeDelivered drops the given item ids from both queues and returns the
// number of items still pending. Items appended during the pass are kept.
func (c *Coordinator) removeDelivered(ids []string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(ids) == 0 {
		return len(c.queue)
	}

	done := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		done[id] = struct{}{}
	}
	c.queue = slices.DeleteFunc(c.queue, func(item *model.QueueItem) bool {
		_, ok := done[item.ID]
		return ok
	})

	if err := c.local.DrainQueue(ids); err != nil {
		c.logger.Error("removing delivered mutations from storage", "count", len(ids), "error", err)
	}

	return len(c.queue)
}

func (c *Coordinator) queueLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// pendingActions maps each recipe id with undelivered mutations to the
// latest queued action for it.
func (c *Coordinator) pendingActions() map[string]model.Action {
	c.mu.Lock()
	defer c.mu.Unlock()

	pending := make(map[string]model.Action, len(c.queue))
	for _, item := range c.queue {
		pending[item.TargetID()] = item.Action
	}
	return pending
}

// listRemote fetches every page of the remote listing for owner.
func (c *Coordinator) listRemote(ctx context.Context, owner string) ([]*model.Recipe, error) {
	var all []*model.Recipe
	seen := make(map[string]bool)

	query := model.Query{Owner: owner}
	for {
		page, err := c.remote.List(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("listing remote recipes: %w", err)
		}
		all = append(all, page.Recipes...)

		if page.NextCursor == "" || seen[page.NextCursor] {
			return all, nil
		}
		seen[page.NextCursor] = true
		query.Cursor = page.NextCursor
	}
}
