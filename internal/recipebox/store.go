package recipebox

import "recipebox/internal/model"

// LocalStore is the durable on-device copy of recipes and the mutation queue.
// Implementations return wrapped errors; the Coordinator decides how to degrade.
type LocalStore interface {
	// Recipe operations

	// PutRecipe upserts a recipe by id, assigning a new id if it has none.
	// Returns the recipe's id.
	PutRecipe(recipe *model.Recipe) (string, error)

	// GetRecipe returns the recipe with the given id, or nil if it does not exist.
	GetRecipe(id string) (*model.Recipe, error)

	// DeleteRecipe removes a recipe. Deleting a missing id is not an error.
	DeleteRecipe(id string) error

	// ListRecipes returns every local recipe. Order is not guaranteed.
	ListRecipes() ([]*model.Recipe, error)

	// Queue operations

	// AppendQueue adds an item to the end of the mutation queue.
	AppendQueue(item *model.QueueItem) error

	// DrainQueue removes exactly the items with the given ids, leaving all others.
	DrainQueue(ids []string) error

	// QueueItems returns the queue in insertion order.
	QueueItems() ([]*model.QueueItem, error)

	// Sync history

	// RecordSyncRun persists the outcome of a drain pass and assigns its ID.
	RecordSyncRun(run *model.SyncRun) error

	// ListSyncRuns returns the most recent drain passes, newest first.
	ListSyncRuns(limit int) ([]*model.SyncRun, error)

	// Close releases the underlying storage engine.
	Close() error
}
