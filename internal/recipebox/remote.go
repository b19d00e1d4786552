package recipebox

import (
	"context"

	"recipebox/internal/model"
)

// RemoteService is the canonical recipe backend: a document store, a REST API,
// an object store. Its availability is never assumed.
// Any method may fail with ErrUnreachable or ErrUnauthorized.
type RemoteService interface {
	// Create stores recipe under its id and returns that id.
	// Creating an id that already exists overwrites it, so replaying a queued add is safe.
	Create(ctx context.Context, recipe *model.Recipe) (string, error)

	// Read returns the recipe, or an error wrapping ErrNotFound.
	Read(ctx context.Context, id string) (*model.Recipe, error)

	// Update replaces the stored recipe. Fails with ErrNotFound if id is unknown.
	Update(ctx context.Context, id string, recipe *model.Recipe) error

	// Delete removes a recipe. Deleting a missing id is not an error.
	Delete(ctx context.Context, id string) error

	// List returns one page of recipes ordered by UpdatedAt descending.
	List(ctx context.Context, query model.Query) (*model.Page, error)

	// Like adds likerID to the recipe's likers. A repeated like is a no-op
	// that still returns the current recipe.
	Like(ctx context.Context, id string, likerID string) (*model.Recipe, error)

	// UploadAsset stores an asset on behalf of owner and returns a URL for it.
	UploadAsset(ctx context.Context, owner string, asset *model.Asset) (string, error)

	// Ping verifies the backend is reachable and the credentials are accepted.
	Ping(ctx context.Context) error
}
