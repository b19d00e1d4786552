package remote

import (
	"context"
	"fmt"
	"sync"

	"recipebox/internal/model"
	"recipebox/internal/recipebox"
)

// MemoryRemote is an in-memory implementation of the RemoteService interface.
// It is useful for testing and for running the CLI without a backend.
// This implementation is safe for concurrent use.
type MemoryRemote struct {
	mu      sync.RWMutex
	recipes map[string]*model.Recipe
	assets  map[string]*model.Asset // "owner/name" -> asset
}

// NewMemoryRemote creates an empty in-memory remote.
func NewMemoryRemote() *MemoryRemote {
	return &MemoryRemote{
		recipes: make(map[string]*model.Recipe),
		assets:  make(map[string]*model.Asset),
	}
}

// Create stores a copy of the recipe, overwriting any existing one.
func (m *MemoryRemote) Create(ctx context.Context, recipe *model.Recipe) (string, error) {
	if err := validID(recipe.ID); err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.recipes[recipe.ID] = recipe.Clone()
	return recipe.ID, nil
}

func (m *MemoryRemote) Read(ctx context.Context, id string) (*model.Recipe, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.recipes[id]
	if !ok {
		return nil, fmt.Errorf("reading recipe %s: %w", id, recipebox.ErrNotFound)
	}
	return r.Clone(), nil
}

func (m *MemoryRemote) Update(ctx context.Context, id string, recipe *model.Recipe) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.recipes[id]; !ok {
		return fmt.Errorf("updating recipe %s: %w", id, recipebox.ErrNotFound)
	}
	r := recipe.Clone()
	r.ID = id
	m.recipes[id] = r
	return nil
}

func (m *MemoryRemote) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.recipes, id)
	return nil
}

func (m *MemoryRemote) List(ctx context.Context, query model.Query) (*model.Page, error) {
	m.mu.RLock()
	all := make([]*model.Recipe, 0, len(m.recipes))
	for _, r := range m.recipes {
		all = append(all, r.Clone())
	}
	m.mu.RUnlock()

	return paginate(all, query)
}

func (m *MemoryRemote) Like(ctx context.Context, id string, likerID string) (*model.Recipe, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.recipes[id]
	if !ok {
		return nil, fmt.Errorf("liking recipe %s: %w", id, recipebox.ErrNotFound)
	}
	r.Like(likerID)
	return r.Clone(), nil
}

func (m *MemoryRemote) UploadAsset(ctx context.Context, owner string, asset *model.Asset) (string, error) {
	key := owner + "/" + asset.Name

	m.mu.Lock()
	defer m.mu.Unlock()

	m.assets[key] = &model.Asset{
		Name:        asset.Name,
		ContentType: asset.ContentType,
		Data:        append([]byte(nil), asset.Data...),
	}
	return "memory://assets/" + key, nil
}

// Ping always succeeds for the in-memory remote.
func (m *MemoryRemote) Ping(ctx context.Context) error {
	return nil
}

// Len returns the number of stored recipes.
func (m *MemoryRemote) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.recipes)
}

// Compile-time check that MemoryRemote implements recipebox.RemoteService interface
var _ recipebox.RemoteService = (*MemoryRemote)(nil)
