package testutil

import (
	"context"
	"fmt"
	"sync"

	"recipebox/internal/model"
	"recipebox/internal/recipebox"
	"recipebox/internal/remote"
)

// NewTestRemote creates a new in-memory remote for testing.
func NewTestRemote() *remote.MemoryRemote {
	return remote.NewMemoryRemote()
}

// FlakyRemote wraps a RemoteService and fails calls on demand.
// It counts every call by method name. Safe for concurrent use.
type FlakyRemote struct {
	inner recipebox.RemoteService

	mu     sync.Mutex
	err    error            // returned by every call when set
	failID map[string]error // per-recipe failures, checked before err
	calls  map[string]int
	hook   func(method string)
}

// NewFlakyRemote wraps inner. With no failures configured it passes every call through.
func NewFlakyRemote(inner recipebox.RemoteService) *FlakyRemote {
	return &FlakyRemote{
		inner:  inner,
		failID: make(map[string]error),
		calls:  make(map[string]int),
	}
}

// FailAll makes every subsequent call return err. Pass nil to recover.
func (f *FlakyRemote) FailAll(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// FailRecipe makes calls that target id return err. Pass nil to recover.
func (f *FlakyRemote) FailRecipe(id string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.failID, id)
		return
	}
	f.failID[id] = err
}

// OnCall registers fn to run at the start of every call, before any failure
// is injected. Tests use it to block or observe concurrent calls.
func (f *FlakyRemote) OnCall(fn func(method string)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hook = fn
}

// Calls returns how many times method has been called.
func (f *FlakyRemote) Calls(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func (f *FlakyRemote) before(method, id string) error {
	f.mu.Lock()
	f.calls[method]++
	hook := f.hook
	err := f.err
	if idErr, ok := f.failID[id]; ok && id != "" {
		err = idErr
	}
	f.mu.Unlock()

	if hook != nil {
		hook(method)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	return nil
}

func (f *FlakyRemote) Create(ctx context.Context, recipe *model.Recipe) (string, error) {
	if err := f.before("Create", recipe.ID); err != nil {
		return "", err
	}
	return f.inner.Create(ctx, recipe)
}

func (f *FlakyRemote) Read(ctx context.Context, id string) (*model.Recipe, error) {
	if err := f.before("Read", id); err != nil {
		return nil, err
	}
	return f.inner.Read(ctx, id)
}

func (f *FlakyRemote) Update(ctx context.Context, id string, recipe *model.Recipe) error {
	if err := f.before("Update", id); err != nil {
		return err
	}
	return f.inner.Update(ctx, id, recipe)
}

func (f *FlakyRemote) Delete(ctx context.Context, id string) error {
	if err := f.before("Delete", id); err != nil {
		return err
	}
	return f.inner.Delete(ctx, id)
}

func (f *FlakyRemote) List(ctx context.Context, query model.Query) (*model.Page, error) {
	if err := f.before("List", ""); err != nil {
		return nil, err
	}
	return f.inner.List(ctx, query)
}

func (f *FlakyRemote) Like(ctx context.Context, id string, likerID string) (*model.Recipe, error) {
	if err := f.before("Like", id); err != nil {
		return nil, err
	}
	return f.inner.Like(ctx, id, likerID)
}

func (f *FlakyRemote) UploadAsset(ctx context.Context, owner string, asset *model.Asset) (string, error) {
	if err := f.before("UploadAsset", ""); err != nil {
		return "", err
	}
	return f.inner.UploadAsset(ctx, owner, asset)
}

func (f *FlakyRemote) Ping(ctx context.Context) error {
	if err := f.before("Ping", ""); err != nil {
		return err
	}
	return f.inner.Ping(ctx)
}

// Compile-time check that FlakyRemote implements recipebox.RemoteService interface
var _ recipebox.RemoteService = (*FlakyRemote)(nil)
