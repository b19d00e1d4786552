package recipebox_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"recipebox/internal/database"
	"recipebox/internal/model"
	"recipebox/internal/recipebox"
	"recipebox/internal/remote"
	"recipebox/internal/testutil"
)

type coordinatorFixture struct {
	c      *recipebox.Coordinator
	store  *database.SQLiteStore
	remote *remote.MemoryRemote
	flaky  *testutil.FlakyRemote
	clock  *testutil.StubClock
}

func newTestCoordinator(t *testing.T) *coordinatorFixture {
	t.Helper()

	store := testutil.NewTestLocalStore(t)
	mem := testutil.NewTestRemote()
	flaky := testutil.NewFlakyRemote(mem)
	clock := testutil.FixedClock()

	c := recipebox.NewCoordinator(store, flaky, recipebox.NewNopLogger(), clock, testutil.NewStubIDGenerator(), "device-a")
	return &coordinatorFixture{c: c, store: store, remote: mem, flaky: flaky, clock: clock}
}

func newRecipe(id, title string) *model.Recipe {
	return &model.Recipe{
		ID:           id,
		Title:        title,
		Servings:     4,
		Ingredients:  "flour, milk, eggs",
		Instructions: "mix and fry",
		IsActive:     true,
	}
}

func mustLocal(t *testing.T, store recipebox.LocalStore, id string) *model.Recipe {
	t.Helper()

	r, err := store.GetRecipe(id)
	if err != nil {
		t.Fatalf("GetRecipe(%s) error = %v", id, err)
	}
	if r == nil {
		t.Fatalf("GetRecipe(%s) = nil, want local copy", id)
	}
	return r
}

// corruptQueueStore serves queue rows that the real store would refuse to write.
type corruptQueueStore struct {
	recipebox.LocalStore
	items []*model.QueueItem
}

func (s *corruptQueueStore) QueueItems() ([]*model.QueueItem, error) {
	return s.items, nil
}

func ids(recipes []*model.Recipe) string {
	out := make([]string, len(recipes))
	for i, r := range recipes {
		out[i] = r.ID
	}
	return strings.Join(out, ",")
}

func TestCoordinator_StartsOffline(t *testing.T) {
	f := newTestCoordinator(t)

	if f.c.Online() {
		t.Error("Online() = true, want false before any connectivity signal")
	}
	if got := f.c.Owner(); got != "device-a" {
		t.Errorf("Owner() = %q, want device-a", got)
	}
}

func TestCoordinator_AddRecipe(t *testing.T) {
	ctx := context.Background()

	t.Run("offline add is stored locally and queued", func(t *testing.T) {
		f := newTestCoordinator(t)

		id, err := f.c.AddRecipe(ctx, &model.Recipe{Title: "Pancakes"})
		if err != nil {
			t.Fatalf("AddRecipe() error = %v", err)
		}
		if want := testutil.StubID(1); id != want {
			t.Errorf("AddRecipe() id = %q, want %s", id, want)
		}

		got := mustLocal(t, f.store, id)
		if got.Owner != "device-a" {
			t.Errorf("Owner = %q, want device-a", got.Owner)
		}
		if !got.CreatedAt.Equal(f.clock.Now()) || !got.UpdatedAt.Equal(f.clock.Now()) {
			t.Errorf("timestamps = %v/%v, want %v", got.CreatedAt, got.UpdatedAt, f.clock.Now())
		}

		pending := f.c.Pending()
		if len(pending) != 1 || pending[0].Action != model.ActionAdd || pending[0].TargetID() != id {
			t.Errorf("Pending() = %+v, want one add for %s", pending, id)
		}
		if f.flaky.Calls("Create") != 0 {
			t.Error("remote Create called while offline")
		}
	})

	t.Run("online add is delivered immediately", func(t *testing.T) {
		f := newTestCoordinator(t)
		f.c.SetOnline(ctx, true)

		id, err := f.c.AddRecipe(ctx, newRecipe("r-1", "Pancakes"))
		if err != nil {
			t.Fatalf("AddRecipe() error = %v", err)
		}
		if id != "r-1" {
			t.Errorf("AddRecipe() id = %q, want caller id kept", id)
		}
		if _, err := f.remote.Read(ctx, "r-1"); err != nil {
			t.Errorf("remote Read() error = %v, want delivered recipe", err)
		}
		if n := len(f.c.Pending()); n != 0 {
			t.Errorf("Pending() len = %d, want 0", n)
		}
	})

	t.Run("online add falls back to the queue when the remote fails", func(t *testing.T) {
		f := newTestCoordinator(t)
		f.c.SetOnline(ctx, true)
		f.flaky.FailAll(recipebox.ErrUnreachable)

		if _, err := f.c.AddRecipe(ctx, newRecipe("r-1", "Pancakes")); err != nil {
			t.Fatalf("AddRecipe() error = %v, want queued silently", err)
		}
		if n := len(f.c.Pending()); n != 1 {
			t.Errorf("Pending() len = %d, want 1", n)
		}
		mustLocal(t, f.store, "r-1")
	})

	t.Run("unauthorized online add is reported and not queued", func(t *testing.T) {
		f := newTestCoordinator(t)
		f.c.SetOnline(ctx, true)
		f.flaky.FailAll(recipebox.ErrUnauthorized)

		id, err := f.c.AddRecipe(ctx, newRecipe("r-1", "Pancakes"))
		if !errors.Is(err, recipebox.ErrUnauthorized) {
			t.Fatalf("AddRecipe() error = %v, want ErrUnauthorized", err)
		}
		if id != "r-1" {
			t.Errorf("AddRecipe() id = %q, want r-1 even on error", id)
		}
		if n := len(f.c.Pending()); n != 0 {
			t.Errorf("Pending() len = %d, want 0", n)
		}
		mustLocal(t, f.store, "r-1")
	})

	t.Run("caller's recipe is not mutated", func(t *testing.T) {
		f := newTestCoordinator(t)
		in := &model.Recipe{Title: "Pancakes"}

		if _, err := f.c.AddRecipe(ctx, in); err != nil {
			t.Fatalf("AddRecipe() error = %v", err)
		}
		if in.ID != "" || !in.CreatedAt.IsZero() {
			t.Errorf("input recipe mutated: %+v", in)
		}
	})
}

func TestCoordinator_UpdateRecipe(t *testing.T) {
	ctx := context.Background()

	t.Run("local reads reflect the edit before delivery", func(t *testing.T) {
		f := newTestCoordinator(t)
		if _, err := f.c.AddRecipe(ctx, newRecipe("r-1", "Pancakes")); err != nil {
			t.Fatalf("AddRecipe() error = %v", err)
		}

		f.clock.Advance(time.Minute)
		edit := mustLocal(t, f.store, "r-1")
		edit.Title = "Fluffy Pancakes"
		if err := f.c.UpdateRecipe(ctx, edit); err != nil {
			t.Fatalf("UpdateRecipe() error = %v", err)
		}

		got, ok := f.c.GetRecipe(ctx, "r-1")
		if !ok || got.Title != "Fluffy Pancakes" {
			t.Fatalf("GetRecipe() = %+v, %v, want updated title", got, ok)
		}
		if !got.UpdatedAt.Equal(f.clock.Now()) {
			t.Errorf("UpdatedAt = %v, want %v", got.UpdatedAt, f.clock.Now())
		}
		if got.CreatedAt.Equal(got.UpdatedAt) {
			t.Error("CreatedAt moved with the update")
		}

		pending := f.c.Pending()
		if len(pending) != 2 || pending[1].Action != model.ActionUpdate {
			t.Errorf("Pending() = %+v, want add then update", pending)
		}
	})

	t.Run("UpdatedAt never moves backwards", func(t *testing.T) {
		f := newTestCoordinator(t)
		if _, err := f.c.AddRecipe(ctx, newRecipe("r-1", "Pancakes")); err != nil {
			t.Fatalf("AddRecipe() error = %v", err)
		}

		f.clock.Advance(-time.Hour)
		edit := mustLocal(t, f.store, "r-1")
		want := edit.UpdatedAt
		edit.UpdatedAt = want.Add(-24 * time.Hour)
		if err := f.c.UpdateRecipe(ctx, edit); err != nil {
			t.Fatalf("UpdateRecipe() error = %v", err)
		}

		if got := mustLocal(t, f.store, "r-1"); got.UpdatedAt.Before(want) {
			t.Errorf("UpdatedAt = %v, went back from %v", got.UpdatedAt, want)
		}
	})

	t.Run("missing id is rejected", func(t *testing.T) {
		f := newTestCoordinator(t)
		if err := f.c.UpdateRecipe(ctx, &model.Recipe{Title: "Nameless"}); err == nil {
			t.Error("UpdateRecipe() without id succeeded")
		}
	})
}

func TestCoordinator_DeleteRecipe(t *testing.T) {
	ctx := context.Background()

	t.Run("delete is idempotent", func(t *testing.T) {
		f := newTestCoordinator(t)
		f.c.SetOnline(ctx, true)
		if _, err := f.c.AddRecipe(ctx, newRecipe("r-1", "Pancakes")); err != nil {
			t.Fatalf("AddRecipe() error = %v", err)
		}

		for i := range 2 {
			if err := f.c.DeleteRecipe(ctx, "r-1"); err != nil {
				t.Fatalf("DeleteRecipe() call %d error = %v", i+1, err)
			}
		}

		if _, ok := f.c.GetRecipe(ctx, "r-1"); ok {
			t.Error("GetRecipe() found deleted recipe")
		}
		if f.remote.Len() != 0 {
			t.Errorf("remote Len() = %d, want 0", f.remote.Len())
		}
		if n := len(f.c.Pending()); n != 0 {
			t.Errorf("Pending() len = %d, want 0", n)
		}
	})

	t.Run("deleting an unknown id is not an error", func(t *testing.T) {
		f := newTestCoordinator(t)
		f.c.SetOnline(ctx, true)

		if err := f.c.DeleteRecipe(ctx, "never-existed"); err != nil {
			t.Errorf("DeleteRecipe() error = %v", err)
		}
	})

	t.Run("offline delete is queued", func(t *testing.T) {
		f := newTestCoordinator(t)

		if err := f.c.DeleteRecipe(ctx, "r-1"); err != nil {
			t.Fatalf("DeleteRecipe() error = %v", err)
		}
		pending := f.c.Pending()
		if len(pending) != 1 || pending[0].Action != model.ActionDelete || pending[0].Recipe != nil {
			t.Errorf("Pending() = %+v, want one delete without payload", pending)
		}
	})
}

func TestCoordinator_LikeRecipe(t *testing.T) {
	ctx := context.Background()

	t.Run("each liker counts at most once", func(t *testing.T) {
		f := newTestCoordinator(t)
		f.c.SetOnline(ctx, true)
		if _, err := f.c.AddRecipe(ctx, newRecipe("r-1", "Pancakes")); err != nil {
			t.Fatalf("AddRecipe() error = %v", err)
		}

		for range 3 {
			if _, err := f.c.LikeRecipe(ctx, "r-1", "bob"); err != nil {
				t.Fatalf("LikeRecipe() error = %v", err)
			}
		}
		got, err := f.c.LikeRecipe(ctx, "r-1", "")
		if err != nil {
			t.Fatalf("LikeRecipe() error = %v", err)
		}

		if got.TotalLikes != 2 || strings.Join(got.LikedBy, ",") != "bob,device-a" {
			t.Errorf("likes = %d %v, want 2 [bob device-a]", got.TotalLikes, got.LikedBy)
		}
		if n := f.flaky.Calls("Like"); n != 2 {
			t.Errorf("remote Like calls = %d, want 2", n)
		}
		remoteCopy, err := f.remote.Read(ctx, "r-1")
		if err != nil {
			t.Fatalf("remote Read() error = %v", err)
		}
		if remoteCopy.TotalLikes != 2 {
			t.Errorf("remote TotalLikes = %d, want 2", remoteCopy.TotalLikes)
		}
	})

	t.Run("like does not bump UpdatedAt", func(t *testing.T) {
		f := newTestCoordinator(t)
		if _, err := f.c.AddRecipe(ctx, newRecipe("r-1", "Pancakes")); err != nil {
			t.Fatalf("AddRecipe() error = %v", err)
		}
		before := mustLocal(t, f.store, "r-1").UpdatedAt

		f.clock.Advance(time.Hour)
		got, err := f.c.LikeRecipe(ctx, "r-1", "bob")
		if err != nil {
			t.Fatalf("LikeRecipe() error = %v", err)
		}
		if !got.UpdatedAt.Equal(before) {
			t.Errorf("UpdatedAt = %v, want unchanged %v", got.UpdatedAt, before)
		}
	})

	t.Run("offline like is queued as an update", func(t *testing.T) {
		f := newTestCoordinator(t)
		if _, err := f.c.AddRecipe(ctx, newRecipe("r-1", "Pancakes")); err != nil {
			t.Fatalf("AddRecipe() error = %v", err)
		}

		if _, err := f.c.LikeRecipe(ctx, "r-1", "bob"); err != nil {
			t.Fatalf("LikeRecipe() error = %v", err)
		}
		pending := f.c.Pending()
		if len(pending) != 2 || pending[1].Action != model.ActionUpdate || pending[1].Recipe.TotalLikes != 1 {
			t.Errorf("Pending() = %+v, want add then update carrying the like", pending)
		}
	})

	t.Run("unknown recipe offline is not found", func(t *testing.T) {
		f := newTestCoordinator(t)
		if _, err := f.c.LikeRecipe(ctx, "missing", "bob"); !errors.Is(err, recipebox.ErrNotFound) {
			t.Errorf("LikeRecipe() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("remote-only recipe is liked remotely and cached", func(t *testing.T) {
		f := newTestCoordinator(t)
		if _, err := f.remote.Create(ctx, newRecipe("r-9", "Shared Soup")); err != nil {
			t.Fatalf("remote Create() error = %v", err)
		}
		f.c.SetOnline(ctx, true)

		got, err := f.c.LikeRecipe(ctx, "r-9", "bob")
		if err != nil {
			t.Fatalf("LikeRecipe() error = %v", err)
		}
		if got.TotalLikes != 1 {
			t.Errorf("TotalLikes = %d, want 1", got.TotalLikes)
		}
		mustLocal(t, f.store, "r-9")
	})
}

func TestCoordinator_GetRecipe(t *testing.T) {
	ctx := context.Background()
	f := newTestCoordinator(t)

	if _, err := f.remote.Create(ctx, newRecipe("r-remote", "Remote Stew")); err != nil {
		t.Fatalf("remote Create() error = %v", err)
	}

	if _, ok := f.c.GetRecipe(ctx, "r-remote"); ok {
		t.Error("GetRecipe() offline found a remote-only recipe")
	}

	f.c.SetOnline(ctx, true)
	got, ok := f.c.GetRecipe(ctx, "r-remote")
	if !ok || got.Title != "Remote Stew" {
		t.Errorf("GetRecipe() online = %+v, %v, want remote recipe", got, ok)
	}

	if _, ok := f.c.GetRecipe(ctx, "nowhere"); ok {
		t.Error("GetRecipe() found a recipe that does not exist")
	}

	f.flaky.FailAll(recipebox.ErrUnreachable)
	if _, ok := f.c.GetRecipe(ctx, "r-remote"); ok {
		t.Error("GetRecipe() with failing remote reported found")
	}
}

func TestCoordinator_GetRecipeWithQueuedDelete(t *testing.T) {
	ctx := context.Background()
	f := newTestCoordinator(t)
	f.c.SetOnline(ctx, true)

	id, err := f.c.AddRecipe(ctx, newRecipe("", "Pancakes"))
	if err != nil {
		t.Fatalf("AddRecipe() error = %v", err)
	}

	f.flaky.FailAll(recipebox.ErrUnreachable)
	if err := f.c.DeleteRecipe(ctx, id); err != nil {
		t.Fatalf("DeleteRecipe() error = %v", err)
	}
	f.flaky.FailAll(nil)

	if n := len(f.c.Pending()); n != 1 {
		t.Fatalf("Pending() len = %d, want the queued delete", n)
	}
	if _, err := f.remote.Read(ctx, id); err != nil {
		t.Fatalf("remote Read() error = %v, want the stale remote copy still present", err)
	}

	if got, ok := f.c.GetRecipe(ctx, id); ok {
		t.Errorf("GetRecipe() = %q, found = true; want not found while the delete is queued", got.Title)
	}
	if got := ids(f.c.GetRecipes(ctx, model.Query{})); got != "" {
		t.Errorf("GetRecipes() = %s, want none", got)
	}

	f.c.ProcessSyncQueue(ctx)
	if _, ok := f.c.GetRecipe(ctx, id); ok {
		t.Error("GetRecipe() found the recipe after the delete was delivered")
	}
}

func TestCoordinator_GetRecipes(t *testing.T) {
	ctx := context.Background()

	t.Run("offline returns local recipes newest first", func(t *testing.T) {
		f := newTestCoordinator(t)
		for _, id := range []string{"a", "b", "c"} {
			if _, err := f.c.AddRecipe(ctx, newRecipe(id, "Recipe "+id)); err != nil {
				t.Fatalf("AddRecipe() error = %v", err)
			}
			f.clock.Advance(time.Minute)
		}

		if got := ids(f.c.GetRecipes(ctx, model.Query{})); got != "c,b,a" {
			t.Errorf("GetRecipes() = %s, want c,b,a", got)
		}
	})

	t.Run("remote wins unless the id has pending local changes", func(t *testing.T) {
		f := newTestCoordinator(t)

		stale := newRecipe("synced", "Local Stale Title")
		stale.UpdatedAt = f.clock.Now()
		if _, err := f.store.PutRecipe(stale); err != nil {
			t.Fatalf("PutRecipe() error = %v", err)
		}
		fresh := newRecipe("synced", "Remote Title")
		fresh.UpdatedAt = f.clock.Now().Add(time.Hour)
		if _, err := f.remote.Create(ctx, fresh); err != nil {
			t.Fatalf("remote Create() error = %v", err)
		}

		edited := newRecipe("edited", "Remote Before Edit")
		edited.UpdatedAt = f.clock.Now().Add(2 * time.Hour)
		if _, err := f.remote.Create(ctx, edited); err != nil {
			t.Fatalf("remote Create() error = %v", err)
		}

		f.c.SetOnline(ctx, true)
		f.flaky.FailRecipe("edited", recipebox.ErrUnreachable)
		localEdit := edited.Clone()
		localEdit.Title = "Local Edit"
		if err := f.c.UpdateRecipe(ctx, localEdit); err != nil {
			t.Fatalf("UpdateRecipe() error = %v", err)
		}

		got := f.c.GetRecipes(ctx, model.Query{})
		titles := map[string]string{}
		for _, r := range got {
			titles[r.ID] = r.Title
		}
		if titles["synced"] != "Remote Title" {
			t.Errorf("synced title = %q, want remote version", titles["synced"])
		}
		if titles["edited"] != "Local Edit" {
			t.Errorf("edited title = %q, want pending local version", titles["edited"])
		}
		if len(got) != 2 {
			t.Errorf("GetRecipes() = %s, want each id once", ids(got))
		}
	})

	t.Run("pending delete hides the remote copy", func(t *testing.T) {
		f := newTestCoordinator(t)
		if _, err := f.remote.Create(ctx, newRecipe("gone", "Doomed Dish")); err != nil {
			t.Fatalf("remote Create() error = %v", err)
		}
		f.c.SetOnline(ctx, true)
		f.flaky.FailRecipe("gone", recipebox.ErrUnreachable)

		if err := f.c.DeleteRecipe(ctx, "gone"); err != nil {
			t.Fatalf("DeleteRecipe() error = %v", err)
		}
		if got := f.c.GetRecipes(ctx, model.Query{}); len(got) != 0 {
			t.Errorf("GetRecipes() = %s, want empty", ids(got))
		}
	})

	t.Run("local-only recipes follow remote ones", func(t *testing.T) {
		f := newTestCoordinator(t)
		if _, err := f.c.AddRecipe(ctx, newRecipe("local", "Local Only")); err != nil {
			t.Fatalf("AddRecipe() error = %v", err)
		}
		shared := newRecipe("shared", "Shared")
		shared.UpdatedAt = f.clock.Now().Add(-time.Hour)
		if _, err := f.remote.Create(ctx, shared); err != nil {
			t.Fatalf("remote Create() error = %v", err)
		}
		f.flaky.FailRecipe("local", recipebox.ErrUnreachable)
		f.c.SetOnline(ctx, true)

		if got := ids(f.c.GetRecipes(ctx, model.Query{})); got != "shared,local" {
			t.Errorf("GetRecipes() = %s, want shared,local", got)
		}
	})

	t.Run("remote failure falls back to local", func(t *testing.T) {
		f := newTestCoordinator(t)
		if _, err := f.c.AddRecipe(ctx, newRecipe("a", "Apple Pie")); err != nil {
			t.Fatalf("AddRecipe() error = %v", err)
		}
		f.flaky.FailAll(recipebox.ErrUnreachable)
		f.c.SetOnline(ctx, true)

		if got := ids(f.c.GetRecipes(ctx, model.Query{})); got != "a" {
			t.Errorf("GetRecipes() = %s, want a", got)
		}
	})

	t.Run("search, filters and owner apply", func(t *testing.T) {
		f := newTestCoordinator(t)
		soup := newRecipe("soup", "Tomato Soup")
		soup.IsPrivate = true
		for _, r := range []*model.Recipe{soup, newRecipe("cake", "Carrot Cake")} {
			if _, err := f.c.AddRecipe(ctx, r); err != nil {
				t.Fatalf("AddRecipe() error = %v", err)
			}
		}
		other := newRecipe("theirs", "Their Soup")
		other.Owner = "device-b"
		if _, err := f.store.PutRecipe(other); err != nil {
			t.Fatalf("PutRecipe() error = %v", err)
		}

		tests := []struct {
			name  string
			query model.Query
			want  string
		}{
			{"search", model.Query{Search: "SOUP", Owner: "device-a"}, "soup"},
			{"flag true", model.Query{Filters: map[string]bool{model.FlagPrivate: true}}, "soup"},
			{"flag false", model.Query{Filters: map[string]bool{model.FlagPrivate: false}, Owner: "device-a"}, "cake"},
			{"unknown flag is false", model.Query{Filters: map[string]bool{"is_spicy": true}}, ""},
			{"owner", model.Query{Owner: "device-b"}, "theirs"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				if got := ids(f.c.GetRecipes(ctx, tt.query)); got != tt.want {
					t.Errorf("GetRecipes(%+v) = %s, want %s", tt.query, got, tt.want)
				}
			})
		}
	})
}

func TestCoordinator_ProcessSyncQueue(t *testing.T) {
	ctx := context.Background()

	t.Run("offline drain is a no-op", func(t *testing.T) {
		f := newTestCoordinator(t)
		if _, err := f.c.AddRecipe(ctx, newRecipe("a", "Apple Pie")); err != nil {
			t.Fatalf("AddRecipe() error = %v", err)
		}

		res := f.c.ProcessSyncQueue(ctx)
		if res.Attempted != 0 || res.Remaining != 1 {
			t.Errorf("ProcessSyncQueue() = %+v, want nothing attempted and 1 remaining", res)
		}
	})

	t.Run("one failure does not stop the pass", func(t *testing.T) {
		f := newTestCoordinator(t)
		for _, id := range []string{"a", "b", "c"} {
			if _, err := f.c.AddRecipe(ctx, newRecipe(id, "Recipe "+id)); err != nil {
				t.Fatalf("AddRecipe() error = %v", err)
			}
		}
		f.flaky.FailRecipe("b", recipebox.ErrUnreachable)

		f.c.SetOnline(ctx, true)

		runs, err := f.c.History(10)
		if err != nil {
			t.Fatalf("History() error = %v", err)
		}
		if len(runs) != 1 {
			t.Fatalf("History() len = %d, want 1", len(runs))
		}
		if runs[0].Attempted != 3 || runs[0].Delivered != 2 || runs[0].Remaining != 1 {
			t.Errorf("run = %+v, want 3 attempted, 2 delivered, 1 remaining", runs[0])
		}

		pending := f.c.Pending()
		if len(pending) != 1 || pending[0].TargetID() != "b" {
			t.Fatalf("Pending() = %+v, want only b", pending)
		}
		stored, err := f.store.QueueItems()
		if err != nil {
			t.Fatalf("QueueItems() error = %v", err)
		}
		if len(stored) != 1 || stored[0].ID != pending[0].ID {
			t.Errorf("stored queue = %+v, want the same single item", stored)
		}

		f.flaky.FailRecipe("b", nil)
		res := f.c.ProcessSyncQueue(ctx)
		if res.Attempted != 1 || res.Delivered != 1 || res.Remaining != 0 {
			t.Errorf("retry ProcessSyncQueue() = %+v, want 1/1/0", res)
		}
		if f.remote.Len() != 3 {
			t.Errorf("remote Len() = %d, want 3", f.remote.Len())
		}
	})

	t.Run("mutations are replayed in order", func(t *testing.T) {
		f := newTestCoordinator(t)
		if _, err := f.c.AddRecipe(ctx, newRecipe("a", "First Draft")); err != nil {
			t.Fatalf("AddRecipe() error = %v", err)
		}
		edit := mustLocal(t, f.store, "a")
		edit.Title = "Final Draft"
		if err := f.c.UpdateRecipe(ctx, edit); err != nil {
			t.Fatalf("UpdateRecipe() error = %v", err)
		}

		f.c.SetOnline(ctx, true)

		got, err := f.remote.Read(ctx, "a")
		if err != nil {
			t.Fatalf("remote Read() error = %v", err)
		}
		if got.Title != "Final Draft" {
			t.Errorf("remote title = %q, want Final Draft", got.Title)
		}
	})

	t.Run("add then delete leaves nothing remotely", func(t *testing.T) {
		f := newTestCoordinator(t)
		if _, err := f.c.AddRecipe(ctx, newRecipe("a", "Apple Pie")); err != nil {
			t.Fatalf("AddRecipe() error = %v", err)
		}
		if err := f.c.DeleteRecipe(ctx, "a"); err != nil {
			t.Fatalf("DeleteRecipe() error = %v", err)
		}

		f.c.SetOnline(ctx, true)

		if f.remote.Len() != 0 {
			t.Errorf("remote Len() = %d, want 0", f.remote.Len())
		}
		if n := len(f.c.Pending()); n != 0 {
			t.Errorf("Pending() len = %d, want 0", n)
		}
	})

	t.Run("unauthorized items stay queued", func(t *testing.T) {
		f := newTestCoordinator(t)
		if _, err := f.c.AddRecipe(ctx, newRecipe("a", "Apple Pie")); err != nil {
			t.Fatalf("AddRecipe() error = %v", err)
		}
		f.flaky.FailAll(recipebox.ErrUnauthorized)

		f.c.SetOnline(ctx, true)

		if n := len(f.c.Pending()); n != 1 {
			t.Errorf("Pending() len = %d, want 1", n)
		}
	})

	t.Run("malformed items are dropped", func(t *testing.T) {
		store := testutil.NewTestLocalStore(t)
		broken := &model.QueueItem{ID: "q-1", Action: model.ActionUpdate, RecipeID: "a"}
		if err := store.AppendQueue(broken); err != nil {
			t.Fatalf("AppendQueue() error = %v", err)
		}

		c := recipebox.NewCoordinator(store, testutil.NewTestRemote(), recipebox.NewNopLogger(), testutil.FixedClock(), testutil.NewStubIDGenerator(), "device-a")
		c.SetOnline(ctx, true)

		if n := len(c.Pending()); n != 0 {
			t.Errorf("Pending() len = %d, want 0", n)
		}
	})

	t.Run("items with an unknown action are dropped", func(t *testing.T) {
		store := &corruptQueueStore{
			LocalStore: testutil.NewTestLocalStore(t),
			items:      []*model.QueueItem{{ID: "q-1", Action: model.Action("rename"), RecipeID: "a"}},
		}

		c := recipebox.NewCoordinator(store, testutil.NewTestRemote(), recipebox.NewNopLogger(), testutil.FixedClock(), testutil.NewStubIDGenerator(), "device-a")
		if n := len(c.Pending()); n != 1 {
			t.Fatalf("Pending() len = %d before sync, want 1", n)
		}
		c.SetOnline(ctx, true)

		if n := len(c.Pending()); n != 0 {
			t.Errorf("Pending() len = %d, want 0", n)
		}
		runs, err := c.History(1)
		if err != nil {
			t.Fatalf("History() error = %v", err)
		}
		if len(runs) != 1 || runs[0].Delivered != 1 || runs[0].Remaining != 0 {
			t.Errorf("History() = %+v, want one run with the item counted delivered", runs)
		}
	})

	t.Run("empty queue records no run", func(t *testing.T) {
		f := newTestCoordinator(t)
		f.c.SetOnline(ctx, true)

		if res := f.c.ProcessSyncQueue(ctx); res != (model.SyncResult{}) {
			t.Errorf("ProcessSyncQueue() = %+v, want zero result", res)
		}
		runs, err := f.c.History(0)
		if err != nil {
			t.Fatalf("History() error = %v", err)
		}
		if len(runs) != 0 {
			t.Errorf("History() len = %d, want 0", len(runs))
		}
	})
}

func TestCoordinator_ConcurrentDrainIsSkipped(t *testing.T) {
	ctx := context.Background()
	f := newTestCoordinator(t)
	if _, err := f.c.AddRecipe(ctx, newRecipe("a", "Apple Pie")); err != nil {
		t.Fatalf("AddRecipe() error = %v", err)
	}

	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	f.flaky.OnCall(func(method string) {
		if method == "Create" {
			once.Do(func() { close(started) })
			<-release
		}
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		f.c.SetOnline(ctx, true)
	}()

	<-started
	res := f.c.ProcessSyncQueue(ctx)
	if res.Attempted != 0 || res.Remaining != 1 {
		t.Errorf("overlapping ProcessSyncQueue() = %+v, want skipped", res)
	}

	close(release)
	<-done

	if n := f.flaky.Calls("Create"); n != 1 {
		t.Errorf("remote Create calls = %d, want 1", n)
	}
	if n := len(f.c.Pending()); n != 0 {
		t.Errorf("Pending() len = %d, want 0", n)
	}
}

func TestCoordinator_QueueSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewTestLocalStore(t)
	mem := testutil.NewTestRemote()

	first := recipebox.NewCoordinator(store, mem, recipebox.NewNopLogger(), testutil.FixedClock(), testutil.NewStubIDGenerator(), "device-a")
	if _, err := first.AddRecipe(ctx, newRecipe("a", "Apple Pie")); err != nil {
		t.Fatalf("AddRecipe() error = %v", err)
	}

	second := recipebox.NewCoordinator(store, mem, recipebox.NewNopLogger(), testutil.FixedClock(), testutil.NewStubIDGenerator(), "device-a")
	if n := len(second.Pending()); n != 1 {
		t.Fatalf("Pending() after restart len = %d, want 1", n)
	}

	second.SetOnline(ctx, true)
	if _, err := mem.Read(ctx, "a"); err != nil {
		t.Errorf("remote Read() error = %v, want delivered after restart", err)
	}
}

func TestCoordinator_LocalFailureDoesNotBlockRemote(t *testing.T) {
	ctx := context.Background()
	f := newTestCoordinator(t)
	f.c.SetOnline(ctx, true)
	f.store.Close()

	if _, err := f.c.AddRecipe(ctx, newRecipe("a", "Apple Pie")); err != nil {
		t.Fatalf("AddRecipe() error = %v", err)
	}
	if _, err := f.remote.Read(ctx, "a"); err != nil {
		t.Errorf("remote Read() error = %v, want delivered despite local failure", err)
	}

	f.c.SetOnline(ctx, false)
	if err := f.c.DeleteRecipe(ctx, "a"); err != nil {
		t.Fatalf("DeleteRecipe() error = %v", err)
	}
	if n := len(f.c.Pending()); n != 1 {
		t.Errorf("Pending() len = %d, want the in-memory queue to keep the delete", n)
	}
}

func TestCoordinator_UploadImage(t *testing.T) {
	ctx := context.Background()
	asset := &model.Asset{Name: "pancakes.png", ContentType: "image/png", Data: []byte("\x89PNG")}

	t.Run("offline embeds a data URL", func(t *testing.T) {
		f := newTestCoordinator(t)

		url, err := f.c.UploadImage(ctx, asset)
		if err != nil {
			t.Fatalf("UploadImage() error = %v", err)
		}
		if !strings.HasPrefix(url, "data:image/png;base64,") {
			t.Errorf("UploadImage() = %q, want data URL", url)
		}
	})

	t.Run("online uploads", func(t *testing.T) {
		f := newTestCoordinator(t)
		f.c.SetOnline(ctx, true)

		url, err := f.c.UploadImage(ctx, asset)
		if err != nil {
			t.Fatalf("UploadImage() error = %v", err)
		}
		if strings.HasPrefix(url, "data:") {
			t.Errorf("UploadImage() = %q, want remote URL", url)
		}
	})

	t.Run("upload failure falls back to a data URL", func(t *testing.T) {
		f := newTestCoordinator(t)
		f.c.SetOnline(ctx, true)
		f.flaky.FailAll(recipebox.ErrUnreachable)

		url, err := f.c.UploadImage(ctx, asset)
		if err != nil {
			t.Fatalf("UploadImage() error = %v", err)
		}
		if !strings.HasPrefix(url, "data:") {
			t.Errorf("UploadImage() = %q, want data URL", url)
		}
	})

	t.Run("unauthorized is reported", func(t *testing.T) {
		f := newTestCoordinator(t)
		f.c.SetOnline(ctx, true)
		f.flaky.FailAll(recipebox.ErrUnauthorized)

		if _, err := f.c.UploadImage(ctx, asset); !errors.Is(err, recipebox.ErrUnauthorized) {
			t.Errorf("UploadImage() error = %v, want ErrUnauthorized", err)
		}
	})

	t.Run("empty asset is rejected", func(t *testing.T) {
		f := newTestCoordinator(t)
		if _, err := f.c.UploadImage(ctx, &model.Asset{Name: "empty.png"}); err == nil {
			t.Error("UploadImage() with no data succeeded")
		}
	})
}

func TestCoordinator_SetOnlineIsEdgeTriggered(t *testing.T) {
	ctx := context.Background()
	f := newTestCoordinator(t)

	var transitions []bool
	unsubscribe := f.c.Subscribe(func(e recipebox.Event) {
		if e.Kind == recipebox.EventConnectivity {
			transitions = append(transitions, e.Online)
		}
	})
	defer unsubscribe()

	for _, online := range []bool{false, true, true, false, false, true} {
		f.c.SetOnline(ctx, online)
	}

	want := []bool{true, false, true}
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", transitions, want)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transitions = %v, want %v", transitions, want)
			break
		}
	}
}

func TestCoordinator_Events(t *testing.T) {
	ctx := context.Background()
	f := newTestCoordinator(t)

	var kinds []recipebox.EventKind
	var synced model.SyncResult
	unsubscribe := f.c.Subscribe(func(e recipebox.Event) {
		kinds = append(kinds, e.Kind)
		if e.Kind == recipebox.EventSynced {
			synced = e.Result
		}
	})

	if _, err := f.c.AddRecipe(ctx, newRecipe("a", "Apple Pie")); err != nil {
		t.Fatalf("AddRecipe() error = %v", err)
	}
	if err := f.c.DeleteRecipe(ctx, "a"); err != nil {
		t.Fatalf("DeleteRecipe() error = %v", err)
	}
	f.c.SetOnline(ctx, true)

	want := []recipebox.EventKind{
		recipebox.EventSaved,
		recipebox.EventDeleted,
		recipebox.EventConnectivity,
		recipebox.EventSynced,
	}
	if len(kinds) != len(want) {
		t.Fatalf("events = %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("events = %v, want %v", kinds, want)
		}
	}
	if synced.Attempted != 2 || synced.Delivered != 2 {
		t.Errorf("synced result = %+v, want 2 attempted and delivered", synced)
	}

	unsubscribe()
	if _, err := f.c.AddRecipe(ctx, newRecipe("b", "Banana Bread")); err != nil {
		t.Fatalf("AddRecipe() error = %v", err)
	}
	if len(kinds) != len(want) {
		t.Errorf("events after unsubscribe = %v, want no new events", kinds)
	}
}

// TestCoordinator_OfflineFirstRoundTrip walks one recipe through an offline
// edit session and the reconnect that follows.
func TestCoordinator_OfflineFirstRoundTrip(t *testing.T) {
	ctx := context.Background()
	f := newTestCoordinator(t)

	id, err := f.c.AddRecipe(ctx, &model.Recipe{
		Title:           "Pancakes",
		PreparationTime: 10,
		CookingTime:     15,
		Servings:        4,
		Ingredients:     "flour, milk, eggs",
		Instructions:    "mix, rest, fry",
		IsActive:        true,
	})
	if err != nil {
		t.Fatalf("AddRecipe() error = %v", err)
	}

	list := f.c.GetRecipes(ctx, model.Query{Search: "pancake"})
	if len(list) != 1 || list[0].ID != id {
		t.Fatalf("offline GetRecipes() = %s, want %s", ids(list), id)
	}

	if _, err := f.c.LikeRecipe(ctx, id, "bob"); err != nil {
		t.Fatalf("LikeRecipe() error = %v", err)
	}
	if f.remote.Len() != 0 {
		t.Fatalf("remote Len() = %d before reconnect, want 0", f.remote.Len())
	}

	f.c.SetOnline(ctx, true)

	got, err := f.remote.Read(ctx, id)
	if err != nil {
		t.Fatalf("remote Read() error = %v", err)
	}
	if got.Title != "Pancakes" || got.TotalLikes != 1 || got.Owner != "device-a" {
		t.Errorf("remote recipe = %+v, want Pancakes owned by device-a with one like", got)
	}
	if n := len(f.c.Pending()); n != 0 {
		t.Errorf("Pending() len = %d, want 0", n)
	}

	list = f.c.GetRecipes(ctx, model.Query{})
	if len(list) != 1 || list[0].TotalLikes != 1 {
		t.Errorf("online GetRecipes() = %+v, want the synced recipe once", list)
	}

	// A second device with an empty store sees the recipe through the remote.
	other := recipebox.NewCoordinator(testutil.NewTestLocalStore(t), f.remote, recipebox.NewNopLogger(), testutil.FixedClock(), testutil.NewStubIDGenerator(), "device-b")
	other.SetOnline(ctx, true)
	fromRemote, ok := other.GetRecipe(ctx, id)
	if !ok || fromRemote.Title != "Pancakes" || fromRemote.Ingredients != "flour, milk, eggs" {
		t.Errorf("fresh coordinator GetRecipe() = %+v, %v, want Pancakes", fromRemote, ok)
	}
}

func TestCoordinator_SealedRemote(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()

	enc := testutil.NewTestEncryptor()
	dec, err := enc.Unlock("")
	if err != nil {
		t.Fatalf("Unlock() error = %v", err)
	}
	sealed, err := remote.NewFileSystemRemote(root, remote.NewSealer(enc, dec))
	if err != nil {
		t.Fatalf("NewFileSystemRemote() error = %v", err)
	}

	c := recipebox.NewCoordinator(testutil.NewTestLocalStore(t), sealed, recipebox.NewNopLogger(), testutil.FixedClock(), testutil.NewStubIDGenerator(), "device-a")
	id, err := c.AddRecipe(ctx, newRecipe("", "Pancakes"))
	if err != nil {
		t.Fatalf("AddRecipe() error = %v", err)
	}
	c.SetOnline(ctx, true)
	if n := len(c.Pending()); n != 0 {
		t.Fatalf("Pending() len = %d after reconnect, want 0", n)
	}

	docs, err := os.ReadDir(filepath.Join(root, "recipes"))
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 1 {
		t.Fatalf("remote holds %d documents, want 1", len(docs))
	}
	raw, err := os.ReadFile(filepath.Join(root, "recipes", docs[0].Name()))
	if err != nil {
		t.Fatal(err)
	}
	if strings.HasPrefix(strings.TrimSpace(string(raw)), "{") {
		t.Error("remote document stored as plain JSON")
	}

	other := recipebox.NewCoordinator(testutil.NewTestLocalStore(t), sealed, recipebox.NewNopLogger(), testutil.FixedClock(), testutil.NewStubIDGenerator(), "device-b")
	other.SetOnline(ctx, true)
	got, ok := other.GetRecipe(ctx, id)
	if !ok || got.Title != "Pancakes" {
		t.Errorf("GetRecipe() through sealed remote = %+v, %v, want Pancakes", got, ok)
	}
}
