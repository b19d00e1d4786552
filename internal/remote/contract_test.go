package remote

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"recipebox/internal/model"
	"recipebox/internal/recipebox"
)

var baseTime = time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

func testRecipe(id, owner, title string, updated time.Time) *model.Recipe {
	return &model.Recipe{
		ID:          id,
		Owner:       owner,
		Title:       title,
		Ingredients: "flour, milk, eggs",
		CreatedAt:   baseTime,
		UpdatedAt:   updated,
		IsActive:    true,
	}
}

// testRemoteContract runs the behaviour every RemoteService backend must share.
func testRemoteContract(t *testing.T, newRemote func(t *testing.T) recipebox.RemoteService) {
	t.Helper()
	ctx := context.Background()

	t.Run("create then read", func(t *testing.T) {
		r := newRemote(t)

		id, err := r.Create(ctx, testRecipe("r-1", "alice", "Pancakes", baseTime))
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		if id != "r-1" {
			t.Errorf("Create() id = %q, want %q", id, "r-1")
		}

		got, err := r.Read(ctx, "r-1")
		if err != nil {
			t.Fatalf("Read() error = %v", err)
		}
		if got.Title != "Pancakes" || got.Owner != "alice" {
			t.Errorf("Read() = %+v, want Pancakes by alice", got)
		}
		if !got.UpdatedAt.Equal(baseTime) {
			t.Errorf("UpdatedAt = %v, want %v", got.UpdatedAt, baseTime)
		}
	})

	t.Run("create is an upsert", func(t *testing.T) {
		r := newRemote(t)

		if _, err := r.Create(ctx, testRecipe("r-1", "alice", "Pancakes", baseTime)); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		if _, err := r.Create(ctx, testRecipe("r-1", "alice", "Waffles", baseTime)); err != nil {
			t.Fatalf("second Create() error = %v", err)
		}

		got, err := r.Read(ctx, "r-1")
		if err != nil {
			t.Fatalf("Read() error = %v", err)
		}
		if got.Title != "Waffles" {
			t.Errorf("Title = %q, want %q", got.Title, "Waffles")
		}
	})

	t.Run("read missing is not found", func(t *testing.T) {
		r := newRemote(t)

		_, err := r.Read(ctx, "missing")
		if !errors.Is(err, recipebox.ErrNotFound) {
			t.Errorf("Read() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("update replaces existing", func(t *testing.T) {
		r := newRemote(t)

		if _, err := r.Create(ctx, testRecipe("r-1", "alice", "Pancakes", baseTime)); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		if err := r.Update(ctx, "r-1", testRecipe("r-1", "alice", "Crepes", baseTime.Add(time.Hour))); err != nil {
			t.Fatalf("Update() error = %v", err)
		}

		got, err := r.Read(ctx, "r-1")
		if err != nil {
			t.Fatalf("Read() error = %v", err)
		}
		if got.Title != "Crepes" {
			t.Errorf("Title = %q, want %q", got.Title, "Crepes")
		}
	})

	t.Run("update missing is not found", func(t *testing.T) {
		r := newRemote(t)

		err := r.Update(ctx, "missing", testRecipe("missing", "alice", "Ghost", baseTime))
		if !errors.Is(err, recipebox.ErrNotFound) {
			t.Errorf("Update() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		r := newRemote(t)

		if _, err := r.Create(ctx, testRecipe("r-1", "alice", "Pancakes", baseTime)); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		if err := r.Delete(ctx, "r-1"); err != nil {
			t.Fatalf("Delete() error = %v", err)
		}
		if err := r.Delete(ctx, "r-1"); err != nil {
			t.Errorf("second Delete() error = %v, want nil", err)
		}
		if _, err := r.Read(ctx, "r-1"); !errors.Is(err, recipebox.ErrNotFound) {
			t.Errorf("Read() after delete error = %v, want ErrNotFound", err)
		}
	})

	t.Run("list orders newest first and pages", func(t *testing.T) {
		r := newRemote(t)

		for i, id := range []string{"a", "b", "c", "d", "e"} {
			if _, err := r.Create(ctx, testRecipe(id, "alice", "Recipe "+id, baseTime.Add(time.Duration(i)*time.Hour))); err != nil {
				t.Fatalf("Create(%s) error = %v", id, err)
			}
		}
		if _, err := r.Create(ctx, testRecipe("x", "bob", "Recipe x", baseTime.Add(10*time.Hour))); err != nil {
			t.Fatalf("Create(x) error = %v", err)
		}

		var ids []string
		query := model.Query{Owner: "alice", Limit: 2}
		for range 10 {
			page, err := r.List(ctx, query)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			for _, rec := range page.Recipes {
				ids = append(ids, rec.ID)
			}
			if page.NextCursor == "" {
				break
			}
			query.Cursor = page.NextCursor
		}

		if want := []string{"e", "d", "c", "b", "a"}; !slices.Equal(ids, want) {
			t.Errorf("listed ids = %v, want %v", ids, want)
		}
	})

	t.Run("list filters by search term", func(t *testing.T) {
		r := newRemote(t)

		if _, err := r.Create(ctx, testRecipe("r-1", "alice", "Pancakes", baseTime)); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		if _, err := r.Create(ctx, testRecipe("r-2", "alice", "Tomato Soup", baseTime)); err != nil {
			t.Fatalf("Create() error = %v", err)
		}

		page, err := r.List(ctx, model.Query{Search: "soup"})
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if len(page.Recipes) != 1 || page.Recipes[0].ID != "r-2" {
			t.Errorf("List(search=soup) = %v, want only r-2", page.Recipes)
		}
	})

	t.Run("like is idempotent per liker", func(t *testing.T) {
		r := newRemote(t)

		if _, err := r.Create(ctx, testRecipe("r-1", "alice", "Pancakes", baseTime)); err != nil {
			t.Fatalf("Create() error = %v", err)
		}

		for range 2 {
			got, err := r.Like(ctx, "r-1", "bob")
			if err != nil {
				t.Fatalf("Like() error = %v", err)
			}
			if got.TotalLikes != 1 || !slices.Equal(got.LikedBy, []string{"bob"}) {
				t.Errorf("Like() = %d %v, want 1 [bob]", got.TotalLikes, got.LikedBy)
			}
		}

		got, err := r.Read(ctx, "r-1")
		if err != nil {
			t.Fatalf("Read() error = %v", err)
		}
		if got.TotalLikes != 1 {
			t.Errorf("stored TotalLikes = %d, want 1", got.TotalLikes)
		}
	})

	t.Run("like missing is not found", func(t *testing.T) {
		r := newRemote(t)

		_, err := r.Like(ctx, "missing", "bob")
		if !errors.Is(err, recipebox.ErrNotFound) {
			t.Errorf("Like() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("upload asset returns url", func(t *testing.T) {
		r := newRemote(t)

		url, err := r.UploadAsset(ctx, "alice", &model.Asset{
			Name:        "pancakes.png",
			ContentType: "image/png",
			Data:        []byte("\x89PNG fake image"),
		})
		if err != nil {
			t.Fatalf("UploadAsset() error = %v", err)
		}
		if url == "" {
			t.Error("UploadAsset() returned empty url")
		}
	})

	t.Run("ping", func(t *testing.T) {
		r := newRemote(t)

		if err := r.Ping(ctx); err != nil {
			t.Errorf("Ping() error = %v", err)
		}
	})
}
