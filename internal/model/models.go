package model

import (
	"encoding/base64"
	"fmt"
	"slices"
	"strings"
	"time"
)

// Recipe is the central entity shared between the local store and the remote backend.
// IDs are assigned client-side and never change once set.
type Recipe struct {
	ID              string    `json:"id"`
	Owner           string    `json:"user"` // device or account identifier, opaque to the core
	Title           string    `json:"title"`
	ImageURL        string    `json:"image_url,omitempty"`
	PreparationTime int       `json:"preparation_time"` // minutes
	CookingTime     int       `json:"cooking_time"`     // minutes
	Servings        int       `json:"servings"`
	Ingredients     string    `json:"ingredients"`
	Instructions    string    `json:"instructions"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
	IsActive        bool      `json:"is_active"`
	IsPrivate       bool      `json:"is_private"`
	IsDeleted       bool      `json:"is_deleted"`
	IsPublished     bool      `json:"is_published"`
	IsShared        bool      `json:"is_shared"`
	Rating          int       `json:"rating"`
	TotalLikes      int       `json:"total_likes"`
	LikedBy         []string  `json:"liked_by"`
}

// Flag names accepted by Recipe.Flag and by query filters.
const (
	FlagActive    = "is_active"
	FlagPrivate   = "is_private"
	FlagDeleted   = "is_deleted"
	FlagPublished = "is_published"
	FlagShared    = "is_shared"
)

// Clone returns a deep copy so callers can mutate without aliasing LikedBy.
func (r *Recipe) Clone() *Recipe {
	if r == nil {
		return nil
	}
	c := *r
	c.LikedBy = slices.Clone(r.LikedBy)
	return &c
}

// Flag returns the value of a boolean flag by its wire name.
// Unknown names report false.
func (r *Recipe) Flag(name string) bool {
	switch name {
	case FlagActive:
		return r.IsActive
	case FlagPrivate:
		return r.IsPrivate
	case FlagDeleted:
		return r.IsDeleted
	case FlagPublished:
		return r.IsPublished
	case FlagShared:
		return r.IsShared
	default:
		return false
	}
}

// Matches reports whether term occurs, case-insensitively, in the title,
// ingredients or instructions. An empty term matches everything.
func (r *Recipe) Matches(term string) bool {
	if term == "" {
		return true
	}
	term = strings.ToLower(term)
	return strings.Contains(strings.ToLower(r.Title), term) ||
		strings.Contains(strings.ToLower(r.Ingredients), term) ||
		strings.Contains(strings.ToLower(r.Instructions), term)
}

// MatchesFilters reports whether every flag in filters has the required value.
func (r *Recipe) MatchesFilters(filters map[string]bool) bool {
	for name, want := range filters {
		if r.Flag(name) != want {
			return false
		}
	}
	return true
}

// Like records likerID as a liker. It is idempotent per liker and
// reports whether the recipe changed.
func (r *Recipe) Like(likerID string) bool {
	if likerID == "" || slices.Contains(r.LikedBy, likerID) {
		return false
	}
	r.LikedBy = append(r.LikedBy, likerID)
	r.TotalLikes++
	return true
}

// Touch moves UpdatedAt to now without ever going backwards or below CreatedAt.
func (r *Recipe) Touch(now time.Time) {
	if now.After(r.UpdatedAt) {
		r.UpdatedAt = now
	}
	if r.UpdatedAt.Before(r.CreatedAt) {
		r.UpdatedAt = r.CreatedAt
	}
}

// Validate checks the field constraints enforced by the recipe API.
func (r *Recipe) Validate() error {
	if len(strings.TrimSpace(r.Title)) < 3 {
		return fmt.Errorf("title must be at least 3 characters long")
	}
	if r.PreparationTime < 0 {
		return fmt.Errorf("preparation time cannot be negative")
	}
	if r.CookingTime < 0 {
		return fmt.Errorf("cooking time cannot be negative")
	}
	if r.Servings < 0 {
		return fmt.Errorf("servings cannot be negative")
	}
	if r.Rating < 0 || r.Rating > 5 {
		return fmt.Errorf("rating must be between 0 and 5")
	}
	return nil
}

// Action is the kind of mutation carried by a QueueItem.
type Action string

const (
	ActionAdd    Action = "add"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Valid reports whether a is one of the known actions.
func (a Action) Valid() bool {
	return a == ActionAdd || a == ActionUpdate || a == ActionDelete
}

// QueueItem is a mutation waiting for remote delivery.
// Recipe is set for add and update; RecipeID alone is set for delete.
type QueueItem struct {
	ID         string    `json:"id"` // own UUID, independent of the recipe id
	Action     Action    `json:"action"`
	RecipeID   string    `json:"recipe_id"`
	Recipe     *Recipe   `json:"recipe,omitempty"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// TargetID returns the id of the recipe the item mutates.
func (q *QueueItem) TargetID() string {
	if q.Recipe != nil && q.Recipe.ID != "" {
		return q.Recipe.ID
	}
	return q.RecipeID
}

// Query describes a recipe listing request.
type Query struct {
	Search  string
	Filters map[string]bool
	Owner   string // empty means any owner
	Cursor  string
	Limit   int // 0 means backend default
}

// Page is one page of a remote listing, ordered by UpdatedAt descending.
type Page struct {
	Recipes    []*Recipe
	NextCursor string // empty on the last page
}

// Asset is an uploadable binary attached to a recipe, usually an image.
type Asset struct {
	Name        string
	ContentType string
	Data        []byte
}

// DataURL embeds the asset as an RFC 2397 data URL, used when it cannot be uploaded.
func (a *Asset) DataURL() string {
	contentType := a.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(a.Data)
}

// SyncResult summarizes one pass over the mutation queue.
type SyncResult struct {
	Attempted int
	Delivered int
	Remaining int
}

// SyncRun is a persisted record of a queue drain pass.
type SyncRun struct {
	ID         int64
	StartedAt  time.Time
	FinishedAt time.Time
	Attempted  int
	Delivered  int
	Remaining  int
}
