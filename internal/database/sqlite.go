package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"recipebox/internal/database/migrations"
	"recipebox/internal/model"
	"recipebox/internal/recipebox"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Compile-time check that SQLiteStore implements recipebox.LocalStore.
var _ recipebox.LocalStore = (*SQLiteStore)(nil)

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const recipeColumns = `id, owner, title, image_url, preparation_time, cooking_time, servings,
	ingredients, instructions, created_at, updated_at,
	is_active, is_private, is_deleted, is_published, is_shared,
	rating, total_likes, liked_by`

// SQLiteStore implements recipebox.LocalStore using SQLite.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore opens the store at path and brings its schema up to date.
// path can be a file path or ":memory:" for an in-memory store.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}

	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating local store: %w", err)
	}

	return &SQLiteStore{db: db, path: path}, nil
}

// OpenConnection opens and configures a SQLite connection with appropriate PRAGMAs.
// The pool is pinned to a single connection: SQLite serializes writers anyway,
// and every statement against ":memory:" must see the same database.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	if path != ":memory:" {
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL")
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}

	return db, nil
}

// Recipe operations

func (s *SQLiteStore) PutRecipe(recipe *model.Recipe) (string, error) {
	if recipe == nil {
		return "", storageErr("putting recipe", errors.New("nil recipe"))
	}
	r := recipe.Clone()
	if r.ID == "" {
		r.ID = uuid.New().String()
	}

	likedBy, err := json.Marshal(nonNil(r.LikedBy))
	if err != nil {
		return "", storageErr("encoding liked_by", err)
	}

	_, err = s.db.ExecContext(context.Background(),
		`INSERT OR REPLACE INTO recipes (`+recipeColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Owner, r.Title, r.ImageURL, r.PreparationTime, r.CookingTime, r.Servings,
		r.Ingredients, r.Instructions, formatTime(r.CreatedAt), formatTime(r.UpdatedAt),
		r.IsActive, r.IsPrivate, r.IsDeleted, r.IsPublished, r.IsShared,
		r.Rating, r.TotalLikes, string(likedBy),
	)
	if err != nil {
		return "", storageErr("putting recipe "+r.ID, err)
	}
	return r.ID, nil
}

func (s *SQLiteStore) GetRecipe(id string) (*model.Recipe, error) {
	row := s.db.QueryRowContext(context.Background(),
		`SELECT `+recipeColumns+` FROM recipes WHERE id = ?`, id)

	r, err := scanRecipe(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, storageErr("getting recipe "+id, err)
	}
	return r, nil
}

func (s *SQLiteStore) DeleteRecipe(id string) error {
	if _, err := s.db.ExecContext(context.Background(), `DELETE FROM recipes WHERE id = ?`, id); err != nil {
		return storageErr("deleting recipe "+id, err)
	}
	return nil
}

func (s *SQLiteStore) ListRecipes() ([]*model.Recipe, error) {
	rows, err := s.db.QueryContext(context.Background(),
		`SELECT `+recipeColumns+` FROM recipes ORDER BY updated_at DESC, id`)
	if err != nil {
		return nil, storageErr("listing recipes", err)
	}
	defer rows.Close()

	var recipes []*model.Recipe
	for rows.Next() {
		r, err := scanRecipe(rows)
		if err != nil {
			return nil, storageErr("listing recipes", err)
		}
		recipes = append(recipes, r)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("listing recipes", err)
	}
	return recipes, nil
}

// Queue operations

func (s *SQLiteStore) AppendQueue(item *model.QueueItem) error {
	if item == nil || item.ID == "" {
		return storageErr("appending queue item", errors.New("queue item has no id"))
	}
	if !item.Action.Valid() {
		return storageErr("appending queue item "+item.ID, fmt.Errorf("invalid action %q", item.Action))
	}

	var payload sql.NullString
	if item.Recipe != nil {
		data, err := json.Marshal(item.Recipe)
		if err != nil {
			return storageErr("encoding queue payload", err)
		}
		payload = sql.NullString{String: string(data), Valid: true}
	}

	_, err := s.db.ExecContext(context.Background(),
		`INSERT INTO sync_queue (id, action, recipe_id, payload, enqueued_at) VALUES (?, ?, ?, ?, ?)`,
		item.ID, string(item.Action), item.TargetID(), payload, formatTime(item.EnqueuedAt),
	)
	if err != nil {
		return storageErr("appending queue item "+item.ID, err)
	}
	return nil
}

func (s *SQLiteStore) DrainQueue(ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	ctx := context.Background()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("starting transaction", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `DELETE FROM sync_queue WHERE id = ?`)
	if err != nil {
		return storageErr("preparing queue drain", err)
	}
	defer stmt.Close()

	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, id); err != nil {
			return storageErr("draining queue item "+id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return storageErr("committing queue drain", err)
	}
	return nil
}

// QueueItems returns the queue in insertion order. Rows whose payload can no
// longer be decoded come back without a recipe so the caller can drop them.
func (s *SQLiteStore) QueueItems() ([]*model.QueueItem, error) {
	rows, err := s.db.QueryContext(context.Background(),
		`SELECT id, action, recipe_id, payload, enqueued_at FROM sync_queue ORDER BY seq`)
	if err != nil {
		return nil, storageErr("reading queue", err)
	}
	defer rows.Close()

	var items []*model.QueueItem
	for rows.Next() {
		var (
			item       model.QueueItem
			action     string
			payload    sql.NullString
			enqueuedAt string
		)
		if err := rows.Scan(&item.ID, &action, &item.RecipeID, &payload, &enqueuedAt); err != nil {
			return nil, storageErr("reading queue", err)
		}
		item.Action = model.Action(action)
		item.EnqueuedAt, _ = parseTime(enqueuedAt)

		if payload.Valid {
			var r model.Recipe
			if err := json.Unmarshal([]byte(payload.String), &r); err == nil {
				item.Recipe = &r
			}
		}
		items = append(items, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("reading queue", err)
	}
	return items, nil
}

// Sync history

func (s *SQLiteStore) RecordSyncRun(run *model.SyncRun) error {
	res, err := s.db.ExecContext(context.Background(),
		`INSERT INTO sync_runs (started_at, finished_at, attempted, delivered, remaining) VALUES (?, ?, ?, ?, ?)`,
		formatTime(run.StartedAt), formatTime(run.FinishedAt), run.Attempted, run.Delivered, run.Remaining,
	)
	if err != nil {
		return storageErr("recording sync run", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return storageErr("recording sync run", err)
	}
	run.ID = id
	return nil
}

func (s *SQLiteStore) ListSyncRuns(limit int) ([]*model.SyncRun, error) {
	if limit <= 0 {
		limit = -1 // no limit
	}

	rows, err := s.db.QueryContext(context.Background(),
		`SELECT id, started_at, finished_at, attempted, delivered, remaining
		FROM sync_runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, storageErr("listing sync runs", err)
	}
	defer rows.Close()

	var runs []*model.SyncRun
	for rows.Next() {
		var (
			run               model.SyncRun
			started, finished string
		)
		if err := rows.Scan(&run.ID, &started, &finished, &run.Attempted, &run.Delivered, &run.Remaining); err != nil {
			return nil, storageErr("listing sync runs", err)
		}
		run.StartedAt, _ = parseTime(started)
		run.FinishedAt, _ = parseTime(finished)
		runs = append(runs, &run)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("listing sync runs", err)
	}
	return runs, nil
}

// Path returns the database file path, or ":memory:" for in-memory stores.
func (s *SQLiteStore) Path() string {
	return s.path
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecipe(row scanner) (*model.Recipe, error) {
	var (
		r                model.Recipe
		created, updated string
		likedBy          string
	)
	err := row.Scan(
		&r.ID, &r.Owner, &r.Title, &r.ImageURL, &r.PreparationTime, &r.CookingTime, &r.Servings,
		&r.Ingredients, &r.Instructions, &created, &updated,
		&r.IsActive, &r.IsPrivate, &r.IsDeleted, &r.IsPublished, &r.IsShared,
		&r.Rating, &r.TotalLikes, &likedBy,
	)
	if err != nil {
		return nil, err
	}

	if r.CreatedAt, err = parseTime(created); err != nil {
		return nil, fmt.Errorf("parsing created_at of %s: %w", r.ID, err)
	}
	if r.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, fmt.Errorf("parsing updated_at of %s: %w", r.ID, err)
	}
	if strings.TrimSpace(likedBy) != "" {
		if err := json.Unmarshal([]byte(likedBy), &r.LikedBy); err != nil {
			return nil, fmt.Errorf("decoding liked_by of %s: %w", r.ID, err)
		}
	}
	return &r, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// storageErr marks err as a local storage failure.
func storageErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, recipebox.ErrStorage, err)
}
