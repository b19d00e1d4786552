package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/oauth2"

	"recipebox/internal/config"
	"recipebox/internal/model"
	"recipebox/internal/recipebox"
)

// HTTPRemote talks to the recipe REST API:
//
//	GET    /recipes/?search=&user=&cursor=&limit=
//	GET    /recipes/<id>/
//	POST   /recipes/             {"recipe": {...}}
//	PUT    /recipes/<id>/        {"recipe": {...}}
//	DELETE /recipes/<id>/
//	POST   /recipes/<id>/like/   {"user": "<liker>"}
//	POST   /assets/              multipart form: owner, file
type HTTPRemote struct {
	base   *url.URL
	client *http.Client
}

// recipeEnvelope is the write body the API expects.
type recipeEnvelope struct {
	Recipe *model.Recipe `json:"recipe"`
}

// listResponse accepts both a paginated envelope and a bare array.
type listResponse struct {
	Results []*model.Recipe `json:"results"`
	Next    string          `json:"next"`
}

// NewHTTPRemote creates a client for the API at cfg.BaseURL. When a token is
// configured every request carries it as a bearer token.
func NewHTTPRemote(ctx context.Context, cfg config.RemoteConfig) (*HTTPRemote, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("http remote requires base_url to be set")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("parsing base_url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base_url must be http or https, got %q", cfg.BaseURL)
	}

	client := &http.Client{}
	if cfg.Token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token, TokenType: "Bearer"})
		client = oauth2.NewClient(ctx, ts)
	}
	client.Timeout = cfg.Timeout()

	return &HTTPRemote{base: base, client: client}, nil
}

func (h *HTTPRemote) Create(ctx context.Context, recipe *model.Recipe) (string, error) {
	var created model.Recipe
	if err := h.do(ctx, http.MethodPost, "recipes/", nil, recipeEnvelope{Recipe: recipe}, &created); err != nil {
		return "", fmt.Errorf("creating recipe %s: %w", recipe.ID, err)
	}
	if created.ID != "" {
		return created.ID, nil
	}
	return recipe.ID, nil
}

func (h *HTTPRemote) Read(ctx context.Context, id string) (*model.Recipe, error) {
	if err := validID(id); err != nil {
		return nil, fmt.Errorf("reading recipe: %w: %w", recipebox.ErrNotFound, err)
	}
	var r model.Recipe
	if err := h.do(ctx, http.MethodGet, recipePath(id), nil, nil, &r); err != nil {
		return nil, fmt.Errorf("reading recipe %s: %w", id, err)
	}
	return &r, nil
}

func (h *HTTPRemote) Update(ctx context.Context, id string, recipe *model.Recipe) error {
	if err := validID(id); err != nil {
		return fmt.Errorf("updating recipe: %w: %w", recipebox.ErrNotFound, err)
	}
	if err := h.do(ctx, http.MethodPut, recipePath(id), nil, recipeEnvelope{Recipe: recipe}, nil); err != nil {
		return fmt.Errorf("updating recipe %s: %w", id, err)
	}
	return nil
}

// Delete removes the recipe. A 404 counts as success.
func (h *HTTPRemote) Delete(ctx context.Context, id string) error {
	if validID(id) != nil {
		return nil
	}
	err := h.do(ctx, http.MethodDelete, recipePath(id), nil, nil, nil)
	if err != nil && !errors.Is(err, recipebox.ErrNotFound) {
		return fmt.Errorf("deleting recipe %s: %w", id, err)
	}
	return nil
}

func (h *HTTPRemote) List(ctx context.Context, query model.Query) (*model.Page, error) {
	params := url.Values{}
	if query.Search != "" {
		params.Set("search", query.Search)
	}
	if query.Owner != "" {
		params.Set("user", query.Owner)
	}
	if query.Cursor != "" {
		params.Set("cursor", query.Cursor)
	}
	if query.Limit > 0 {
		params.Set("limit", strconv.Itoa(query.Limit))
	}
	for name, want := range query.Filters {
		params.Set(name, strconv.FormatBool(want))
	}

	var raw json.RawMessage
	if err := h.do(ctx, http.MethodGet, "recipes/", params, nil, &raw); err != nil {
		return nil, fmt.Errorf("listing recipes: %w", err)
	}

	page := &model.Page{}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &page.Recipes); err != nil {
			return nil, fmt.Errorf("decoding recipe list: %w", err)
		}
		return page, nil
	}

	var resp listResponse
	if err := json.Unmarshal(trimmed, &resp); err != nil {
		return nil, fmt.Errorf("decoding recipe list: %w", err)
	}
	page.Recipes = resp.Results
	page.NextCursor = nextCursor(resp.Next)
	return page, nil
}

func (h *HTTPRemote) Like(ctx context.Context, id string, likerID string) (*model.Recipe, error) {
	if err := validID(id); err != nil {
		return nil, fmt.Errorf("liking recipe: %w: %w", recipebox.ErrNotFound, err)
	}
	body := map[string]string{"user": likerID}
	var r model.Recipe
	if err := h.do(ctx, http.MethodPost, recipePath(id)+"like/", nil, body, &r); err != nil {
		return nil, fmt.Errorf("liking recipe %s: %w", id, err)
	}
	return &r, nil
}

// UploadAsset posts the asset as a multipart form and returns the URL the server assigns.
func (h *HTTPRemote) UploadAsset(ctx context.Context, owner string, asset *model.Asset) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("owner", owner); err != nil {
		return "", fmt.Errorf("building upload form: %w", err)
	}
	fw, err := mw.CreateFormFile("file", asset.Name)
	if err != nil {
		return "", fmt.Errorf("building upload form: %w", err)
	}
	if _, err := fw.Write(asset.Data); err != nil {
		return "", fmt.Errorf("building upload form: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("building upload form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.resolve("assets/", nil), &body)
	if err != nil {
		return "", fmt.Errorf("creating upload request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var out struct {
		URL string `json:"url"`
	}
	if err := h.send(req, &out); err != nil {
		return "", fmt.Errorf("uploading asset %s: %w", asset.Name, err)
	}
	if out.URL == "" {
		return "", fmt.Errorf("uploading asset %s: server returned no url", asset.Name)
	}
	return out.URL, nil
}

// Ping requests a single recipe to check reachability and credentials.
func (h *HTTPRemote) Ping(ctx context.Context) error {
	params := url.Values{"limit": {"1"}}
	if err := h.do(ctx, http.MethodGet, "recipes/", params, nil, nil); err != nil {
		return fmt.Errorf("pinging remote: %w", err)
	}
	return nil
}

func (h *HTTPRemote) do(ctx context.Context, method, path string, params url.Values, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, h.resolve(path, params), body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return h.send(req, out)
}

// send executes req, maps the status code to an error kind and decodes the body into out.
func (h *HTTPRemote) send(req *http.Request, out any) error {
	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w: %w", req.Method, req.URL.Path, recipebox.ErrUnreachable, err)
	}
	defer resp.Body.Close()

	if err := statusError(resp); err != nil {
		return err
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func (h *HTTPRemote) resolve(path string, params url.Values) string {
	u := h.base.ResolveReference(&url.URL{Path: path})
	if len(params) > 0 {
		u.RawQuery = params.Encode()
	}
	return u.String()
}

// statusError maps a non-2xx response to an error kind, including a short
// excerpt of the body for diagnostics.
func statusError(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	detail := strings.TrimSpace(string(excerpt))
	status := fmt.Sprintf("%s %s: status %d", resp.Request.Method, resp.Request.URL.Path, resp.StatusCode)
	if detail != "" {
		status += ": " + detail
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%s: %w", status, recipebox.ErrUnauthorized)
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s: %w", status, recipebox.ErrNotFound)
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%s: %w", status, recipebox.ErrUnreachable)
	default:
		return errors.New(status)
	}
}

func recipePath(id string) string {
	return "recipes/" + id + "/"
}

// nextCursor extracts the cursor from a "next" link, which may be a full URL
// or a bare cursor value.
func nextCursor(next string) string {
	if next == "" {
		return ""
	}
	u, err := url.Parse(next)
	if err != nil || u.RawQuery == "" {
		return next
	}
	if c := u.Query().Get("cursor"); c != "" {
		return c
	}
	return next
}

// Compile-time check that HTTPRemote implements recipebox.RemoteService interface
var _ recipebox.RemoteService = (*HTTPRemote)(nil)
