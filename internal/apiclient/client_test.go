package apiclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/comicaholic/genai-studio/internal/http/rest"
	"github.com/comicaholic/genai-studio/internal/queue"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubQueue struct {
	mu    sync.Mutex
	items map[string]queue.Item
}

func (s *stubQueue) Enqueue(_ context.Context, artifactID string) (string, error) {
	if artifactID == "" {
		return "", queue.ErrInvalidArtifact
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := artifactID + "_1"
	s.items[id] = queue.Item{ID: id, ArtifactID: artifactID, Status: queue.StatusQueued}

	return id, nil
}

func (s *stubQueue) Get(id string) (queue.Item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.items[id]

	return it, ok
}

func (s *stubQueue) List() queue.Lists {
	s.mu.Lock()
	defer s.mu.Unlock()

	lists := queue.Lists{All: []queue.Item{}, Active: []queue.Item{}, Completed: []queue.Item{}}

	for _, it := range s.items {
		lists.All = append(lists.All, it)

		switch {
		case it.Status.IsActive():
			lists.Active = append(lists.Active, it)
		case it.Status == queue.StatusCompleted:
			lists.Completed = append(lists.Completed, it)
		}
	}

	return lists
}

func (s *stubQueue) Cancel(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.items[id]
	if !ok || !it.Status.IsActive() {
		return false
	}

	it.Status = queue.StatusCancelled
	s.items[id] = it

	return true
}

func (s *stubQueue) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.items[id]
	delete(s.items, id)

	return ok
}

func (s *stubQueue) ClearCompleted() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0

	for id, it := range s.items {
		if it.Status == queue.StatusCompleted {
			delete(s.items, id)
			n++
		}
	}

	return n
}

func newTestClient(t *testing.T) (*Client, *stubQueue) {
	t.Helper()

	q := &stubQueue{items: map[string]queue.Item{
		"done_9": {ID: "done_9", ArtifactID: "done", Status: queue.StatusCompleted, Progress: 100},
	}}

	r := chi.NewRouter()
	r.Mount("/api/downloads", rest.NewDownloadsHandler(q).Routes())

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	return NewClient(srv.URL + "/"), q
}

func TestClient_Lifecycle(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestClient(t)

	id, err := c.Enqueue(ctx, "demo/model-1")
	require.NoError(t, err)
	assert.Equal(t, "demo/model-1_1", id)

	item, err := c.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "demo/model-1", item.ArtifactID)
	assert.Equal(t, queue.StatusQueued, item.Status)

	lists, err := c.List(ctx)
	require.NoError(t, err)
	assert.Len(t, lists.All, 2)
	assert.Len(t, lists.Active, 1)
	assert.Len(t, lists.Completed, 1)

	ok, err := c.Cancel(ctx, id)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.Cancel(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok, "second cancel hits a terminal item")

	require.NoError(t, c.Remove(ctx, id))

	_, err = c.Get(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)

	removed, err := c.ClearCompleted(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
}

func TestClient_EnqueueRejected(t *testing.T) {
	c, _ := newTestClient(t)

	_, err := c.Enqueue(context.Background(), "")
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, queue.ErrInvalidArtifact.Error(), apiErr.Message)
}

func TestClient_RemoveUnknown(t *testing.T) {
	c, _ := newTestClient(t)

	err := c.Remove(context.Background(), "nope_1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestClient_PlainTextError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	_, err := NewClient(srv.URL).List(context.Background())

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "boom", apiErr.Message)
	assert.Contains(t, err.Error(), "server returned 500: boom")
}

func TestNewClient_DefaultServer(t *testing.T) {
	assert.Equal(t, DefaultServer, NewClient("").BaseURL)
}
