package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/comicaholic/genai-studio/internal/queue"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeQueue implements QueueService over a fixed table.
type fakeQueue struct {
	items      map[string]queue.Item
	enqueueErr error
	enqueued   []string
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{items: map[string]queue.Item{
		"demo/model-1_1": {ID: "demo/model-1_1", ArtifactID: "demo/model-1", Status: queue.StatusDownloading, Progress: 25},
		"done_2":         {ID: "done_2", ArtifactID: "done", Status: queue.StatusCompleted, Progress: 100},
	}}
}

func (f *fakeQueue) Enqueue(_ context.Context, artifactID string) (string, error) {
	if f.enqueueErr != nil {
		return "", f.enqueueErr
	}

	if artifactID == "" {
		return "", queue.ErrInvalidArtifact
	}

	f.enqueued = append(f.enqueued, artifactID)

	return artifactID + "_42", nil
}

func (f *fakeQueue) Get(id string) (queue.Item, bool) {
	it, ok := f.items[id]

	return it, ok
}

func (f *fakeQueue) List() queue.Lists {
	lists := queue.Lists{All: []queue.Item{}, Active: []queue.Item{}, Completed: []queue.Item{}}
	for _, it := range f.items {
		lists.All = append(lists.All, it)
	}

	return lists
}

func (f *fakeQueue) Cancel(id string) bool {
	it, ok := f.items[id]

	return ok && it.Status.IsActive()
}

func (f *fakeQueue) Remove(id string) bool {
	_, ok := f.items[id]
	delete(f.items, id)

	return ok
}

func (f *fakeQueue) ClearCompleted() int {
	return 1
}

func serve(t *testing.T, q QueueService, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()

	r := chi.NewRouter()
	r.Mount("/api/downloads", NewDownloadsHandler(q).Routes())

	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))

	return v
}

func TestHandleEnqueue(t *testing.T) {
	q := newFakeQueue()

	rec := serve(t, q, http.MethodPost, "/api/downloads", `{"artifact_id": "demo/model-2"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "demo/model-2_42", decode[EnqueueResponse](t, rec).ID)
	assert.Equal(t, []string{"demo/model-2"}, q.enqueued)
}

func TestHandleEnqueue_BadRequests(t *testing.T) {
	for name, body := range map[string]string{
		"not json":      `artifact`,
		"empty id":      `{"artifact_id": ""}`,
		"missing field": `{}`,
	} {
		t.Run(name, func(t *testing.T) {
			rec := serve(t, newFakeQueue(), http.MethodPost, "/api/downloads", body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.NotEmpty(t, decode[ErrorResponse](t, rec).Error)
		})
	}
}

func TestHandleEnqueue_Closed(t *testing.T) {
	q := newFakeQueue()
	q.enqueueErr = queue.ErrClosed

	rec := serve(t, q, http.MethodPost, "/api/downloads", `{"artifact_id": "x"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandleList(t *testing.T) {
	rec := serve(t, newFakeQueue(), http.MethodGet, "/api/downloads", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
	assert.Contains(t, raw, "all")
	assert.Contains(t, raw, "active")
	assert.Contains(t, raw, "completed")

	lists := decode[queue.Lists](t, rec)
	assert.Len(t, lists.All, 2)
}

func TestHandleGet(t *testing.T) {
	rec := serve(t, newFakeQueue(), http.MethodGet, "/api/downloads/"+url.PathEscape("demo/model-1_1"), "")
	require.Equal(t, http.StatusOK, rec.Code)

	it := decode[queue.Item](t, rec)
	assert.Equal(t, "demo/model-1_1", it.ID)
	assert.Equal(t, queue.StatusDownloading, it.Status)

	rec = serve(t, newFakeQueue(), http.MethodGet, "/api/downloads/missing_1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleCancel(t *testing.T) {
	q := newFakeQueue()

	rec := serve(t, q, http.MethodPost, "/api/downloads/"+url.PathEscape("demo/model-1_1")+"/cancel", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[SuccessResponse](t, rec).Success)

	rec = serve(t, q, http.MethodPost, "/api/downloads/done_2/cancel", "")
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.False(t, decode[SuccessResponse](t, rec).Success)
}

func TestHandleRemove(t *testing.T) {
	q := newFakeQueue()

	rec := serve(t, q, http.MethodDelete, "/api/downloads/done_2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[SuccessResponse](t, rec).Success)

	rec = serve(t, q, http.MethodDelete, "/api/downloads/done_2", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleClearCompleted(t *testing.T) {
	rec := serve(t, newFakeQueue(), http.MethodPost, "/api/downloads/clear-completed", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[ClearResponse](t, rec).Removed)
}

func TestHandleHealth(t *testing.T) {
	rec := httptest.NewRecorder()
	HandleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status": "ok"}`, rec.Body.String())
}
