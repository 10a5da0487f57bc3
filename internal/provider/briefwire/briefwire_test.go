package briefwire

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"saturn/internal/domain"
	"saturn/internal/ratelimit"
)

func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	limiter := ratelimit.New("briefwire", ratelimit.NewMemoryStore(), DefaultWindows("bw")...)
	return New(Config{Token: "test-token", BaseURL: srv.URL, Limiter: limiter})
}

func TestListPage(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/feeds/daily_brief/items", r.URL.Path)
		assert.Equal(t, "Token test-token", r.Header.Get("Authorization"))
		assert.Equal(t, "10", r.URL.Query().Get("count"))

		if r.URL.Query().Get("cursor") == "" {
			w.Write([]byte(`{"items":[{"id":"n9"},{"id":"n8"}],"next_cursor":"page-2"}`))
			return
		}
		assert.Equal(t, "page-2", r.URL.Query().Get("cursor"))
		w.Write([]byte(`{"items":[{"id":"n7"}],"next_cursor":""}`))
	}))

	ids, next, err := c.ListPage(context.Background(), "daily_brief", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"n9", "n8"}, ids)
	assert.Equal(t, "page-2", next)

	ids, next, err = c.ListPage(context.Background(), "daily_brief", next)
	require.NoError(t, err)
	assert.Equal(t, []string{"n7"}, ids)
	assert.Empty(t, next, "exhausted feed returns no cursor")
}

func TestFetchItem(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/items/n9", r.URL.Path)
		w.Write([]byte(`{"id":"n9","published_at":"2024-06-03T06:00:00Z","title":"Morning brief","body":"Markets opened higher.","tags":["markets"],"extra":{"reading_minutes":4}}`))
	}))

	got, err := c.FetchItem(context.Background(), "daily_brief", "n9")
	require.NoError(t, err)

	doc := got.(domain.Document)
	assert.Equal(t, "n9", doc.NaturalKey())
	assert.Equal(t, time.Date(2024, 6, 3, 6, 0, 0, 0, time.UTC), doc.Date())
	assert.Equal(t, "Morning brief", doc.Fields["title"])
	assert.Equal(t, "daily_brief", doc.Fields["feed"])
	assert.Equal(t, float64(4), doc.Fields["reading_minutes"])
}

func TestFetchItemServerError(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))

	_, err := c.FetchItem(context.Background(), "daily_brief", "n9")
	require.Error(t, err)
}
