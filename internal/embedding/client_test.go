package embedding

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(baseURL string) *Client {
	return &Client{
		client:     &http.Client{Timeout: 5 * time.Second},
		baseURL:    baseURL,
		apiKey:     "test-key",
		modelName:  "test-model",
		dimensions: 3,
	}
}

func TestEmbed_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[{"embedding":[0.1,0.2,0.3],"index":0}],"model":"test-model"}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	emb, err := c.Embed(context.Background(), "traffic jam on the A4")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, emb)
}

func TestEmbed_EmptyTextReturnsZeroVector(t *testing.T) {
	c := newTestClient("http://unreachable.invalid")
	emb, err := c.Embed(context.Background(), "   ")
	require.NoError(t, err)
	assert.Len(t, emb, 3)
	for _, v := range emb {
		assert.Zero(t, v)
	}
}

func TestEmbed_APIErrorIsFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.Embed(context.Background(), "some text")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status=429")
}

func TestEmbedBatch_PreservesOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Return results out of order; the client must sort them back by index.
		_, _ = w.Write([]byte(`{"data":[
			{"embedding":[0,0,2],"index":1},
			{"embedding":[0,0,1],"index":0}
		]}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	embs, err := c.EmbedBatch(context.Background(), []string{"first", "second"})
	require.NoError(t, err)
	require.Len(t, embs, 2)
	assert.Equal(t, []float32{0, 0, 1}, embs[0])
	assert.Equal(t, []float32{0, 0, 2}, embs[1])
}

func TestEmbedBatch_CountMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"embedding":[1,2,3],"index":0}]}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.EmbedBatch(context.Background(), []string{"a", "b"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 results for 2 inputs")
}
