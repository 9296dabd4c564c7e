package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tendermatch/internal/config"
	"tendermatch/internal/model"
)

func TestCleanText(t *testing.T) {
	if got := cleanText("line one\nline two\n"); got != "line one line two" {
		t.Fatalf("cleanText=%q", got)
	}
	if got := cleanText("\n\n"); got != "" {
		t.Fatalf("cleanText(newlines only)=%q, want empty", got)
	}
}

func TestCosine(t *testing.T) {
	a := []float32{1, 0, 0}
	b := []float32{0, 1, 0}
	if got := Cosine(a, a); got < 0.999 {
		t.Fatalf("Cosine(a,a)=%v, want ~1", got)
	}
	if got := Cosine(a, b); got != 0 {
		t.Fatalf("Cosine(orthogonal)=%v, want 0", got)
	}
	if got := Cosine(a, []float32{1, 0}); got != 0 {
		t.Fatalf("Cosine(mismatched lengths)=%v, want 0", got)
	}
	if got := Cosine(nil, a); got != 0 {
		t.Fatalf("Cosine(empty)=%v, want 0", got)
	}
}

// fakeEmbeddingServer mimics the provider: one 1536-dim vector per input.
func fakeEmbeddingServer(t *testing.T) (*httptest.Server, *int) {
	t.Helper()
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		var req struct {
			Input []string `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		type datum struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		}
		resp := struct {
			Data []datum `json:"data"`
		}{}
		for i := range req.Input {
			vec := make([]float32, model.EmbeddingDim)
			vec[0] = float32(i + 1)
			resp.Data = append(resp.Data, datum{Embedding: vec, Index: i})
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	t.Cleanup(server.Close)
	return server, &calls
}

func testClient(t *testing.T, baseURL string) *OpenAIClient {
	return NewOpenAIClient(config.EmbeddingConfig{
		APIKey:      "test-key",
		BaseURL:     baseURL + "/v1",
		Model:       "text-embedding-3-small",
		Timeout:     5 * time.Second,
		MaxAttempts: 2,
	}, zap.NewNop())
}

func TestEmbedEmptyTextSkipsProvider(t *testing.T) {
	server, calls := fakeEmbeddingServer(t)
	client := testClient(t, server.URL)

	vec, err := client.Embed(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, vec)
	assert.Equal(t, 0, *calls)
}

func TestEmbedBatchPreservesOrderAndEmpties(t *testing.T) {
	server, _ := fakeEmbeddingServer(t)
	client := testClient(t, server.URL)

	vecs, err := client.EmbedBatch(context.Background(), []string{"first", "", "third"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.Len(t, vecs[0], model.EmbeddingDim)
	assert.Empty(t, vecs[1])
	assert.Len(t, vecs[2], model.EmbeddingDim)
	// Provider saw two inputs; order maps back to original positions.
	assert.Equal(t, float32(1), vecs[0][0])
	assert.Equal(t, float32(2), vecs[2][0])
}

func TestEmbedRejectsWrongDimensions(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[{"embedding":[0.1,0.2],"index":0}]}`))
	}))
	t.Cleanup(server.Close)
	client := testClient(t, server.URL)

	_, err := client.Embed(context.Background(), "some text")
	require.ErrorIs(t, err, model.ErrValidation)
}
