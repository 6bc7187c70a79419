package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirillkom/fashion-recommender/internal/index"
)

const catalogCSV = `id,Product Details,Brand Name,Available Sizes,Product Price
1,Classic white cotton t-shirt with crew neck,Basics,"S,M,L",$19.99
2,Black leather jacket with zip pockets,Urban,"M,L",$149.00
3,Red floral summer dress,Bloom,"XS,S",$59.50
`

// fakeOllama answers /api/embed with a deterministic vector per input.
func fakeOllama(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" {
			http.NotFound(w, r)
			return
		}
		var req struct {
			Input []string `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		out := make([][]float32, len(req.Input))
		for i, text := range req.Input {
			out[i] = []float32{float32(len(text)%7) + 1, float32(i) + 1, 1}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"embeddings": out})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func setupEnv(t *testing.T, ollamaURL string) {
	t.Helper()
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("APP_ENV", "test")
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("EMBEDDING_PROVIDER", "ollama")
	t.Setenv("OLLAMA_URL", ollamaURL)
	t.Setenv("NATS_URL", "")
}

func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestBuildFromCSVWritesLoadableIndex(t *testing.T) {
	srv := fakeOllama(t)
	setupEnv(t, srv.URL)

	dir := t.TempDir()
	input := filepath.Join(dir, "catalog.csv")
	require.NoError(t, os.WriteFile(input, []byte(catalogCSV), 0o644))
	root := filepath.Join(dir, "index")

	out, err := runCmd(t, "build", "--source", "csv", "--input", input, "--out", root)
	require.NoError(t, err)
	assert.Contains(t, out, "(3 documents)")

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	bundle, err := index.Load(context.Background(), filepath.Join(root, entries[0].Name()))
	require.NoError(t, err)
	assert.Equal(t, 3, bundle.Metadata.Len())
	assert.Equal(t, index.RerankerTokenOverlap, bundle.Reranker.Kind)

	doc, ok := bundle.Metadata.Document("2")
	require.True(t, ok)
	assert.Equal(t, 149.0, doc.Metadata["price"])
}

func TestBuildRejectsBadArguments(t *testing.T) {
	setupEnv(t, "http://127.0.0.1:1")

	_, err := runCmd(t, "build", "--source", "parquet", "--input", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown --source")

	_, err = runCmd(t, "build", "--source", "csv")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--input is required")

	_, err = runCmd(t, "build", "--source", "csv", "--input", "x", "--reranker", "cross-encoder-http")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "endpoint")
}

func TestPublishRequiresNATS(t *testing.T) {
	srv := fakeOllama(t)
	setupEnv(t, srv.URL)

	dir := t.TempDir()
	input := filepath.Join(dir, "catalog.csv")
	require.NoError(t, os.WriteFile(input, []byte(catalogCSV), 0o644))
	root := filepath.Join(dir, "index")
	_, err := runCmd(t, "build", "--input", input, "--out", root)
	require.NoError(t, err)
	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	_, err = runCmd(t, "publish", "--dir", filepath.Join(root, entries[0].Name()))
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "NATS_URL"), err.Error())
}

func TestPublishRejectsUnloadableDirectory(t *testing.T) {
	setupEnv(t, "http://127.0.0.1:1")

	_, err := runCmd(t, "publish", "--dir", t.TempDir())
	require.Error(t, err)
}
