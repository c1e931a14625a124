package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campusqa/internal/app"
	"campusqa/internal/chunker"
	"campusqa/internal/config"
	"campusqa/internal/crawler"
	"campusqa/internal/domain"
)

// setupWorkspace writes a config using offline models and a fake language
// model, plus a small crawl, and returns the config path.
func setupWorkspace(t *testing.T) string {
	t.Helper()
	for _, k := range []string{"CAMPUSQA_OLLAMA_URL", "CAMPUSQA_INDEX_PATH", "CAMPUSQA_REDIS_ADDR", "CAMPUSQA_LOG_LEVEL"} {
		t.Setenv(k, "")
	}

	llm := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"response": " The Jindal School offers an MS in Accounting. ",
			"done":     true,
		})
	}))
	t.Cleanup(llm.Close)

	dir := t.TempDir()
	data := filepath.Join(dir, "data")
	require.NoError(t, (&crawler.Result{Pages: []crawler.PageRecord{
		{URL: "https://jindal.utdallas.edu/accounting", ExtractedText: "UTD offers an MS in Accounting. The program takes two years."},
		{URL: "https://fin.utdallas.edu/ms-finance", ExtractedText: "The MS in Finance covers investments and corporate finance."},
		{URL: "https://jindal.utdallas.edu/empty", ExtractedText: "   "},
	}}).Save(data))

	path := filepath.Join(dir, "campusqa.yaml")
	yaml := "data_dir: " + data + `
embedder:
  type: hashing
  cache:
    enabled: false
vector_store:
  type: sqlite
  collection: pages
reranker:
  type: lexical
llm:
  base_url: ` + llm.URL + `
log:
  level: error
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	askJSON, indexReset, crawlSeeds, serveAddr = false, false, "", ""
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	defer rootCmd.SetArgs(nil)
	err := rootCmd.Execute()
	return buf.String(), err
}

func TestRootCmd_HasSubcommands(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"crawl", "tag", "chunk", "index", "ingest", "ask", "chat", "serve", "stats"} {
		assert.True(t, names[want], want)
	}
}

func TestPipelineCommands(t *testing.T) {
	cfgFile := setupWorkspace(t)

	out, err := run(t, "tag", "--config", cfgFile)
	require.NoError(t, err, out)
	assert.Contains(t, out, "Tagged 3 records")

	out, err = run(t, "chunk", "--config", cfgFile)
	require.NoError(t, err, out)
	assert.Contains(t, out, "Wrote 2 chunks")
	assert.Contains(t, out, "chunked=2, skipped=1")

	out, err = run(t, "index", "--config", cfgFile)
	require.NoError(t, err, out)
	assert.Contains(t, out, "Indexed 2 passages into pages with hashing-512")

	// indexing again is an upsert
	_, err = run(t, "index", "--config", cfgFile)
	require.NoError(t, err)

	out, err = run(t, "stats", "--config", cfgFile)
	require.NoError(t, err, out)
	assert.Contains(t, out, "Model:      hashing-512")
	assert.Contains(t, out, "Dimension:  512")
	assert.Contains(t, out, "Entries:    2")

	out, err = run(t, "ask", "Does", "UTD", "offer", "an", "MS", "in", "Accounting?", "--config", cfgFile)
	require.NoError(t, err, out)
	assert.Contains(t, out, "The Jindal School offers an MS in Accounting.")
	assert.Contains(t, out, "[1] https://jindal.utdallas.edu/accounting")

	out, err = run(t, "ask", "accounting", "--json", "--config", cfgFile)
	require.NoError(t, err, out)
	var got struct {
		Answer  string `json:"answer"`
		Sources []struct {
			ID string `json:"id"`
		} `json:"sources"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "The Jindal School offers an MS in Accounting.", got.Answer)
	require.NotEmpty(t, got.Sources)
	assert.Equal(t, "https://jindal.utdallas.edu/accounting#chunk-0", got.Sources[0].ID)
}

func TestIngest_Reset(t *testing.T) {
	cfgFile := setupWorkspace(t)
	out, err := run(t, "ingest", "--reset", "--config", cfgFile)
	require.NoError(t, err, out)
	assert.Contains(t, out, "Replaced collection pages")
	assert.Contains(t, out, "Indexed 2 passages")
}

func TestIndex_FailedResetKeepsCollection(t *testing.T) {
	cfgFile := setupWorkspace(t)
	out, err := run(t, "ingest", "--config", cfgFile)
	require.NoError(t, err, out)

	chunksPath := filepath.Join(filepath.Dir(cfgFile), "data", app.ChunksFile)
	require.NoError(t, chunker.WriteChunkFile(chunksPath, []chunker.Record{
		{SourceURL: "https://jindal.utdallas.edu/accounting", Sitemap: "Jindal", ChunkText: "UTD offers an MS in Accounting.", ChunkID: "https://jindal.utdallas.edu/accounting#chunk-0"},
		{SourceURL: "https://jindal.utdallas.edu/empty", Sitemap: "Jindal", ChunkText: "  ", ChunkID: "https://jindal.utdallas.edu/empty#chunk-0"},
	}))
	out, err = run(t, "index", "--reset", "--config", cfgFile)
	assert.ErrorIs(t, err, domain.ErrEmptyInput)
	assert.NotContains(t, out, "Replaced collection")

	out, err = run(t, "stats", "--config", cfgFile)
	require.NoError(t, err, out)
	assert.Contains(t, out, "Entries:    2")
}

func TestAsk_WithoutIndex(t *testing.T) {
	cfgFile := setupWorkspace(t)
	_, err := run(t, "ask", "tuition", "--config", cfgFile)
	assert.ErrorIs(t, err, domain.ErrConfiguration)

	_, err = run(t, "stats", "--config", cfgFile)
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestCrawl_NeedsSeeds(t *testing.T) {
	cfgFile := setupWorkspace(t)
	_, err := run(t, "crawl", "--config", cfgFile)
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestAsk_RequiresQuestion(t *testing.T) {
	_, err := run(t, "ask")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires at least 1 arg(s)")
}

func TestWithRequestTimeout(t *testing.T) {
	cfg = &config.AppConfig{}
	cfg.Server.RequestTimeoutSecs = 7
	ctx, cancel := withRequestTimeout(context.Background())
	defer cancel()
	deadline, ok := ctx.Deadline()
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(7*time.Second), deadline, time.Second)

	cfg.Server.RequestTimeoutSecs = -1
	ctx, cancel = withRequestTimeout(context.Background())
	defer cancel()
	_, ok = ctx.Deadline()
	assert.False(t, ok)
}
