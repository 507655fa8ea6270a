package web

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/energy-linkage/internal/audit"
	"github.com/energy-linkage/internal/linkage"
	"github.com/energy-linkage/internal/logging"
	"github.com/energy-linkage/internal/match"
	"github.com/energy-linkage/internal/metrics"
	"github.com/energy-linkage/internal/record"
	"github.com/energy-linkage/internal/store"
	"github.com/energy-linkage/internal/web/handlers"
)

func key(dataset, id string, year int) record.Key {
	return record.Key{Dataset: dataset, LocalID: id, Year: year}
}

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(context.Background(), "sqlite::memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.EnsureSchema(context.Background()))
	return s
}

func saveRun(t *testing.T, s *store.Store) {
	t.Helper()
	a, b := key("eia", "1", 2020), key("ferc", "f1", 2020)
	sc := match.Score{Pair: match.Pair{A: a, B: b, Type: record.EntityPlant}, Confidence: 0.95, Threshold: 0.8, Accepted: true, Reason: match.ReasonAccepted}
	sc.Features[match.FeatJaroWinkler] = 1
	res := &linkage.Result{
		RunID: "run-1",
		Table: record.NewLinkageTable([]record.LinkageRow{
			{Key: a, Type: record.EntityPlant, EntityID: 1},
			{Key: b, Type: record.EntityPlant, EntityID: 1},
			{Key: key("eia", "1", 2021), Type: record.EntityPlant, EntityID: 1},
			{Key: key("eia", "2", 2020), Type: record.EntityPlant, EntityID: 2},
		}),
		Scores:      []linkage.ScoredPair{{Stage: linkage.StageCrossDataset, Score: sc}},
		Diagnostics: linkage.Diagnostics{Records: 4, Entities: 2},
	}
	require.NoError(t, s.SaveRun(context.Background(), store.Run{}, res))
}

func newTestServer(t *testing.T, cfg *Config, s *store.Store) http.Handler {
	t.Helper()
	logger := logging.New(io.Discard, zerolog.InfoLevel)
	srv, err := NewServer(cfg, Deps{
		Backend:   s,
		Overrides: audit.NewTracker(&logger, s),
		Metrics:   metrics.NewRecorder().Handler(),
		Model:     match.DefaultModel(),
		Logger:    &logger,
	})
	require.NoError(t, err)
	return srv.Handler()
}

func do(h http.Handler, method, path string, body string, headers map[string]string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthAndMetrics(t *testing.T) {
	h := newTestServer(t, DefaultConfig(), openStore(t))

	rec := do(h, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = do(h, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "linkage_runs_total")
}

func TestLatestRun(t *testing.T) {
	s := openStore(t)
	h := newTestServer(t, DefaultConfig(), s)

	assert.Equal(t, http.StatusNotFound, do(h, http.MethodGet, "/api/runs/latest", "", nil).Code)

	saveRun(t, s)
	rec := do(h, http.MethodGet, "/api/runs/latest", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var run store.Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
	assert.Equal(t, "run-1", run.ID)
	assert.Equal(t, 2, run.Entities)
}

func TestGetEntity(t *testing.T) {
	s := openStore(t)
	h := newTestServer(t, DefaultConfig(), s)

	assert.Equal(t, http.StatusNotFound, do(h, http.MethodGet, "/api/entities/1", "", nil).Code)
	saveRun(t, s)

	rec := do(h, http.MethodGet, "/api/entities/1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp handlers.EntityResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Members, 3)
	assert.Len(t, resp.Years[2020], 2)
	assert.Len(t, resp.Years[2021], 1)

	assert.Equal(t, http.StatusNotFound, do(h, http.MethodGet, "/api/entities/99", "", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(h, http.MethodGet, "/api/entities/1?run=other", "", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(h, http.MethodGet, "/api/entities/abc", "", nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(h, http.MethodGet, "/api/entities/0", "", nil).Code)
}

func TestGetRecord(t *testing.T) {
	s := openStore(t)
	saveRun(t, s)
	h := newTestServer(t, DefaultConfig(), s)

	rec := do(h, http.MethodGet, "/api/records/ferc/2020/f1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp handlers.RecordResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, record.EntityID(1), resp.Record.EntityID)
	assert.Len(t, resp.Members, 3)
	require.Len(t, resp.Pairs, 1)
	assert.True(t, resp.Pairs[0].Accepted)
	require.NotNil(t, resp.Pairs[0].Explanation)
	assert.Equal(t, "jaro_winkler", resp.Pairs[0].Explanation.Contributions[0].Feature)
	require.Len(t, resp.History, 1)
	assert.Equal(t, "run-1", resp.History[0].RunID)
	assert.Empty(t, resp.Overrides)

	require.NoError(t, s.SaveOverride(context.Background(), match.Override{
		A: key("eia", "2", 2020), B: key("ferc", "f1", 2020), Kind: match.CannotLink, Reviewer: "qa1",
	}))
	rec = do(h, http.MethodGet, "/api/records/ferc/2020/f1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp = handlers.RecordResponse{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Overrides, 1)
	assert.Equal(t, match.CannotLink, resp.Overrides[0].Kind)
	assert.Equal(t, "qa1", resp.Overrides[0].Reviewer)

	assert.Equal(t, http.StatusNotFound, do(h, http.MethodGet, "/api/records/ferc/2020/nope", "", nil).Code)
}

func TestCreateOverride(t *testing.T) {
	s := openStore(t)
	h := newTestServer(t, DefaultConfig(), s)

	body, err := json.Marshal(match.Override{A: key("eia", "2", 2020), B: key("ferc", "f1", 2020), Kind: "MUST_LINK", Reason: "same site"})
	require.NoError(t, err)

	rec := do(h, http.MethodPost, "/api/overrides", string(body), map[string]string{"X-Reviewer": "qa1"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	stored, err := s.LoadOverrides(context.Background())
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, match.MustLink, stored[0].Kind)
	assert.Equal(t, "qa1", stored[0].Reviewer)

	// no reviewer
	rec = do(h, http.MethodPost, "/api/overrides", string(body), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(h, http.MethodPost, "/api/overrides", `{"a":`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(h, http.MethodPost, "/api/overrides", `{"kind":"must_link","extra":1}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOverridesDisabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Features.ManualOverrideEnabled = false
	h := newTestServer(t, cfg, openStore(t))
	rec := do(h, http.MethodPost, "/api/overrides", `{}`, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAuthentication(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Auth = AuthConfig{Enabled: true, APIKey: "secret", ReadOpen: true}
	s := openStore(t)
	saveRun(t, s)
	h := newTestServer(t, cfg, s)

	assert.Equal(t, http.StatusOK, do(h, http.MethodGet, "/api/runs/latest", "", nil).Code)

	body := `{"a":{"dataset":"eia","local_id":"2","year":2020},"b":{"dataset":"eia","local_id":"3","year":2020},"kind":"cannot_link","reviewer":"qa1"}`
	assert.Equal(t, http.StatusUnauthorized, do(h, http.MethodPost, "/api/overrides", body, nil).Code)
	assert.Equal(t, http.StatusUnauthorized, do(h, http.MethodPost, "/api/overrides", body, map[string]string{"X-API-Key": "wrong"}).Code)
	assert.Equal(t, http.StatusCreated, do(h, http.MethodPost, "/api/overrides", body, map[string]string{"X-API-Key": "secret"}).Code)

	cfg.Auth.ReadOpen = false
	h = newTestServer(t, cfg, s)
	assert.Equal(t, http.StatusUnauthorized, do(h, http.MethodGet, "/api/runs/latest", "", nil).Code)
	// health stays open
	assert.Equal(t, http.StatusOK, do(h, http.MethodGet, "/healthz", "", nil).Code)
}

func TestConfigValidation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.Port = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Auth.Enabled = true
	assert.Error(t, cfg.Validate())

	_, err := NewServer(DefaultConfig(), Deps{})
	assert.Error(t, err)
}

func TestConfigApplyEnv(t *testing.T) {
	t.Setenv("LINKER_WEB_PORT", "9090")
	t.Setenv("LINKER_WEB_API_KEY", "secret")
	t.Setenv("LINKER_WEB_AUTH_ENABLED", "yes")
	t.Setenv("LINKER_WEB_OVERRIDES_ENABLED", "off")

	cfg := DefaultConfig()
	cfg.ApplyEnv()
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.True(t, cfg.Auth.Enabled)
	assert.Equal(t, "secret", cfg.Auth.APIKey)
	assert.False(t, cfg.Features.ManualOverrideEnabled)
	assert.NoError(t, cfg.Validate())
}

func TestRequestLoggingWritesLine(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.New(&buf, zerolog.InfoLevel)
	srv, err := NewServer(DefaultConfig(), Deps{Backend: openStore(t), Logger: &logger})
	require.NoError(t, err)
	do(srv.Handler(), http.MethodGet, "/healthz", "", nil)
	assert.Contains(t, buf.String(), `"path":"/healthz"`)
	assert.Contains(t, buf.String(), `"status":200`)
}
