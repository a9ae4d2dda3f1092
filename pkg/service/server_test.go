package service

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ranswarm/ranswarm/pkg/agent"
	"github.com/ranswarm/ranswarm/pkg/lifecycle"
	"github.com/ranswarm/ranswarm/pkg/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*EngineServer, *agent.FeatureAgent) {
	t.Helper()

	config := agent.DefaultAgentConfig("agent-ho-1", "handover")
	config.ColdStartThreshold = 1
	config.Seed = 11

	bus := lifecycle.NewMemoryBus()
	fa := agent.NewFeatureAgent(config, memory.NewMockEmbedder(16), bus)

	require.NoError(t, fa.LoadKnowledge(context.Background(), []agent.KnowledgeEntry{
		{Content: "a3 offset shifts the handover trigger point"},
	}))
	require.NoError(t, fa.RecordInteraction())

	registry := agent.NewRegistry()
	registry.Register(fa)

	srv := NewEngineServer(registry, bus, nil, "")
	srv.setupRoutes()

	return srv, fa
}

func postJSON(t *testing.T, srv *EngineServer, path string, body any) *http.Response {
	t.Helper()

	buf, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(buf))
	req.Header.Set("Content-Type", "application/json")

	resp, err := srv.app.Test(req)
	require.NoError(t, err)

	return resp
}

func TestQueryEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv, "/query", QueryRequest{
		Feature:    "handover",
		Text:       "too many ping-pong handovers",
		QueryType:  "fault",
		Complexity: "high",
	})
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var decision agent.Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decision))
	assert.Equal(t, "agent-ho-1", decision.AgentID)
	assert.NotEmpty(t, decision.Action)
}

func TestQueryUnknownFeature(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv, "/query", QueryRequest{Feature: "massive-mimo"})
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestFeedbackEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv, "/query", QueryRequest{
		Feature: "handover", Text: "hysteresis tuning", QueryType: "config", Complexity: "low",
	})
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = postJSON(t, srv, "/feedback", FeedbackRequest{
		Feature: "handover", Rating: 1.0, Resolved: true,
	})
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]float64
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.InDelta(t, 1.5, body["reward"], 1e-9)
}

func TestFeedbackWithoutDecisionConflicts(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv, "/feedback", FeedbackRequest{Feature: "handover", Rating: 1.0})
	defer resp.Body.Close()

	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestAgentStatsEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/agents", nil)
	resp, err := srv.app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	req = httptest.NewRequest(http.MethodGet, "/agents/agent-ho-1/stats", nil)
	resp, err = srv.app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	buf, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(buf), "handover")

	req = httptest.NewRequest(http.MethodGet, "/agents/missing/stats", nil)
	resp, err = srv.app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHealthProbesDoNotShadowRoutes(t *testing.T) {
	srv, _ := newTestServer(t)

	for _, path := range []string{"/livez", "/readyz"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		resp, err := srv.app.Test(req)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}

	// The probe middleware must stay off the real GET routes: stats still
	// return agent JSON, unknown agents still 404.
	req := httptest.NewRequest(http.MethodGet, "/agents/agent-ho-1/stats", nil)
	resp, err := srv.app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	buf, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(buf), "agent-ho-1")

	req = httptest.NewRequest(http.MethodGet, "/agents/missing/stats", nil)
	resp, err = srv.app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCompleteEpisodeEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv, "/query", QueryRequest{
		Feature: "handover", Text: "ttt tuning", QueryType: "config", Complexity: "low",
	})
	resp.Body.Close()

	resp = postJSON(t, srv, "/agents/agent-ho-1/episode", nil)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, true, body["completed"])
}

func TestCheckpointWithoutStore(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv, "/agents/agent-ho-1/checkpoint", nil)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotImplemented, resp.StatusCode)
}
