package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokyo-trip-assistant/server/internal/agent/graph"
	"github.com/tokyo-trip-assistant/server/internal/agent/model"
)

type fakeRunner struct {
	result    *model.TurnResult
	err       error
	lastInput model.QueryInput
}

func (f *fakeRunner) Invoke(ctx context.Context, in model.QueryInput) (*model.TurnResult, error) {
	f.lastInput = in
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeRepo struct {
	model.ConversationRepository
	evicted []string
	err     error
}

func (f *fakeRepo) Evict(ctx context.Context, sessionID string) error {
	if f.err != nil {
		return f.err
	}
	f.evicted = append(f.evicted, sessionID)
	return nil
}

func newTestServer(runner graph.Runner, repo model.ConversationRepository, ready func(ctx context.Context) error) *httptest.Server {
	s := New(Config{}, runner, repo, ready)
	return httptest.NewServer(s.Routes())
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(b))
	require.NoError(t, err)
	return resp
}

func decodeChat(t *testing.T, resp *http.Response) ChatResponse {
	t.Helper()
	defer resp.Body.Close()
	var out ChatResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestChatReturnsReplyAndIntent(t *testing.T) {
	runner := &fakeRunner{result: &model.TurnResult{
		Reply: "Visit Senso-ji in Asakusa.",
		Intent: model.IntentResult{Scores: []model.CategoryScore{
			{Category: model.IntentSightseeing, Confidence: 0.9},
		}},
	}}
	ts := newTestServer(runner, &fakeRepo{}, nil)
	defer ts.Close()

	resp := postJSON(t, ts.URL+"/api/v1/chat", ChatRequest{SessionID: "s1", Message: "what should I see?"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	out := decodeChat(t, resp)
	assert.Equal(t, "s1", out.SessionID)
	assert.Equal(t, "Visit Senso-ji in Asakusa.", out.Reply)
	require.Len(t, out.Intent, 1)
	assert.Equal(t, model.IntentSightseeing, out.Intent[0].Category)
	assert.False(t, out.Timestamp.IsZero())
	assert.Equal(t, "s1", runner.lastInput.SessionID)
	assert.Equal(t, "what should I see?", runner.lastInput.Query)
}

func TestChatGeneratesSessionIDWhenAbsent(t *testing.T) {
	runner := &fakeRunner{result: &model.TurnResult{Reply: "hello!", Intent: model.FallbackIntent()}}
	ts := newTestServer(runner, &fakeRepo{}, nil)
	defer ts.Close()

	resp := postJSON(t, ts.URL+"/api/v1/chat", ChatRequest{Message: "hi"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	out := decodeChat(t, resp)
	assert.NotEmpty(t, out.SessionID)
	assert.Equal(t, out.SessionID, runner.lastInput.SessionID)
}

func TestChatRejectsEmptyMessage(t *testing.T) {
	ts := newTestServer(&fakeRunner{}, &fakeRepo{}, nil)
	defer ts.Close()

	resp := postJSON(t, ts.URL+"/api/v1/chat", ChatRequest{SessionID: "s1", Message: "   "})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestChatGenerationFailureReturnsFallbackReply(t *testing.T) {
	for _, sentinel := range []error{graph.ErrGenerationUnavailable, graph.ErrGenerationEmpty} {
		runner := &fakeRunner{err: fmt.Errorf("wrapped: %w", sentinel)}
		ts := newTestServer(runner, &fakeRepo{}, nil)

		resp := postJSON(t, ts.URL+"/api/v1/chat", ChatRequest{SessionID: "s1", Message: "hi"})
		require.Equal(t, http.StatusOK, resp.StatusCode)

		out := decodeChat(t, resp)
		assert.Equal(t, FallbackReply, out.Reply)
		assert.Equal(t, "s1", out.SessionID)
		require.Len(t, out.Intent, 1)
		assert.Equal(t, model.IntentSmallTalk, out.Intent[0].Category)
		ts.Close()
	}
}

func TestChatUnexpectedErrorReturns503(t *testing.T) {
	runner := &fakeRunner{err: fmt.Errorf("redis exploded")}
	ts := newTestServer(runner, &fakeRepo{}, nil)
	defer ts.Close()

	resp := postJSON(t, ts.URL+"/api/v1/chat", ChatRequest{SessionID: "s1", Message: "hi"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	// the session id is echoed even on failure responses
	var out errorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "s1", out.SessionID)
	assert.NotEmpty(t, out.Error)
}

func TestResetEvictsSession(t *testing.T) {
	repo := &fakeRepo{}
	ts := newTestServer(&fakeRunner{}, repo, nil)
	defer ts.Close()

	resp := postJSON(t, ts.URL+"/api/v1/chat/reset", ResetRequest{SessionID: "s9"})
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"s9"}, repo.evicted)
}

func TestResetRequiresSessionID(t *testing.T) {
	ts := newTestServer(&fakeRunner{}, &fakeRepo{}, nil)
	defer ts.Close()

	resp := postJSON(t, ts.URL+"/api/v1/chat/reset", ResetRequest{})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHealthAndReadiness(t *testing.T) {
	readyErr := error(nil)
	ts := newTestServer(&fakeRunner{}, &fakeRepo{}, func(ctx context.Context) error { return readyErr })
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/ready")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	readyErr = fmt.Errorf("redis down")
	resp, err = http.Get(ts.URL + "/ready")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(&fakeRunner{}, &fakeRepo{}, nil)
	defer ts.Close()

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/api/v1/chat", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}
