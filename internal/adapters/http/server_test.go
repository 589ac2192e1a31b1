package http

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/arbiter"
	"github.com/aretw0/arbiter/internal/adapters/memory"
	"github.com/aretw0/arbiter/internal/logging"
	"github.com/aretw0/arbiter/pkg/domain"
	"github.com/aretw0/arbiter/pkg/registry"
)

func moveWorkflow() registry.Workflow {
	return registry.Workflow{
		ActionType: "move",
		Version:    1,
		Phases: []registry.Phase{{
			Name: "apply",
			Apply: func(run *registry.Run) error {
				to, ok := run.String("to")
				if !ok {
					return registry.Rejectf("missing destination")
				}
				run.Append(domain.StateChange{
					TargetID: run.Action.ProposerID,
					Field:    "position",
					NewValue: to,
				})
				return nil
			},
		}},
	}
}

func newTestHandler(t *testing.T) (http.Handler, *arbiter.Engine) {
	t.Helper()

	streams := NewStreamManager(logging.NewNop())
	eng, err := arbiter.New("",
		arbiter.WithStore(memory.NewStore()),
		arbiter.WithTransport(streams),
		arbiter.WithWorkflows(moveWorkflow()),
		arbiter.WithPolicy(domain.PolicyTable{"move": domain.AuthorityAutomatic}),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, eng.Shutdown(context.Background()))
	})
	return NewHandler(eng, streams), eng
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *strings.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = strings.NewReader(string(raw))
	} else {
		reader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, reader)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func TestGetHealth(t *testing.T) {
	handler, _ := newTestHandler(t)

	rr := doJSON(t, handler, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, rr.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp["status"])
}

func TestGetSpec(t *testing.T) {
	handler, _ := newTestHandler(t)

	rr := doJSON(t, handler, http.MethodGet, "/openapi.yaml", nil)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "openapi:")
}

func TestSubmitAction(t *testing.T) {
	handler, _ := newTestHandler(t)

	rr := doJSON(t, handler, http.MethodPost, "/sessions/table-1/actions", domain.ActionRequest{
		ID:         "act-1",
		ProposerID: "pc-1",
		ActionType: "move",
		Payload:    map[string]any{"to": "B4"},
	})

	assert.Equal(t, http.StatusAccepted, rr.Code)
	var ack domain.Ack
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &ack))
	assert.Equal(t, "act-1", ack.ActionID)
	assert.Equal(t, domain.AckAccepted, ack.Status)
}

func TestSubmitAction_BadBody(t *testing.T) {
	handler, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/sessions/table-1/actions", strings.NewReader("{not json"))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestResolveRoll_UnknownCorrelation(t *testing.T) {
	handler, _ := newTestHandler(t)

	rr := doJSON(t, handler, http.MethodPost, "/sessions/table-1/rolls", domain.RollResult{
		CorrelationID: "no-such-roll",
		Total:         12,
	})

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestSubmitDecision_NoWaiter(t *testing.T) {
	handler, _ := newTestHandler(t)

	rr := doJSON(t, handler, http.MethodPost, "/sessions/table-1/decisions", domain.Decision{
		ActionID: "act-unknown",
		Verdict:  domain.DecisionAccept,
	})

	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestHeartbeat(t *testing.T) {
	handler, eng := newTestHandler(t)

	_, err := eng.Session(context.Background(), "table-1")
	require.NoError(t, err)

	rr := doJSON(t, handler, http.MethodPost, "/sessions/table-1/heartbeat", nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = doJSON(t, handler, http.MethodPost, "/sessions/never-opened/heartbeat", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestGetStatus(t *testing.T) {
	handler, eng := newTestHandler(t)

	rr := doJSON(t, handler, http.MethodGet, "/sessions/table-1/status", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	_, err := eng.Session(context.Background(), "table-1")
	require.NoError(t, err)

	rr = doJSON(t, handler, http.MethodGet, "/sessions/table-1/status", nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	var status map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &status))
	assert.Equal(t, "table-1", status["session_id"])
	assert.Contains(t, status, "liveness")
	assert.Contains(t, status, "queue_depth")
	assert.Contains(t, status, "pending_rolls")
}

func TestSubscribeEvents(t *testing.T) {
	handler, eng := newTestHandler(t)

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	t.Cleanup(cancel)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/sessions/table-1/events", nil)
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "event: ping\n", line)

	_, err = eng.Submit(context.Background(), domain.ActionRequest{
		ID:         "act-1",
		SessionID:  "table-1",
		ProposerID: "pc-1",
		ActionType: "move",
		Payload:    map[string]any{"to": "C7"},
	})
	require.NoError(t, err)

	var frame strings.Builder
	for !strings.Contains(frame.String(), "action_result") {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		frame.WriteString(line)
	}
	assert.Contains(t, frame.String(), "data: ")
}

func TestStreamManager_DropsSlowSubscribers(t *testing.T) {
	streams := NewStreamManager(logging.NewNop())

	ch, cancel := streams.Subscribe("table-1")
	t.Cleanup(cancel)

	for i := 0; i < 40; i++ {
		require.NoError(t, streams.Publish(context.Background(), domain.Event{
			Type:      domain.EventActionResult,
			SessionID: "table-1",
		}))
	}

	// Buffer holds 16 frames; the rest were dropped, not blocked on.
	assert.Len(t, ch, 16)
}
