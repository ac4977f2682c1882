package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/invoice-reconciler/internal/application/workflow"
	"github.com/garyjia/invoice-reconciler/internal/domain/entity"
	domainwf "github.com/garyjia/invoice-reconciler/internal/domain/workflow"
)

type mockEngine struct {
	startFunc   func(ctx context.Context, threadID, vendorID string) (*workflow.RunResult, error)
	resumeFunc  func(ctx context.Context, threadID string, approved bool) (*workflow.RunResult, error)
	stateFunc   func(ctx context.Context, threadID string) (*workflow.StateSnapshot, error)
	recoverFunc func(ctx context.Context, threadID string) (*workflow.RunResult, error)
	historyFunc func(ctx context.Context, threadID string) ([]*entity.Checkpoint, error)
	purgeFunc   func(ctx context.Context, threadID string) error
	listFunc    func(ctx context.Context, olderThan time.Duration) ([]*entity.ThreadState, error)
}

func (m *mockEngine) StartRun(ctx context.Context, threadID, vendorID string) (*workflow.RunResult, error) {
	return m.startFunc(ctx, threadID, vendorID)
}

func (m *mockEngine) ResumeRun(ctx context.Context, threadID string, approved bool) (*workflow.RunResult, error) {
	return m.resumeFunc(ctx, threadID, approved)
}

func (m *mockEngine) GetState(ctx context.Context, threadID string) (*workflow.StateSnapshot, error) {
	return m.stateFunc(ctx, threadID)
}

func (m *mockEngine) Recover(ctx context.Context, threadID string) (*workflow.RunResult, error) {
	return m.recoverFunc(ctx, threadID)
}

func (m *mockEngine) History(ctx context.Context, threadID string) ([]*entity.Checkpoint, error) {
	return m.historyFunc(ctx, threadID)
}

func (m *mockEngine) Purge(ctx context.Context, threadID string) error {
	return m.purgeFunc(ctx, threadID)
}

func (m *mockEngine) ListInterrupted(ctx context.Context, olderThan time.Duration) ([]*entity.ThreadState, error) {
	return m.listFunc(ctx, olderThan)
}

type mockLogger struct{}

func (m *mockLogger) Info(msg string, keysAndValues ...interface{})  {}
func (m *mockLogger) Error(msg string, keysAndValues ...interface{}) {}

func newTestServer(engine *mockEngine) *Server {
	gin.SetMode(gin.TestMode)
	return NewServer(DefaultServerConfig(), engine, NewRedactor(DefaultPIIKeys), &mockLogger{})
}

func do(t *testing.T, s *Server, method, path, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return w, resp
}

func interruptedResult(threadID string) *workflow.RunResult {
	return &workflow.RunResult{
		ThreadID: threadID,
		RunID:    "run-1",
		Node:     domainwf.StateInterrupted,
		Status:   entity.RunStatusAwaitingApproval,
		Interrupt: &entity.InterruptDescriptor{
			Question:  "Ready to pay this $10,000.00 invoice. Approve?",
			InvoiceID: "INV-001",
			VendorID:  "V001",
			Amount:    1000000,
			Threshold: 500000,
		},
	}
}

func TestHealthCheck(t *testing.T) {
	s := newTestServer(&mockEngine{})
	w, resp := do(t, s, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, resp["success"])
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))
}

func TestHealthCheck_Degraded(t *testing.T) {
	gin.SetMode(gin.TestMode)
	s := NewServer(DefaultServerConfig(), &mockEngine{}, nil, &mockLogger{},
		WithHealthFunc(func(ctx context.Context) (bool, interface{}) {
			return false, map[string]string{"database": "ping failed"}
		}))

	w, resp := do(t, s, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	data := resp["data"].(map[string]interface{})
	assert.Equal(t, "degraded", data["status"])
	assert.Equal(t, "ping failed", data["components"].(map[string]interface{})["database"])
}

func TestRequestID_Propagated(t *testing.T) {
	s := newTestServer(&mockEngine{})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "req-42")
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	assert.Equal(t, "req-42", w.Header().Get(RequestIDHeader))
}

func TestPendingApprovals(t *testing.T) {
	var gotOlderThan time.Duration
	parked := time.Now().UTC().Add(-2 * time.Hour)
	s := newTestServer(&mockEngine{
		listFunc: func(ctx context.Context, olderThan time.Duration) ([]*entity.ThreadState, error) {
			gotOlderThan = olderThan
			st := interruptedResult("thread-1")
			return []*entity.ThreadState{{
				ThreadID:  st.ThreadID,
				RunID:     st.RunID,
				VendorID:  "V001",
				Node:      string(domainwf.StateInterrupted),
				Interrupt: st.Interrupt,
				UpdatedAt: parked,
			}}, nil
		},
	})

	w, resp := do(t, s, http.MethodGet, "/api/approvals?older_than=1h", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, time.Hour, gotOlderThan)

	items := resp["data"].([]interface{})
	require.Len(t, items, 1)
	item := items[0].(map[string]interface{})
	assert.Equal(t, "thread-1", item["thread_id"])
	assert.GreaterOrEqual(t, item["waiting_seconds"].(float64), float64(7200))
	assert.Equal(t, float64(1000000), item["interrupt"].(map[string]interface{})["amount_cents"])

	w, _ = do(t, s, http.MethodGet, "/api/approvals?older_than=soon", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPendingApprovals_Empty(t *testing.T) {
	s := newTestServer(&mockEngine{
		listFunc: func(ctx context.Context, olderThan time.Duration) ([]*entity.ThreadState, error) {
			return nil, nil
		},
	})

	w, resp := do(t, s, http.MethodGet, "/api/approvals", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []interface{}{}, resp["data"])
}

func TestStartRun(t *testing.T) {
	var gotThread, gotVendor string
	s := newTestServer(&mockEngine{
		startFunc: func(ctx context.Context, threadID, vendorID string) (*workflow.RunResult, error) {
			gotThread, gotVendor = threadID, vendorID
			return interruptedResult(threadID), nil
		},
	})

	w, resp := do(t, s, http.MethodPost, "/api/runs", `{"thread_id":"thread-1","vendor_id":"V001"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "thread-1", gotThread)
	assert.Equal(t, "V001", gotVendor)

	data := resp["data"].(map[string]interface{})
	assert.Equal(t, "INTERRUPTED", data["node"])
	interrupt := data["interrupt"].(map[string]interface{})
	assert.Equal(t, float64(1000000), interrupt["amount_cents"])
	assert.Contains(t, interrupt["question"], "Approve?")
}

func TestStartRun_BadRequest(t *testing.T) {
	s := newTestServer(&mockEngine{})

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"thread_id":`},
		{"missing thread", `{"vendor_id":"V001"}`},
		{"bad thread", `{"thread_id":"a b"}`},
		{"bad vendor", `{"thread_id":"t-1","vendor_id":"V/1"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, resp := do(t, s, http.MethodPost, "/api/runs", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, false, resp["success"])
		})
	}
}

func TestResumeRun(t *testing.T) {
	var gotApproved *bool
	s := newTestServer(&mockEngine{
		resumeFunc: func(ctx context.Context, threadID string, approved bool) (*workflow.RunResult, error) {
			gotApproved = &approved
			return &workflow.RunResult{ThreadID: threadID, Node: domainwf.StateEnd, Status: entity.RunStatusCancelled}, nil
		},
	})

	w, resp := do(t, s, http.MethodPost, "/api/runs/resume", `{"thread_id":"thread-1","approved":false}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, gotApproved)
	assert.False(t, *gotApproved)
	assert.Equal(t, "cancelled", resp["data"].(map[string]interface{})["status"])

	w, _ = do(t, s, http.MethodPost, "/api/runs/resume", `{"thread_id":"thread-1"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code, "approved is required")
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"unknown thread", &domainwf.UnknownThreadError{ThreadID: "t-1"}, http.StatusNotFound},
		{"invalid state", &domainwf.InvalidStateError{ThreadID: "t-1", Node: domainwf.StateEnd, Op: "resume"}, http.StatusConflict},
		{"persistence", &domainwf.PersistenceError{Op: "save", ThreadID: "t-1", Err: errors.New("disk full")}, http.StatusServiceUnavailable},
		{"invalid input", workflow.ErrInvalidInput, http.StatusBadRequest},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(&mockEngine{
				resumeFunc: func(ctx context.Context, threadID string, approved bool) (*workflow.RunResult, error) {
					return nil, tt.err
				},
			})
			w, resp := do(t, s, http.MethodPost, "/api/runs/resume", `{"thread_id":"t-1","approved":true}`)
			assert.Equal(t, tt.want, w.Code)
			assert.Equal(t, false, resp["success"])
			assert.NotEmpty(t, resp["error"])
		})
	}
}

func TestGetState(t *testing.T) {
	s := newTestServer(&mockEngine{
		stateFunc: func(ctx context.Context, threadID string) (*workflow.StateSnapshot, error) {
			if threadID != "thread-1" {
				return nil, &domainwf.UnknownThreadError{ThreadID: threadID}
			}
			return &workflow.StateSnapshot{
				ThreadID: threadID,
				Node:     domainwf.StateInterrupted,
				Next:     []domainwf.Trigger{domainwf.TriggerApprove, domainwf.TriggerReject},
				Values:   &entity.ThreadState{ThreadID: threadID, Node: "INTERRUPTED"},
			}, nil
		},
	})

	w, resp := do(t, s, http.MethodGet, "/api/runs/state?thread_id=thread-1", "")
	require.Equal(t, http.StatusOK, w.Code)
	data := resp["data"].(map[string]interface{})
	assert.Equal(t, []interface{}{"APPROVE", "REJECT"}, data["next"])

	w, _ = do(t, s, http.MethodGet, "/api/runs/state?thread_id=missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = do(t, s, http.MethodGet, "/api/runs/state", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHistoryRecoverPurge(t *testing.T) {
	purged := ""
	s := newTestServer(&mockEngine{
		historyFunc: func(ctx context.Context, threadID string) ([]*entity.Checkpoint, error) {
			return []*entity.Checkpoint{{ThreadID: threadID, Version: 1, Node: "START"}, {ThreadID: threadID, Version: 2, Node: "RECONCILE"}}, nil
		},
		recoverFunc: func(ctx context.Context, threadID string) (*workflow.RunResult, error) {
			return &workflow.RunResult{ThreadID: threadID, Node: domainwf.StateEnd, Status: entity.RunStatusPaid}, nil
		},
		purgeFunc: func(ctx context.Context, threadID string) error {
			purged = threadID
			return nil
		},
	})

	w, resp := do(t, s, http.MethodGet, "/api/runs/thread-1/history", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, resp["data"], 2)

	w, resp = do(t, s, http.MethodPost, "/api/runs/thread-1/recover", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "paid", resp["data"].(map[string]interface{})["status"])

	w, _ = do(t, s, http.MethodDelete, "/api/runs/thread-1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "thread-1", purged)
}

func TestRedactor(t *testing.T) {
	r := NewRedactor([]string{"bank_account", "Vendor_Email"})

	in := map[string]interface{}{
		"invoice_id":   "INV-001",
		"bank_account": "DE89370400440532013000",
		"vendor": map[string]interface{}{
			"vendor_email": "ap@acme.test",
			"name":         "Acme Corp",
		},
		"items": []interface{}{
			map[string]interface{}{"BANK_ACCOUNT": "x", "amount": 5},
		},
	}

	out, err := r.Redact(in)
	require.NoError(t, err)

	data, err := json.Marshal(out)
	require.NoError(t, err)
	body := string(data)
	assert.NotContains(t, body, "DE8937")
	assert.NotContains(t, body, "ap@acme.test")
	assert.Equal(t, 3, strings.Count(body, RedactedPlaceholder))
	assert.Contains(t, body, "Acme Corp")
	assert.Contains(t, body, "INV-001")
}

func TestRedactor_NoKeys(t *testing.T) {
	in := map[string]string{"bank_account": "123"}
	out, err := NewRedactor(nil).Redact(in)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}
