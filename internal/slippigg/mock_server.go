// SPDX-License-Identifier: MIT
package slippigg

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
)

// MockServer provides a configurable report endpoint mock for testing.
//
// It understands the same GraphQL-shaped protocol as the real endpoint plus a
// /upload path for replay PUTs, and records every accepted operation in
// arrival order so tests can assert on delivery ordering.
type MockServer struct {
	*httptest.Server
	mu       sync.Mutex
	failures map[string]int // remaining failures per operation before success
	ops      []MockOp
	replays  [][]byte
	valid    map[string]string // uid -> latestVersion for validateUserKey
}

// MockOp is one recorded operation.
type MockOp struct {
	Operation string // "reportOnlineGame", "reportOnlineMatchStatus", "upload"
	MatchID   string
	Status    string
	Players   int
}

// NewMockServer creates a report endpoint mock.
func NewMockServer() *MockServer {
	mock := &MockServer{
		failures: make(map[string]int),
		valid:    make(map[string]string),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/upload", mock.handleUpload)
	mux.HandleFunc("/", mock.handleGraphQL)

	mock.Server = httptest.NewServer(mux)
	return mock
}

// FailNext makes the next n calls of the named operation fail with a 503.
func (m *MockServer) FailNext(operation string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[operation] = n
}

// AllowUser registers a uid/latest-version pair accepted by validateUserKey.
func (m *MockServer) AllowUser(uid, latestVersion string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.valid[uid] = latestVersion
}

// Ops returns a copy of all recorded operations in arrival order.
func (m *MockServer) Ops() []MockOp {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockOp(nil), m.ops...)
}

// Replays returns the raw bodies of all replay uploads received.
func (m *MockServer) Replays() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]byte(nil), m.replays...)
}

// UploadURL returns the replay upload URL the mock hands out.
func (m *MockServer) UploadURL() string {
	return m.Server.URL + "/upload"
}

func (m *MockServer) handleUpload(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failures["upload"] > 0 {
		m.failures["upload"]--
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	m.replays = append(m.replays, body)
	m.ops = append(m.ops, MockOp{Operation: "upload"})
	w.WriteHeader(http.StatusOK)
}

func (m *MockServer) handleGraphQL(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query     string         `json:"query"`
		Variables map[string]any `json:"variables"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	switch {
	case strings.Contains(req.Query, "reportOnlineGame"):
		m.handleReportGame(w, req.Variables)
	case strings.Contains(req.Query, "reportOnlineMatchStatus"):
		m.handleMatchStatus(w, req.Variables)
	case strings.Contains(req.Query, "validateUserKey"):
		m.handleValidate(w, req.Variables)
	default:
		writeGraphQLError(w, "unknown operation")
	}
}

func (m *MockServer) handleReportGame(w http.ResponseWriter, vars map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failures["reportOnlineGame"] > 0 {
		m.failures["reportOnlineGame"]--
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	op := MockOp{Operation: "reportOnlineGame"}
	if report, ok := vars["report"].(map[string]any); ok {
		op.MatchID, _ = report["matchId"].(string)
		if players, ok := report["players"].([]any); ok {
			op.Players = len(players)
		}
	}
	m.ops = append(m.ops, op)

	writeGraphQLData(w, "reportOnlineGame", map[string]any{
		"success":   true,
		"uploadUrl": m.Server.URL + "/upload",
	})
}

func (m *MockServer) handleMatchStatus(w http.ResponseWriter, vars map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failures["reportOnlineMatchStatus"] > 0 {
		m.failures["reportOnlineMatchStatus"]--
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	op := MockOp{Operation: "reportOnlineMatchStatus"}
	if report, ok := vars["report"].(map[string]any); ok {
		op.MatchID, _ = report["matchId"].(string)
		op.Status, _ = report["status"].(string)
	}
	m.ops = append(m.ops, op)

	writeGraphQLData(w, "reportOnlineMatchStatus", true)
}

func (m *MockServer) handleValidate(w http.ResponseWriter, vars map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failures["validateUserKey"] > 0 {
		m.failures["validateUserKey"]--
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	uid, _ := vars["fbUid"].(string)
	version, ok := m.valid[uid]
	writeGraphQLData(w, "validateUserKey", map[string]any{
		"valid":         ok,
		"latestVersion": version,
	})
}

func writeGraphQLData(w http.ResponseWriter, field string, value any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"data": map[string]any{field: value},
	})
}

func writeGraphQLError(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"errors": []map[string]any{{"message": msg}},
	})
}
