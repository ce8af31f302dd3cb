// Integration tests for the msgstore HTTP API
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/nainya/msgstore/internal/logger"
	"github.com/nainya/msgstore/internal/metrics"
	"github.com/nainya/msgstore/pkg/message"
	"github.com/nainya/msgstore/pkg/query"
	"github.com/nainya/msgstore/pkg/store"
)

var clockStart = time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)

// steppingClock returns a clock that advances one second per reading
func steppingClock() func() time.Time {
	var mu sync.Mutex
	now := clockStart
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}
}

type testEnv struct {
	server  *Server
	store   *store.SQLiteStore
	metrics *metrics.Metrics
	handler http.Handler
}

func setupTestServer(t *testing.T) *testEnv {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "msgstore.db"))
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	m := metrics.NewMetrics(prometheus.NewRegistry())
	srv := NewServer(st, m, logger.Nop(), WithClock(steppingClock()))
	return &testEnv{server: srv, store: st, metrics: m, handler: srv.Handler()}
}

func (e *testEnv) do(t *testing.T, method, target, body string) (int, map[string]any) {
	t.Helper()

	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)

	if rec.Body.Len() == 0 {
		return rec.Code, nil
	}
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("%s %s: invalid JSON response %q: %v", method, target, rec.Body.String(), err)
	}
	return rec.Code, out
}

func (e *testEnv) create(t *testing.T, body string) []string {
	t.Helper()
	code, resp := e.do(t, http.MethodPost, "/api/messages", body)
	if code != http.StatusCreated {
		t.Fatalf("Expected 201 creating %s, got %d: %v", body, code, resp)
	}
	raw, _ := resp["inserted_ids"].([]any)
	ids := make([]string, len(raw))
	for i, v := range raw {
		ids[i], _ = v.(string)
	}
	return ids
}

func messageTexts(t *testing.T, resp map[string]any) []string {
	t.Helper()
	raw, ok := resp["messages"].([]any)
	if !ok {
		t.Fatalf("Expected messages array, got %v", resp)
	}
	out := make([]string, len(raw))
	for i, m := range raw {
		out[i], _ = m.(map[string]any)["text"].(string)
	}
	return out
}

func expectError(t *testing.T, code int, resp map[string]any, wantCode int, wantKind string) {
	t.Helper()
	if code != wantCode {
		t.Errorf("Expected status %d, got %d: %v", wantCode, code, resp)
	}
	if resp["error"] != wantKind {
		t.Errorf("Expected error kind %s, got %v", wantKind, resp["error"])
	}
	if msg, _ := resp["message"].(string); msg == "" {
		t.Errorf("Expected a message in %v", resp)
	}
}

func TestVersionProbe(t *testing.T) {
	env := setupTestServer(t)
	for _, path := range []string{"/api", "/api/v1"} {
		if code, _ := env.do(t, http.MethodGet, path, ""); code != http.StatusNoContent {
			t.Errorf("GET %s: expected 204, got %d", path, code)
		}
	}
}

func TestHealth(t *testing.T) {
	env := setupTestServer(t)
	code, resp := env.do(t, http.MethodGet, "/health", "")
	if code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", code)
	}
	if resp["status"] != "healthy" {
		t.Errorf("Expected healthy, got %v", resp["status"])
	}
}

func TestCreateAndGetMessage(t *testing.T) {
	env := setupTestServer(t)

	ids := env.create(t, `{"title":"greeting","text":"hello"}`)
	if len(ids) != 1 {
		t.Fatalf("Expected 1 id, got %v", ids)
	}
	if _, err := uuid.Parse(ids[0]); err != nil {
		t.Errorf("Expected UUID id, got %q", ids[0])
	}

	for _, prefix := range []string{"/api", "/api/v1"} {
		code, msg := env.do(t, http.MethodGet, prefix+"/messages/"+ids[0], "")
		if code != http.StatusOK {
			t.Fatalf("GET %s: expected 200, got %d: %v", prefix, code, msg)
		}
		if msg["id"] != ids[0] || msg["text"] != "hello" || msg["title"] != "greeting" {
			t.Errorf("Unexpected message %v", msg)
		}
		if msg["size"] != float64(5) {
			t.Errorf("Expected size 5, got %v", msg["size"])
		}
		created, err := time.Parse(time.RFC3339, msg["created_at"].(string))
		if err != nil {
			t.Fatalf("created_at is not RFC 3339: %v", err)
		}
		if !created.Equal(clockStart.Add(time.Second)) {
			t.Errorf("Expected created_at from the injected clock, got %v", created)
		}
		if msg["created_at"] != msg["last_modified"] {
			t.Errorf("Expected created_at == last_modified, got %v / %v", msg["created_at"], msg["last_modified"])
		}
	}
}

func TestCreateMessageWithoutTitleOmitsField(t *testing.T) {
	env := setupTestServer(t)
	ids := env.create(t, `{"text":"plain"}`)

	_, msg := env.do(t, http.MethodGet, "/api/messages/"+ids[0], "")
	if _, ok := msg["title"]; ok {
		t.Errorf("Expected no title field, got %v", msg["title"])
	}
}

func TestCreateMessagesArray(t *testing.T) {
	env := setupTestServer(t)

	ids := env.create(t, `[{"text":"one"},{"text":"two","title":"2"}]`)
	if len(ids) != 2 {
		t.Fatalf("Expected 2 ids, got %v", ids)
	}

	// One bad element rejects the whole batch.
	code, resp := env.do(t, http.MethodPost, "/api/messages", `[{"text":"three"},{"text":5}]`)
	expectError(t, code, resp, http.StatusBadRequest, "InvalidMessage")

	n, err := env.store.Count(context.Background())
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if n != 2 {
		t.Errorf("Expected 2 stored messages, got %d", n)
	}
	if got := testutil.ToFloat64(env.metrics.MessagesCreatedTotal); got != 2 {
		t.Errorf("Expected 2 created in metrics, got %v", got)
	}
}

func TestCreateMessageErrors(t *testing.T) {
	env := setupTestServer(t)

	tests := []struct {
		name    string
		body    string
		message string
	}{
		{"malformed json", `{"text":`, "Message is not valid."},
		{"trailing data", `{"text":"a"} {"text":"b"}`, "Message is not valid."},
		{"not an object", `"hello"`, "Message is not valid."},
		{"empty array", `[]`, "Message is not valid."},
		{"array of strings", `["a"]`, "Message is not valid."},
		{"missing text", `{"title":"t"}`, "Message is not valid."},
		{"unknown field", `{"text":"a","author":"me"}`, "Message is not valid."},
		{"text too long", `{"text":"` + strings.Repeat("a", 50001) + `"}`, "Message's text is not valid."},
		{"title too long", `{"text":"a","title":"` + strings.Repeat("t", 51) + `"}`, "Message's title is not valid."},
	}

	for _, tt := range tests {
		code, resp := env.do(t, http.MethodPost, "/api/messages", tt.body)
		if code != http.StatusBadRequest || resp["error"] != "InvalidMessage" {
			t.Errorf("%s: expected 400 InvalidMessage, got %d %v", tt.name, code, resp)
			continue
		}
		if resp["message"] != tt.message {
			t.Errorf("%s: expected message %q, got %v", tt.name, tt.message, resp["message"])
		}
	}
}

func TestFindMessages(t *testing.T) {
	env := setupTestServer(t)
	env.create(t, `[{"text":"apple"},{"text":"avocado","title":"green"},{"text":"banana"}]`)

	tests := []struct {
		query string
		want  []string
	}{
		{"text=rg:%5Ea", []string{"apple", "avocado"}},
		{"text=rg:%5Ea&sort=-created_at", []string{"avocado", "apple"}},
		{"text=rg:%5Ea&limit=1", []string{"apple"}},
		{"created_at=gt:2020&sort=-text", []string{"banana", "avocado", "apple"}},
		{"q=banana", []string{"banana"}},
		{"q=GREEN", []string{"avocado"}},
		{"title=rg:green&text=rg:o$", []string{"avocado"}},
		{"created_at=lt:2021", []string{}},
	}

	for _, tt := range tests {
		for _, prefix := range []string{"/api", "/api/v1"} {
			code, resp := env.do(t, http.MethodGet, prefix+"/messages?"+tt.query, "")
			if code != http.StatusOK {
				t.Errorf("%s: expected 200, got %d: %v", tt.query, code, resp)
				continue
			}
			got := messageTexts(t, resp)
			if strings.Join(got, ",") != strings.Join(tt.want, ",") {
				t.Errorf("%s: expected %v, got %v", tt.query, tt.want, got)
			}
		}
	}
}

func TestFindMessagesErrors(t *testing.T) {
	env := setupTestServer(t)

	tests := []struct {
		query string
		kind  string
	}{
		{"", "InvalidQuery"},
		{"sort=created_at", "InvalidQuery"},
		{"lang=en&created_at=gt:2020", "InvalidQuery"},
		{"foo=gt:1", "UnknownParameter"},
		{"created_at=5", "InvalidExpression"},
		{"created_at=eq:2020", "InvalidOperator"},
		{"created_at=gt:20201", "InvalidValue"},
		{"created_at=gt:2020&limit=a", "InvalidValue"},
		{"created_at=gt:2020&sort=-", "InvalidValue"},
		{"created_at=gt:2020&sort=author", "InvalidValue"},
		{"title=rg:a&title=op:x", "InvalidValue"},
		{"title=op:i", "InvalidQuery"},
	}

	for _, tt := range tests {
		code, resp := env.do(t, http.MethodGet, "/api/messages?"+tt.query, "")
		if code != http.StatusBadRequest || resp["error"] != tt.kind {
			t.Errorf("%q: expected 400 %s, got %d %v", tt.query, tt.kind, code, resp)
		}
	}

	if got := testutil.ToFloat64(env.metrics.QueryErrorsTotal.WithLabelValues("InvalidQuery")); got != 4 {
		t.Errorf("Expected 4 InvalidQuery errors recorded, got %v", got)
	}
}

func TestGetMessageErrors(t *testing.T) {
	env := setupTestServer(t)

	code, resp := env.do(t, http.MethodGet, "/api/messages/not-an-id", "")
	expectError(t, code, resp, http.StatusBadRequest, "InvalidId")

	code, resp = env.do(t, http.MethodGet, "/api/messages/"+uuid.NewString(), "")
	expectError(t, code, resp, http.StatusNotFound, "NotFound")
}

func TestUpdateMessage(t *testing.T) {
	env := setupTestServer(t)
	ids := env.create(t, `{"text":"body","title":"old"}`)
	_, before := env.do(t, http.MethodGet, "/api/messages/"+ids[0], "")

	code, resp := env.do(t, http.MethodPut, "/api/messages/"+ids[0], `{"title":"new"}`)
	if code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %v", code, resp)
	}
	if resp["modified_count"] != float64(1) {
		t.Errorf("Expected modified_count 1, got %v", resp["modified_count"])
	}

	_, after := env.do(t, http.MethodGet, "/api/messages/"+ids[0], "")
	if after["title"] != "new" || after["text"] != "body" || after["size"] != float64(4) {
		t.Errorf("Unexpected message after update %v", after)
	}
	if after["created_at"] != before["created_at"] {
		t.Errorf("Expected created_at unchanged, got %v -> %v", before["created_at"], after["created_at"])
	}
	if after["last_modified"] == before["last_modified"] {
		t.Errorf("Expected last_modified to advance, still %v", after["last_modified"])
	}

	code, _ = env.do(t, http.MethodPut, "/api/messages/"+ids[0], `{"text":"longer body"}`)
	if code != http.StatusOK {
		t.Fatalf("Expected 200 updating text, got %d", code)
	}
	_, after = env.do(t, http.MethodGet, "/api/messages/"+ids[0], "")
	if after["size"] != float64(11) || after["title"] != "new" {
		t.Errorf("Expected size 11 and title kept, got %v", after)
	}
}

func TestUpdateMessageErrors(t *testing.T) {
	env := setupTestServer(t)
	ids := env.create(t, `{"text":"body"}`)

	tests := []struct {
		name   string
		target string
		body   string
		status int
		kind   string
	}{
		{"no fields", "/api/messages/" + ids[0], `{}`, http.StatusBadRequest, "InvalidMessage"},
		{"created_at", "/api/messages/" + ids[0], `{"created_at":"2020-01-01T00:00:00Z"}`, http.StatusBadRequest, "InvalidMessage"},
		{"null body", "/api/messages/" + ids[0], `null`, http.StatusBadRequest, "InvalidMessage"},
		{"bad id", "/api/messages/xyz", `{"title":"t"}`, http.StatusBadRequest, "InvalidId"},
		{"unknown id", "/api/messages/" + uuid.NewString(), `{"title":"t"}`, http.StatusNotFound, "NotFound"},
	}

	for _, tt := range tests {
		code, resp := env.do(t, http.MethodPut, tt.target, tt.body)
		if code != tt.status || resp["error"] != tt.kind {
			t.Errorf("%s: expected %d %s, got %d %v", tt.name, tt.status, tt.kind, code, resp)
		}
	}
}

func TestBulkUpdateAndDelete(t *testing.T) {
	env := setupTestServer(t)
	env.create(t, `[{"text":"apple"},{"text":"avocado"},{"text":"banana"}]`)

	code, resp := env.do(t, http.MethodPut, "/api/messages?text=rg:%5Ea", `{"title":"A"}`)
	if code != http.StatusOK || resp["modified_count"] != float64(2) {
		t.Fatalf("Expected 2 modified, got %d %v", code, resp)
	}

	code, resp = env.do(t, http.MethodDelete, "/api/v1/messages?title=rg:%5EA$", "")
	if code != http.StatusOK || resp["deleted_count"] != float64(2) {
		t.Fatalf("Expected 2 deleted, got %d %v", code, resp)
	}

	code, resp = env.do(t, http.MethodGet, "/api/messages?created_at=gt:2000", "")
	if code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", code)
	}
	if got := messageTexts(t, resp); len(got) != 1 || got[0] != "banana" {
		t.Errorf("Expected only banana left, got %v", got)
	}

	code, resp = env.do(t, http.MethodDelete, "/api/messages", "")
	expectError(t, code, resp, http.StatusBadRequest, "InvalidQuery")

	code, resp = env.do(t, http.MethodPut, "/api/messages", `{"title":"all"}`)
	expectError(t, code, resp, http.StatusBadRequest, "InvalidQuery")
}

func TestDeleteMessage(t *testing.T) {
	env := setupTestServer(t)
	ids := env.create(t, `{"text":"bye"}`)

	code, resp := env.do(t, http.MethodDelete, "/api/messages/"+ids[0], "")
	if code != http.StatusOK || resp["deleted_count"] != float64(1) {
		t.Fatalf("Expected deleted_count 1, got %d %v", code, resp)
	}

	code, resp = env.do(t, http.MethodDelete, "/api/messages/"+ids[0], "")
	expectError(t, code, resp, http.StatusNotFound, "NotFound")

	if got := testutil.ToFloat64(env.metrics.DbMessagesTotal); got != 0 {
		t.Errorf("Expected message gauge 0 after delete, got %v", got)
	}
}

// failingStore fails Find and Ping with a storage error
type failingStore struct{ MessageStore }

var errDiskGone = errors.New("disk gone")

func (failingStore) Find(context.Context, *query.Request) ([]*message.Message, error) {
	return nil, errDiskGone
}

func (failingStore) Ping(context.Context) error { return errDiskGone }

func TestInternalErrorsAreHidden(t *testing.T) {
	m := metrics.NewMetrics(prometheus.NewRegistry())
	srv := NewServer(&failingStore{}, m, logger.Nop())
	env := &testEnv{server: srv, metrics: m, handler: srv.Handler()}

	code, resp := env.do(t, http.MethodGet, "/api/messages?created_at=gt:2020", "")
	expectError(t, code, resp, http.StatusInternalServerError, "Internal")
	if strings.Contains(resp["message"].(string), "disk gone") {
		t.Errorf("Expected internal error details to be hidden, got %v", resp["message"])
	}

	if code, _ := env.do(t, http.MethodGet, "/health", ""); code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 from health when store is down, got %d", code)
	}
}
