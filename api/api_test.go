package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/chiralgate/api"
	"github.com/jmcleod/chiralgate/captcha"
	"github.com/jmcleod/chiralgate/gate"
	"github.com/jmcleod/chiralgate/history"
	"github.com/jmcleod/chiralgate/history/historytest"
	"github.com/jmcleod/chiralgate/history/memory"
	"github.com/jmcleod/chiralgate/internal/secret"
	"github.com/jmcleod/chiralgate/session"
)

const token = "s3cret"

type fakeTransport struct {
	mu        sync.Mutex
	admitted  []int64
	removed   map[int64]string
	failAdmit error
}

func (f *fakeTransport) SendPrivate(context.Context, int64, gate.Message) error { return nil }
func (f *fakeTransport) SendGroup(context.Context, int64, gate.Message) error   { return nil }

func (f *fakeTransport) Admit(_ context.Context, p gate.Pending) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAdmit != nil {
		return f.failAdmit
	}
	f.admitted = append(f.admitted, p.SubjectID)
	return nil
}

func (f *fakeTransport) Remove(_ context.Context, p gate.Pending, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.removed == nil {
		f.removed = map[int64]string{}
	}
	f.removed[p.SubjectID] = reason
	return nil
}

type noProvider struct{}

func (noProvider) Fetch(context.Context) (captcha.Question, error) {
	return captcha.Question{}, captcha.ErrProviderUnavailable
}

type harness struct {
	srv       *httptest.Server
	store     *session.MemoryStore
	history   *memory.Store
	transport *fakeTransport
}

func setupServer(t *testing.T) *harness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := &harness{
		store:     session.NewMemoryStore(),
		history:   memory.New(),
		transport: &fakeTransport{},
	}
	coord := gate.New(gate.Config{AutoReject: true}, h.store, noProvider{}, h.transport,
		gate.WithLogger(logger),
		gate.WithRecorder(history.NewRecorder(h.history, logger)),
	)
	sweeper := session.NewSweeper(h.store, coord.ResolveExpired, time.Minute, logger)

	a := api.New(coord, sweeper, h.history, secret.NewToken(token), api.WithLogger(logger))
	r := chi.NewRouter()
	r.Mount("/api/v1", a.Router())
	h.srv = httptest.NewServer(r)
	t.Cleanup(h.srv.Close)
	return h
}

func (h *harness) addSession(subject int64, created time.Time) session.Session {
	return h.store.Create(session.Session{
		SubjectID:   subject,
		GroupID:     555,
		Admission:   session.Request("flag-" + time.Now().Format("150405.000000")),
		Question:    captcha.Question{ID: "q1", CorrectCount: 2, Label: "alanine"},
		MaxAttempts: 3,
		CreatedAt:   created,
		Timeout:     2 * time.Minute,
	})
}

func (h *harness) do(t *testing.T, method, path string, body any, bearer string) *http.Response {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, h.srv.URL+"/api/v1"+path, rdr)
	require.NoError(t, err)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestAuth(t *testing.T) {
	h := setupServer(t)

	resp := h.do(t, http.MethodGet, "/sessions", nil, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("WWW-Authenticate"))

	resp = h.do(t, http.MethodGet, "/sessions", nil, "wrong")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "authentication required", decode[api.ErrorResponse](t, resp).Error)

	resp = h.do(t, http.MethodGet, "/sessions", nil, token)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
}

func TestAuth_NoTokenConfigured(t *testing.T) {
	a := api.New(nil, nil, memory.New(), secret.NewToken(""), api.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	srv := httptest.NewServer(a.Router())
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/sessions", nil)
	req.Header.Set("Authorization", "Bearer ")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestOpenAPIServed(t *testing.T) {
	h := setupServer(t)
	resp := h.do(t, http.MethodGet, "/openapi.yaml", nil, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "/sessions/{subject}/approve")
}

func TestListSessions(t *testing.T) {
	h := setupServer(t)
	now := time.Now()
	h.addSession(2002, now.Add(-time.Second))
	h.addSession(1001, now.Add(-2*time.Second))
	h.addSession(3003, now)

	resp := h.do(t, http.MethodGet, "/sessions", nil, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[api.ListSessionsResponse](t, resp)
	require.Len(t, got.Sessions, 3)
	assert.Equal(t, []int64{1001, 2002, 3003}, []int64{got.Sessions[0].SubjectID, got.Sessions[1].SubjectID, got.Sessions[2].SubjectID})
	assert.Equal(t, 3, got.TotalCount)
	assert.False(t, got.HasMore)

	first := got.Sessions[0]
	assert.Equal(t, "request", first.Admission)
	assert.Equal(t, "alanine", first.Label)
	assert.Equal(t, 3, first.Remaining)
	assert.Equal(t, 0, first.Attempts)
	assert.WithinDuration(t, now.Add(2*time.Minute-2*time.Second), first.ExpiresAt, time.Second)

	resp = h.do(t, http.MethodGet, "/sessions?limit=1&offset=1", nil, token)
	page := decode[api.ListSessionsResponse](t, resp)
	require.Len(t, page.Sessions, 1)
	assert.Equal(t, int64(2002), page.Sessions[0].SubjectID)
	assert.True(t, page.HasMore)

	resp = h.do(t, http.MethodGet, "/sessions?offset=10", nil, token)
	empty := decode[api.ListSessionsResponse](t, resp)
	assert.Empty(t, empty.Sessions)
	assert.NotNil(t, empty.Sessions)
}

func TestApproveSession(t *testing.T) {
	h := setupServer(t)
	h.addSession(1001, time.Now())

	resp := h.do(t, http.MethodPost, "/sessions/1001/approve", nil, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, decode[api.ActionResponse](t, resp).Message, "Approved user 1001")
	assert.Equal(t, []int64{1001}, h.transport.admitted)

	_, ok := h.store.Get(1001)
	assert.False(t, ok)

	outcomes, err := h.history.ForSubject(1001)
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, session.OutcomeApproved, outcomes[0].Kind)

	resp = h.do(t, http.MethodPost, "/sessions/1001/approve", nil, token)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, decode[api.ErrorResponse](t, resp).Error, "not found")
}

func TestApproveSession_AdmitFailure(t *testing.T) {
	h := setupServer(t)
	h.transport.failAdmit = errors.New("retcode 100")
	h.addSession(1001, time.Now())

	resp := h.do(t, http.MethodPost, "/sessions/1001/approve", nil, token)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)

	outcomes, err := h.history.ForSubject(1001)
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Contains(t, outcomes[0].Reason, "admit failed")
}

func TestRejectSession(t *testing.T) {
	h := setupServer(t)
	h.addSession(1001, time.Now())
	h.addSession(2002, time.Now())

	resp := h.do(t, http.MethodPost, "/sessions/1001/reject", api.RejectRequest{Reason: "spam account"}, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "spam account", h.transport.removed[1001])

	resp = h.do(t, http.MethodPost, "/sessions/2002/reject", nil, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "rejected by administrator", h.transport.removed[2002])
}

func TestSessionRoutes_BadInput(t *testing.T) {
	h := setupServer(t)
	tests := []struct {
		method, path string
		body         io.Reader
	}{
		{http.MethodPost, "/sessions/abc/approve", nil},
		{http.MethodPost, "/sessions/0/approve", nil},
		{http.MethodPost, "/sessions/-5/reject", nil},
		{http.MethodGet, "/outcomes/xyz", nil},
		{http.MethodPost, "/sessions/1001/reject", bytes.NewBufferString("{not json")},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			req, err := http.NewRequest(tt.method, h.srv.URL+"/api/v1"+tt.path, tt.body)
			require.NoError(t, err)
			req.Header.Set("Authorization", "Bearer "+token)
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestSweep(t *testing.T) {
	h := setupServer(t)
	h.addSession(1001, time.Now().Add(-time.Hour))
	h.addSession(2002, time.Now())

	resp := h.do(t, http.MethodPost, "/sweep", nil, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, decode[api.SweepResponse](t, resp).Expired)
	assert.Equal(t, "verification timed out", h.transport.removed[1001])
	assert.Equal(t, 1, h.store.Len())

	resp = h.do(t, http.MethodPost, "/sweep", nil, token)
	assert.Equal(t, 0, decode[api.SweepResponse](t, resp).Expired)
}

func TestOutcomes(t *testing.T) {
	h := setupServer(t)
	for i, o := range []session.Outcome{
		historytest.Outcome("a", 1001, session.OutcomeFailed, 1),
		historytest.Outcome("b", 2002, session.OutcomePassed, 2),
		historytest.Outcome("c", 1001, session.OutcomePassed, 3),
	} {
		require.NoError(t, h.history.Append(o), "append %d", i)
	}

	resp := h.do(t, http.MethodGet, "/outcomes?limit=2", nil, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	page := decode[api.ListOutcomesResponse](t, resp)
	require.Len(t, page.Outcomes, 2)
	assert.Equal(t, "c", page.Outcomes[0].ID)
	assert.Equal(t, "b", page.Outcomes[1].ID)
	assert.Equal(t, 3, page.TotalCount)
	assert.True(t, page.HasMore)

	resp = h.do(t, http.MethodGet, "/outcomes/1001", nil, token)
	subject := decode[api.ListOutcomesResponse](t, resp)
	require.Len(t, subject.Outcomes, 2)
	assert.Equal(t, "c", subject.Outcomes[0].ID)
	assert.Equal(t, "a", subject.Outcomes[1].ID)

	resp = h.do(t, http.MethodGet, "/outcomes/4004", nil, token)
	none := decode[api.ListOutcomesResponse](t, resp)
	assert.Empty(t, none.Outcomes)
	assert.Equal(t, 0, none.TotalCount)
}
