package router

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baechuer/seatwatch/internal/application/tracking"
	"github.com/baechuer/seatwatch/internal/infrastructure/store"
	"github.com/baechuer/seatwatch/internal/transport/http/handlers"
	"github.com/baechuer/seatwatch/internal/transport/http/response"
)

type stubSweeper struct{ rep tracking.SweepReport }

func (s stubSweeper) LastReport() tracking.SweepReport { return s.rep }

type fixture struct {
	h     http.Handler
	reg   *tracking.Registry
	store *store.FileStore
}

func newFixture(t *testing.T, ready map[string]handlers.ReadyCheck, rl RateLimit) *fixture {
	t.Helper()
	fs := store.NewFileStore(filepath.Join(t.TempDir(), "class_requests.json"), zerolog.Nop())
	st, err := tracking.LoadState(fs)
	require.NoError(t, err)

	reg := tracking.NewRegistry(st, tracking.NewFetchers(), tracking.RegistryConfig{
		MaxRequestsPerUser: 2,
		DefaultTerm:        "2261",
	}, zerolog.Nop())

	sw := stubSweeper{rep: tracking.SweepReport{ID: "s1", Visited: 4, Duration: time.Second}}
	h := New(
		handlers.NewRequestsHandler(reg),
		handlers.NewStatusHandler(reg, sw, map[string]func() string{"course_page": func() string { return "closed" }}),
		handlers.NewHealthHandler(ready),
		rl,
		zerolog.Nop(),
	)
	return &fixture{h: h, reg: reg, store: fs}
}

func (f *fixture) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	f.h.ServeHTTP(rr, req)
	return rr
}

type envelope struct {
	Data json.RawMessage `json:"data"`
}

func decodeData(t *testing.T, rr *httptest.ResponseRecorder, dst any) {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env))
	require.NoError(t, json.Unmarshal(env.Data, dst))
}

func errCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body response.ErrorBody
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	return body.Error.Code
}

const cse205 = `{"type":"class","user_id":"U1","username":"ana","channel_id":"C1","class_subject":"cse","class_num":"205"}`

func TestRouter_Healthz(t *testing.T) {
	f := newFixture(t, nil, RateLimit{})
	rr := f.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.NotEmpty(t, rr.Header().Get("X-Request-Id"))
}

func TestRouter_Readyz(t *testing.T) {
	f := newFixture(t, map[string]handlers.ReadyCheck{
		"redis": func(ctx context.Context) error { return nil },
	}, RateLimit{})
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/readyz", "").Code)

	f = newFixture(t, map[string]handlers.ReadyCheck{
		"redis": func(ctx context.Context) error { return errors.New("connection refused") },
	}, RateLimit{})
	rr := f.do(t, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Contains(t, rr.Body.String(), "connection refused")
}

func TestRouter_Metrics(t *testing.T) {
	f := newFixture(t, nil, RateLimit{})
	rr := f.do(t, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestRouter_CreateListDelete(t *testing.T) {
	f := newFixture(t, nil, RateLimit{})

	rr := f.do(t, http.MethodPost, "/requests", cse205)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var created struct {
		Request struct {
			ID           string `json:"id"`
			ClassSubject string `json:"class_subject"`
			Term         string `json:"term"`
		} `json:"request"`
	}
	decodeData(t, rr, &created)
	assert.Equal(t, "CSE", created.Request.ClassSubject)
	assert.Equal(t, "2261", created.Request.Term)

	persisted, err := f.store.Load()
	require.NoError(t, err)
	assert.Equal(t, 1, persisted.Len())

	var list struct {
		Total int `json:"total"`
	}
	decodeData(t, f.do(t, http.MethodGet, "/users/U1/requests", ""), &list)
	assert.Equal(t, 1, list.Total)
	decodeData(t, f.do(t, http.MethodGet, "/requests?user_id=U2", ""), &list)
	assert.Equal(t, 0, list.Total)
	decodeData(t, f.do(t, http.MethodGet, "/requests", ""), &list)
	assert.Equal(t, 1, list.Total)

	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/requests/"+created.Request.ID, "").Code)
	assert.Equal(t, http.StatusNoContent, f.do(t, http.MethodDelete, "/requests/"+created.Request.ID, "").Code)

	rr = f.do(t, http.MethodGet, "/requests/"+created.Request.ID, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "not_found", errCode(t, rr))
}

func TestRouter_CreateErrors(t *testing.T) {
	f := newFixture(t, nil, RateLimit{})
	require.Equal(t, http.StatusCreated, f.do(t, http.MethodPost, "/requests", cse205).Code)

	rr := f.do(t, http.MethodPost, "/requests", cse205)
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, "duplicate_request", errCode(t, rr))

	rr = f.do(t, http.MethodPost, "/requests", `{"type":"class","user_id":"U1","term":"2262","class_subject":"CSE","class_num":"110"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "validation_error", errCode(t, rr))

	rr = f.do(t, http.MethodPost, "/requests", `{"type":"class","bogus":1}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = f.do(t, http.MethodPost, "/requests", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	require.Equal(t, http.StatusCreated, f.do(t, http.MethodPost, "/requests",
		`{"type":"course","user_id":"U1","course_id":"12345"}`).Code)
	rr = f.do(t, http.MethodPost, "/requests", `{"type":"course","user_id":"U1","course_id":"67890"}`)
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, "limit_exceeded", errCode(t, rr))
}

func TestRouter_ClearForUser(t *testing.T) {
	f := newFixture(t, nil, RateLimit{})
	f.do(t, http.MethodPost, "/requests", cse205)
	f.do(t, http.MethodPost, "/requests", `{"type":"course","user_id":"U2","course_id":"12345"}`)

	var cleared struct {
		Removed int `json:"removed"`
	}
	decodeData(t, f.do(t, http.MethodDelete, "/users/U1/requests", ""), &cleared)
	assert.Equal(t, 1, cleared.Removed)
	assert.Len(t, f.reg.ListAll(context.Background()), 1)
}

func TestRouter_Status(t *testing.T) {
	f := newFixture(t, nil, RateLimit{})
	f.do(t, http.MethodPost, "/requests", cse205)

	var st struct {
		Stats struct {
			TotalRequests int            `json:"total_requests"`
			ByKind        map[string]int `json:"by_kind"`
		} `json:"stats"`
		LastSweep struct {
			Visited int `json:"visited"`
		} `json:"last_sweep"`
		Breakers map[string]string `json:"breakers"`
	}
	decodeData(t, f.do(t, http.MethodGet, "/status", ""), &st)

	assert.Equal(t, 1, st.Stats.TotalRequests)
	assert.Equal(t, 1, st.Stats.ByKind["class"])
	assert.Equal(t, 4, st.LastSweep.Visited)
	assert.Equal(t, "closed", st.Breakers["course_page"])
}

func TestRouter_RateLimit(t *testing.T) {
	f := newFixture(t, nil, RateLimit{Enabled: true, Limit: 2, Window: time.Minute})

	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/requests", "").Code)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/requests", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, f.do(t, http.MethodGet, "/requests", "").Code)

	// health endpoints are outside the limited group
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/healthz", "").Code)
}
