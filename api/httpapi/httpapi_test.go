package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mem "coderhack/adapters/memory"
	"coderhack/core"
	"coderhack/engine"
)

func newTestService() *engine.UserService {
	return engine.NewUserService(mem.New(), engine.NewEventBus(engine.DispatchSync))
}

func newTestRouter(t *testing.T, svc *engine.UserService, opts Options) http.Handler {
	t.Helper()
	h, err := NewRouter(svc, nil, opts)
	require.NoError(t, err)
	return h
}

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

const base = DefaultPathPrefix + "/users"

func TestRegisterAndGet(t *testing.T) {
	h := newTestRouter(t, newTestService(), Options{})

	rec := do(h, http.MethodPost, base, `{"userId":"u1","username":"alice"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"userId":"u1","username":"alice","score":0,"badges":[]}`, rec.Body.String())

	rec = do(h, http.MethodGet, base+"/u1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var u core.User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &u))
	assert.Equal(t, core.UserID("u1"), u.UserID)
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
}

func TestRegisterErrors(t *testing.T) {
	h := newTestRouter(t, newTestService(), Options{})
	require.Equal(t, http.StatusCreated, do(h, http.MethodPost, base, `{"userId":"u1","username":"alice"}`).Code)

	cases := []struct {
		name string
		body string
		want int
		code string
	}{
		{"duplicate", `{"userId":"u1","username":"other"}`, http.StatusConflict, "conflict"},
		{"empty id", `{"userId":"","username":"bob"}`, http.StatusBadRequest, "invalid_argument"},
		{"empty username", `{"userId":"u2","username":""}`, http.StatusBadRequest, "invalid_argument"},
		{"id too long", `{"userId":"` + strings.Repeat("x", core.MaxUserIDLength+1) + `","username":"bob"}`, http.StatusBadRequest, "invalid_argument"},
		{"bad json", `{"userId":`, http.StatusBadRequest, "invalid_body"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(h, http.MethodPost, base, tc.body)
			assert.Equal(t, tc.want, rec.Code)
			var e apiError
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e))
			assert.Equal(t, tc.code, e.Code)
		})
	}
}

func TestGetUserNotFound(t *testing.T) {
	h := newTestRouter(t, newTestService(), Options{})
	rec := do(h, http.MethodGet, base+"/ghost", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, http.StatusNotFound, do(h, http.MethodGet, base+"/%20", "").Code)
}

func TestWhitespaceIDsAreVerbatim(t *testing.T) {
	h := newTestRouter(t, newTestService(), Options{})
	require.Equal(t, http.StatusCreated, do(h, http.MethodPost, base, `{"userId":" ","username":" "}`).Code)
	rec := do(h, http.MethodGet, base+"/%20", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"userId":" ","username":" ","score":0,"badges":[]}`, rec.Body.String())
}

func TestUpdateScore(t *testing.T) {
	h := newTestRouter(t, newTestService(), Options{})
	do(h, http.MethodPost, base, `{"userId":"u1","username":"alice"}`)

	rec := do(h, http.MethodPut, base+"/u1", `{"score":65}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"userId":"u1","username":"alice","score":65,"badges":["CODE_CHAMP","CODE_MASTER","CODE_NINJA"]}`, rec.Body.String())

	rec = do(h, http.MethodPut, base+"/u1", `{"score":"10"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var u core.User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &u))
	assert.Equal(t, 10, u.Score)
	assert.Equal(t, 3, u.Badges.Len())
}

func TestUpdateScoreRejectsBadBodies(t *testing.T) {
	h := newTestRouter(t, newTestService(), Options{})
	do(h, http.MethodPost, base, `{"userId":"u1","username":"alice"}`)

	for _, body := range []string{
		`{"score":12.5}`,
		`{"score":"abc"}`,
		`{"score":true}`,
		`{"score":null}`,
		`{"score":10,"username":"x"}`,
		`{"points":10}`,
		`{}`,
		`[10]`,
		`not json`,
		`{"score":101}`,
		`{"score":-1}`,
	} {
		t.Run(body, func(t *testing.T) {
			assert.Equal(t, http.StatusBadRequest, do(h, http.MethodPut, base+"/u1", body).Code)
		})
	}

	rec := do(h, http.MethodGet, base+"/u1", "")
	assert.Contains(t, rec.Body.String(), `"score":0`)
}

func TestUpdateScoreUnknownUser(t *testing.T) {
	h := newTestRouter(t, newTestService(), Options{})
	assert.Equal(t, http.StatusNotFound, do(h, http.MethodPut, base+"/ghost", `{"score":5}`).Code)
}

func TestDeleteUser(t *testing.T) {
	h := newTestRouter(t, newTestService(), Options{})
	do(h, http.MethodPost, base, `{"userId":"u1","username":"alice"}`)

	assert.Equal(t, http.StatusNoContent, do(h, http.MethodDelete, base+"/u1", "").Code)
	assert.Equal(t, http.StatusNotFound, do(h, http.MethodDelete, base+"/u1", "").Code)
	assert.Equal(t, http.StatusNotFound, do(h, http.MethodGet, base+"/u1", "").Code)
}

func TestUserIDPathEscaping(t *testing.T) {
	h := newTestRouter(t, newTestService(), Options{})

	for _, id := range []string{"team/alice", "bob smith", "a%b", "50%/off", "ünï"} {
		t.Run(id, func(t *testing.T) {
			body, err := json.Marshal(map[string]string{"userId": id, "username": "x"})
			require.NoError(t, err)
			require.Equal(t, http.StatusCreated, do(h, http.MethodPost, base, string(body)).Code)

			path := base + "/" + url.PathEscape(id)
			rec := do(h, http.MethodGet, path, "")
			require.Equal(t, http.StatusOK, rec.Code)
			var u core.User
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &u))
			assert.Equal(t, core.UserID(id), u.UserID)

			assert.Equal(t, http.StatusOK, do(h, http.MethodPut, path, `{"score":20}`).Code)
			assert.Equal(t, http.StatusNoContent, do(h, http.MethodDelete, path, "").Code)
			assert.Equal(t, http.StatusNotFound, do(h, http.MethodGet, path, "").Code)
		})
	}
}

func TestListUsersOrdered(t *testing.T) {
	h := newTestRouter(t, newTestService(), Options{})
	rec := do(h, http.MethodGet, base, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	do(h, http.MethodPost, base, `{"userId":"a","username":"A"}`)
	do(h, http.MethodPost, base, `{"userId":"b","username":"B"}`)
	do(h, http.MethodPost, base, `{"userId":"c","username":"C"}`)
	do(h, http.MethodPut, base+"/a", `{"score":50}`)
	do(h, http.MethodPut, base+"/b", `{"score":10}`)
	do(h, http.MethodPut, base+"/c", `{"score":30}`)

	rec = do(h, http.MethodGet, base, "")
	var users []core.User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &users))
	require.Len(t, users, 3)
	assert.Equal(t, []int{10, 30, 50}, []int{users[0].Score, users[1].Score, users[2].Score})
}

type failingStore struct{ *mem.Store }

func (failingStore) ListByScoreAsc(context.Context) ([]core.User, error) {
	return nil, errors.New("disk on fire")
}

func (failingStore) Exists(context.Context, core.UserID) (bool, error) {
	return false, errors.New("disk on fire")
}

func TestStorageFailureIsInternal(t *testing.T) {
	svc := engine.NewUserService(failingStore{mem.New()}, engine.NewEventBus(engine.DispatchSync))
	h := newTestRouter(t, svc, Options{})

	rec := do(h, http.MethodGet, base, "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "disk on fire")

	assert.Equal(t, http.StatusServiceUnavailable, do(h, http.MethodGet, DefaultPathPrefix+"/healthz", "").Code)
}

func TestHealthz(t *testing.T) {
	h := newTestRouter(t, newTestService(), Options{PathPrefix: "/api/"})
	rec := do(h, http.MethodGet, "/api/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}

func TestUnknownRoute(t *testing.T) {
	h := newTestRouter(t, newTestService(), Options{})
	assert.Equal(t, http.StatusNotFound, do(h, http.MethodGet, "/nope", "").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, do(h, http.MethodPatch, base+"/u1", `{}`).Code)
}

func TestAPIKeyAuth(t *testing.T) {
	h := newTestRouter(t, newTestService(), Options{APIKeys: []string{"secret"}})

	assert.Equal(t, http.StatusUnauthorized, do(h, http.MethodGet, base, "").Code)

	req := httptest.NewRequest(http.MethodGet, base, nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, base, nil)
	req.Header.Set("X-API-Key", "wrong")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRateLimit(t *testing.T) {
	h := newTestRouter(t, newTestService(), Options{RateLimitEnabled: true, RateLimitRPM: 1, RateLimitBurst: 2})
	assert.Equal(t, http.StatusOK, do(h, http.MethodGet, base, "").Code)
	assert.Equal(t, http.StatusOK, do(h, http.MethodGet, base, "").Code)
	assert.Equal(t, http.StatusTooManyRequests, do(h, http.MethodGet, base, "").Code)
}

func TestCORSPreflight(t *testing.T) {
	h := newTestRouter(t, newTestService(), Options{AllowCORSOrigin: "*"})
	rec := do(h, http.MethodOptions, base, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "PUT")
}

func TestRequestIDPropagates(t *testing.T) {
	h := newTestRouter(t, newTestService(), Options{})
	req := httptest.NewRequest(http.MethodGet, base, nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get(RequestIDHeader))
}

func TestRequestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	h := newTestRouter(t, newTestService(), Options{Metrics: reg})
	do(h, http.MethodGet, base+"/ghost", "")

	n, err := testutil.GatherAndCount(reg, "coderhack_http_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = NewRouter(newTestService(), nil, Options{Metrics: reg})
	assert.Error(t, err, "second registration on the same registry must fail")
}

func TestParseScore(t *testing.T) {
	n, err := parseScore(strings.NewReader(`{"score": 42}`))
	require.NoError(t, err)
	assert.Equal(t, 42, n)

	n, err = parseScore(strings.NewReader(`{"score": "+7"}`))
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	_, err = parseScore(strings.NewReader(`{"score": "4 2"}`))
	assert.Error(t, err)
}
