/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type apiFixture struct {
	mux    *httprouter.Router
	source *fakeCredits
	errs   chan error
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	f := newFakeCredits()
	a, b, c := f.actor("a", "Alice Able"), f.actor("b", "Bob Baker"), f.actor("c", "Cara Cole")
	f.credit(movie("p1", "Example Movie"), a, b)
	f.credit(series("p2", "Second Show"), b, c)

	cfg := testConfig()
	game := newGame(cfg, f)
	puzzles := newPuzzles(cfg, game, []string{"Alice Able", "Bob Baker", "Cara Cole"})

	leaderboard, err := openLeaderboard("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = leaderboard.Close() })

	api := newAPI(cfg, game, puzzles, leaderboard)
	api.now = func() time.Time { return time.Date(2026, 10, 17, 9, 0, 0, 0, time.Local) }

	fx := &apiFixture{
		mux:    httprouter.New(),
		source: f,
		errs:   make(chan error, 64),
	}
	registerAPI(cfg, api, fx.mux, fx.errs)

	return fx
}

func (fx *apiFixture) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}

	rec := httptest.NewRecorder()
	fx.mux.ServeHTTP(rec, req)

	return rec
}

func decodeAs[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestAPIShortestPath(t *testing.T) {
	fx := newAPIFixture(t)

	rec := fx.do(t, http.MethodGet, "/shortest-path?start=Alice+Able&goal=Cara+Cole", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))

	resp := decodeAs[pathResponse](t, rec)
	assert.Equal(t, 2, resp.Hops)
	require.Len(t, resp.Path, 5)
	assert.Equal(t, "Second Show", resp.Path[3].Name)
	assert.Equal(t, KindSeries, resp.Path[3].Kind)
	assert.Equal(t, "https://img.test/w185/c.jpg", resp.Path[4].Image)
}

func TestAPIShortestPathMisses(t *testing.T) {
	fx := newAPIFixture(t)

	rec := fx.do(t, http.MethodGet, "/shortest-path?start=Alice+Able&goal=Nobody", "")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeAs[pathResponse](t, rec)
	assert.NotNil(t, resp.Path)
	assert.Empty(t, resp.Path)

	rec = fx.do(t, http.MethodGet, "/shortest-path?start=Alice+Able", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeAs[errorResponse](t, rec).Error, "missing or empty input")
}

func TestAPIValidateLink(t *testing.T) {
	fx := newAPIFixture(t)

	rec := fx.do(t, http.MethodPost, "/validate-link", `{"actor":"Alice Able","title":"example movie","next_actor":"bob baker"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeAs[validateLinkResponse](t, rec)
	assert.True(t, resp.Valid)
	assert.Equal(t, "Example Movie", resp.Title)
	assert.Equal(t, "https://img.test/w185/p1.jpg", resp.Poster)
	assert.Equal(t, "https://img.test/w185/b.jpg", resp.ActorImage)

	rec = fx.do(t, http.MethodPost, "/validate-link", `{"actor":"Alice Able","title":"Other Title","next_actor":"Bob Baker"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decodeAs[validateLinkResponse](t, rec).Valid)

	rec = fx.do(t, http.MethodPost, "/validate-link", `{"actor":"Alice Able","title":"Example Movie"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeAs[errorResponse](t, rec).Error, "next_actor")

	rec = fx.do(t, http.MethodPost, "/validate-link", `{"actor":" ","title":" ","next_actor":" "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = fx.do(t, http.MethodPost, "/validate-link", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPIHint(t *testing.T) {
	fx := newAPIFixture(t)

	rec := fx.do(t, http.MethodGet, "/hint?current=Alice+Able&goal=Cara+Cole", "")
	require.Equal(t, http.StatusOK, rec.Code)

	got := decodeAs[[]Suggestion](t, rec)
	require.NotEmpty(t, got)
	assert.Equal(t, "Bob Baker", got[0].Name)
	assert.True(t, got[0].Progress)
	assert.Equal(t, "https://img.test/w185/b.jpg", got[0].Image)

	rec = fx.do(t, http.MethodGet, "/hint?current=Alice+Able&goal=Nobody", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeAs[[]Suggestion](t, rec))

	rec = fx.do(t, http.MethodGet, "/hint?goal=Cara+Cole", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPIAutocomplete(t *testing.T) {
	fx := newAPIFixture(t)

	rec := fx.do(t, http.MethodGet, "/suggest?type=actor&query=b", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeAs[[]autocompleteEntry](t, rec))

	rec = fx.do(t, http.MethodGet, "/suggest?type=actor&query=bob", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []autocompleteEntry{{Name: "Bob Baker", Image: "https://img.test/w185/b.jpg"}}, decodeAs[[]autocompleteEntry](t, rec))

	rec = fx.do(t, http.MethodGet, "/suggest?type=title&query=second", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []autocompleteEntry{{Name: "Second Show", Image: "https://img.test/w185/p2.jpg"}}, decodeAs[[]autocompleteEntry](t, rec))

	rec = fx.do(t, http.MethodGet, "/suggest?type=studio&query=second", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPIPuzzles(t *testing.T) {
	fx := newAPIFixture(t)

	rec := fx.do(t, http.MethodGet, "/get-daily-actors", "")
	require.Equal(t, http.StatusOK, rec.Code)
	daily := decodeAs[Puzzle](t, rec)
	assert.NotEqual(t, daily.Start.Name, daily.Goal.Name)
	assert.NotEmpty(t, daily.Start.Image)

	again := decodeAs[Puzzle](t, fx.do(t, http.MethodGet, "/get-daily-actors", ""))
	assert.Equal(t, daily, again)

	random := decodeAs[Puzzle](t, fx.do(t, http.MethodGet, "/get-random-actors", ""))
	assert.NotEqual(t, random.Start.Name, random.Goal.Name)
}

func TestAPILeaderboard(t *testing.T) {
	fx := newAPIFixture(t)

	rec := fx.do(t, http.MethodPost, "/submit-daily-score", `{"player":"ana","steps":3,"duration":42.5}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = fx.do(t, http.MethodPost, "/submit-daily-score", `{"player":"ben","steps":2,"duration":80}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = fx.do(t, http.MethodPost, "/submit-daily-score", `{"player":"cy","steps":0,"duration":1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = fx.do(t, http.MethodPost, "/submit-daily-score", `{"player":"dee","steps":2,"duration":1e11}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = fx.do(t, http.MethodPost, "/submit-daily-score", `{"player":"  ","steps":1,"duration":1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = fx.do(t, http.MethodGet, "/get-daily-leaderboard", "")
	require.Equal(t, http.StatusOK, rec.Code)

	scores := decodeAs[[]Score](t, rec)
	require.Len(t, scores, 2)
	assert.Equal(t, "ben", scores[0].Player)
	assert.Equal(t, "2026-10-17", scores[0].Day)
	assert.InDelta(t, 42.5, scores[1].Duration, 0.001)
}

func TestAPICORS(t *testing.T) {
	fx := newAPIFixture(t)

	req := httptest.NewRequest(http.MethodOptions, "/validate-link", nil)
	req.Header.Set("Origin", "https://play.example")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	fx.mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://play.example", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/get-daily-leaderboard", nil)
	req.Header.Set("Origin", "https://play.example")
	rec = httptest.NewRecorder()
	fx.mux.ServeHTTP(rec, req)

	assert.Equal(t, "https://play.example", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestCORSRestrictedOrigins(t *testing.T) {
	cfg := testConfig()
	cfg.allowedOrigins = []string{"https://ok.example"}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec := httptest.NewRecorder()
	corsHeaders(cfg, rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))

	req.Header.Set("Origin", "https://ok.example")
	rec = httptest.NewRecorder()
	corsHeaders(cfg, rec, req)
	assert.Equal(t, "https://ok.example", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestHealthCheck(t *testing.T) {
	cfg := testConfig()
	errs := make(chan error, 1)

	mux := httprouter.New()
	mux.GET("/healthz", serveHealthCheck(cfg, nil, errs))
	mux.GET("/down", serveHealthCheck(cfg, (&memoryGraph{err: errFakeUpstream}).VerifyConnectivity, errs))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Ok\n", rec.Body.String())

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/down", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestWriteJSONErrorStatus(t *testing.T) {
	for err, want := range map[error]int{
		ErrAmbiguousInput:      http.StatusBadRequest,
		ErrNotFound:            http.StatusNotFound,
		ErrUpstreamUnavailable: http.StatusBadGateway,
		errFakeUpstream:        http.StatusInternalServerError,
	} {
		rec := httptest.NewRecorder()
		_, _ = writeJSONError(rec, err)
		assert.Equal(t, want, rec.Code, err.Error())
	}
}
