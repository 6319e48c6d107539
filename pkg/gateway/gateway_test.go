package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-kit/log"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/sre-norns/skald/pkg/skald"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

func newTestGateway(t *testing.T) *Gateway {
	t.Helper()

	return New(Config{
		DatabaseURL: filepath.Join(t.TempDir(), "skald-test.db"),
		JWTSecret:   "gateway-test-secret",
		TokenTTL:    time.Hour,
	}, log.NewNopLogger())
}

func doRequest(t *testing.T, g *Gateway, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	recorder := httptest.NewRecorder()
	g.ServeHTTP(recorder, req)

	return recorder
}

func decodeInto(t *testing.T, recorder *httptest.ResponseRecorder, dest any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), dest))
}

func TestGateway_IntrospectionNeedsNoStore(t *testing.T) {
	// No connection string at all: liveness endpoints still answer
	g := New(Config{JWTSecret: "whatever"}, log.NewNopLogger())

	health := doRequest(t, g, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, health.Code)

	var status map[string]any
	decodeInto(t, health, &status)
	require.Equal(t, "ok", status["status"])
	require.NotEmpty(t, status["timestamp"])

	root := doRequest(t, g, http.MethodGet, "/", "", nil)
	require.Equal(t, http.StatusOK, root.Code)

	metrics := doRequest(t, g, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, metrics.Code)

	require.Zero(t, testutil.ToFloat64(g.metrics.coldStarts), "introspection must not trigger a cold start")
}

func TestGateway_MissingConfigYieldsUnavailable(t *testing.T) {
	g := New(Config{JWTSecret: "whatever"}, log.NewNopLogger())

	recorder := doRequest(t, g, http.MethodGet, "/api/v1/posts", "", nil)
	require.Equal(t, http.StatusServiceUnavailable, recorder.Code)

	var resp skald.ErrorResponse
	decodeInto(t, recorder, &resp)
	require.Equal(t, string(skald.KindUnavailable), resp.Code)
	require.NotContains(t, resp.Message, "connection string", "5xx bodies must stay opaque")
}

func TestGateway_ConstructionFailureIsNotCached(t *testing.T) {
	// The store file lives in a directory that does not exist yet, so the
	// first construction attempt fails
	dir := filepath.Join(t.TempDir(), "not-yet-created")
	g := New(Config{
		DatabaseURL: filepath.Join(dir, "skald.db"),
		JWTSecret:   "gateway-test-secret",
		TokenTTL:    time.Hour,
	}, log.NewNopLogger())

	recorder := doRequest(t, g, http.MethodGet, "/api/v1/posts", "", nil)
	require.Equal(t, http.StatusServiceUnavailable, recorder.Code)

	// Once the cause is fixed, the very next request succeeds
	require.NoError(t, os.MkdirAll(dir, 0o755))

	recorder = doRequest(t, g, http.MethodGet, "/api/v1/posts", "", nil)
	require.Equal(t, http.StatusOK, recorder.Code)
}

func TestGateway_ConcurrentColdStart(t *testing.T) {
	const callers = 16

	g := newTestGateway(t)

	var wg sync.WaitGroup
	codes := make([]int, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			codes[i] = doRequest(t, g, http.MethodGet, "/api/v1/posts", "", nil).Code
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.Equal(t, http.StatusOK, codes[i])
	}
	require.EqualValues(t, 1, testutil.ToFloat64(g.metrics.coldStarts),
		"concurrent first requests must share one engine construction")
}

func TestGateway_AccountAndPostFlow(t *testing.T) {
	g := newTestGateway(t)

	// Register pays the cold-start cost and returns a token
	created := doRequest(t, g, http.MethodPost, "/api/v1/accounts", "", skald.CreateAccountRequest{
		Name:     "Snorri",
		Email:    "snorri@example.com",
		Password: "edda-pass",
	})
	require.Equal(t, http.StatusCreated, created.Code)
	require.NotEmpty(t, created.Header().Get("Location"))

	var auth skald.AuthResponse
	decodeInto(t, created, &auth)
	require.NotEmpty(t, auth.Token)
	require.NotEmpty(t, auth.Account.ID)

	// The token identifies the caller
	me := doRequest(t, g, http.MethodGet, "/api/v1/auth/me", auth.Token, nil)
	require.Equal(t, http.StatusOK, me.Code)

	var whoami skald.Account
	decodeInto(t, me, &whoami)
	require.Equal(t, auth.Account.ID, whoami.ID)

	// Anonymous and garbage credentials degrade the same way
	require.Equal(t, http.StatusUnauthorized,
		doRequest(t, g, http.MethodGet, "/api/v1/auth/me", "", nil).Code)
	require.Equal(t, http.StatusUnauthorized,
		doRequest(t, g, http.MethodGet, "/api/v1/auth/me", "not-a-real-token", nil).Code)

	// Post creation is identity-gated
	entry := skald.CreatePostRequest{
		Title:    "Saga of the gateway",
		Content:  "A tale of connections built on demand",
		AuthorID: auth.Account.ID,
	}
	require.Equal(t, http.StatusUnauthorized,
		doRequest(t, g, http.MethodPost, "/api/v1/posts", "", entry).Code)

	postCreated := doRequest(t, g, http.MethodPost, "/api/v1/posts", auth.Token, entry)
	require.Equal(t, http.StatusCreated, postCreated.Code)

	var post skald.Post
	decodeInto(t, postCreated, &post)
	require.NotEmpty(t, post.ID)

	// Open reads
	list := doRequest(t, g, http.MethodGet, "/api/v1/posts", "", nil)
	require.Equal(t, http.StatusOK, list.Code)

	var page skald.PageResult[skald.Post]
	decodeInto(t, list, &page)
	require.EqualValues(t, 1, page.Total)
	require.Len(t, page.Items, 1)

	search := doRequest(t, g, http.MethodGet, "/api/v1/posts?search=saga", "", nil)
	require.Equal(t, http.StatusOK, search.Code)

	var matches []skald.Post
	decodeInto(t, search, &matches)
	require.Len(t, matches, 1)

	author := doRequest(t, g, http.MethodGet, fmt.Sprintf("/api/v1/posts/%v/author", post.ID), "", nil)
	require.Equal(t, http.StatusOK, author.Code)

	var resolved skald.Account
	decodeInto(t, author, &resolved)
	require.Equal(t, auth.Account.ID, resolved.ID)

	// Delete is gated and not idempotent
	require.Equal(t, http.StatusUnauthorized,
		doRequest(t, g, http.MethodDelete, fmt.Sprintf("/api/v1/posts/%v", post.ID), "", nil).Code)
	require.Equal(t, http.StatusNoContent,
		doRequest(t, g, http.MethodDelete, fmt.Sprintf("/api/v1/posts/%v", post.ID), auth.Token, nil).Code)
	require.Equal(t, http.StatusNotFound,
		doRequest(t, g, http.MethodDelete, fmt.Sprintf("/api/v1/posts/%v", post.ID), auth.Token, nil).Code)
}

func TestGateway_ErrorBodies(t *testing.T) {
	g := newTestGateway(t)

	recorder := doRequest(t, g, http.MethodGet, "/api/v1/posts/no-such-id", "", nil)
	require.Equal(t, http.StatusNotFound, recorder.Code)

	var resp skald.ErrorResponse
	decodeInto(t, recorder, &resp)
	require.Equal(t, string(skald.KindNotFound), resp.Code)
	require.Equal(t, "post not found", resp.Message)

	recorder = doRequest(t, g, http.MethodGet, "/api/v1/accounts", "", nil)
	require.Equal(t, http.StatusUnauthorized, recorder.Code)

	decodeInto(t, recorder, &resp)
	require.Equal(t, string(skald.KindUnauthenticated), resp.Code)
}

func TestGateway_ContentNegotiation(t *testing.T) {
	g := newTestGateway(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/posts", nil)
	req.Header.Set("Accept", "application/yaml")
	recorder := httptest.NewRecorder()
	g.ServeHTTP(recorder, req)
	require.Equal(t, http.StatusOK, recorder.Code)
	require.Contains(t, recorder.Header().Get("Content-Type"), "yaml")

	req = httptest.NewRequest(http.MethodGet, "/api/v1/posts", nil)
	req.Header.Set("Accept", "application/msgpack")
	recorder = httptest.NewRecorder()
	g.ServeHTTP(recorder, req)
	require.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestBearerToken(t *testing.T) {
	testCases := map[string]struct {
		given  string
		expect string
	}{
		"empty":        {given: "", expect: ""},
		"well-formed":  {given: "Bearer abc.def.ghi", expect: "abc.def.ghi"},
		"wrong-scheme": {given: "Basic dXNlcjpwYXNz", expect: ""},
		"no-token":     {given: "Bearer", expect: ""},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			require.Equal(t, tc.expect, bearerToken(tc.given))
		})
	}
}

func TestStatusOf(t *testing.T) {
	testCases := map[skald.ErrorKind]int{
		skald.KindNotFound:        http.StatusNotFound,
		skald.KindValidation:      http.StatusBadRequest,
		skald.KindUnauthenticated: http.StatusUnauthorized,
		skald.KindForbidden:       http.StatusForbidden,
		skald.KindConfiguration:   http.StatusServiceUnavailable,
		skald.KindUnavailable:     http.StatusServiceUnavailable,
		skald.KindInternal:        http.StatusInternalServerError,
	}

	for kind, expect := range testCases {
		require.Equal(t, expect, statusOf(kind), "kind %v", kind)
	}
}
