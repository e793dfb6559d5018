package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/apiclient/client/auth/refresh"
	"github.com/viant/apiclient/client/auth/store"
	"github.com/viant/apiclient/client/auth/transport"
	"github.com/viant/apiclient/client/auth/vault"
	"github.com/viant/apiclient/client/cache"
	"github.com/viant/apiclient/schema"
	"golang.org/x/sync/errgroup"
)

type testAPI struct {
	server   *httptest.Server
	mux      *http.ServeMux
	hits     sync.Map
	lastAuth atomic.Value
}

func newTestAPI(t *testing.T) *testAPI {
	ret := &testAPI{mux: http.NewServeMux()}
	ret.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		counter, _ := ret.hits.LoadOrStore(r.URL.Path, new(int32))
		atomic.AddInt32(counter.(*int32), 1)
		ret.lastAuth.Store(r.Header.Get("Authorization"))
		ret.mux.ServeHTTP(w, r)
	}))
	t.Cleanup(ret.server.Close)
	return ret
}

func (a *testAPI) count(path string) int {
	if counter, ok := a.hits.Load(path); ok {
		return int(atomic.LoadInt32(counter.(*int32)))
	}
	return 0
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

func newVault(t *testing.T, token string) *vault.Vault {
	ctx := context.Background()
	v, err := vault.New(ctx, store.NewMemoryStore(), vault.WithKeyring(vault.StaticKeyring("test-secret")))
	require.NoError(t, err)
	if token != "" {
		require.NoError(t, v.Write(ctx, &vault.Record{Token: token, User: &vault.UserProfile{ID: "1", Name: "Ann"}}))
	}
	return v
}

func newClient(t *testing.T, api *testAPI, v *vault.Vault, options ...Option) *Client {
	ret, err := New(api.server.URL, v, options...)
	require.NoError(t, err)
	return ret
}

func practiceAreasPolicy() *cache.Policy {
	return cache.NewPolicy(cache.Rule{Pattern: "/practice-areas", TTL: 5 * time.Minute})
}

func TestClient_CacheHit(t *testing.T) {
	api := newTestAPI(t)
	api.mux.HandleFunc("/api/practice-areas", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"success":true,"data":[{"id":1,"name":"Tax"}]}`)
	})
	c := newClient(t, api, newVault(t, "t1"), WithCachePolicy(practiceAreasPolicy()))
	ctx := context.Background()

	first, err := c.Get(ctx, "/practice-areas")
	require.NoError(t, err)
	assert.False(t, first.Cached)
	second, err := c.Get(ctx, "/practice-areas")
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.JSONEq(t, string(first.Data), string(second.Data))
	assert.Equal(t, 1, api.count("/api/practice-areas"))

	_, err = c.Get(ctx, "/practice-areas", WithForceRefreshCache())
	require.NoError(t, err)
	assert.Equal(t, 2, api.count("/api/practice-areas"))

	assert.Equal(t, 1, c.ClearCache("practice-areas"))
	_, err = c.Get(ctx, "/practice-areas")
	require.NoError(t, err)
	assert.Equal(t, 3, api.count("/api/practice-areas"))
	assert.Equal(t, 1, c.CacheStats().Size)
}

func TestClient_PracticeAreasScenario(t *testing.T) {
	api := newTestAPI(t)
	api.mux.HandleFunc("/api/practice-areas", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"data":[{"id":1}]}`)
	})
	now := time.Unix(1_700_000_000, 0)
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	advance := func(d time.Duration) {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(d)
	}
	responses := cache.New[*schema.Response](cache.WithClock(clock))
	c := newClient(t, api, newVault(t, "t1"), WithCache(responses), WithCachePolicy(practiceAreasPolicy()))
	ctx := context.Background()

	_, err := c.Get(ctx, "/practice-areas")
	require.NoError(t, err)
	advance(100 * time.Second)
	cached, err := c.Get(ctx, "/practice-areas")
	require.NoError(t, err)
	assert.True(t, cached.Cached)
	assert.Equal(t, 1, api.count("/api/practice-areas"))

	advance(50 * time.Second)
	c.ClearCache("practice-areas")
	fresh, err := c.Get(ctx, "/practice-areas")
	require.NoError(t, err)
	assert.False(t, fresh.Cached)
	assert.Equal(t, 2, api.count("/api/practice-areas"))

	advance(5 * time.Minute)
	expired, err := c.Get(ctx, "/practice-areas")
	require.NoError(t, err)
	assert.False(t, expired.Cached)
	assert.Equal(t, 3, api.count("/api/practice-areas"))
}

func TestClient_DeniedPathsAreNotCached(t *testing.T) {
	api := newTestAPI(t)
	api.mux.HandleFunc("/api/practice-areas/edit", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"data":{}}`)
	})
	c := newClient(t, api, newVault(t, "t1"), WithCachePolicy(practiceAreasPolicy()))
	for i := 0; i < 2; i++ {
		_, err := c.Get(context.Background(), "/practice-areas/edit")
		require.NoError(t, err)
	}
	assert.Equal(t, 2, api.count("/api/practice-areas/edit"))
}

func TestClient_ConcurrentMissesShareOneCall(t *testing.T) {
	api := newTestAPI(t)
	release := make(chan struct{})
	api.mux.HandleFunc("/api/practice-areas", func(w http.ResponseWriter, r *http.Request) {
		<-release
		writeJSON(w, http.StatusOK, `{"data":[1]}`)
	})
	c := newClient(t, api, newVault(t, "t1"), WithCachePolicy(practiceAreasPolicy()))
	group := errgroup.Group{}
	for i := 0; i < 4; i++ {
		group.Go(func() error {
			_, err := c.Get(context.Background(), "/practice-areas")
			return err
		})
	}
	require.Eventually(t, func() bool { return api.count("/api/practice-areas") == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(release)
	require.NoError(t, group.Wait())
	assert.Equal(t, 1, api.count("/api/practice-areas"))
}

func TestClient_SharedMissOutlivesFirstCaller(t *testing.T) {
	api := newTestAPI(t)
	api.mux.HandleFunc("/api/practice-areas", func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		writeJSON(w, http.StatusOK, `{"data":[1]}`)
	})
	c := newClient(t, api, newVault(t, "t1"), WithCachePolicy(practiceAreasPolicy()))

	short, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	shortErr := make(chan error, 1)
	go func() {
		_, err := c.Get(short, "/practice-areas")
		shortErr <- err
	}()
	require.Eventually(t, func() bool { return api.count("/api/practice-areas") == 1 }, time.Second, time.Millisecond)

	response, err := c.Get(context.Background(), "/practice-areas")
	require.NoError(t, err, "a caller with a live context must not inherit another caller's deadline")
	assert.JSONEq(t, `[1]`, string(response.Data))

	err = <-shortErr
	require.Error(t, err)
	assert.True(t, schema.IsTimeout(err))
	assert.Equal(t, 1, api.count("/api/practice-areas"))
}

func TestClient_ConcurrentIdenticalWritesKeepOneEntry(t *testing.T) {
	api := newTestAPI(t)
	var version int32
	api.mux.HandleFunc("/api/practice-areas", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, fmt.Sprintf(`{"data":{"version":%d}}`, atomic.AddInt32(&version, 1)))
	})
	c := newClient(t, api, newVault(t, "t1"), WithCachePolicy(practiceAreasPolicy()))

	group := errgroup.Group{}
	for i := 0; i < 8; i++ {
		group.Go(func() error {
			_, err := c.Get(context.Background(), "/practice-areas", WithForceRefreshCache())
			return err
		})
	}
	require.NoError(t, group.Wait())
	assert.Equal(t, 1, c.CacheStats().Size)

	cached, err := c.Get(context.Background(), "/practice-areas")
	require.NoError(t, err)
	assert.True(t, cached.Cached)
	var payload struct{ Version int32 }
	require.NoError(t, cached.Decode(&payload))
	assert.True(t, payload.Version >= 1 && payload.Version <= atomic.LoadInt32(&version))
}

func TestClient_Sanitization(t *testing.T) {
	api := newTestAPI(t)
	var received atomic.Value
	api.mux.HandleFunc("/api/notes", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		received.Store(string(body))
		writeJSON(w, http.StatusCreated, `{"data":{"html":"<p>ok</p><script>steal()</script>","n":1}}`)
	})
	c := newClient(t, api, newVault(t, "t1"))
	ctx := context.Background()
	payload := map[string]any{"title": "<b>Hi</b><script>alert(1)</script>", "tags": []string{"<script>x()</script>safe"}}

	testCases := []struct {
		description string
		body        any
		options     []RequestOption
		expected    string
	}{
		{description: "json body sanitized", body: payload, expected: `{"tags":["safe"],"title":"<b>Hi</b>"}`},
		{description: "opt out", body: payload, options: []RequestOption{WithSkipSanitization()}, expected: `{"tags":["<script>x()</script>safe"],"title":"<b>Hi</b><script>alert(1)</script>"}`},
		{description: "binary body untouched", body: []byte("<script>raw</script>"), expected: "<script>raw</script>"},
	}
	for _, testCase := range testCases {
		t.Run(testCase.description, func(t *testing.T) {
			response, err := c.Post(ctx, "/notes", testCase.body, testCase.options...)
			require.NoError(t, err)
			if _, ok := testCase.body.([]byte); ok {
				assert.Equal(t, testCase.expected, received.Load())
			} else {
				assert.JSONEq(t, testCase.expected, received.Load().(string))
			}
			var note struct {
				HTML string `json:"html"`
				N    int    `json:"n"`
			}
			require.NoError(t, response.Decode(&note))
			assert.Equal(t, "<p>ok</p>", note.HTML)
			assert.Equal(t, 1, note.N)
		})
	}
}

func TestClient_SingleFlightRefresh(t *testing.T) {
	api := newTestAPI(t)
	api.mux.HandleFunc("/api/cases", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer fresh" {
			writeJSON(w, http.StatusUnauthorized, `{"message":"expired"}`)
			return
		}
		writeJSON(w, http.StatusOK, `{"data":{"ok":true}}`)
	})
	const callers = 8
	v := newVault(t, "stale")
	var refreshes int32
	var coordinator *refresh.Coordinator
	coordinator = refresh.New(v, refresh.Func(func(ctx context.Context, current *vault.Record) (*vault.Record, error) {
		atomic.AddInt32(&refreshes, 1)
		deadline := time.Now().Add(2 * time.Second)
		for coordinator.Stats().Waiting < callers && time.Now().Before(deadline) {
			time.Sleep(time.Millisecond)
		}
		return &vault.Record{Token: "fresh", User: current.User}, nil
	}))
	c := newClient(t, api, v, WithCoordinator(coordinator))

	group := errgroup.Group{}
	for i := 0; i < callers; i++ {
		group.Go(func() error {
			_, err := c.Get(context.Background(), "/cases")
			return err
		})
	}
	require.NoError(t, group.Wait())
	assert.EqualValues(t, 1, atomic.LoadInt32(&refreshes))
	assert.Equal(t, 2*callers, api.count("/api/cases"))
	assert.Equal(t, "Ann", c.CurrentUser(context.Background()).Name)
}

func TestClient_RefreshFailure(t *testing.T) {
	api := newTestAPI(t)
	api.mux.HandleFunc("/api/cases", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, `{"message":"expired"}`)
	})
	api.mux.HandleFunc("/api/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, `{"message":"session revoked"}`)
	})
	v := newVault(t, "stale")
	var failures int32
	coordinator := refresh.New(v, refresh.NewEndpointRefresher(api.server.URL+"/api/auth/refresh", api.server.Client()),
		refresh.WithFailureHandler(func(ctx context.Context, err error) { atomic.AddInt32(&failures, 1) }))
	c := newClient(t, api, v, WithCoordinator(coordinator))

	_, err := c.Get(context.Background(), "/cases")
	require.Error(t, err)
	assert.True(t, schema.IsAuthFailed(err))
	redirect, ok := schema.RedirectTarget(err)
	assert.True(t, ok)
	assert.Equal(t, schema.DefaultLoginPath, redirect)
	assert.Nil(t, v.Read(context.Background()))
	assert.EqualValues(t, 1, atomic.LoadInt32(&failures))
	assert.Equal(t, 1, api.count("/api/auth/refresh"))
}

func TestClient_RetryExhausted(t *testing.T) {
	api := newTestAPI(t)
	api.mux.HandleFunc("/api/cases", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, `{"message":"not allowed"}`)
	})
	v := newVault(t, "stale")
	coordinator := refresh.New(v, refresh.Func(func(ctx context.Context, current *vault.Record) (*vault.Record, error) {
		return &vault.Record{Token: "fresh"}, nil
	}))
	c := newClient(t, api, v, WithCoordinator(coordinator))

	_, err := c.Get(context.Background(), "/cases")
	require.Error(t, err)
	assert.Equal(t, schema.ErrorAuthRetryExhausted, schema.TextCode(err))
	assert.Equal(t, 2, api.count("/api/cases"))
	assert.Equal(t, 1, coordinator.Stats().Refreshes)
}

func TestClient_Errors(t *testing.T) {
	api := newTestAPI(t)
	api.mux.HandleFunc("/api/slow", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(time.Second):
		case <-r.Context().Done():
		}
	})
	api.mux.HandleFunc("/api/users", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnprocessableEntity, `{"success":false,"message":"Email is required","errors":[{"field":"email"}]}`)
	})
	api.mux.HandleFunc("/api/boom", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusInternalServerError, `{"message":"database offline"}`)
	})
	c := newClient(t, api, newVault(t, "t1"), WithTimeout(50*time.Millisecond))
	ctx := context.Background()

	_, err := c.Get(ctx, "/slow")
	require.Error(t, err)
	assert.True(t, schema.IsTransient(err))
	assert.True(t, schema.IsTimeout(err))

	_, err = c.Post(ctx, "/users", map[string]string{"name": "Ann"})
	require.Error(t, err)
	assert.Equal(t, schema.ErrorRequestRejected, schema.TextCode(err))
	assert.Equal(t, "Email is required", schema.ResponseMessage(err))
	assert.Equal(t, http.StatusUnprocessableEntity, schema.StatusCode(err))
	assert.Len(t, schema.FieldErrors(err), 1)

	_, err = c.Get(ctx, "/boom")
	require.Error(t, err)
	assert.Equal(t, schema.ErrorServer, schema.TextCode(err))
	assert.Equal(t, "database offline", schema.ResponseMessage(err))

	closed := httptest.NewServer(http.NotFoundHandler())
	closedURL := closed.URL
	closed.Close()
	_, err = c.Get(ctx, closedURL+"/api/anything")
	require.Error(t, err)
	assert.Equal(t, schema.ErrorNetworkUnavailable, schema.TextCode(err))
}

func TestClient_LoginLogout(t *testing.T) {
	api := newTestAPI(t)
	api.mux.HandleFunc("/api/practice-areas", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"data":[]}`)
	})
	v := newVault(t, "")
	coordinator := refresh.New(v, refresh.Func(func(ctx context.Context, current *vault.Record) (*vault.Record, error) {
		return nil, errors.New("no session")
	}))
	c := newClient(t, api, v, WithCoordinator(coordinator), WithCachePolicy(practiceAreasPolicy()))
	ctx := context.Background()

	assert.Error(t, c.Login(ctx, &vault.Record{}))
	require.NoError(t, c.Login(ctx, &vault.Record{Token: "t1", User: &vault.UserProfile{ID: "9"}}))
	_, err := c.Get(ctx, "/practice-areas")
	require.NoError(t, err)
	assert.Equal(t, "Bearer t1", api.lastAuth.Load())
	assert.Equal(t, "9", c.CurrentUser(ctx).ID)

	require.NoError(t, c.Logout(ctx))
	assert.Equal(t, 0, c.CacheStats().Size)
	assert.Nil(t, c.CurrentUser(ctx))
	_, err = c.Get(ctx, "/practice-areas")
	require.NoError(t, err)
	assert.Equal(t, "", api.lastAuth.Load(), "a cleared token is never sent")
}

func TestClient_AntiForgery(t *testing.T) {
	api := newTestAPI(t)
	api.mux.HandleFunc("/api/csrf", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: refresh.XSRFCookie, Value: "xsrf-42", Path: "/"})
		writeJSON(w, http.StatusOK, `{}`)
	})
	var header atomic.Value
	api.mux.HandleFunc("/api/contact", func(w http.ResponseWriter, r *http.Request) {
		header.Store(r.Header.Get(refresh.XSRFHeader))
		writeJSON(w, http.StatusOK, `{}`)
	})
	jar, err := transport.NewPersistentJar(context.Background(), store.NewMemoryStore(), "")
	require.NoError(t, err)
	c := newClient(t, api, newVault(t, ""), WithCookieJar(jar))
	ctx := context.Background()

	_, err = c.Get(ctx, "/csrf")
	require.NoError(t, err)
	_, err = c.Post(ctx, "/contact", map[string]string{"message": "hello"})
	require.NoError(t, err)
	assert.Equal(t, "xsrf-42", header.Load())
}

func TestClient_PathNormalization(t *testing.T) {
	api := newTestAPI(t)
	var seen atomic.Value
	api.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		seen.Store(r.URL.RequestURI())
		writeJSON(w, http.StatusOK, `{}`)
	})
	c := newClient(t, api, newVault(t, "t1"))
	testCases := []struct {
		description string
		path        string
		options     []RequestOption
		expected    string
	}{
		{description: "relative path prefixed", path: "/cases", expected: "/api/cases"},
		{description: "missing slash", path: "cases", expected: "/api/cases"},
		{description: "already prefixed", path: "/api/cases", expected: "/api/cases"},
		{description: "uploads passthrough", path: "/uploads/a.png", expected: "/uploads/a.png"},
		{description: "query merged", path: "/cases?page=2", options: []RequestOption{WithParam("limit", "10")}, expected: "/api/cases?limit=10&page=2"},
		{description: "absolute url", path: api.server.URL + "/health", expected: "/health"},
	}
	for _, testCase := range testCases {
		t.Run(testCase.description, func(t *testing.T) {
			_, err := c.Get(context.Background(), testCase.path, testCase.options...)
			require.NoError(t, err)
			assert.Equal(t, testCase.expected, seen.Load())
		})
	}
}

type practiceArea struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

func TestFetch(t *testing.T) {
	api := newTestAPI(t)
	var requestID atomic.Value
	api.mux.HandleFunc("/api/practice-areas", func(w http.ResponseWriter, r *http.Request) {
		requestID.Store(r.Header.Get(HeaderRequestID))
		writeJSON(w, http.StatusOK, `{"success":true,"data":[{"id":1,"name":"Tax"},{"id":2,"name":"Family"}],"pagination":{"page":1,"total":2}}`)
	})
	c := newClient(t, api, newVault(t, "t1"))

	areas, err := Fetch[[]practiceArea](context.Background(), c, "/practice-areas")
	require.NoError(t, err)
	assert.Equal(t, []practiceArea{{ID: 1, Name: "Tax"}, {ID: 2, Name: "Family"}}, *areas)
	assert.NotEmpty(t, requestID.Load())

	response, err := c.Get(context.Background(), "/practice-areas")
	require.NoError(t, err)
	assert.Equal(t, schema.KindList, response.Kind)
	require.NotNil(t, response.Pagination)
	assert.Equal(t, 2, response.Pagination.Total)
	raw, _ := json.Marshal(response.Pagination)
	assert.True(t, strings.Contains(string(raw), `"page":1`))
}
