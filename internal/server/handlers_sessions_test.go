package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NVIDIA-Omniverse/ov-dgxc-portal-sample/internal/app"
	"github.com/NVIDIA-Omniverse/ov-dgxc-portal-sample/internal/domain"
	"github.com/NVIDIA-Omniverse/ov-dgxc-portal-sample/internal/proxy"
)

func sessionCookiesByPath(t *testing.T, rec *httptest.ResponseRecorder) map[string]*http.Cookie {
	t.Helper()
	cookies := map[string]*http.Cookie{}
	for _, cookie := range rec.Result().Cookies() {
		if cookie.Name == sessionCookie {
			cookies[cookie.Path] = cookie
		}
	}
	return cookies
}

func TestStartSession(t *testing.T) {
	ref := testRef(t)
	started := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)

	t.Run("returns the session and stamps both cookies", func(t *testing.T) {
		f := newTestServer(t)
		f.service.startFunc = func(ctx context.Context, gotRef domain.FunctionRef, user app.Identity) (*domain.Session, error) {
			assert.Equal(t, ref, gotRef)
			return &domain.Session{
				ID:        "sess-1",
				Function:  gotRef,
				UserID:    user.Sub,
				Status:    domain.StatusIdle,
				StartDate: started,
			}, nil
		}

		rec := f.do(f.request(http.MethodPost, signInPath(ref), ""))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "sess-1", rec.Header().Get(sessionCookie))

		response := decodeJSON[sessionResponse](t, rec)
		assert.Equal(t, "sess-1", response.ID)
		assert.Equal(t, ref.FunctionID, response.FunctionID)
		assert.Equal(t, domain.StatusIdle, response.Status)

		cookies := sessionCookiesByPath(t, rec)
		require.Len(t, cookies, 2)
		for _, path := range []string{signInPath(ref), streamPath(ref)} {
			cookie, ok := cookies[path]
			require.True(t, ok, "missing cookie for path %s", path)
			assert.Equal(t, "sess-1", cookie.Value)
			assert.Equal(t, 3600, cookie.MaxAge)
		}
	})

	t.Run("rejects malformed function ids", func(t *testing.T) {
		f := newTestServer(t)

		rec := f.do(f.request(http.MethodPost, "/sessions/not-a-uuid/"+ref.FunctionVersionID.String()+"/sign_in", ""))

		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "function_id")
	})

	t.Run("maps the instance cap to 429", func(t *testing.T) {
		f := newTestServer(t)
		f.service.startFunc = func(ctx context.Context, ref domain.FunctionRef, user app.Identity) (*domain.Session, error) {
			return nil, domain.ErrQuotaExceeded
		}

		rec := f.do(f.request(http.MethodPost, signInPath(ref), ""))

		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	})

	t.Run("throttles start bursts per client", func(t *testing.T) {
		f := newTestServer(t)
		f.service.startFunc = func(ctx context.Context, ref domain.FunctionRef, user app.Identity) (*domain.Session, error) {
			return &domain.Session{ID: "sess-1", Function: ref, Status: domain.StatusIdle, StartDate: started}, nil
		}

		for i := 0; i < startBurst; i++ {
			rec := f.do(f.request(http.MethodPost, signInPath(ref), ""))
			require.Equal(t, http.StatusOK, rec.Code, "request %d should pass", i+1)
		}

		rec := f.do(f.request(http.MethodPost, signInPath(ref), ""))
		require.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.Contains(t, rec.Body.String(), "Too many session requests.")
	})
}

func TestStopSession(t *testing.T) {
	ref := testRef(t)

	t.Run("stops the session from the cookie and expires it", func(t *testing.T) {
		f := newTestServer(t)
		var stoppedID string
		f.service.stopFunc = func(ctx context.Context, sessionID string, gotRef domain.FunctionRef, user app.Identity) error {
			stoppedID = sessionID
			assert.Equal(t, ref, gotRef)
			return nil
		}

		req := f.request(http.MethodDelete, signInPath(ref), "")
		req.AddCookie(&http.Cookie{Name: sessionCookie, Value: "sess-1"})
		rec := f.do(req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "sess-1", stoppedID)

		cookies := sessionCookiesByPath(t, rec)
		require.Len(t, cookies, 2)
		for _, cookie := range cookies {
			assert.Empty(t, cookie.Value)
			assert.False(t, cookie.Expires.After(time.Unix(0, 0)))
		}
	})

	t.Run("rejects requests without a session cookie", func(t *testing.T) {
		f := newTestServer(t)

		rec := f.do(f.request(http.MethodDelete, signInPath(ref), ""))

		require.Equal(t, http.StatusBadRequest, rec.Code)
		// The stale cookies are still cleared.
		assert.Len(t, sessionCookiesByPath(t, rec), 2)
	})

	t.Run("answers 404 for a session the user does not own", func(t *testing.T) {
		f := newTestServer(t)
		f.service.stopFunc = func(ctx context.Context, sessionID string, ref domain.FunctionRef, user app.Identity) error {
			return domain.ErrSessionNotFound
		}

		req := f.request(http.MethodDelete, signInPath(ref), "")
		req.AddCookie(&http.Cookie{Name: sessionCookie, Value: "sess-1"})
		rec := f.do(req)

		require.Equal(t, http.StatusNotFound, rec.Code)
		assert.Len(t, sessionCookiesByPath(t, rec), 2)
	})
}

func TestConnectSession(t *testing.T) {
	ref := testRef(t)

	dial := func(t *testing.T, f *fixture, dialer *websocket.Dialer, header http.Header, query string) (*websocket.Conn, *http.Response) {
		t.Helper()
		srv := httptest.NewServer(f.server.echo)
		t.Cleanup(srv.Close)

		wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + signInPath(ref) + query
		conn, resp, err := dialer.Dial(wsURL, header)
		require.NoError(t, err)
		t.Cleanup(func() { conn.Close() })
		return conn, resp
	}

	readCloseCode := func(t *testing.T, conn *websocket.Conn) int {
		t.Helper()
		_, _, err := conn.ReadMessage()
		var closeErr *websocket.CloseError
		require.ErrorAs(t, err, &closeErr)
		return closeErr.Code
	}

	t.Run("hands the connection to the session and reports its close status", func(t *testing.T) {
		f := newTestServer(t)
		var got app.AttachParams
		f.service.attachFunc = func(ctx context.Context, params app.AttachParams) proxy.CloseStatus {
			got = params
			return proxy.CloseStatus{Code: proxy.CodeTerminated, Reason: "Terminated by a system administrator."}
		}

		header := http.Header{}
		header.Set("Cookie", sessionCookie+"=sess-1; nucleus_token=nucleus-secret")
		header.Set("User-Agent", "portal-client/1.0")
		conn, _ := dial(t, f, websocket.DefaultDialer, header, "?media=video")

		assert.Equal(t, proxy.CodeTerminated, readCloseCode(t, conn))
		assert.Equal(t, "sess-1", got.SessionID)
		assert.Equal(t, ref, got.Ref)
		assert.Equal(t, "video", got.Query.Get("media"))
		assert.Equal(t, "portal-client/1.0", got.UserAgent)
		assert.Equal(t, "nucleus-secret", got.NucleusToken)
	})

	t.Run("closes with 3000 when the session cookie is missing", func(t *testing.T) {
		f := newTestServer(t)
		conn, _ := dial(t, f, websocket.DefaultDialer, nil, "")

		assert.Equal(t, proxy.CodeMissingSession, readCloseCode(t, conn))
	})

	t.Run("echoes the requested subprotocol", func(t *testing.T) {
		f := newTestServer(t)
		f.service.attachFunc = func(ctx context.Context, params app.AttachParams) proxy.CloseStatus {
			return proxy.CloseStatus{Code: websocket.CloseNormalClosure}
		}

		header := http.Header{}
		header.Set("Cookie", sessionCookie+"=sess-1")
		dialer := &websocket.Dialer{Subprotocols: []string{"nv-signaling"}}
		conn, _ := dial(t, f, dialer, header, "")

		assert.Equal(t, "nv-signaling", conn.Subprotocol())
	})
}

func TestListSessions(t *testing.T) {
	t.Run("passes filter and paging through", func(t *testing.T) {
		f := newTestServer(t)
		var gotFilter domain.SessionFilter
		var gotPage, gotSize int
		f.service.listFunc = func(ctx context.Context, filter domain.SessionFilter, page, pageSize int) (*domain.Page[*domain.Session], error) {
			gotFilter, gotPage, gotSize = filter, page, pageSize
			return &domain.Page[*domain.Session]{
				Items:      []*domain.Session{{ID: "sess-1", Status: domain.StatusIdle}},
				Page:       page,
				PageSize:   pageSize,
				TotalSize:  1,
				TotalPages: 1,
			}, nil
		}

		rec := f.do(f.request(http.MethodGet, "/sessions/?status=ALIVE&page=2&page_size=5", ""))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, domain.StatusAlive, gotFilter.Status)
		assert.Equal(t, 2, gotPage)
		assert.Equal(t, 5, gotSize)

		response := decodeJSON[domain.Page[sessionResponse]](t, rec)
		require.Len(t, response.Items, 1)
		assert.Equal(t, "sess-1", response.Items[0].ID)
	})

	t.Run("narrows by function pair and owner", func(t *testing.T) {
		f := newTestServer(t)
		ref := testRef(t)
		var gotFilter domain.SessionFilter
		f.service.listFunc = func(ctx context.Context, filter domain.SessionFilter, page, pageSize int) (*domain.Page[*domain.Session], error) {
			gotFilter = filter
			return &domain.Page[*domain.Session]{Items: nil, Page: page, PageSize: pageSize}, nil
		}

		rec := f.do(f.request(http.MethodGet,
			"/sessions/?function_id="+ref.FunctionID.String()+
				"&function_version_id="+ref.FunctionVersionID.String()+
				"&user_id=user-1", ""))

		require.Equal(t, http.StatusOK, rec.Code)
		require.NotNil(t, gotFilter.Function)
		assert.Equal(t, ref, *gotFilter.Function)
		assert.Equal(t, "user-1", gotFilter.UserID)
	})

	t.Run("defaults to the first page of ten", func(t *testing.T) {
		f := newTestServer(t)
		var gotPage, gotSize int
		f.service.listFunc = func(ctx context.Context, filter domain.SessionFilter, page, pageSize int) (*domain.Page[*domain.Session], error) {
			gotPage, gotSize = page, pageSize
			return &domain.Page[*domain.Session]{Items: nil, Page: page, PageSize: pageSize}, nil
		}

		rec := f.do(f.request(http.MethodGet, "/sessions/", ""))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 1, gotPage)
		assert.Equal(t, 10, gotSize)
	})

	t.Run("validates the query parameters", func(t *testing.T) {
		f := newTestServer(t)

		for name, target := range map[string]string{
			"unknown status":          "/sessions/?status=SLEEPING",
			"zero page":               "/sessions/?page=0",
			"tiny page size":          "/sessions/?page_size=2",
			"malformed page":          "/sessions/?page=abc",
			"page with trailing junk": "/sessions/?page=5abc",
			"page size trailing junk": "/sessions/?page_size=10x",
			"half-specified function": "/sessions/?function_id=11111111-1111-1111-1111-111111111111",
			"malformed function pair": "/sessions/?function_id=nope&function_version_id=nope",
		} {
			rec := f.do(f.request(http.MethodGet, target, ""))
			assert.Equal(t, http.StatusBadRequest, rec.Code, name)
		}
	})
}

func TestTerminateSession(t *testing.T) {
	t.Run("terminates any session by ID", func(t *testing.T) {
		f := newTestServer(t)
		var terminated string
		f.service.terminateFunc = func(ctx context.Context, sessionID string) error {
			terminated = sessionID
			return nil
		}

		rec := f.do(f.request(http.MethodDelete, "/sessions/sess-1/terminate", ""))

		require.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, "sess-1", terminated)
	})

	t.Run("answers 404 for unknown sessions", func(t *testing.T) {
		f := newTestServer(t)
		f.service.terminateFunc = func(ctx context.Context, sessionID string) error {
			return domain.ErrSessionNotFound
		}

		rec := f.do(f.request(http.MethodDelete, "/sessions/ghost/terminate", ""))

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
