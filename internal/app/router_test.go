package app

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/hotelcms/hotelcms/internal/audit"
	audithttp "github.com/hotelcms/hotelcms/internal/audit/http"
	"github.com/hotelcms/hotelcms/internal/auth"
	"github.com/hotelcms/hotelcms/internal/mocks"
	"github.com/hotelcms/hotelcms/internal/observability"
	"github.com/hotelcms/hotelcms/internal/rbac"
	"github.com/hotelcms/hotelcms/internal/shared"
	"github.com/hotelcms/hotelcms/jobs"
	_ "github.com/hotelcms/hotelcms/testing"
)

type noUsers struct{}

func (noUsers) FindByEmail(context.Context, string) (*auth.User, error) {
	return nil, auth.ErrUserNotFound
}

func (noUsers) TouchLastLogin(context.Context, int64) error { return nil }

type emptyTimeline struct{}

func (emptyTimeline) Timeline(context.Context, audit.TimelineFilters) (audit.Result, error) {
	return audit.Result{Rows: []audit.TimelineRow{}}, nil
}

func (emptyTimeline) Export(context.Context, audit.TimelineFilters) ([]audit.TimelineRow, error) {
	return nil, nil
}

type routerFixture struct {
	handler  http.Handler
	sessions *shared.SessionManager
	csrf     *shared.CSRFManager
	actors   *mocks.MockActorSource
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	sessions := shared.NewSessionManager(client, "hotelcms_session", time.Hour, false)
	csrf := shared.NewCSRFManager("secret")
	actors := mocks.NewMockActorSource(gomock.NewController(t))

	handler := NewRouter(RouterParams{
		Logger:         logger,
		Config:         &Config{AppEnv: "test", RateLimitPerMinute: 1000},
		SessionManager: sessions,
		CSRFManager:    csrf,
		AuthHandler:    auth.NewHandler(logger, auth.NewService(noUsers{}, logger), sessions, csrf, nil),
		Authenticator:  auth.NewAuthenticator(actors, logger),
		RBACMiddleware: rbac.Middleware{Logger: logger},
		AuditHandler:   audithttp.NewHandler(logger, emptyTimeline{}),
		JobHandler:     jobs.NewHandler(nil, logger),
		Metrics:        observability.NewMetrics(),
	})
	return &routerFixture{handler: handler, sessions: sessions, csrf: csrf, actors: actors}
}

// loggedIn stores a session bound to userID and returns its token.
func (f *routerFixture) loggedIn(t *testing.T, userID int64) (token, csrfToken string) {
	t.Helper()
	sess, err := f.sessions.Load(context.Background(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	sess.SetUser(userID)
	csrfToken, err = f.csrf.EnsureToken(context.Background(), sess)
	require.NoError(t, err)
	require.NoError(t, f.sessions.Commit(context.Background(), httptest.NewRecorder(), sess))
	return sess.Token(), csrfToken
}

func (f *routerFixture) do(req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, req)
	return rr
}

func TestHealthzAndMetrics(t *testing.T) {
	f := newRouterFixture(t)
	rr := f.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
	require.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))

	rr = f.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `hotelcms_http_requests_total{code="200",route="/healthz"} 1`)
}

func TestAPIRequiresActor(t *testing.T) {
	f := newRouterFixture(t)
	rr := f.do(httptest.NewRequest(http.MethodGet, "/api/v1/jobs/health", nil))
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestJobsRequireAdmin(t *testing.T) {
	f := newRouterFixture(t)
	token, _ := f.loggedIn(t, 5)

	f.actors.EXPECT().LoadActor(gomock.Any(), int64(5)).Return(rbac.Actor{ID: 5, Active: true}, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs/health", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	require.Equal(t, http.StatusForbidden, f.do(req).Code)

	f.actors.EXPECT().LoadActor(gomock.Any(), int64(5)).Return(rbac.Actor{ID: 5, Active: true, Grants: rbac.Grants{Admin: true}}, nil)
	req = httptest.NewRequest(http.MethodGet, "/api/v1/jobs/health", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := f.do(req)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"queue":"default"`)
}

func TestCSRFOnlyGuardsCookieRequests(t *testing.T) {
	f := newRouterFixture(t)
	token, csrfToken := f.loggedIn(t, 5)
	cookie := &http.Cookie{Name: "hotelcms_session", Value: token}

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.AddCookie(cookie)
	require.Equal(t, http.StatusForbidden, f.do(req).Code)

	req = httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.AddCookie(cookie)
	req.Header.Set(shared.CSRFHeader, csrfToken)
	require.Equal(t, http.StatusNoContent, f.do(req).Code)

	req = httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"email":"a@example.com","password":"long-enough"}`))
	require.Equal(t, http.StatusUnauthorized, f.do(req).Code)
}

func TestAuditRoutesMounted(t *testing.T) {
	f := newRouterFixture(t)
	token, _ := f.loggedIn(t, 9)
	viewer := rbac.Actor{ID: 9, Active: true, Grants: rbac.Grants{Permissions: []string{rbac.PermViewEntries}}}
	f.actors.EXPECT().LoadActor(gomock.Any(), int64(9)).Return(viewer, nil).Times(2)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/entries/hotel/42/history", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := f.do(req)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"rows":[]`)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/audit", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	require.Equal(t, http.StatusForbidden, f.do(req).Code)
}
