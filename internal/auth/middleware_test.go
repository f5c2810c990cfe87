package auth_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/hotelcms/hotelcms/internal/auth"
	"github.com/hotelcms/hotelcms/internal/mocks"
	"github.com/hotelcms/hotelcms/internal/rbac"
	"github.com/hotelcms/hotelcms/internal/shared"
)

func slogDiscard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sessionFor(t *testing.T, userID int64) *shared.Session {
	t.Helper()
	sm := shared.NewSessionManager(nil, "s", 0, false)
	sess, err := sm.Load(context.Background(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	if userID > 0 {
		sess.SetUser(userID)
	}
	return sess
}

func TestRequireActor(t *testing.T) {
	cases := []struct {
		name   string
		userID int64
		setup  func(m *mocks.MockActorSource)
		status int
	}{
		{
			name:   "anonymous",
			setup:  func(m *mocks.MockActorSource) {},
			status: http.StatusUnauthorized,
		},
		{
			name:   "unknown user",
			userID: 3,
			setup: func(m *mocks.MockActorSource) {
				m.EXPECT().LoadActor(gomock.Any(), int64(3)).Return(rbac.Actor{}, rbac.ErrNotFound)
			},
			status: http.StatusUnauthorized,
		},
		{
			name:   "inactive user",
			userID: 3,
			setup: func(m *mocks.MockActorSource) {
				m.EXPECT().LoadActor(gomock.Any(), int64(3)).Return(rbac.Actor{ID: 3}, nil)
			},
			status: http.StatusUnauthorized,
		},
		{
			name:   "lookup failure",
			userID: 3,
			setup: func(m *mocks.MockActorSource) {
				m.EXPECT().LoadActor(gomock.Any(), int64(3)).Return(rbac.Actor{}, errors.New("db down"))
			},
			status: http.StatusInternalServerError,
		},
		{
			name:   "active user",
			userID: 3,
			setup: func(m *mocks.MockActorSource) {
				m.EXPECT().LoadActor(gomock.Any(), int64(3)).Return(rbac.Actor{ID: 3, Active: true}, nil)
			},
			status: http.StatusOK,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			source := mocks.NewMockActorSource(ctrl)
			tc.setup(source)

			var seen rbac.Actor
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				actor, ok := rbac.ActorFromContext(r.Context())
				require.True(t, ok)
				seen = actor
				w.WriteHeader(http.StatusOK)
			})
			handler := auth.NewAuthenticator(source, slogDiscard()).RequireActor(next)

			req := httptest.NewRequest(http.MethodGet, "/api/v1/changes", nil)
			req = req.WithContext(shared.ContextWithSession(req.Context(), sessionFor(t, tc.userID)))
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			require.Equal(t, tc.status, rr.Code)
			if tc.status == http.StatusOK {
				require.Equal(t, int64(3), seen.ID)
			}
		})
	}
}

func TestRequireActorWithoutSession(t *testing.T) {
	ctrl := gomock.NewController(t)
	handler := auth.NewAuthenticator(mocks.NewMockActorSource(ctrl), nil).RequireActor(http.NotFoundHandler())
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}
