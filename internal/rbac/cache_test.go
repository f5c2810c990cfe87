package rbac_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/hotelcms/hotelcms/internal/mocks"
	"github.com/hotelcms/hotelcms/internal/rbac"
)

func TestCachedSourceCachesGrants(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctrl := gomock.NewController(t)
	source := mocks.NewMockActorSource(ctrl)
	want := actor(rbac.PermApproveChanges)
	source.EXPECT().LoadActor(gomock.Any(), int64(7)).Return(want, nil).Times(1)

	cached := rbac.NewCachedSource(source, client, time.Minute, nil)
	ctx := context.Background()

	got, err := cached.LoadActor(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, want, got)
	require.True(t, mr.Exists("rbac:actor:7"))

	got, err = cached.LoadActor(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestCachedSourceLogsDecodeFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	require.NoError(t, mr.Set("rbac:actor:7", "{not json"))

	ctrl := gomock.NewController(t)
	source := mocks.NewMockActorSource(ctrl)
	want := actor(rbac.PermViewEntries)
	source.EXPECT().LoadActor(gomock.Any(), int64(7)).Return(want, nil).Times(1)

	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	cached := rbac.NewCachedSource(source, client, time.Minute, logger)

	got, err := cached.LoadActor(context.Background(), 7)
	require.NoError(t, err)
	require.Equal(t, want, got)
	require.Contains(t, logs.String(), "rbac cache decode")
	require.Contains(t, logs.String(), "invalid character")
	require.NotContains(t, logs.String(), "error=<nil>")

	stored, err := mr.Get("rbac:actor:7")
	require.NoError(t, err)
	require.NotEqual(t, "{not json", stored)
}

func TestCachedSourceInvalidate(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctrl := gomock.NewController(t)
	source := mocks.NewMockActorSource(ctrl)
	source.EXPECT().LoadActor(gomock.Any(), int64(7)).Return(actor(rbac.PermViewEntries), nil)
	source.EXPECT().LoadActor(gomock.Any(), int64(7)).Return(actor(rbac.PermAssignEntries), nil)

	cached := rbac.NewCachedSource(source, client, time.Minute, nil)
	ctx := context.Background()

	_, err := cached.LoadActor(ctx, 7)
	require.NoError(t, err)
	require.NoError(t, cached.Invalidate(ctx, 7))

	got, err := cached.LoadActor(ctx, 7)
	require.NoError(t, err)
	require.True(t, rbac.CanAssign(got))
}

func TestCachedSourceWithoutRedisDelegates(t *testing.T) {
	ctrl := gomock.NewController(t)
	source := mocks.NewMockActorSource(ctrl)
	source.EXPECT().LoadActor(gomock.Any(), int64(9)).Return(rbac.Actor{}, rbac.ErrNotFound).Times(2)

	cached := rbac.NewCachedSource(source, nil, time.Minute, nil)
	for i := 0; i < 2; i++ {
		_, err := cached.LoadActor(context.Background(), 9)
		require.ErrorIs(t, err, rbac.ErrNotFound)
	}
	require.NoError(t, cached.Invalidate(context.Background(), 9))
}
