package rbac_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/hotelcms/hotelcms/internal/entries"
	"github.com/hotelcms/hotelcms/internal/mocks"
	"github.com/hotelcms/hotelcms/internal/platform/httpx"
	"github.com/hotelcms/hotelcms/internal/rbac"
)

var hotel42 = entries.Entry{Type: entries.TypeHotel, ID: 42}

func actor(perms ...string) rbac.Actor {
	return rbac.Actor{ID: 7, Active: true, Grants: rbac.Grants{Permissions: perms}}
}

func TestResolveAdminShortCircuits(t *testing.T) {
	ctrl := gomock.NewController(t)
	assignments := mocks.NewMockAssignmentChecker(ctrl)
	resolver := rbac.NewResolver(assignments, nil)

	admin := rbac.Actor{ID: 1, Active: true, Grants: rbac.Grants{Admin: true}}
	tier, err := resolver.ResolveEditTier(context.Background(), admin, hotel42)
	require.NoError(t, err)
	require.Equal(t, rbac.TierEditAll, tier)
}

func TestResolveGlobalTiersSkipAssignmentLookup(t *testing.T) {
	ctrl := gomock.NewController(t)
	assignments := mocks.NewMockAssignmentChecker(ctrl)
	resolver := rbac.NewResolver(assignments, nil)
	ctx := context.Background()

	tier, err := resolver.ResolveEditTier(ctx, actor(rbac.PermEditAll, rbac.PermEditAssigned), hotel42)
	require.NoError(t, err)
	require.Equal(t, rbac.TierEditAll, tier)

	tier, err = resolver.ResolveEditTier(ctx, actor("EDIT_WITH_APPROVAL"), hotel42)
	require.NoError(t, err)
	require.Equal(t, rbac.TierEditWithApproval, tier)
	require.False(t, tier.Direct())
}

func TestResolveEditAssigned(t *testing.T) {
	ctrl := gomock.NewController(t)
	assignments := mocks.NewMockAssignmentChecker(ctrl)
	resolver := rbac.NewResolver(assignments, nil)
	ctx := context.Background()

	assignments.EXPECT().IsAssigned(gomock.Any(), int64(7), hotel42).Return(true, nil)
	tier, err := resolver.ResolveEditTier(ctx, actor(rbac.PermEditAssigned), hotel42)
	require.NoError(t, err)
	require.Equal(t, rbac.TierEditAssigned, tier)
	require.True(t, tier.Direct())

	assignments.EXPECT().IsAssigned(gomock.Any(), int64(7), hotel42).Return(false, nil)
	_, err = resolver.ResolveEditTier(ctx, actor(rbac.PermEditAssigned), hotel42)
	require.ErrorIs(t, err, rbac.ErrDenied)
	require.ErrorIs(t, err, httpx.ErrForbidden)
}

func TestResolveDeniedWithoutGrants(t *testing.T) {
	ctrl := gomock.NewController(t)
	assignments := mocks.NewMockAssignmentChecker(ctrl)
	resolver := rbac.NewResolver(assignments, nil)

	_, err := resolver.ResolveEditTier(context.Background(), actor(rbac.PermViewEntries), hotel42)
	require.ErrorIs(t, err, rbac.ErrDenied)
}

func TestResolveInactiveActorDenied(t *testing.T) {
	ctrl := gomock.NewController(t)
	assignments := mocks.NewMockAssignmentChecker(ctrl)
	resolver := rbac.NewResolver(assignments, nil)

	inactive := rbac.Actor{ID: 3, Grants: rbac.Grants{Admin: true}}
	_, err := resolver.ResolveEditTier(context.Background(), inactive, hotel42)
	require.ErrorIs(t, err, rbac.ErrDenied)
}

func TestResolveRejectsMissingEntryBeforeLookup(t *testing.T) {
	ctrl := gomock.NewController(t)
	assignments := mocks.NewMockAssignmentChecker(ctrl)
	resolver := rbac.NewResolver(assignments, nil)

	_, err := resolver.ResolveEditTier(context.Background(), actor(rbac.PermEditAssigned), entries.Entry{Type: entries.TypeHotel})
	require.ErrorIs(t, err, rbac.ErrMissingEntry)
	require.ErrorIs(t, err, httpx.ErrValidation)
}

func TestResolvePropagatesLookupFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	assignments := mocks.NewMockAssignmentChecker(ctrl)
	metrics := mocks.NewMockTierRecorder(ctrl)
	resolver := rbac.NewResolver(assignments, metrics)

	boom := errors.New("connection reset")
	assignments.EXPECT().IsAssigned(gomock.Any(), gomock.Any(), gomock.Any()).Return(false, boom)
	_, err := resolver.ResolveEditTier(context.Background(), actor(rbac.PermEditAssigned), hotel42)
	require.ErrorIs(t, err, boom)
	require.NotErrorIs(t, err, rbac.ErrDenied)
}

func TestResolveRecordsOutcome(t *testing.T) {
	ctrl := gomock.NewController(t)
	assignments := mocks.NewMockAssignmentChecker(ctrl)
	metrics := mocks.NewMockTierRecorder(ctrl)
	resolver := rbac.NewResolver(assignments, metrics)
	ctx := context.Background()

	gomock.InOrder(
		metrics.EXPECT().TierResolved("edit_with_approval"),
		metrics.EXPECT().TierResolved("denied"),
	)
	_, err := resolver.ResolveEditTier(ctx, actor(rbac.PermEditWithApproval), hotel42)
	require.NoError(t, err)
	_, err = resolver.ResolveEditTier(ctx, actor(), hotel42)
	require.ErrorIs(t, err, rbac.ErrDenied)
}

func TestCapabilityChecks(t *testing.T) {
	approver := actor(rbac.PermApproveChanges)
	require.True(t, rbac.CanApprove(approver))
	require.False(t, rbac.CanAssign(approver))
	require.False(t, rbac.CanView(approver))

	admin := rbac.Actor{ID: 1, Active: true, Grants: rbac.Grants{Admin: true}}
	require.True(t, rbac.CanView(admin))
	require.True(t, rbac.CanApprove(admin))
	require.True(t, rbac.CanAssign(admin))

	admin.Active = false
	require.False(t, rbac.CanApprove(admin))
}
