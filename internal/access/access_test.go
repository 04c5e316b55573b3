package access

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"appealbot/internal/models"
	"appealbot/internal/storage/stubs"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	db := stubs.NewMockDB()
	require.NoError(t, db.Initialize(context.Background()))
	return NewService(db)
}

func TestBootstrapOwnerIsWriteOnce(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	owner, err := svc.BootstrapOwner(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, "100", owner)

	owner, err = svc.BootstrapOwner(ctx, 999)
	assert.ErrorIs(t, err, ErrOwnerAlreadySet)
	assert.Equal(t, "100", owner)

	ok, err := svc.IsOwner(ctx, 100)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.IsOwner(ctx, 999)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNoOwnerMeansNobodyIsOwner(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	for _, id := range []int64{0, 1, 100} {
		ok, err := svc.IsOwner(ctx, id)
		require.NoError(t, err)
		assert.False(t, ok, "id %d", id)
	}

	_, ok, err := svc.OwnerID(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRoles(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.BootstrapOwner(ctx, 100)
	require.NoError(t, err)
	require.NoError(t, svc.AddAdmin(ctx, 200))
	require.NoError(t, svc.AddPremium(ctx, 300))

	tests := []struct {
		id      int64
		role    models.Role
		admin   bool
		premium bool
	}{
		{100, models.RoleOwner, true, true},
		{200, models.RoleAdmin, true, false},
		{300, models.RolePremium, false, true},
		{400, models.RoleUser, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.role.String(), func(t *testing.T) {
			role, err := svc.Role(ctx, tt.id)
			require.NoError(t, err)
			assert.Equal(t, tt.role, role)

			admin, err := svc.IsAdmin(ctx, tt.id)
			require.NoError(t, err)
			assert.Equal(t, tt.admin, admin)

			premium, err := svc.IsPremium(ctx, tt.id)
			require.NoError(t, err)
			assert.Equal(t, tt.premium, premium)
		})
	}
}

func TestMembershipIsMonotonic(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.AddAdmin(ctx, 200))
	require.NoError(t, svc.AddAdmin(ctx, 200))
	require.NoError(t, svc.AddPremium(ctx, 200))

	stats, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Admins)
	assert.Equal(t, 1, stats.Premium)

	ok, err := svc.IsAdmin(ctx, 200)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestGroupAllowed(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	mode, err := svc.GroupMode(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.GroupModeDefault, mode)

	ok, err := svc.GroupAllowed(ctx, 55, true)
	require.NoError(t, err)
	assert.True(t, ok, "private chats are always allowed")

	ok, err = svc.GroupAllowed(ctx, -1001, false)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, svc.AllowGroup(ctx, -1001))
	ok, err = svc.GroupAllowed(ctx, -1001, false)
	require.NoError(t, err)
	assert.True(t, ok)

	// "enabled" is not the value the enable button writes
	require.NoError(t, svc.SetGroupMode(ctx, "enabled"))
	ok, err = svc.GroupAllowed(ctx, -2002, false)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, svc.SetGroupMode(ctx, models.GroupModeEnable))
	ok, err = svc.GroupAllowed(ctx, -2002, false)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestBroadcastRecipientsDeduplicates(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.BootstrapOwner(ctx, 100)
	require.NoError(t, err)
	require.NoError(t, svc.AddAdmin(ctx, 200))
	require.NoError(t, svc.AddAdmin(ctx, 100))
	require.NoError(t, svc.AddPremium(ctx, 200))
	require.NoError(t, svc.AddPremium(ctx, 300))

	recipients, err := svc.BroadcastRecipients(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{100, 200, 300}, recipients)
}
