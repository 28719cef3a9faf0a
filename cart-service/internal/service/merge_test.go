package service

import (
	"context"
	"testing"

	"github.com/fjod/go_cart/cart-service/internal/domain"
	"github.com/fjod/go_cart/cart-service/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMergePolicy(t *testing.T) {
	p, err := ParseMergePolicy("")
	require.NoError(t, err)
	assert.Equal(t, MergeSum, p)

	p, err = ParseMergePolicy("MAX")
	require.NoError(t, err)
	assert.Equal(t, MergeMax, p)

	_, err = ParseMergePolicy("avg")
	assert.Error(t, err)
}

func TestMerge_IntoEmptyUserCart(t *testing.T) {
	f := newFixture(t, Options{})
	f.catalog.set("P2", "3.00", 10)
	ctx := context.Background()
	_, err := f.svc.AddItem(ctx, guest, "P2", 1, nil)
	require.NoError(t, err)

	cart, err := f.svc.Merge(ctx, user, guest.SessionID)
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, "P2", cart.Items[0].ProductID)
	assert.Equal(t, 1, cart.Items[0].Quantity)
	assert.Equal(t, "user-1", cart.UserID)
	assert.Empty(t, cart.SessionID)
	assert.Nil(t, cart.ExpiresAt)

	_, err = f.repo.GetCart(ctx, guest)
	assert.ErrorIs(t, err, repository.ErrCartNotFound)
}

func TestMerge_PolicySumAndMax(t *testing.T) {
	tests := []struct {
		policy MergePolicy
		want   int
	}{
		{MergeSum, 5},
		{MergeMax, 3},
	}
	for _, tt := range tests {
		t.Run(string(tt.policy), func(t *testing.T) {
			f := newFixture(t, Options{MergePolicy: tt.policy})
			f.catalog.set("p1", "2.00", 50)
			f.catalog.set("p2", "1.00", 50)
			ctx := context.Background()

			_, err := f.svc.AddItem(ctx, user, "p1", 3, nil)
			require.NoError(t, err)
			_, err = f.svc.AddItem(ctx, guest, "p1", 2, nil)
			require.NoError(t, err)
			_, err = f.svc.AddItem(ctx, guest, "p2", 1, nil)
			require.NoError(t, err)

			cart, err := f.svc.Merge(ctx, user, guest.SessionID)
			require.NoError(t, err)
			require.Len(t, cart.Items, 2)
			assert.Equal(t, tt.want, cart.Items[0].Quantity)
			assert.Equal(t, "p2", cart.Items[1].ProductID)
			assert.Equal(t, tt.want+1, cart.ItemCount)
		})
	}
}

func TestMerge_CapsQuantity(t *testing.T) {
	f := newFixture(t, Options{})
	f.catalog.set("p1", "1.00", 1000)
	ctx := context.Background()
	_, err := f.svc.AddItem(ctx, user, "p1", 70, nil)
	require.NoError(t, err)
	_, err = f.svc.AddItem(ctx, guest, "p1", 70, nil)
	require.NoError(t, err)

	cart, err := f.svc.Merge(ctx, user, guest.SessionID)
	require.NoError(t, err)
	assert.Equal(t, domain.MaxLineQuantity, cart.Items[0].Quantity)
}

func TestMerge_CouponTransfer(t *testing.T) {
	f := newFixture(t, Options{})
	f.catalog.set("p1", "100.00", 10)
	ctx := context.Background()
	_, err := f.svc.AddItem(ctx, guest, "p1", 1, nil)
	require.NoError(t, err)
	_, err = f.svc.ApplyCoupon(ctx, guest, "SAVE10")
	require.NoError(t, err)

	cart, err := f.svc.Merge(ctx, user, guest.SessionID)
	require.NoError(t, err)
	require.NotNil(t, cart.Coupon)
	assert.Equal(t, "SAVE10", cart.Coupon.Code)
	assert.True(t, cart.Total.Equal(dec("90.00")))
}

func TestMerge_UserCouponWins(t *testing.T) {
	f := newFixture(t, Options{})
	f.catalog.set("p1", "100.00", 10)
	ctx := context.Background()
	_, err := f.svc.ApplyCoupon(ctx, user, "FIVEOFF")
	require.NoError(t, err)
	_, err = f.svc.AddItem(ctx, guest, "p1", 1, nil)
	require.NoError(t, err)
	_, err = f.svc.ApplyCoupon(ctx, guest, "SAVE10")
	require.NoError(t, err)

	cart, err := f.svc.Merge(ctx, user, guest.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "FIVEOFF", cart.Coupon.Code)
}

func TestMerge_IsDestructiveAndRepeatIsNoop(t *testing.T) {
	f := newFixture(t, Options{})
	f.catalog.set("p1", "1.00", 10)
	ctx := context.Background()
	_, err := f.svc.AddItem(ctx, guest, "p1", 2, nil)
	require.NoError(t, err)

	first, err := f.svc.Merge(ctx, user, guest.SessionID)
	require.NoError(t, err)
	f.pub.reset()

	second, err := f.svc.Merge(ctx, user, guest.SessionID)
	require.NoError(t, err)
	assert.Equal(t, first.Version, second.Version)
	assert.Equal(t, 2, second.Items[0].Quantity)
	assert.Empty(t, f.pub.names())
	assert.Equal(t, first.Version, f.stored(t, user).Version)
}

func TestMerge_Events(t *testing.T) {
	f := newFixture(t, Options{})
	f.catalog.set("p1", "1.00", 10)
	ctx := context.Background()
	g, err := f.svc.AddItem(ctx, guest, "p1", 1, nil)
	require.NoError(t, err)
	f.pub.reset()

	cart, err := f.svc.Merge(ctx, user, guest.SessionID)
	require.NoError(t, err)

	f.pub.m.Lock()
	defer f.pub.m.Unlock()
	require.Len(t, f.pub.events, 2)
	assert.Equal(t, domain.EventCartUpdated, f.pub.events[0].Name)
	assert.ElementsMatch(t, []string{"user:user-1", "cart:" + cart.ID}, f.pub.events[0].Topics)
	assert.Equal(t, domain.EventCartCleared, f.pub.events[1].Name)
	assert.ElementsMatch(t, []string{"session:guest-1", "cart:" + g.ID}, f.pub.events[1].Topics)
}

func TestMerge_RequiresUserAndGuest(t *testing.T) {
	f := newFixture(t, Options{})

	_, err := f.svc.Merge(context.Background(), guest, "other")
	assert.ErrorIs(t, err, domain.ErrNoIdentity)

	_, err = f.svc.Merge(context.Background(), user, "")
	assert.ErrorIs(t, err, domain.ErrNoIdentity)
}
