package chain

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestListingStateValid(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	seller := "0x1111111111111111111111111111111111111111"

	// All 8 combinations of (seller set, amount > 0, not expired); valid only
	// when all three hold.
	tests := []struct {
		sellerSet  bool
		hasAmount  bool
		notExpired bool
	}{
		{false, false, false},
		{false, false, true},
		{false, true, false},
		{false, true, true},
		{true, false, false},
		{true, false, true},
		{true, true, false},
		{true, true, true},
	}

	for _, tt := range tests {
		name := fmt.Sprintf("seller=%v_amount=%v_unexpired=%v", tt.sellerSet, tt.hasAmount, tt.notExpired)
		t.Run(name, func(t *testing.T) {
			state := ListingState{Seller: ZeroAddress, Expiry: now.Unix() - 60}
			if tt.sellerSet {
				state.Seller = seller
			}
			if tt.hasAmount {
				state.Amount = 5
			}
			if tt.notExpired {
				state.Expiry = now.Unix() + 3600
			}

			want := tt.sellerSet && tt.hasAmount && tt.notExpired
			assert.Equal(t, want, state.Valid(now))
		})
	}
}

func TestListingStateValidExpiryBoundary(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	state := ListingState{
		Seller: "0xabc0000000000000000000000000000000000001",
		Amount: 1,
		Expiry: now.Unix(),
	}

	// expiry == now is still valid; only expiry < now invalidates.
	assert.True(t, state.Valid(now))

	state.Expiry = now.Unix() - 1
	assert.False(t, state.Valid(now))
}

func TestIsZeroAddress(t *testing.T) {
	assert.True(t, isZeroAddress(ZeroAddress))
	assert.True(t, isZeroAddress("0x0"))
	assert.True(t, isZeroAddress(""))
	assert.False(t, isZeroAddress("0x1111111111111111111111111111111111111111"))
	assert.False(t, isZeroAddress("0x0000000000000000000000000000000000000001"))
}
