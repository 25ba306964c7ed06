// Channelsync - Property Management Channel Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelsync

package resolver

import (
	"fmt"
	"math"

	"github.com/tomtom215/channelsync/internal/models"
)

// DefaultPriceTolerance is the relative difference above which a new
// platform booking's price is flagged for review.
const DefaultPriceTolerance = 0.05

// PriceInput describes a price disagreement.
type PriceInput struct {
	// NewBooking is true when the platform booking has no local row yet.
	NewBooking bool
	// Direct is true when the booking originated in the source of truth.
	Direct bool
	// LocalCents is the stored price, or the locally quoted price for a new
	// booking. Zero means there is nothing to compare against.
	LocalCents    int64
	IncomingCents int64
	// Tolerance defaults to DefaultPriceTolerance.
	Tolerance float64
}

func relativeDelta(local, incoming int64) float64 {
	if local == 0 {
		return 0
	}
	return math.Abs(float64(incoming-local)) / float64(local)
}

// ResolvePrice decides which price stands.
//
//   - Direct booking: the local price stands and is re-pushed.
//   - New platform booking: the platform price is accepted; a difference
//     above Tolerance is also flagged for review.
//   - Existing platform booking: any difference goes to review and is never
//     applied automatically.
func ResolvePrice(in PriceInput) Resolution[int64] {
	if in.LocalCents == in.IncomingCents {
		return unchanged(in.LocalCents)
	}
	tolerance := in.Tolerance
	if tolerance <= 0 {
		tolerance = DefaultPriceTolerance
	}
	delta := relativeDelta(in.LocalCents, in.IncomingCents)
	detail := fmt.Sprintf("local=%d incoming=%d delta=%.1f%%", in.LocalCents, in.IncomingCents, delta*100)

	switch {
	case in.Direct:
		return Resolution[int64]{Final: in.LocalCents, Action: ActionPushPlatforms, ConflictType: models.ConflictPrice, Detail: detail}
	case in.NewBooking:
		if in.LocalCents == 0 {
			return unchanged(in.IncomingCents)
		}
		return Resolution[int64]{
			Final:          in.IncomingCents,
			Action:         ActionAccept,
			RequiresReview: delta > tolerance,
			ConflictType:   models.ConflictPrice,
			Detail:         detail,
		}
	default:
		return Resolution[int64]{
			Final:          in.LocalCents,
			Action:         ActionReview,
			RequiresReview: true,
			ConflictType:   models.ConflictPrice,
			Detail:         detail,
		}
	}
}
