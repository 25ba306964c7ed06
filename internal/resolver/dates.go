// Channelsync - Property Management Channel Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelsync

package resolver

import (
	"fmt"

	"github.com/tomtom215/channelsync/internal/models"
)

// DateChangeInput describes a requested change of a booking's dates.
type DateChangeInput struct {
	Current  models.DateRange
	Proposed models.DateRange
	// PlatformInitiated is true when the change arrived from a platform.
	PlatformInitiated bool
	// Available is whether Proposed is free locally, ignoring the booking's
	// own current range.
	Available bool
}

// ResolveDateChange decides whether new dates stand. A platform-initiated
// change is applied only if the dates are free, otherwise it is rejected and
// sent to review. A local change is applied and pushed to every platform.
func ResolveDateChange(in DateChangeInput) Resolution[models.DateRange] {
	if in.Current.Equal(in.Proposed) {
		return unchanged(in.Current)
	}
	detail := fmt.Sprintf("current=%s proposed=%s", in.Current, in.Proposed)

	if !in.PlatformInitiated {
		return Resolution[models.DateRange]{
			Final:        in.Proposed,
			Action:       ActionPushAll,
			ConflictType: models.ConflictDates,
			Detail:       detail,
		}
	}
	if !in.Available {
		return Resolution[models.DateRange]{
			Final:          in.Current,
			Action:         ActionReject,
			RequiresReview: true,
			ConflictType:   models.ConflictDates,
			Detail:         detail + " unavailable",
		}
	}
	return Resolution[models.DateRange]{
		Final:        in.Proposed,
		Action:       ActionApplyLocal,
		ConflictType: models.ConflictDates,
		Detail:       detail,
	}
}
