// Channelsync - Property Management Channel Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelsync

package resolver

import (
	"fmt"

	"github.com/tomtom215/channelsync/internal/models"
)

// ResolveAvailabilityDrift compares the platform calendar with local
// occupancy over window. The source of truth always wins: Final holds the
// corrected day for every mismatch, in date order. Days the platform did not
// report are taken as available.
//
// Up to threshold mismatched days are re-pushed. Above it the result is an
// alert and nothing should be corrected automatically.
func ResolveAvailabilityDrift(window models.DateRange, localOccupied map[string]bool, remote []models.AvailabilityDay, threshold int) Resolution[[]models.AvailabilityDay] {
	remoteAvail := make(map[string]bool, len(remote))
	for _, d := range remote {
		remoteAvail[d.Date] = d.Available
	}

	var fixes []models.AvailabilityDay
	for _, day := range window.Days() {
		date := day.Format(models.DateLayout)
		want := !localOccupied[date]
		got, reported := remoteAvail[date]
		if !reported {
			got = true
		}
		if got != want {
			fixes = append(fixes, models.AvailabilityDay{Date: date, Available: want})
		}
	}

	if len(fixes) == 0 {
		return unchanged[[]models.AvailabilityDay](nil)
	}
	res := Resolution[[]models.AvailabilityDay]{
		Final:        fixes,
		Action:       ActionPushPlatforms,
		ConflictType: models.ConflictAvailability,
		Detail:       fmt.Sprintf("%d of %d days differ in %s", len(fixes), window.Nights(), window),
	}
	if threshold > 0 && len(fixes) > threshold {
		res.Action = ActionAlert
		res.RequiresReview = true
	}
	return res
}
