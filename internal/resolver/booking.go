// Channelsync - Property Management Channel Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelsync

package resolver

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tomtom215/channelsync/internal/models"
	"github.com/tomtom215/channelsync/internal/syncerr"
)

// PhoneFreshness is how long a local phone number is protected from being
// overwritten by a platform.
const PhoneFreshness = time.Hour

// ClassifyBookingError turns a double-booking rejection into a resolution.
// ok is false for any other error.
func ClassifyBookingError(err error) (res Resolution[string], ok bool) {
	var conflict *syncerr.BookingConflictError
	if !errors.As(err, &conflict) {
		return Resolution[string]{}, false
	}
	detail := fmt.Sprintf("property %s %s already booked", conflict.PropertyID, conflict.Range)
	if conflict.Holder != "" {
		detail = fmt.Sprintf("property %s %s locked by %s", conflict.PropertyID, conflict.Range, conflict.Holder)
	}
	return Resolution[string]{
		Final:          conflict.Range,
		Action:         ActionReject,
		RequiresReview: true,
		ConflictType:   models.ConflictDoubleBooking,
		Detail:         detail,
	}, true
}

func isCancellation(s models.BookingStatus) bool {
	return s == models.BookingCancelled || s == models.BookingDeclined
}

// ResolveStatus reconciles a booking status reported by a platform with the
// local one. source is the booking's Source.
//
//   - A cancellation on either side wins.
//   - A platform-sourced booking follows the platform.
//   - A direct booking keeps its local status and re-pushes it.
func ResolveStatus(local, incoming models.BookingStatus, source string) Resolution[models.BookingStatus] {
	if local == incoming {
		return unchanged(local)
	}
	res := Resolution[models.BookingStatus]{
		ConflictType: models.ConflictStatus,
		Detail:       fmt.Sprintf("local=%s incoming=%s source=%s", local, incoming, source),
	}
	direct := source == "" || source == models.SourceDirect

	switch {
	case isCancellation(incoming):
		res.Final, res.Action = incoming, ActionApplyLocal
	case isCancellation(local):
		res.Final, res.Action = local, ActionPushPlatforms
	case !direct:
		res.Final, res.Action = incoming, ActionApplyLocal
	default:
		res.Final, res.Action = local, ActionPushPlatforms
	}
	return res
}

// ResolveGuest merges platform guest data into the local record field by
// field. Name and email are never overwritten. A phone number replaces the
// local one only when the local one is empty or older than PhoneFreshness.
// An address only fills a gap. Language always follows the platform.
func ResolveGuest(local, incoming models.Guest, now time.Time) Resolution[models.Guest] {
	final := local
	var changed, kept []string

	if incoming.Name != "" && incoming.Name != local.Name {
		kept = append(kept, "name")
	}
	if incoming.Email != "" && !strings.EqualFold(incoming.Email, local.Email) {
		kept = append(kept, "email")
	}

	if incoming.Phone != "" && incoming.Phone != local.Phone {
		stale := local.Phone == "" || local.PhoneUpdatedAt == nil || now.Sub(*local.PhoneUpdatedAt) > PhoneFreshness
		if stale {
			at := now.UTC()
			final.Phone, final.PhoneUpdatedAt = incoming.Phone, &at
			changed = append(changed, "phone")
		} else {
			kept = append(kept, "phone")
		}
	}

	if incoming.Address != "" && incoming.Address != local.Address {
		if local.Address == "" {
			final.Address = incoming.Address
			changed = append(changed, "address")
		} else {
			kept = append(kept, "address")
		}
	}

	if incoming.Language != "" && incoming.Language != local.Language {
		final.Language = incoming.Language
		changed = append(changed, "language")
	}

	if len(changed) == 0 && len(kept) == 0 {
		return unchanged(local)
	}
	res := Resolution[models.Guest]{
		Final:        final,
		Action:       ActionMerge,
		ConflictType: models.ConflictGuestData,
		Detail:       fmt.Sprintf("updated=[%s] kept_local=[%s]", strings.Join(changed, ","), strings.Join(kept, ",")),
	}
	if len(changed) == 0 {
		res.Action = ActionNone
	}
	return res
}
