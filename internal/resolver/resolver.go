// Channelsync - Property Management Channel Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelsync

package resolver

import (
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/channelsync/internal/models"
)

// Action is what the caller must do with a resolution.
type Action string

const (
	// ActionNone means both sides already agree.
	ActionNone Action = "none"
	// ActionApplyLocal writes Final to the source of truth.
	ActionApplyLocal Action = "apply_local"
	// ActionPushPlatforms keeps the local value and re-pushes it to the
	// other platforms.
	ActionPushPlatforms Action = "push_platforms"
	// ActionPushAll pushes to every platform, the originating one included.
	ActionPushAll Action = "push_all"
	// ActionMerge writes a field-level merge of both sides.
	ActionMerge Action = "merge"
	// ActionAccept takes the incoming value as-is.
	ActionAccept Action = "accept"
	// ActionReview leaves the local value untouched for an operator.
	ActionReview Action = "manual_review"
	// ActionReject refuses the incoming change.
	ActionReject Action = "rejected"
	// ActionAlert raises an alert instead of auto-correcting.
	ActionAlert Action = "alert"
)

// Resolution is the outcome of one resolver rule.
type Resolution[T any] struct {
	Final          T
	Action         Action
	RequiresReview bool
	ConflictType   string // empty when nothing disagreed
	Detail         string
}

// Conflicted reports whether the two sides disagreed and the outcome should
// be recorded.
func (r Resolution[T]) Conflicted() bool {
	return r.ConflictType != ""
}

// Record builds the audit entry for this resolution.
func (r Resolution[T]) Record(entityType, entityID, resolvedBy string, at time.Time) models.ConflictRecord {
	return models.ConflictRecord{
		ID:             uuid.NewString(),
		EntityType:     entityType,
		EntityID:       entityID,
		ConflictType:   r.ConflictType,
		Resolution:     string(r.Action),
		Detail:         r.Detail,
		ResolvedBy:     resolvedBy,
		RequiresReview: r.RequiresReview,
		ResolvedAt:     at.UTC(),
	}
}

func unchanged[T any](v T) Resolution[T] {
	return Resolution[T]{Final: v, Action: ActionNone}
}
