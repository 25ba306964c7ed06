// Channelsync - Property Management Channel Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelsync

package rest

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/tomtom215/channelsync/internal/models"
	"github.com/tomtom215/channelsync/internal/syncerr"
)

type calendarBody struct {
	From string                   `json:"from"`
	To   string                   `json:"to"`
	Days []models.AvailabilityDay `json:"days"`
}

type rateBody struct {
	From        string `json:"from"`
	To          string `json:"to"`
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency"`
}

type blockBody struct {
	CheckIn  string `json:"check_in"`
	CheckOut string `json:"check_out"`
}

type reservationGuest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Address  string `json:"address"`
	Language string `json:"language"`
}

type reservationTotal struct {
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency"`
}

type reservation struct {
	ID        string           `json:"id"`
	ListingID string           `json:"listing_id"`
	CheckIn   string           `json:"check_in"`
	CheckOut  string           `json:"check_out"`
	Status    string           `json:"status"`
	Guest     reservationGuest `json:"guest"`
	Total     reservationTotal `json:"total"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// reservationStatuses maps platform reservation states onto booking statuses.
var reservationStatuses = map[string]models.BookingStatus{
	"inquiry":     models.BookingInquiry,
	"request":     models.BookingPending,
	"pending":     models.BookingPending,
	"accepted":    models.BookingConfirmed,
	"confirmed":   models.BookingConfirmed,
	"checked_in":  models.BookingCheckedIn,
	"checked_out": models.BookingCheckedOut,
	"completed":   models.BookingCheckedOut,
	"cancelled":   models.BookingCancelled,
	"canceled":    models.BookingCancelled,
	"declined":    models.BookingDeclined,
	"no_show":     models.BookingNoShow,
}

func listingPath(conn *models.ChannelConnection, suffix string) string {
	return "/v1/listings/" + url.PathEscape(conn.PlatformListingID) + suffix
}

// PushAvailability replaces the listing calendar for the update's span.
func (c *Client) PushAvailability(ctx context.Context, conn *models.ChannelConnection, update models.AvailabilityUpdate) error {
	return c.doRequest(ctx, conn, requestConfig{
		op:     "push_availability",
		method: http.MethodPut,
		path:   listingPath(conn, "/calendar"),
		body:   calendarBody{From: update.From, To: update.To, Days: update.Days},
	}, nil)
}

// PushPricing sets the nightly rate for the update's span.
func (c *Client) PushPricing(ctx context.Context, conn *models.ChannelConnection, update models.PriceUpdate) error {
	return c.doRequest(ctx, conn, requestConfig{
		op:     "push_pricing",
		method: http.MethodPut,
		path:   listingPath(conn, "/rates"),
		body: rateBody{
			From:        update.From,
			To:          update.To,
			AmountCents: update.AmountCents,
			Currency:    update.Currency,
		},
	}, nil)
}

// PushBookingBlock creates or removes the block named by the booking id.
// Removing a block that does not exist succeeds.
func (c *Client) PushBookingBlock(ctx context.Context, conn *models.ChannelConnection, block models.BookingBlock) error {
	path := listingPath(conn, "/blocks/"+url.PathEscape(block.BookingID))
	if !block.Blocked {
		return c.doRequest(ctx, conn, requestConfig{
			op:       "unblock_dates",
			method:   http.MethodDelete,
			path:     path,
			notFound: true,
		}, nil)
	}
	return c.doRequest(ctx, conn, requestConfig{
		op:     "block_dates",
		method: http.MethodPut,
		path:   path,
		body:   blockBody{CheckIn: block.Range.Start(), CheckOut: block.Range.End()},
	}, nil)
}

// FetchBooking loads the authoritative reservation.
func (c *Client) FetchBooking(ctx context.Context, conn *models.ChannelConnection, externalID string) (*models.PlatformBooking, error) {
	var res reservation
	err := c.doRequest(ctx, conn, requestConfig{
		op:     "fetch_booking",
		method: http.MethodGet,
		path:   "/v1/reservations/" + url.PathEscape(externalID),
	}, &res)
	if err != nil {
		return nil, err
	}
	return res.toPlatformBooking()
}

func (r reservation) toPlatformBooking() (*models.PlatformBooking, error) {
	rng, err := models.NewDateRange(r.CheckIn, r.CheckOut)
	if err != nil {
		return nil, &syncerr.AdapterValidationError{Op: "fetch_booking", Message: "reservation " + r.ID + " dates", Cause: err}
	}
	status, ok := reservationStatuses[r.Status]
	if !ok {
		return nil, &syncerr.AdapterValidationError{
			Op:      "fetch_booking",
			Message: fmt.Sprintf("reservation %s has unknown status %q", r.ID, r.Status),
		}
	}
	return &models.PlatformBooking{
		ExternalID: r.ID,
		ListingID:  r.ListingID,
		Range:      rng,
		Status:     status,
		Guest: models.Guest{
			Name:     r.Guest.Name,
			Email:    r.Guest.Email,
			Phone:    r.Guest.Phone,
			Address:  r.Guest.Address,
			Language: r.Guest.Language,
		},
		PriceCents: r.Total.AmountCents,
		Currency:   r.Total.Currency,
		UpdatedAt:  r.UpdatedAt,
	}, nil
}

// FetchAvailability reads the listing calendar for window.
func (c *Client) FetchAvailability(ctx context.Context, conn *models.ChannelConnection, window models.DateRange) ([]models.AvailabilityDay, error) {
	var body calendarBody
	err := c.doRequest(ctx, conn, requestConfig{
		op:     "fetch_availability",
		method: http.MethodGet,
		path:   listingPath(conn, "/calendar"),
		query:  url.Values{"from": {window.Start()}, "to": {window.End()}},
	}, &body)
	if err != nil {
		return nil, err
	}
	return body.Days, nil
}

// Probe reads the listing, which checks both the token and the listing id.
func (c *Client) Probe(ctx context.Context, conn *models.ChannelConnection) error {
	return c.doRequest(ctx, conn, requestConfig{
		op:     "probe",
		method: http.MethodGet,
		path:   listingPath(conn, ""),
	}, nil)
}
