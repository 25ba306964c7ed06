// Channelsync - Property Management Channel Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/channelsync

/*
Package rest is the reference platform adapter.

Wire dialect (JSON, bearer token from the connection's decrypted credentials):

	PUT    /v1/listings/{listing}/calendar        push availability
	PUT    /v1/listings/{listing}/rates           push pricing
	PUT    /v1/listings/{listing}/blocks/{id}     block dates for a booking
	DELETE /v1/listings/{listing}/blocks/{id}     release them (404 is success)
	GET    /v1/listings/{listing}/calendar        fetch availability
	GET    /v1/reservations/{id}                  fetch a reservation
	GET    /v1/listings/{listing}                 connection probe

Status mapping:

	401, 403          AdapterAuthError
	408, 429, 5xx     TransientError (429 carries Retry-After)
	other 4xx         AdapterValidationError
	network failure   TransientError

Webhooks are signed with HMAC-SHA256 over the raw body in the
X-Channel-Signature header and validated against an embedded JSON schema.
*/
package rest
