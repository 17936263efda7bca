// Package services defines the business logic for image generation, the
// gallery and newsletter sign-ups. This file centralizes common service-level
// error values so that they can be consistently returned by service methods
// and checked by callers.
//
// These errors are intended for internal use by the service layer and translation
// into user-facing messages or HTTP status codes should be performed at the
// handler/controller layer.
package services

import "errors"

var (
	// ErrInvalidInput is returned when a generation request lacks a username
	// or any usable trait/attribute, or exceeds a length limit.
	ErrInvalidInput = errors.New("invalid generation input")

	// ErrInvalidEmail is returned when a newsletter sign-up carries a
	// malformed email address.
	ErrInvalidEmail = errors.New("invalid email address")

	// ErrDuplicateSubscriber is returned when the email is already subscribed.
	ErrDuplicateSubscriber = errors.New("email already subscribed")

	// ErrGalleryRecordNotFound indicates a replayed request whose gallery
	// record no longer exists.
	ErrGalleryRecordNotFound = errors.New("gallery record not found")
)
