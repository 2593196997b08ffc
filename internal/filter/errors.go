// WaterWatch - Geotagged Water Quality Measurement Collection and Export
// Copyright 2026 R. Taormina (rtaormina)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rtaormina/waterwatch

// Package filter implements the measurement filter pipeline: independent,
// composable stages that narrow a record set from request parameters, and
// the location filter optimizer that minimizes geometric predicates.
package filter

import "errors"

// ErrInvalidBoundary marks boundary_geometry parse failures, which
// surface as HTTP 400 unlike other geometry problems.
var ErrInvalidBoundary = errors.New("invalid boundary_geometry format")

// ValidationError marks caller-fixable parameter errors that surface as
// HTTP 400 with the message naming the offending values. Optional
// refinement filters never produce it; only the month filter and
// boundary-geometry parsing fail loudly.
type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string {
	return e.msg
}

// NewValidationError creates a ValidationError with the given message.
func NewValidationError(msg string) *ValidationError {
	return &ValidationError{msg: msg}
}

// IsValidationError reports whether err is (or wraps) a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
