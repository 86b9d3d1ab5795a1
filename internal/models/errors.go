package models

import (
	"errors"
	"fmt"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var ErrNotFound = status.Errorf(codes.NotFound, "not found")

// RestrictionLevel names which layer of the abuse policy denied an action.
type RestrictionLevel string

const (
	LevelNormal           RestrictionLevel = "normal"
	LevelTargetRestricted RestrictionLevel = "target-restricted"
	LevelGlobalRestricted RestrictionLevel = "global-restricted"
)

// ValidationError rejects malformed input before any persistence is
// attempted. Expected, surfaced directly to the caller.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// SpamRejectedError rejects message content flagged by the spam filter.
type SpamRejectedError struct {
	Reason string
}

func (e *SpamRejectedError) Error() string {
	return "message rejected as spam: " + e.Reason
}

// RateLimitError denies an action with the layer that tripped and how
// long the caller has to wait.
type RateLimitError struct {
	Level      RestrictionLevel
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded (%s), retry after %s", e.Level, e.RetryAfter)
}

// PermissionDeniedError covers delete/block/report attempts without
// ownership and sends blocked in either direction.
type PermissionDeniedError struct {
	Reason string
}

func (e *PermissionDeniedError) Error() string {
	return "permission denied: " + e.Reason
}

// PersistenceError wraps an I/O failure from the storage layer.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure in %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// IsUserFacing reports whether the error is one of the expected,
// pre-persistence rejections that map to a user-visible message.
func IsUserFacing(err error) bool {
	var ve *ValidationError
	var se *SpamRejectedError
	var re *RateLimitError
	var pe *PermissionDeniedError
	return errors.As(err, &ve) || errors.As(err, &se) || errors.As(err, &re) || errors.As(err, &pe)
}
