/*
guard.go - Idempotency guard for inbound callbacks

PURPOSE:
  The transport delivers events at least once; the upstream platform
  retries freely and may deliver the same callback id twice
  concurrently. The guard makes every other engine effect conditional
  on a single insert-if-absent step, so each callback id is applied at
  most once no matter how often it arrives.

CONCURRENCY:
  Admit must run inside the same storage transaction as the effects it
  gates. Two concurrent deliveries of one id then serialize on the
  callback row's uniqueness: one transaction inserts and applies, the
  other aborts with AdmitDuplicate and applies nothing.
*/
package engine

import (
	"context"
	"errors"
	"time"
)

// AdmitResult classifies a callback id.
type AdmitResult string

const (
	AdmitAccepted  AdmitResult = "accepted"
	AdmitDuplicate AdmitResult = "already_processed"
)

// IdempotencyGuard records which callback ids have been applied.
type IdempotencyGuard struct{}

// Admit checks-and-records a callback id as a single atomic step.
// The record's existence is the sole admission test; it is never read
// back for any other purpose and never expires.
func (IdempotencyGuard) Admit(ctx context.Context, s CallbackStore, callbackID string, now time.Time) (AdmitResult, error) {
	err := s.InsertCallback(ctx, callbackID, now)
	if errors.Is(err, ErrDuplicateCallback) {
		return AdmitDuplicate, nil
	}
	if err != nil {
		return "", err
	}
	return AdmitAccepted, nil
}
