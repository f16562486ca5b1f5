package resolver

import (
	"errors"
	"fmt"
)

// NoSuchBeanError indicates the peer reported that the target bean does
// not exist there — always a "target missing" condition.
type NoSuchBeanError struct {
	BeanName string
}

func (e *NoSuchBeanError) Error() string {
	return fmt.Sprintf("no such bean: %s", e.BeanName)
}

// SASLAuthFailureError marks a RequestSendFailedError's cause as an
// authentication failure, which is excluded from the "target missing"
// retry path (spec.md §7 point 4).
type SASLAuthFailureError struct {
	Reason string
}

func (e *SASLAuthFailureError) Error() string {
	return fmt.Sprintf("authentication failure: %s", e.Reason)
}

// RequestSendFailedError wraps a lower-level transport failure that
// occurred while sending the request. Whether it counts as "target
// missing" depends on whether Cause is a SASLAuthFailureError.
type RequestSendFailedError struct {
	Cause error
}

func (e *RequestSendFailedError) Error() string {
	return fmt.Sprintf("request send failed: %v", e.Cause)
}

func (e *RequestSendFailedError) Unwrap() error {
	return e.Cause
}

// SelectorError is raised when a pluggable selector returns no
// candidate, or a candidate outside the set it was given — a fatal
// configuration error for the current invocation (spec.md §7 point 3).
type SelectorError struct {
	Selector string
	Detail   string
}

func (e *SelectorError) Error() string {
	return fmt.Sprintf("selector %s: %s", e.Selector, e.Detail)
}

// isTargetMissing reports whether err indicates the chosen destination
// is simply wrong and should be blacklisted and retried (spec.md §7
// point 4): any NoSuchBeanError, or a RequestSendFailedError whose
// cause is not a SASLAuthFailureError.
func isTargetMissing(err error) bool {
	var nsb *NoSuchBeanError
	if errors.As(err, &nsb) {
		return true
	}
	var rsf *RequestSendFailedError
	if errors.As(err, &rsf) {
		var auth *SASLAuthFailureError
		return !errors.As(rsf.Cause, &auth)
	}
	return false
}
