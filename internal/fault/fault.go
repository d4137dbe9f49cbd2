// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package fault defines the failure kinds a run can end with and maps them
// to user-facing reasons and process exit codes.
package fault

import (
	"context"
	"errors"
	"strings"
)

// Sentinel errors. Stages wrap them with fmt.Errorf("%w: ...") so callers
// classify failures with errors.Is.
var (
	ErrInvalidDate        = errors.New("invalid date")
	ErrNoSuchIssue        = errors.New("no edition published for this date")
	ErrFetch              = errors.New("fetch failed")
	ErrIdentifierNotFound = errors.New("issue identifier not found")
	ErrEmptyIssue         = errors.New("no pages downloaded")
	ErrMerge              = errors.New("merging pages failed")
	ErrPersist            = errors.New("saving issue failed")
)

// Kind classifies a run failure.
type Kind int

const (
	KindUnknown Kind = iota
	KindInvalidDate
	KindNoSuchIssue
	KindFetch
	KindIdentifierNotFound
	KindEmptyIssue
	KindMerge
	KindPersist
	KindCanceled
)

func (k Kind) String() string {
	switch k {
	case KindInvalidDate:
		return "InvalidDate"
	case KindNoSuchIssue:
		return "NoSuchIssue"
	case KindFetch:
		return "FetchError"
	case KindIdentifierNotFound:
		return "IdentifierNotFound"
	case KindEmptyIssue:
		return "EmptyIssue"
	case KindMerge:
		return "MergeError"
	case KindPersist:
		return "PersistError"
	case KindCanceled:
		return "Canceled"
	default:
		return "Unknown"
	}
}

// Classify maps err to its Kind. Only sentinel errors and context errors are
// inspected, never message text. The order matters: an empty issue caused by a
// failed first page wraps both ErrEmptyIssue and ErrFetch and is an EmptyIssue,
// and a request that hit its own timeout is a FetchError, not a cancellation.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrInvalidDate):
		return KindInvalidDate
	case errors.Is(err, ErrNoSuchIssue):
		return KindNoSuchIssue
	case errors.Is(err, ErrEmptyIssue):
		return KindEmptyIssue
	case errors.Is(err, ErrIdentifierNotFound):
		return KindIdentifierNotFound
	case errors.Is(err, ErrMerge):
		return KindMerge
	case errors.Is(err, ErrPersist):
		return KindPersist
	case errors.Is(err, context.Canceled):
		return KindCanceled
	case errors.Is(err, ErrFetch):
		return KindFetch
	case errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	default:
		return KindUnknown
	}
}

// ExitCode returns the process exit code for a failure kind. Each kind has
// its own code so scripts can tell "no edition today" from a network outage.
func ExitCode(k Kind) int {
	switch k {
	case KindInvalidDate:
		return 2
	case KindNoSuchIssue:
		return 3
	case KindFetch:
		return 4
	case KindIdentifierNotFound:
		return 5
	case KindEmptyIssue:
		return 6
	case KindMerge:
		return 7
	case KindPersist:
		return 8
	case KindCanceled:
		return 130
	default:
		return 1
	}
}

// maxReasonRunes bounds the reason shown to the user.
const maxReasonRunes = 100

// Reason returns a short single-line description of err for display.
func Reason(err error) string {
	if err == nil {
		return ""
	}
	msg := strings.Join(strings.Fields(err.Error()), " ")
	r := []rune(msg)
	if len(r) <= maxReasonRunes {
		return msg
	}
	return string(r[:maxReasonRunes-1]) + "…"
}
