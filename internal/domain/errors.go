package domain

import (
	"errors"
	"fmt"
)

// UpstreamKind classifies what an upstream call was fetching.
type UpstreamKind string

const (
	UpstreamPosts    UpstreamKind = "posts"
	UpstreamThread   UpstreamKind = "thread"
	UpstreamProfiles UpstreamKind = "profiles"
)

// UpstreamError is a network or API failure fetching posts, threads or
// profiles from the feed source.
type UpstreamError struct {
	Kind UpstreamKind
	Op   string
	Err  error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream %s fetch %s: %v", e.Kind, e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// OracleError is a failure of the embedding oracle. It is fatal to the feed
// production call that issued it.
type OracleError struct {
	Err error
}

func (e *OracleError) Error() string {
	return fmt.Sprintf("embedding oracle: %v", e.Err)
}

func (e *OracleError) Unwrap() error { return e.Err }

var (
	// ErrNotFound is returned when a requested timeline or record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidTimeline wraps validation failures of a timeline configuration.
	ErrInvalidTimeline = errors.New("invalid timeline")

	// ErrReadOnly is returned when a system timeline is saved or deleted.
	ErrReadOnly = errors.New("system timelines are read-only")
)

// IsUpstream reports whether err is or wraps an *UpstreamError.
func IsUpstream(err error) bool {
	var ue *UpstreamError
	return errors.As(err, &ue)
}

// IsOracle reports whether err is or wraps an *OracleError.
func IsOracle(err error) bool {
	var oe *OracleError
	return errors.As(err, &oe)
}
