package fetcher

import (
	"errors"
	"fmt"
)

// Class tells the traversal engine whether retrying a fetch can help.
type Class int

const (
	Transient Class = iota + 1
	Permanent
)

func (c Class) String() string {
	switch c {
	case Transient:
		return "transient"
	case Permanent:
		return "permanent"
	default:
		return "unknown"
	}
}

var (
	ErrTransient = errors.New("transient fetch error")
	ErrPermanent = errors.New("permanent fetch error")
)

// FetchError is returned by Fetch for every failed attempt.
// errors.Is matches it against ErrTransient or ErrPermanent.
type FetchError struct {
	Class      Class
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s fetch error: %s: status %d", e.Class, e.URL, e.StatusCode)
	}
	return fmt.Sprintf("%s fetch error: %s: %v", e.Class, e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

func (e *FetchError) Is(target error) bool {
	switch target {
	case ErrTransient:
		return e.Class == Transient
	case ErrPermanent:
		return e.Class == Permanent
	}
	return false
}

func transientf(url string, status int, err error) *FetchError {
	return &FetchError{Class: Transient, URL: url, StatusCode: status, Err: err}
}

func permanentf(url string, status int, err error) *FetchError {
	return &FetchError{Class: Permanent, URL: url, StatusCode: status, Err: err}
}

// classifyStatus maps a non-2xx status to a failure class.
// 5xx and 429 may clear up on their own; every other status will not.
func classifyStatus(status int) Class {
	if status >= 500 || status == 429 {
		return Transient
	}
	return Permanent
}
