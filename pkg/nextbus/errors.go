package nextbus

import (
	"errors"
	"fmt"
)

var (
	ErrMissingAgency  = errors.New("nextbus agency tag is not configured")
	ErrMissingBaseURL = errors.New("nextbus feed url is not configured")
)

// FetchError is the failure of a single route, vehicle or incremental request
type FetchError struct {
	Key string
	Err error
}

func (e *FetchError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("nextbus fetch failed: %s", e.Err)
	}
	return fmt.Sprintf("nextbus fetch for %s failed: %s", e.Key, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// FeedError is an Error element returned in place of data
type FeedError struct {
	Message     string
	ShouldRetry bool
}

func (e *FeedError) Error() string {
	return e.Message
}
