package services

import (
	"fmt"
	"time"
)

// Pipeline failures are typed so the HTTP layer can pick status codes with
// errors.As instead of string matching.

// AcquisitionError wraps a feed fetch failure. At pins when the fetch was
// attempted and goes out with the error response.
type AcquisitionError struct {
	Feed string
	At   time.Time
	Err  error
}

func (e *AcquisitionError) Error() string {
	return fmt.Sprintf("acquire feed %s: %v", e.Feed, e.Err)
}

func (e *AcquisitionError) Unwrap() error { return e.Err }

// ParseError means a payload was obtained but is not a usable feed document.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string { return fmt.Sprintf("parse feed: %v", e.Err) }
func (e *ParseError) Unwrap() error { return e.Err }

// EmptyFeedError is a structurally valid document carrying zero entries.
type EmptyFeedError struct {
	Feed string
}

func (e *EmptyFeedError) Error() string {
	return fmt.Sprintf("no properties found in feed %s", e.Feed)
}

// NoValidRecordsError means mapping rejected every entry in the feed.
type NoValidRecordsError struct {
	Errors []RecordError
}

func (e *NoValidRecordsError) Error() string {
	return fmt.Sprintf("no valid records in feed (%d rejected)", len(e.Errors))
}

// StorageError is a database failure that stopped the whole batch. Elapsed
// covers the run up to the point of failure.
type StorageError struct {
	Elapsed time.Duration
	Err     error
}

func (e *StorageError) Error() string { return fmt.Sprintf("store batch: %v", e.Err) }
func (e *StorageError) Unwrap() error { return e.Err }

// RecordError attributes a non-fatal failure to a single feed entry; the run
// continues past it.
type RecordError struct {
	Reference string `json:"reference"`
	Message   string `json:"error"`
}

func (e RecordError) Error() string { return e.Reference + ": " + e.Message }

func errorStrings(errs []RecordError) []string {
	if len(errs) == 0 {
		return nil
	}
	out := make([]string, len(errs))
	for i, e := range errs {
		out[i] = e.Error()
	}
	return out
}
