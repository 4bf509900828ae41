package extractor

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingTitle means the title selector matched nothing usable.
	ErrMissingTitle = errors.New("title not found")
	// ErrMissingContent means the content selector matched nothing, or nothing survived sanitizing.
	ErrMissingContent = errors.New("content not found")
)

// FetchError is a transient failure to download the source page.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ExtractionError is a permanent failure: the page was fetched but a mandatory
// field could not be extracted. Waiting will not fix it.
type ExtractionError struct {
	URL string
	Err error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s: %v", e.URL, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// IsPermanent reports whether err should abandon the item instead of retrying it.
func IsPermanent(err error) bool {
	var extractionErr *ExtractionError
	return errors.As(err, &extractionErr)
}
