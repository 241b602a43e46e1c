package mewapi

import (
	"errors"
	"fmt"
)

type HTTPStatusError struct {
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	if e == nil {
		return "http status error"
	}
	return fmt.Sprintf("status=%d body=%s", e.StatusCode, e.Body)
}

// IsNotFound reports whether err is an HTTP 404 from the platform API.
func IsNotFound(err error) bool {
	var se *HTTPStatusError
	return errors.As(err, &se) && se.StatusCode == 404
}
