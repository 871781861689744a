package registry

import (
	"fmt"
	"io"
	"net/http"
)

// handleHTTPError reads the response body and returns a formatted error
// for non-2xx HTTP responses from the registry API.
func handleHTTPError(resp *http.Response, operation string) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return fmt.Errorf("%s: registry returned %d: %s", operation, resp.StatusCode, string(body))
}

// retryableStatus reports whether a status code is worth retrying.
// Client errors other than 429 are permanent.
func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}
