package util

import (
	"fmt"
	"io"
	"net/http"
)

const (
	// The maximum size of an HTTP response body to read.
	maxHTTPBodySize = 100 * 1024 * 1024
)

// Reads an HTTP response body, limited to the specified maximum size.
// If the response body exceeds the maximum size, an error is returned.
// If the maximum size is 0 or greater than maxHTTPBodySize, maxHTTPBodySize
// is used instead.
func ReadLimitedBody(resp *http.Response, maxSize int64) ([]byte, error) {
	if maxSize == 0 || maxSize > maxHTTPBodySize {
		maxSize = maxHTTPBodySize
	}
	reader := io.LimitReader(resp.Body, maxSize+1)
	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	if len(body) > int(maxSize) {
		return nil, fmt.Errorf("response body exceeded maximum size of %d bytes", maxSize)
	}
	return body, nil
}
