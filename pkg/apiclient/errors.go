package apiclient

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// APIError is a failed admin API call. Problem responses fill every field;
// other bodies end up in Detail.
type APIError struct {
	Type   string `json:"type,omitempty"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	msg := e.Detail
	if msg == "" {
		msg = e.Title
	}
	if e.Reason != "" {
		msg = e.Reason
	}
	return fmt.Sprintf("%d %s: %s", e.Status, http.StatusText(e.Status), msg)
}

// IsNotFound returns true if the resource does not exist.
func (e *APIError) IsNotFound() bool {
	return e.Status == http.StatusNotFound
}

// IsUnavailable returns true if the server has no active environment.
func (e *APIError) IsUnavailable() bool {
	return e.Status == http.StatusServiceUnavailable
}

func parseError(status int, body []byte) error {
	var apiErr APIError
	if json.Unmarshal(body, &apiErr) == nil && apiErr.Title != "" {
		apiErr.Status = status
		return &apiErr
	}
	return &APIError{
		Status: status,
		Title:  http.StatusText(status),
		Detail: strings.TrimSpace(string(body)),
	}
}
