package client

import (
	"fmt"
	"time"
)

// Archiver is one registered archiver as returned by the API.
type Archiver struct {
	NodeID   int64  `json:"nodeid"`
	NodeName string `json:"nodename"`
	NodeHost string `json:"nodehost"`
}

// AddRequest registers an archiver. An empty NodeName lets the server
// generate one.
type AddRequest struct {
	NodeName string `json:"node_name,omitempty"`
	NodeHost string `json:"node_host"`
}

type addResponse struct {
	NodeID int64 `json:"node_id"`
}

// Token is a bearer token issued by Login.
type Token struct {
	Type      string    `json:"type"`
	Value     string    `json:"value"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// APIError is returned for any non-2xx response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Message)
}
