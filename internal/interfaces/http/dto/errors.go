package dto

import "net/http"

// Error code constants organized by category
// Format: ERR_<CATEGORY>_<DESCRIPTION>

// General error codes
const (
	// ErrCodeInternal is used for internal server errors
	ErrCodeInternal = "ERR_INTERNAL"
	// ErrCodeUnavailable is used when a dependency such as the database is down
	ErrCodeUnavailable = "ERR_UNAVAILABLE"
)

// Authentication error codes
const (
	// ErrCodeUnauthorized is used when authentication is required but missing/invalid
	ErrCodeUnauthorized = "ERR_UNAUTHORIZED"
	// ErrCodeForbidden is used when the token lacks a required scope
	ErrCodeForbidden = "ERR_FORBIDDEN"
	// ErrCodeTokenExpired is used when the auth token has expired
	ErrCodeTokenExpired = "ERR_TOKEN_EXPIRED"
	// ErrCodeTokenInvalid is used when the auth token is invalid
	ErrCodeTokenInvalid = "ERR_TOKEN_INVALID"
)

// Input error codes
const (
	// ErrCodeBadRequest is used for malformed requests
	ErrCodeBadRequest = "ERR_BAD_REQUEST"
)

// Sync error codes, one per ETL failure kind
const (
	ErrCodeSyncAuthentication = "ERR_SYNC_AUTHENTICATION"
	ErrCodeSyncUpstream       = "ERR_SYNC_UPSTREAM"
	ErrCodeSyncTransform      = "ERR_SYNC_TRANSFORM"
	ErrCodeSyncLoad           = "ERR_SYNC_LOAD"
	ErrCodeSyncFailed         = "ERR_SYNC_FAILED"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeInternal:    http.StatusInternalServerError,
	ErrCodeUnavailable: http.StatusServiceUnavailable,

	ErrCodeUnauthorized: http.StatusUnauthorized,
	ErrCodeForbidden:    http.StatusForbidden,
	ErrCodeTokenExpired: http.StatusUnauthorized,
	ErrCodeTokenInvalid: http.StatusUnauthorized,

	ErrCodeBadRequest: http.StatusBadRequest,

	// A failed sync is reported as a server error, matching the dashboard contract
	ErrCodeSyncAuthentication: http.StatusInternalServerError,
	ErrCodeSyncUpstream:       http.StatusInternalServerError,
	ErrCodeSyncTransform:      http.StatusInternalServerError,
	ErrCodeSyncLoad:           http.StatusInternalServerError,
	ErrCodeSyncFailed:         http.StatusInternalServerError,
}

// GetHTTPStatus returns the HTTP status code for an error code
// Returns 500 Internal Server Error if the error code is not found
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}
