// Package ecode defines standardized business error codes for API responses.
//
// Codes follow the convention used across ncobase services:
//   - 0: success
//   - -1xx: authentication / authorization
//   - -4xx: request and resource errors
//   - -5xx: server errors
package ecode

// Common business codes.
const (
	OK               = 0
	Unauthorized     = -101
	RequestErr       = -400
	ParamErr         = -401
	AccessDenied     = -403
	NothingFound     = -404
	MethodNotAllowed = -405
	Conflict         = -409
	LimitExceed      = -429
	ServerErr        = -500
	ServiceUnavail   = -503
)

var messages = map[int]string{
	OK:               "success",
	Unauthorized:     "account not logged in",
	RequestErr:       "invalid request",
	ParamErr:         "invalid parameters",
	AccessDenied:     "access denied",
	NothingFound:     "resource not found",
	MethodNotAllowed: "method not allowed",
	Conflict:         "resource conflict",
	LimitExceed:      "request limit exceeded",
	ServerErr:        "internal server error",
	ServiceUnavail:   "service unavailable",
}

// Text returns the human-readable message for a business code.
func Text(code int) string {
	if msg, ok := messages[code]; ok {
		return msg
	}
	return messages[ServerErr]
}
