package core

// # Error Codes Reference
//
// User-facing messages for workflow errors, with codes for support reference.
// Remote failures keep their original text in the session; the code and
// action below are shown next to it.
//
//	SES001  - Step not available: operation not allowed in the current step
//	          Patterns: "invalid session state"
//	SES002  - Superseded: a reset or newer request replaced this one
//	          Patterns: "request superseded"
//	MAP001  - Incomplete mapping: a transaction field has no column
//	          Patterns: "incomplete mapping"
//	MAP002  - Unknown column: column is not among the file's headers
//	          Patterns: "column not found"
//	MAP003  - Unknown field: field is not a transaction field
//	          Patterns: "unknown field"
//	FILE001 - File too large
//	          Patterns: "file too large", "request body too large"
//	FILE004 - No file selected
//	          Patterns: "no file provided"
//	FILE005 - Empty file
//	          Patterns: "empty file"
//	INS001  - Inspection failed: the finance API could not read the file
//	          Patterns: "inspection failed"
//	IMP001  - Import failed: the finance API rejected the import
//	          Patterns: "import failed"
//	SVC001  - Service unavailable
//	          Patterns: "service unavailable"
//	SVC002  - Connection refused
//	          Patterns: "connection refused"
//	SVC003  - Timeout
//	          Patterns: "context deadline exceeded", "timeout"
//	REQ001  - Malformed request body or form
//	          Patterns: "bad request"
//	UPL002  - Too many imports in progress
//	          Patterns: "too many imports"
//	RATE001 - Too many requests
//	          Patterns: "rate limit"
//	ERR000  - Fallback for anything else
//
// Patterns are matched case-insensitively with strings.Contains; the first
// match wins, so specific patterns come before general ones.

import (
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

var errorPatterns = []errorPattern{
	// Workflow
	{
		pattern: "invalid session state",
		msg: UserMessage{
			Message: "This step is not available right now",
			Action:  "Wait for the current step to finish or start over",
			Code:    "SES001",
		},
	},
	{
		pattern: "request superseded",
		msg: UserMessage{
			Message: "This request was replaced by a newer one",
			Action:  "No action needed; the page shows the latest state",
			Code:    "SES002",
		},
	},
	{
		pattern: "incomplete mapping",
		msg: UserMessage{
			Message: "Every transaction field needs at least one column",
			Action:  "Select a column for each required field",
			Code:    "MAP001",
		},
	},
	{
		pattern: "column not found",
		msg: UserMessage{
			Message: "The selected column is not in the file",
			Action:  "Choose one of the columns shown in the preview",
			Code:    "MAP002",
		},
	},
	{
		pattern: "unknown field",
		msg: UserMessage{
			Message: "Unknown transaction field",
			Action:  "Use one of: date, name, category, amount",
			Code:    "MAP003",
		},
	},

	// Files
	{
		pattern: "file too large",
		msg: UserMessage{
			Message: "File exceeds maximum size limit",
			Action:  "Split the file into smaller chunks",
			Code:    "FILE001",
		},
	},
	{
		pattern: "request body too large",
		msg: UserMessage{
			Message: "File exceeds maximum size limit",
			Action:  "Split the file into smaller chunks",
			Code:    "FILE001",
		},
	},
	{
		pattern: "no file provided",
		msg: UserMessage{
			Message: "No file was selected",
			Action:  "Please select a CSV file to upload",
			Code:    "FILE004",
		},
	},
	{
		pattern: "empty file",
		msg: UserMessage{
			Message: "The uploaded file is empty",
			Action:  "Please upload a CSV file with data rows",
			Code:    "FILE005",
		},
	},

	// Throttling
	{
		pattern: "too many imports",
		msg: UserMessage{
			Message: "System is busy processing other imports",
			Action:  "Please wait a moment and try again",
			Code:    "UPL002",
		},
	},
	{
		pattern: "rate limit",
		msg: UserMessage{
			Message: "Too many requests",
			Action:  "Please wait a moment before trying again",
			Code:    "RATE001",
		},
	},

	// Remote services
	{
		pattern: "inspection failed",
		msg: UserMessage{
			Message: "The file could not be read",
			Action:  "Check that the file is a CSV export, then retry or start over",
			Code:    "INS001",
		},
	},
	{
		pattern: "import failed",
		msg: UserMessage{
			Message: "The transactions could not be imported",
			Action:  "Review the column mapping, then retry or start over",
			Code:    "IMP001",
		},
	},
	{
		pattern: "service unavailable",
		msg: UserMessage{
			Message: "The finance service is unavailable",
			Action:  "Please try again in a few moments",
			Code:    "SVC001",
		},
	},
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to reach the finance service",
			Action:  "Please try again in a few moments",
			Code:    "SVC002",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "Request timed out",
			Action:  "Try a smaller file or check your connection",
			Code:    "SVC003",
		},
	},
	{
		pattern: "timeout",
		msg: UserMessage{
			Message: "Request timed out",
			Action:  "Try a smaller file or check your connection",
			Code:    "SVC003",
		},
	},

	// Requests
	{
		pattern: "bad request",
		msg: UserMessage{
			Message: "The request could not be understood",
			Action:  "Check the request body and try again",
			Code:    "REQ001",
		},
	},
}

// defaultMessage is returned when no pattern matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// It returns the first pattern match, or the ERR000 fallback.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	errStr := strings.ToLower(err.Error())

	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err matches a known pattern rather than the
// ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}
