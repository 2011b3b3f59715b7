package core

// # Error Codes Reference
//
// This file defines user-friendly error messages with codes for support reference.
// When a caller sees an error, the code identifies the failure family without
// exposing driver text.
//
// Typed failures are mapped first, by Kind and by the wrapped cause:
//
// # Validation Errors (VAL001-VAL099)
//
//	VAL001 - Out of range: a value is outside its allowed bounds
//	VAL002 - Invalid temporal: a date lies in the future
//	VAL003 - Too long: a text value exceeds its maximum length
//	VAL004 - Malformed: a value could not be parsed or a field is unknown
//	VAL005 - Pagination: skip or limit is out of bounds
//
// # Reference Errors (REF001-REF099)
//
//	REF001 - Reference not found: a referenced crash, vehicle or person is missing
//	REF002 - Reference in use: the record still has dependent rows
//
// # Identity Errors
//
//	DUP001 - Duplicate crash: the same crash attributes were already recorded
//	CAP001 - Capacity exhausted: the identifier space is used up
//
// # Database Errors (DB001-DB099)
//
//	DB001 - Conflict: another writer allocated the same id first
//	        Patterns: "duplicate key", "unique constraint"
//	DB004 - Connection refused
//	        Patterns: "connection refused"
//	DB005 - Connection reset
//	        Patterns: "connection reset"
//	DB006 - Timeout
//	        Patterns: "timeout", "context deadline exceeded"
//	DB007 - Deadlock or locked database
//	        Patterns: "deadlock", "database is locked"
//	DB008 - Not found: the requested record does not exist
//
// # Write Errors
//
//	WRT001 - Writer busy: the single write slot stayed taken past the wait limit
//	REQ001 - Request cancelled
//	         Patterns: "context canceled"
//
// # File Errors (FILE001-FILE099)
//
//	FILE002 - Invalid CSV
//	          Patterns: "invalid csv", "wrong number of fields"
//	FILE003 - Encoding error
//	          Patterns: "encoding error"
//	FILE005 - Empty file
//	          Patterns: "empty file"
//
// # Default Error (ERR000)
//
//	ERR000 - Unknown error: An unexpected error occurred
//
// # Pattern Matching
//
// Untyped errors are matched case-insensitively using strings.Contains.
// The first matching pattern wins, so more specific patterns are defined
// before general ones.

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

var (
	msgOutOfRange = UserMessage{
		Message: "A value is outside its allowed range",
		Action:  "Correct the listed fields and resubmit",
		Code:    "VAL001",
	}
	msgTemporal = UserMessage{
		Message: "A date cannot be in the future",
		Action:  "Check the incident date and its time zone",
		Code:    "VAL002",
	}
	msgTooLong = UserMessage{
		Message: "A text value is too long",
		Action:  "Shorten the listed fields and resubmit",
		Code:    "VAL003",
	}
	msgMalformed = UserMessage{
		Message: "The request contains malformed values",
		Action:  "Check the field names and value formats",
		Code:    "VAL004",
	}
	msgPagination = UserMessage{
		Message: "Invalid pagination parameters",
		Action:  "Use skip >= 0 and limit between 1 and 1000",
		Code:    "VAL005",
	}
	msgReferenceNotFound = UserMessage{
		Message: "Referenced record does not exist",
		Action:  "Create the parent crash or vehicle first",
		Code:    "REF001",
	}
	msgReferenceInUse = UserMessage{
		Message: "The record is still referenced by other records",
		Action:  "Delete the dependent people and vehicles first",
		Code:    "REF002",
	}
	msgDuplicate = UserMessage{
		Message: "This crash has already been recorded",
		Action:  "Use the existing crash id",
		Code:    "DUP001",
	}
	msgCapacity = UserMessage{
		Message: "No more identifiers can be allocated",
		Action:  "Contact support",
		Code:    "CAP001",
	}
	msgConflict = UserMessage{
		Message: "Another write allocated the same id first",
		Action:  "Please try again",
		Code:    "DB001",
	}
	msgNotFound = UserMessage{
		Message: "Record not found",
		Action:  "Verify the id is correct",
		Code:    "DB008",
	}
	msgWriterBusy = UserMessage{
		Message: "System is busy processing other writes",
		Action:  "Please wait a moment and try again",
		Code:    "WRT001",
	}
)

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns maps technical error patterns (case-insensitive) to user messages.
// The first matching pattern wins, so order matters.
var errorPatterns = []errorPattern{
	{pattern: "duplicate key", msg: msgConflict},
	{pattern: "unique constraint", msg: msgConflict},
	{pattern: "foreign key", msg: msgReferenceNotFound},

	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to database",
			Action:  "Please try again in a few moments",
			Code:    "DB004",
		},
	},
	{
		pattern: "connection reset",
		msg: UserMessage{
			Message: "Database connection was interrupted",
			Action:  "Please try again",
			Code:    "DB005",
		},
	},
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "Request was cancelled",
			Action:  "Please try again",
			Code:    "REQ001",
		},
	},
	{pattern: "context deadline exceeded", msg: msgTimeout},
	{pattern: "timeout", msg: msgTimeout},
	{pattern: "deadlock", msg: msgLocked},
	{pattern: "database is locked", msg: msgLocked},

	{pattern: "invalid csv", msg: msgInvalidCSV},
	{pattern: "wrong number of fields", msg: msgInvalidCSV},
	{
		pattern: "encoding error",
		msg: UserMessage{
			Message: "File contains invalid characters",
			Action:  "Save file as UTF-8 encoding",
			Code:    "FILE003",
		},
	},
	{
		pattern: "empty file",
		msg: UserMessage{
			Message: "The file is empty",
			Action:  "Provide a CSV file with a header and data rows",
			Code:    "FILE005",
		},
	},
}

var (
	msgTimeout = UserMessage{
		Message: "Operation timed out",
		Action:  "Try again later",
		Code:    "DB006",
	}
	msgLocked = UserMessage{
		Message: "Database was busy with conflicting operations",
		Action:  "Please try again",
		Code:    "DB007",
	}
	msgInvalidCSV = UserMessage{
		Message: "File is not a valid CSV",
		Action:  "Ensure file is comma-separated with consistent columns",
		Code:    "FILE002",
	}
)

// defaultMessage is returned when no pattern matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts an error to a user-friendly message. Typed failures
// are mapped by kind and cause; anything else falls back to the pattern
// table. If nothing matches, ERR000 is returned.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	if msg, ok := mapFailure(err); ok {
		return msg
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

func mapFailure(err error) (UserMessage, bool) {
	switch {
	case errors.Is(err, ErrWriterBusy):
		return msgWriterBusy, true
	case errors.Is(err, ErrReferenceInUse):
		return msgReferenceInUse, true
	case errors.Is(err, context.DeadlineExceeded):
		return msgTimeout, true
	}

	f, ok := AsFailure(err)
	if !ok {
		return UserMessage{}, false
	}
	switch f.Kind {
	case KindValidation:
		return validationMessage(f.Violations), true
	case KindReferenceNotFound:
		return msgReferenceNotFound, true
	case KindDuplicateRecord:
		return msgDuplicate, true
	case KindCapacityExhausted:
		return msgCapacity, true
	case KindNotFound:
		return msgNotFound, true
	}
	if f.Conflict {
		return msgConflict, true
	}
	// Other storage failures use the cause's pattern.
	return UserMessage{}, false
}

// validationMessage picks the message for the first violation.
func validationMessage(v []ValidationError) UserMessage {
	if len(v) == 0 {
		return msgMalformed
	}
	switch first := v[0]; {
	case first.Field == "skip" || first.Field == "limit":
		return msgPagination
	case first.Reason == ReasonOutOfRange:
		return msgOutOfRange
	case first.Reason == ReasonInvalidTemporal:
		return msgTemporal
	case first.Reason == ReasonTooLong:
		return msgTooLong
	case first.Reason == ReasonMissingReference:
		return msgReferenceNotFound
	default:
		return msgMalformed
	}
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

// IsUserFacing reports whether err maps to a specific code rather than the
// ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}
