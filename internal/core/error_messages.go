package core

// error_messages.go maps technical errors to user-facing messages with codes
// for support reference. When a user quotes a code, look it up here.
//
// # Job Errors (JOB001-JOB099)
//
//	JOB001 - Unknown operation: the requested operation is not available
//	JOB002 - Invalid options: the job options were rejected
//	JOB003 - Job not found: the job finished, was cancelled or expired
//	JOB004 - Job busy: a step for this job is already running
//	JOB005 - Handler panic: the operation crashed while processing a chunk
//	JOB006 - Not ready: the job has not finished yet
//
// # Database Errors (DB001-DB099)
//
//	DB001 - Duplicate key: A record with this ID already exists
//	DB002 - Unique constraint: This value must be unique but already exists
//	DB003 - Foreign key: Referenced record does not exist
//	DB004 - Connection refused: Unable to connect to database
//	DB005 - Connection reset: Database connection was interrupted
//	DB006 - Timeout: Operation timed out
//	DB007 - Deadlock: Database was busy with conflicting operations
//
// # Validation Errors (VAL001-VAL099)
//
//	VAL001 - Invalid date
//	VAL002 - Invalid number
//	VAL003 - Required field is empty
//	VAL004 - Required column missing from CSV
//	VAL005 - Unknown field in mapping
//	VAL006 - Value not in the allowed list
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - File too large
//	FILE002 - Invalid CSV
//	FILE003 - Encoding error
//	FILE004 - No file provided
//	FILE005 - Empty file
//	FILE006 - File missing on disk
//
// # Request Errors (REQ001-REQ099)
//
//	REQ001 - Request cancelled
//	REQ002 - Request timed out
//	RATE001 - Too many requests
//
// # Default Error (ERR000)
//
// Fallback when nothing matches. Check the application logs for the
// technical error.
//
// # Matching
//
// Sentinel errors from this package are matched first with errors.Is.
// Everything else is matched case-insensitively on the error text; the
// first matching pattern wins, so specific patterns come first.

import (
	"context"
	"errors"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

// ErrNotReady is returned when a job's result is requested before it finished.
var ErrNotReady = errors.New("job not finished")

// sentinelMessages are checked with errors.Is before any text matching.
var sentinelMessages = []struct {
	err error
	msg UserMessage
}{
	{ErrUnknownOperation, UserMessage{
		Message: "This operation is not available",
		Action:  "Choose one of the listed operations",
		Code:    "JOB001",
	}},
	{ErrInvalidOptions, UserMessage{
		Message: "The job options are invalid",
		Action:  "Check the chunk size, delimiter and field mapping",
		Code:    "JOB002",
	}},
	{ErrNotFound, UserMessage{
		Message: "Job not found",
		Action:  "The job may have finished, been cancelled or expired. Start a new one",
		Code:    "JOB003",
	}},
	{ErrBusy, UserMessage{
		Message: "This job is already processing a chunk",
		Action:  "Wait a moment and try again",
		Code:    "JOB004",
	}},
	{ErrConflict, UserMessage{
		Message: "This job is already processing a chunk",
		Action:  "Wait a moment and try again",
		Code:    "JOB004",
	}},
	{ErrNotReady, UserMessage{
		Message: "The job has not finished yet",
		Action:  "Wait until the progress reaches 100%",
		Code:    "JOB006",
	}},
	{context.Canceled, UserMessage{
		Message: "Request was cancelled",
		Action:  "Please try again",
		Code:    "REQ001",
	}},
	{context.DeadlineExceeded, UserMessage{
		Message: "Request timed out",
		Action:  "Use a smaller chunk size or try again later",
		Code:    "REQ002",
	}},
}

// errorPatterns maps lower-case substrings of error text to user messages,
// grouped by code family.
var errorPatterns = []struct {
	pattern string
	msg     UserMessage
}{
	{"handler panic", UserMessage{"The operation crashed while processing", "Contact support with the job id", "JOB005"}},

	// Catalog writes
	{"duplicate key", UserMessage{"A record with this key already exists", "Remove duplicate rows from your CSV", "DB001"}},
	{"unique constraint", UserMessage{"A value that must be unique is repeated", "Check for duplicate entries in your CSV", "DB002"}},
	{"violates foreign key", UserMessage{"Referenced record does not exist", "Import categories before products", "DB003"}},
	{"connection refused", UserMessage{"Unable to reach the catalog or job store", "Try again in a few moments", "DB004"}},
	{"connection reset", UserMessage{"The connection was interrupted", "Step the job again", "DB005"}},
	{"timeout", UserMessage{"The chunk took too long", "Use a smaller chunk size or try again later", "DB006"}},
	{"deadlock", UserMessage{"The database was busy with conflicting writes", "Step the job again", "DB007"}},

	// Record and mapping validation
	{"invalid date", UserMessage{"Invalid date format detected", "Use YYYY-MM-DD, MM/DD/YYYY, or Jan 15, 2024", "VAL001"}},
	{"invalid number", UserMessage{"Invalid number format detected", "Remove currency symbols and use a plain decimal", "VAL002"}},
	{"required field", UserMessage{"Required field is empty", "Fill in every required column", "VAL003"}},
	{"missing required column", UserMessage{"Required column is missing from the CSV", "Add the column or map an existing header to it", "VAL004"}},
	{"unknown field", UserMessage{"The field mapping names an unknown field", "Map headers only to fields of the chosen entity", "VAL005"}},
	{"invalid enum", UserMessage{"Value is not in the allowed list", "Check the allowed values for this field", "VAL006"}},

	// Uploaded and exported files
	{"file too large", UserMessage{"File exceeds the upload limit", "Split the file into smaller files", "FILE001"}},
	{"invalid csv", UserMessage{"File is not a valid CSV", "Use the chosen delimiter and consistent columns", "FILE002"}},
	{"encoding error", UserMessage{"File contains invalid characters", "Save the file as UTF-8", "FILE003"}},
	{"no file provided", UserMessage{"No file was selected", "Attach a CSV file in the file field", "FILE004"}},
	{"empty file", UserMessage{"The file is empty", "Upload a CSV with a header row", "FILE005"}},
	{"no such file", UserMessage{"The job's file is no longer available", "Start a new job", "FILE006"}},

	{"rate limit", UserMessage{"Too many requests", "Wait a moment before trying again", "RATE001"}},
}

// defaultMessage is the ERR000 fallback. The technical error is in the logs.
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-facing message. Sentinels
// are matched with errors.Is, then the text patterns in order.
//
//	msg := MapError(fmt.Errorf("step: %w", ErrBusy))
//	// msg.Code == "JOB004"
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	for _, sm := range sentinelMessages {
		if errors.Is(err, sm.err) {
			return sm.msg
		}
	}

	text := strings.ToLower(err.Error())
	for _, p := range errorPatterns {
		if strings.Contains(text, p.pattern) {
			return p.msg
		}
	}
	return defaultMessage
}
