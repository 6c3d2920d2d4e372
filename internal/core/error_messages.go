// Package core provides the business logic for dealer price imports.
//
// # Error Codes Reference
//
// User-facing errors carry a code for support reference. Sentinel errors
// are matched with errors.Is first; anything else falls back to
// case-insensitive pattern matching on the error text.
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - Unsupported format: The file type is not supported
//	          Action: Upload an xls, xlsx, dbf or csv file
//	FILE002 - Corrupt file: The file could not be read
//	          Action: Re-export the price list and upload it again
//	FILE003 - File too large: File exceeds the maximum size limit
//	          Action: Split the price list or remove unused sheets
//	FILE004 - No file: No file was selected
//	          Action: Please select a price list to upload
//	FILE005 - Invalid separator: The column separator is not supported
//	          Action: Use semicolon, comma or tab
//	FILE006 - Unknown codepage: The text encoding is not supported
//	          Action: Use cp866, cp1251, koi8-r or utf-8
//
// # Mapping Errors (MAP001-MAP099)
//
//	MAP001 - Unknown field: A column is mapped to an unknown field
//	MAP002 - Invalid rule: A column rule could not be parsed
//	MAP003 - No mapping: No column mapping was supplied
//
// # Import Errors (IMP001-IMP099)
//
//	IMP001 - Partial commit: Products were deleted but not all were re-inserted
//	         Action: Run the import again
//	IMP002 - Import in progress: Another import for this dealer is running
//	IMP003 - System busy: Too many imports in progress
//	IMP004 - Import not found: The import id is unknown or expired
//	IMP005 - Cancelled: The import was cancelled
//	IMP006 - Timeout: The import took too long
//	IMP007 - Bookkeeping failed: Products were replaced but the dealer's
//	         mapping and last upload were not saved
//	         Action: Run the import again
//
// # Dealer Errors (DLR001-DLR099)
//
//	DLR001 - Dealer not found
//
// # Database Errors (DB001-DB099)
//
//	DB001 - Unique constraint, DB002 - Foreign key, DB003 - Connection refused,
//	DB004 - Connection reset, DB005 - Deadlock
//
// # Default Error (ERR000)
//
//	ERR000 - Unknown error: An unexpected error occurred
//	         Action: Please try again or contact support
//
// When a user reports ERR000, check application logs for the original
// technical error.
package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/JonMunkholm/dealerprice/internal/catalog"
	"github.com/JonMunkholm/dealerprice/internal/decode"
	"github.com/JonMunkholm/dealerprice/internal/mapping"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string `json:"message"` // What happened (user-friendly)
	Action  string `json:"action"`  // What to do about it
	Code    string `json:"code"`    // Error code for support reference
}

// ErrFileTooLarge is returned by callers that enforce the upload limit.
var ErrFileTooLarge = errors.New("file too large")

// ErrNoFile is returned when an upload carries no file.
var ErrNoFile = errors.New("no file provided")

// errorKind maps a sentinel error to its user message.
type errorKind struct {
	target error
	msg    UserMessage
}

// errorKinds are checked with errors.Is in order. PartialCommit and
// CommitBookkeeping come before causes like context.Canceled they may wrap.
var errorKinds = []errorKind{
	{ErrPartialCommit, UserMessage{
		Message: "Products were deleted but not all new products were saved",
		Action:  "Run the import again to restore the dealer's price list",
		Code:    "IMP001",
	}},
	{ErrCommitBookkeeping, UserMessage{
		Message: "Products were replaced but the dealer's import settings were not saved",
		Action:  "Check the dealer's mapping and run the import again to save it",
		Code:    "IMP007",
	}},
	{decode.ErrUnsupportedFormat, UserMessage{
		Message: "The file type is not supported",
		Action:  "Upload an xls, xlsx, dbf or csv file",
		Code:    "FILE001",
	}},
	{decode.ErrCorruptFile, UserMessage{
		Message: "The file could not be read",
		Action:  "Re-export the price list and upload it again",
		Code:    "FILE002",
	}},
	{ErrFileTooLarge, UserMessage{
		Message: "File exceeds the maximum size limit",
		Action:  "Split the price list or remove unused sheets",
		Code:    "FILE003",
	}},
	{ErrNoFile, UserMessage{
		Message: "No file was selected",
		Action:  "Please select a price list to upload",
		Code:    "FILE004",
	}},
	{decode.ErrInvalidSeparator, UserMessage{
		Message: "The column separator is not supported",
		Action:  "Use semicolon, comma or tab",
		Code:    "FILE005",
	}},
	{decode.ErrUnknownCodepage, UserMessage{
		Message: "The text encoding is not supported",
		Action:  "Use cp866, cp1251, koi8-r or utf-8",
		Code:    "FILE006",
	}},
	{mapping.ErrUnknownField, UserMessage{
		Message: "A column is mapped to an unknown field",
		Action:  "Choose a field from the list for every mapped column",
		Code:    "MAP001",
	}},
	{mapping.ErrInvalidRule, UserMessage{
		Message: "A column rule is invalid",
		Action:  "Review the filter and transform settings of the mapped columns",
		Code:    "MAP002",
	}},
	{ErrNoMapping, UserMessage{
		Message: "No column mapping was supplied",
		Action:  "Preview the file and map its columns first",
		Code:    "MAP003",
	}},
	{ErrImportInProgress, UserMessage{
		Message: "Another import for this dealer is running",
		Action:  "Wait for it to finish and try again",
		Code:    "IMP002",
	}},
	{ErrTooManyImports, UserMessage{
		Message: "System is busy processing other imports",
		Action:  "Please wait a moment and try again",
		Code:    "IMP003",
	}},
	{ErrImportNotFound, UserMessage{
		Message: "Import not found",
		Action:  "The import may have expired. Please start a new import",
		Code:    "IMP004",
	}},
	{context.Canceled, UserMessage{
		Message: "The import was cancelled",
		Action:  "Start a new import when ready",
		Code:    "IMP005",
	}},
	{context.DeadlineExceeded, UserMessage{
		Message: "The import took too long",
		Action:  "Try a smaller price list or try again later",
		Code:    "IMP006",
	}},
	{catalog.ErrDealerNotFound, UserMessage{
		Message: "Dealer not found",
		Action:  "Verify the dealer id",
		Code:    "DLR001",
	}},
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns maps database error text (case-insensitive) to user
// messages. The first matching pattern wins.
var errorPatterns = []errorPattern{
	{
		pattern: "unique constraint",
		msg: UserMessage{
			Message: "A duplicate value was found",
			Action:  "Please try again",
			Code:    "DB001",
		},
	},
	{
		pattern: "foreign key",
		msg: UserMessage{
			Message: "Referenced record does not exist",
			Action:  "Check that the dealer and manufacturers still exist",
			Code:    "DB002",
		},
	},
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to database",
			Action:  "Please try again in a few moments",
			Code:    "DB003",
		},
	},
	{
		pattern: "connection reset",
		msg: UserMessage{
			Message: "Database connection was interrupted",
			Action:  "Please try again",
			Code:    "DB004",
		},
	},
	{
		pattern: "deadlock",
		msg: UserMessage{
			Message: "Database was busy with conflicting operations",
			Action:  "Please try again",
			Code:    "DB005",
		},
	},
}

// defaultMessage is returned when no pattern matches (ERR000).
// This is the fallback for unexpected errors. Support staff should check
// application logs for the original technical error when users report ERR000.
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// Known sentinels are matched with errors.Is, then database error text
// is searched for known patterns. If nothing matches, a generic fallback
// message with code ERR000 is returned.
//
// Example:
//
//	msg := MapError(fmt.Errorf("decode: %w", decode.ErrCorruptFile))
//	// msg.Code == "FILE002"
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	for _, k := range errorKinds {
		if errors.Is(err, k.target) {
			return k.msg
		}
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
//
// Example output: "The file could not be read (Code: FILE002). Re-export the price list and upload it again"
//
// This is the primary function for displaying errors to end users.
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing checks if an error matches a known pattern and should be shown to users.
// Returns true if the error matches a specific pattern (not the generic ERR000 fallback).
// Use this to decide whether to show the raw error or the mapped user message.
//
// Example:
//
//	if IsUserFacing(err) {
//	    showToUser(FormatUserError(err))
//	} else {
//	    log.Error(err) // Log technical error
//	    showToUser("An error occurred. Please try again.")
//	}
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	msg := MapError(err)
	return msg.Code != defaultMessage.Code
}

// WrapWithUserMessage wraps a technical error with a user-friendly message.
// The original error is preserved for logging while providing a clean message for users.
type UserError struct {
	Technical error       // Original technical error for logging
	User      UserMessage // User-friendly message for display
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError creates a UserError by mapping a technical error to a user-friendly message.
// The returned UserError preserves the original technical error for logging via Unwrap(),
// while providing a clean user message via Error().
//
// Returns nil if err is nil.
//
// Example:
//
//	ue := NewUserError(dbErr)
//	log.Error(ue.Technical)          // Log original error
//	fmt.Println(ue.Error())           // Show "Dealer not found"
//	fmt.Println(ue.User.Code)         // Show "DLR001"
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
