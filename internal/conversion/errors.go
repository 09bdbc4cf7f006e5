package conversion

// errors.go defines the package's sentinel errors and maps technical errors
// to user-facing messages with support codes.
//
// Error codes are grouped by category: CFG (configuration), ADM (admission
// policy), JOB (job lookup and lifecycle), RUN (execution failures). Patterns
// are matched case-insensitively with strings.Contains; the first match wins,
// so specific patterns come before general ones.

import (
	"errors"
	"fmt"
	"strings"
)

// Validation and lookup errors. Surfaced immediately; the pipeline is never
// invoked.
var (
	ErrConfigurationNotFound = errors.New("configuration not found")
	ErrJobNotFound           = errors.New("job not found")
	ErrNoFile                = errors.New("no file provided")
)

// Admission errors. Rejected before a job is created; no partial state is
// left behind.
var (
	ErrTooManyConversions = errors.New("too many concurrent conversions, please try again later")
	ErrQuotaExceeded      = errors.New("monthly conversion quota exceeded")
	ErrFileTooLarge       = errors.New("file too large for plan")
)

// Execution-environment errors.
var (
	ErrQueueUnavailable = errors.New("conversion queue unavailable")
	ErrArtifactExpired  = errors.New("download link expired")
)

// UserMessage provides user-friendly error information with actionable
// guidance and a code for support reference.
type UserMessage struct {
	Message string
	Action  string
	Code    string
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

var errorPatterns = []errorPattern{
	{
		pattern: "configuration not found",
		msg: UserMessage{
			Message: "The transformation configuration does not exist or is inactive",
			Action:  "Verify the configuration id and that it belongs to your organization",
			Code:    "CFG001",
		},
	},
	{
		pattern: "invalid configuration",
		msg: UserMessage{
			Message: "The configuration document failed validation",
			Action:  "Fix the reported problems and import again",
			Code:    "CFG002",
		},
	},
	{
		pattern: "too many concurrent conversions",
		msg: UserMessage{
			Message: "Your organization has too many conversions running",
			Action:  "Wait for a running conversion to finish and try again",
			Code:    "ADM001",
		},
	},
	{
		pattern: "quota exceeded",
		msg: UserMessage{
			Message: "Your monthly conversion quota is used up",
			Action:  "Upgrade your plan or wait for the next billing period",
			Code:    "ADM002",
		},
	},
	{
		pattern: "file too large",
		msg: UserMessage{
			Message: "The file exceeds your plan's size limit",
			Action:  "Split the workbook into smaller files",
			Code:    "ADM003",
		},
	},
	{
		pattern: "no file provided",
		msg: UserMessage{
			Message: "No file was attached to the request",
			Action:  "Attach a workbook file and try again",
			Code:    "ADM004",
		},
	},
	{
		pattern: "job not found",
		msg: UserMessage{
			Message: "The conversion job does not exist",
			Action:  "Verify the job id and that it belongs to your organization",
			Code:    "JOB001",
		},
	},
	{
		pattern: "download link expired",
		msg: UserMessage{
			Message: "This download link is no longer valid",
			Action:  "Re-run the conversion to get a fresh link",
			Code:    "JOB002",
		},
	},
	{
		pattern: "transformation aborted",
		msg: UserMessage{
			Message: "The transformation stopped because column validation failed",
			Action:  "Check the execution log warnings and adjust the configuration or file",
			Code:    "RUN001",
		},
	},
	{
		pattern: "open workbook",
		msg: UserMessage{
			Message: "The file could not be read as a workbook",
			Action:  "Upload a valid .xlsx or .xlsm file",
			Code:    "RUN002",
		},
	},
	{
		pattern: "queue unavailable",
		msg: UserMessage{
			Message: "The conversion could not be queued",
			Action:  "Please try again in a few moments",
			Code:    "RUN003",
		},
	},
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "The request was cancelled",
			Action:  "Please try again",
			Code:    "RUN004",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "The request timed out",
			Action:  "Try a smaller file or check your connection",
			Code:    "RUN005",
		},
	},
}

var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError maps a technical error to a user-friendly message.
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

// FormatUserError creates a display string: "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}
