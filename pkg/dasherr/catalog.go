package dasherr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// Code defines a canonical error code used across tools and HTTP responses.
type Code string

const (
	// Validation & Input
	Validation     Code = "VALIDATION"
	InvalidSession Code = "INVALID_SESSION"
	InvalidSheet   Code = "INVALID_SHEET"
	InvalidColumn  Code = "INVALID_COLUMN"
	CursorInvalid  Code = "CURSOR_INVALID"
	EditRejected   Code = "EDIT_REJECTED"
	EditDisabled   Code = "EDITING_DISABLED"

	// Resource & Limits
	BusyResource  Code = "BUSY_RESOURCE"
	Timeout       Code = "TIMEOUT"
	FileTooLarge  Code = "FILE_TOO_LARGE"
	LimitExceeded Code = "LIMIT_EXCEEDED"

	// IO & Formats
	NotFound            Code = "NOT_FOUND"
	ParseFailed         Code = "PARSE_FAILED"
	SerializationFailed Code = "SERIALIZATION_FAILED"
	UnsupportedFormat   Code = "UNSUPPORTED_FORMAT"
	PermissionDenied    Code = "PERMISSION_DENIED"

	Internal Code = "INTERNAL"
)

// Entry documents a code's standard message, retry semantics, and next steps.
type Entry struct {
	Code       Code
	Message    string
	Retryable  bool
	HTTPStatus int
	NextSteps  []string
}

var catalog = map[Code]Entry{
	Validation:     {Code: Validation, Message: "invalid inputs", Retryable: true, HTTPStatus: http.StatusBadRequest, NextSteps: []string{"Correct the inputs per schema and retry"}},
	InvalidSession: {Code: InvalidSession, Message: "session not found or expired", Retryable: true, HTTPStatus: http.StatusNotFound, NextSteps: []string{"Call open_workbook to start a new session"}},
	InvalidSheet:   {Code: InvalidSheet, Message: "sheet not found", Retryable: true, HTTPStatus: http.StatusNotFound, NextSteps: []string{"Use a sheet name listed by open_workbook", "Check case and spacing"}},
	InvalidColumn:  {Code: InvalidColumn, Message: "column not found or of the wrong type", Retryable: true, HTTPStatus: http.StatusBadRequest, NextSteps: []string{"Call render_view to list columns and their types"}},
	CursorInvalid:  {Code: CursorInvalid, Message: "cursor is invalid for current view", Retryable: true, HTTPStatus: http.StatusBadRequest, NextSteps: []string{"Restart paging from the first page"}},
	EditRejected:   {Code: EditRejected, Message: "edit rejected", Retryable: true, HTTPStatus: http.StatusUnprocessableEntity, NextSteps: []string{"Check row index and column name against the current view"}},
	EditDisabled:   {Code: EditDisabled, Message: "editing is disabled for this session", Retryable: true, HTTPStatus: http.StatusConflict, NextSteps: []string{"Enable editing via edit_rows with enabled=true"}},

	BusyResource:  {Code: BusyResource, Message: "concurrent request limit reached", Retryable: true, HTTPStatus: http.StatusServiceUnavailable, NextSteps: []string{"Retry after a short delay"}},
	Timeout:       {Code: Timeout, Message: "operation exceeded configured time limit", Retryable: true, HTTPStatus: http.StatusGatewayTimeout, NextSteps: []string{"Retry with a smaller workbook or page"}},
	FileTooLarge:  {Code: FileTooLarge, Message: "upload exceeds configured size", Retryable: false, HTTPStatus: http.StatusRequestEntityTooLarge, NextSteps: []string{"Use a smaller workbook or increase the limit"}},
	LimitExceeded: {Code: LimitExceeded, Message: "operation exceeded configured limits", Retryable: true, HTTPStatus: http.StatusBadRequest, NextSteps: []string{"Lower the page size"}},

	NotFound:            {Code: NotFound, Message: "no spreadsheet source available", Retryable: false, HTTPStatus: http.StatusNotFound, NextSteps: []string{"Upload a .xlsx file or place one in the data directory"}},
	ParseFailed:         {Code: ParseFailed, Message: "failed to read spreadsheet", Retryable: false, HTTPStatus: http.StatusUnprocessableEntity, NextSteps: []string{"Open in Excel and re-save as .xlsx", "Provide a clean copy"}},
	SerializationFailed: {Code: SerializationFailed, Message: "a value cannot be written to the export format", Retryable: true, HTTPStatus: http.StatusUnprocessableEntity, NextSteps: []string{"Correct the offending cell and export again"}},
	UnsupportedFormat:   {Code: UnsupportedFormat, Message: "unsupported workbook format", Retryable: false, HTTPStatus: http.StatusUnsupportedMediaType, NextSteps: []string{"Convert to .xlsx and retry"}},
	PermissionDenied:    {Code: PermissionDenied, Message: "path is outside the allowed directories", Retryable: false, HTTPStatus: http.StatusForbidden, NextSteps: []string{"Choose a file inside an allowed directory"}},

	Internal: {Code: Internal, Message: "internal error", Retryable: true, HTTPStatus: http.StatusInternalServerError},
}

// Lookup returns the catalog entry for a code.
func Lookup(code Code) (Entry, bool) {
	e, ok := catalog[code]
	return e, ok
}

// Classifier maps package-specific errors (e.g. security denials) onto codes.
// It returns false when it does not recognise err.
type Classifier func(err error) (Code, bool)

var classifiers []Classifier

// RegisterClassifier adds a classifier consulted by CodeOf before the defaults.
// Call it during init only.
func RegisterClassifier(c Classifier) {
	classifiers = append(classifiers, c)
}

// CodeOf classifies err into a canonical code.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	for _, c := range classifiers {
		if code, ok := c(err); ok {
			return code
		}
	}
	var (
		nf *NotFoundError
		pe *ParseError
		se *SerializationError
	)
	switch {
	case errors.As(err, &nf):
		return NotFound
	case errors.As(err, &pe):
		return ParseFailed
	case errors.As(err, &se):
		return SerializationFailed
	case errors.Is(err, ErrSessionNotFound):
		return InvalidSession
	case errors.Is(err, ErrUnknownSheet):
		return InvalidSheet
	case errors.Is(err, ErrUnknownColumn), errors.Is(err, ErrNotNumeric), errors.Is(err, ErrNotDate):
		return InvalidColumn
	case errors.Is(err, ErrEditingDisabled):
		return EditDisabled
	case errors.Is(err, ErrInvalidEdit):
		return EditRejected
	case errors.Is(err, ErrUploadTooLarge):
		return FileTooLarge
	case errors.Is(err, ErrCursorInvalid):
		return CursorInvalid
	case errors.Is(err, context.DeadlineExceeded):
		return Timeout
	}
	return Internal
}

// normalize builds a standard error string including next steps for MCP clients that
// surface only a message string. Format: "CODE: message" followed by a guidance tail.
func normalize(code Code, msg string) string {
	base := strings.TrimSpace(msg)
	e, ok := catalog[code]
	if !ok {
		if base == "" {
			return string(code)
		}
		return fmt.Sprintf("%s: %s", string(code), base)
	}
	if base == "" {
		base = e.Message
	}
	guidance := ""
	if len(e.NextSteps) > 0 {
		guidance = " | nextSteps: " + strings.Join(e.NextSteps, "; ")
	}
	return fmt.Sprintf("%s: %s%s", e.Code, base, guidance)
}

// FromText parses a "CODE: message" string, enriches it with catalog guidance,
// and returns an MCP tool error result.
func FromText(text string) *mcp.CallToolResult {
	t := strings.TrimSpace(text)
	if t == "" {
		return mcp.NewToolResultError(normalize(Validation, ""))
	}
	parts := strings.SplitN(t, ":", 2)
	code := Code(strings.TrimSpace(parts[0]))
	msg := ""
	if len(parts) > 1 {
		msg = strings.TrimSpace(parts[1])
	}
	return mcp.NewToolResultError(normalize(code, msg))
}

// New returns an MCP error result for a given code and optional message override.
func New(code Code, message string) *mcp.CallToolResult {
	return mcp.NewToolResultError(normalize(code, message))
}

// Wrapf formats details and returns an MCP error result for the code.
func Wrapf(code Code, format string, args ...any) *mcp.CallToolResult {
	return mcp.NewToolResultError(normalize(code, fmt.Sprintf(format, args...)))
}

// FromError classifies err and returns an MCP error result carrying its message.
func FromError(err error) *mcp.CallToolResult {
	return New(CodeOf(err), err.Error())
}

// HTTPStatus returns the HTTP status associated with a code.
func HTTPStatus(code Code) int {
	if e, ok := catalog[code]; ok && e.HTTPStatus != 0 {
		return e.HTTPStatus
	}
	return http.StatusInternalServerError
}

// Body is the JSON error payload returned by the HTTP API.
type Body struct {
	Code      Code     `json:"code"`
	Message   string   `json:"message"`
	Retryable bool     `json:"retryable"`
	NextSteps []string `json:"next_steps,omitempty"`
}

// NewBody builds the HTTP error payload for a code. An empty message uses the
// catalog's standard message.
func NewBody(code Code, message string) Body {
	e, ok := catalog[code]
	if !ok {
		e = catalog[Internal]
	}
	if strings.TrimSpace(message) == "" {
		message = e.Message
	}
	return Body{Code: code, Message: message, Retryable: e.Retryable, NextSteps: e.NextSteps}
}

// BodyFromError classifies err and builds its HTTP error payload.
func BodyFromError(err error) Body {
	return NewBody(CodeOf(err), err.Error())
}
