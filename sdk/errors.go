package sdk

import (
	"errors"
	"fmt"
)

// ErrRequestFailed marks failures where the request never got an API answer
var ErrRequestFailed = errors.New("request failed")

// Error represents an API error
type Error struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("code: %d, msg: %s", e.Code, e.Msg)
}

// Is matches API errors by code
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// NewError creates a new error
func NewError(code int, msg string) *Error {
	return &Error{Code: code, Msg: msg}
}

// IsSuccess checks if the error code indicates success
func (e *Error) IsSuccess() bool {
	return e.Code == 0
}

// CodeOf returns the API code carried by err, or -1
func CodeOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return -1
}

// Common error codes
const (
	// Success
	CodeSuccess = 0

	// Common errors (1xxx)
	CodeInvalidParam    = 1001
	CodeInternalServer  = 1002
	CodeUnauthorized    = 1003
	CodeForbidden       = 1004
	CodeNotFound        = 1005
	CodeTooManyRequests = 1006
	CodeNoPermission    = 1007

	// Auth errors (2xxx)
	CodeTokenInvalid  = 2001
	CodeTokenExpired  = 2002
	CodeTokenMissing  = 2003
	CodeTokenMismatch = 2004
	CodeLoginFailed   = 2005
	CodeUserNotFound  = 2006
	CodeUserExists    = 2007
	CodePasswordWrong = 2008

	// Message errors (4xxx)
	CodeMessageNotFound    = 4001
	CodeMessageDuplicate   = 4002
	CodeConvNotFound       = 4003
	CodeContentTooLong     = 4004
	CodeSendFailed         = 4005
	CodePullFailed         = 4006
	CodeInvalidParticipant = 4007
	CodeAlreadyRead        = 4008
	CodeResolveFailed      = 4009
	CodeNotParticipant     = 4010

	// Push channel errors (5xxx)
	CodeConnOverLimit   = 5001
	CodeConnClosed      = 5002
	CodeInvalidProtocol = 5003
	CodePushFailed      = 5004
	CodeInvalidTopic    = 5005
	CodeTopicForbidden  = 5006

	// Notification errors (6xxx)
	CodeNotificationFailed = 6001
	CodeMarkAllReadFailed  = 6002
)

// Predefined errors
var (
	ErrInvalidParam    = NewError(CodeInvalidParam, "invalid parameter")
	ErrInternalServer  = NewError(CodeInternalServer, "internal server error")
	ErrUnauthorized    = NewError(CodeUnauthorized, "unauthorized")
	ErrForbidden       = NewError(CodeForbidden, "forbidden")
	ErrNotFound        = NewError(CodeNotFound, "not found")
	ErrTooManyRequests = NewError(CodeTooManyRequests, "too many requests")

	ErrTokenInvalid  = NewError(CodeTokenInvalid, "token invalid")
	ErrTokenExpired  = NewError(CodeTokenExpired, "token expired")
	ErrTokenMissing  = NewError(CodeTokenMissing, "token missing")
	ErrUserNotFound  = NewError(CodeUserNotFound, "user not found")
	ErrUserExists    = NewError(CodeUserExists, "user already exists")
	ErrPasswordWrong = NewError(CodePasswordWrong, "password wrong")

	ErrConvNotFound       = NewError(CodeConvNotFound, "conversation not found")
	ErrMessageNotFound    = NewError(CodeMessageNotFound, "message not found")
	ErrInvalidParticipant = NewError(CodeInvalidParticipant, "invalid conversation participant")
	ErrAlreadyRead        = NewError(CodeAlreadyRead, "messages already marked read")
	ErrNotParticipant     = NewError(CodeNotParticipant, "not a conversation participant")
	ErrTopicForbidden     = NewError(CodeTopicForbidden, "topic subscription forbidden")
)
