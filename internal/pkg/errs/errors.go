package errs

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrInvalidParams        = New(BizCodeInvalidParams, http.StatusBadRequest, "invalid params", nil)
	ErrInvalidConfiguration = New(BizCodeInvalidConfiguration, http.StatusBadRequest, "invalid configuration", nil)

	ErrVersionCheckFailed  = New(BizCodeVersionCheckFailed, http.StatusBadGateway, "version check failed", nil)
	ErrManifestFetchFailed = New(BizCodeManifestFetchFailed, http.StatusBadGateway, "manifest fetch failed", nil)

	ErrDownloadFailed     = New(BizCodeDownloadFailed, http.StatusBadGateway, "download failed", nil)
	ErrNoUpdateAvailable  = New(BizCodeNoUpdateAvailable, http.StatusOK, "no update available", nil)
	ErrAlreadyDownloading = New(BizCodeAlreadyDownloading, http.StatusConflict, "download already in progress", nil)
	ErrCancelled          = New(BizCodeCancelled, http.StatusOK, "download cancelled", nil)

	ErrApplyFailed    = New(BizCodeApplyFailed, http.StatusConflict, "apply failed", nil)
	ErrRollbackFailed = New(BizCodeRollbackFailed, http.StatusConflict, "rollback failed", nil)
)

type Error struct {
	bizCode  int
	httpCode int
	message  string
	details  any
	internal error
}

func New(bizCode, httpCode int, message string, internal error) *Error {
	return &Error{
		bizCode:  bizCode,
		httpCode: httpCode,
		message:  message,
		internal: internal,
	}
}

func (e *Error) Error() string {

	if e.internal != nil {
		return fmt.Sprintf("%s: %v", e.message, e.internal)
	}

	return e.message
}

func (e *Error) Is(target error) bool {
	var t *Error
	ok := errors.As(target, &t)
	return ok && e.bizCode == t.BizCode()
}

func (e *Error) Unwrap() error {
	return e.internal
}

func (e *Error) BizCode() int {
	return e.bizCode
}

func (e *Error) HTTPCode() int {
	return e.httpCode
}

func (e *Error) Message() string {
	return e.message
}

func (e *Error) Details() any {
	return e.details
}

func (e *Error) Wrap(err error) *Error {
	return &Error{
		bizCode:  e.bizCode,
		httpCode: e.httpCode,
		message:  e.message,
		details:  e.details,
		internal: err,
	}
}

// WithDetail attaches a human readable detail string as the internal cause.
func (e *Error) WithDetail(detail string) *Error {
	return e.Wrap(errors.New(detail))
}

func (e *Error) WithDetails(details any) *Error {
	return &Error{
		bizCode:  e.bizCode,
		httpCode: e.httpCode,
		message:  e.message,
		details:  details,
		internal: e.internal,
	}
}
