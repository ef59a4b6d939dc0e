package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Kind is the stable, machine-readable category of an Error. Clients switch
// on it; messages are free to change.
type Kind string

const (
	KindBadRequest                   Kind = "BadRequest"
	KindUnauthorized                 Kind = "Unauthorized"
	KindForbidden                    Kind = "Forbidden"
	KindNotFound                     Kind = "NotFound"
	KindConflict                     Kind = "Conflict"
	KindTooManyRequests              Kind = "TooManyRequests"
	KindInternal                     Kind = "Internal"
	KindServiceUnavailable           Kind = "ServiceUnavailable"
	KindValidation                   Kind = "Validation"
	KindInvalidToken                 Kind = "InvalidToken"
	KindWarehouseInactiveOrNotFound  Kind = "WarehouseInactiveOrNotFound"
	KindInvalidQuantity              Kind = "InvalidQuantity"
	KindInsufficientStock            Kind = "InsufficientStock"
	KindInsufficientStockForTransfer Kind = "InsufficientStockForTransfer"
	KindDuplicateWarehouseCode       Kind = "DuplicateWarehouseCode"
)

// Error represents an application error
type Error struct {
	Code    int    `json:"-"`
	Kind    Kind   `json:"kind"`
	Message string `json:"error"`
	Err     error  `json:"-"`
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same Kind, so detailed copies made with
// Wrap or WithMessage still satisfy errors.Is against the sentinel.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Wrap returns a copy of e carrying err as its cause.
func (e *Error) Wrap(err error) *Error {
	cp := *e
	cp.Err = err
	return &cp
}

// WithMessage returns a copy of e with a more specific message.
func (e *Error) WithMessage(format string, args ...any) *Error {
	cp := *e
	cp.Message = fmt.Sprintf(format, args...)
	return &cp
}

// JSON returns the error as a JSON string
func (e *Error) JSON() string {
	b, _ := json.Marshal(e)
	return string(b)
}

// New creates a new Error
func New(code int, kind Kind, message string, err error) *Error {
	return &Error{
		Code:    code,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// From returns the *Error in err's chain, or an internal error wrapping err.
func From(err error) *Error {
	var appErr *Error
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return ErrInternalServer.Wrap(err)
}

// KindOf reports the Kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	return From(err).Kind
}

// Common error types
var (
	ErrBadRequest         = New(http.StatusBadRequest, KindBadRequest, "Bad request", nil)
	ErrUnauthorized       = New(http.StatusUnauthorized, KindUnauthorized, "Unauthorized", nil)
	ErrForbidden          = New(http.StatusForbidden, KindForbidden, "Forbidden", nil)
	ErrNotFound           = New(http.StatusNotFound, KindNotFound, "Not found", nil)
	ErrConflict           = New(http.StatusConflict, KindConflict, "Conflict", nil)
	ErrTooManyRequests    = New(http.StatusTooManyRequests, KindTooManyRequests, "Too many requests", nil)
	ErrInternalServer     = New(http.StatusInternalServerError, KindInternal, "Internal server error", nil)
	ErrServiceUnavailable = New(http.StatusServiceUnavailable, KindServiceUnavailable, "Service unavailable", nil)
)

// Validation and auth error types
var (
	ErrValidation   = New(http.StatusBadRequest, KindValidation, "Validation error", nil)
	ErrInvalidToken = New(http.StatusUnauthorized, KindInvalidToken, "Invalid token", nil)
)

// Ledger error types
var (
	ErrWarehouseInactiveOrNotFound  = New(http.StatusUnprocessableEntity, KindWarehouseInactiveOrNotFound, "Warehouse is inactive or does not exist", nil)
	ErrInvalidQuantity              = New(http.StatusBadRequest, KindInvalidQuantity, "Invalid quantity", nil)
	ErrInsufficientStock            = New(http.StatusConflict, KindInsufficientStock, "Insufficient stock", nil)
	ErrInsufficientStockForTransfer = New(http.StatusConflict, KindInsufficientStockForTransfer, "Insufficient stock for transfer", nil)
	ErrDuplicateWarehouseCode       = New(http.StatusConflict, KindDuplicateWarehouseCode, "Warehouse code already exists", nil)
)

// HandleError writes err as a JSON error body.
func HandleError(w http.ResponseWriter, err error) {
	appErr := From(err)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(appErr.Code)
	_, _ = w.Write([]byte(appErr.JSON()))
}

// Respond aborts the gin request with err rendered as {"error", "kind"}.
// Internal errors never leak their cause to the client.
func Respond(c *gin.Context, err error) {
	appErr := From(err)
	if appErr.Code >= http.StatusInternalServerError {
		_ = c.Error(err)
		c.AbortWithStatusJSON(appErr.Code, gin.H{"error": appErr.Message, "kind": appErr.Kind})
		return
	}
	c.AbortWithStatusJSON(appErr.Code, appErr)
}

// ErrorMiddleware renders the last error attached with c.Error when the
// handler did not write a response itself.
func ErrorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		appErr := From(c.Errors.Last().Err)
		c.AbortWithStatusJSON(appErr.Code, gin.H{"error": appErr.Message, "kind": appErr.Kind})
	}
}
