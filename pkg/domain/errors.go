package domain

import (
	"errors"
	"fmt"
)

// Kind groups error codes by how a caller should react to them.
type Kind string

// Error kinds.
const (
	// KindValidation marks bad input shape or range. Fix the input.
	KindValidation Kind = "validation"
	// KindAuthorization marks a principal that does not hold the required role.
	KindAuthorization Kind = "authorization"
	// KindStateConflict marks input that is valid but conflicts with current state.
	KindStateConflict Kind = "state_conflict"
	// KindArithmetic marks an overflow in value computation.
	KindArithmetic Kind = "arithmetic"
	// KindExternalDependency marks a rejected transfer or unavailable collaborator.
	KindExternalDependency Kind = "external_dependency"
	// KindNotFound marks a missing record.
	KindNotFound Kind = "not_found"
	// KindUnknown is returned for errors that carry no code.
	KindUnknown Kind = "unknown"
)

// Code is a machine-readable error code.
type Code string

const (
	CodeUnknown Code = "UNKNOWN"

	// Validation
	CodeInvalidKey      Code = "INVALID_KEY"
	CodeInvalidSize     Code = "INVALID_SIZE"
	CodeInvalidHash     Code = "INVALID_HASH"
	CodeInvalidURI      Code = "INVALID_URI"
	CodeInvalidPrice    Code = "INVALID_PRICE"
	CodeInvalidScore    Code = "INVALID_SCORE"
	CodeInvalidAmount   Code = "INVALID_AMOUNT"
	CodeInvalidLicense  Code = "INVALID_LICENSE"
	CodeInvalidAccess   Code = "INVALID_ACCESS_TYPE"
	CodeInvalidVerifier Code = "INVALID_VERIFIER_TYPE"
	CodeFeeTooHigh      Code = "FEE_TOO_HIGH"

	// Authorization
	CodeUnauthorized Code = "UNAUTHORIZED"

	// State conflicts
	CodePlatformPaused           Code = "PLATFORM_PAUSED"
	CodeInsufficientVerification Code = "INSUFFICIENT_VERIFICATION"
	CodeSelfPurchaseNotAllowed   Code = "SELF_PURCHASE_NOT_ALLOWED"
	CodeAlreadyPurchased         Code = "ALREADY_PURCHASED"
	CodeInsufficientPayment      Code = "INSUFFICIENT_PAYMENT"
	CodeHasPurchases             Code = "HAS_PURCHASES"
	CodeDuplicateDataset         Code = "DUPLICATE_DATASET"
	CodeMaxOwnersReached         Code = "MAX_OWNERS_REACHED"
	CodeAlreadyInitialized       Code = "ALREADY_INITIALIZED"
	CodeNotInitialized           Code = "NOT_INITIALIZED"
	CodeNotPurchased             Code = "NOT_PURCHASED"
	CodeLicenseExpired           Code = "LICENSE_EXPIRED"
	CodeAccessNotPermitted       Code = "ACCESS_NOT_PERMITTED"

	// Arithmetic
	CodeArithmeticOverflow Code = "ARITHMETIC_OVERFLOW"

	// External dependencies
	CodePaymentRejected           Code = "PAYMENT_REJECTED"
	CodeInvalidPaymentDestination Code = "INVALID_PAYMENT_DESTINATION"
	CodeProofArchiveFailed        Code = "PROOF_ARCHIVE_FAILED"
	CodePersistenceFailed         Code = "PERSISTENCE_FAILED"

	CodeNotFound Code = "NOT_FOUND"
)

var codeKinds = map[Code]Kind{
	CodeInvalidKey:      KindValidation,
	CodeInvalidSize:     KindValidation,
	CodeInvalidHash:     KindValidation,
	CodeInvalidURI:      KindValidation,
	CodeInvalidPrice:    KindValidation,
	CodeInvalidScore:    KindValidation,
	CodeInvalidAmount:   KindValidation,
	CodeInvalidLicense:  KindValidation,
	CodeInvalidAccess:   KindValidation,
	CodeInvalidVerifier: KindValidation,
	CodeFeeTooHigh:      KindValidation,

	CodeUnauthorized: KindAuthorization,

	CodePlatformPaused:           KindStateConflict,
	CodeInsufficientVerification: KindStateConflict,
	CodeSelfPurchaseNotAllowed:   KindStateConflict,
	CodeAlreadyPurchased:         KindStateConflict,
	CodeInsufficientPayment:      KindStateConflict,
	CodeHasPurchases:             KindStateConflict,
	CodeDuplicateDataset:         KindStateConflict,
	CodeMaxOwnersReached:         KindStateConflict,
	CodeAlreadyInitialized:       KindStateConflict,
	CodeNotInitialized:           KindStateConflict,
	CodeNotPurchased:             KindStateConflict,
	CodeLicenseExpired:           KindStateConflict,
	CodeAccessNotPermitted:       KindStateConflict,

	CodeArithmeticOverflow: KindArithmetic,

	CodePaymentRejected:           KindExternalDependency,
	CodeInvalidPaymentDestination: KindExternalDependency,
	CodeProofArchiveFailed:        KindExternalDependency,
	CodePersistenceFailed:         KindExternalDependency,

	CodeNotFound: KindNotFound,
}

// Kind returns the category the code belongs to.
func (c Code) Kind() Kind {
	if kind, ok := codeKinds[c]; ok {
		return kind
	}
	return KindUnknown
}

// Error is the typed failure returned by every marketplace operation.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Code)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// Kind returns the error's category.
func (e *Error) Kind() Kind {
	return e.Code.Kind()
}

// NewError creates an error with a formatted message.
func NewError(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WrapError creates an error that wraps an underlying cause.
func WrapError(code Code, cause error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// Sentinels for errors.Is comparisons. They match any *Error with the same code.
var (
	ErrUnauthorized             = &Error{Code: CodeUnauthorized}
	ErrNotFound                 = &Error{Code: CodeNotFound}
	ErrPlatformPaused           = &Error{Code: CodePlatformPaused}
	ErrInsufficientVerification = &Error{Code: CodeInsufficientVerification}
	ErrAlreadyPurchased         = &Error{Code: CodeAlreadyPurchased}
	ErrHasPurchases             = &Error{Code: CodeHasPurchases}
	ErrArithmeticOverflow       = &Error{Code: CodeArithmeticOverflow}
	ErrPaymentRejected          = &Error{Code: CodePaymentRejected}
	ErrNotPurchased             = &Error{Code: CodeNotPurchased}
)

// CodeOf extracts the code from err, including errors carried by a blocking
// rule violation. CodeUnknown is returned otherwise.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return CodeUnknown
}

// KindOf returns the category of err.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	return CodeOf(err).Kind()
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}
