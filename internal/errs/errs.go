// Package errs implements the closed error taxonomy described in the
// system's error-handling design: a small set of kinds, each carrying a
// named variant, with a single fixed mapping to an HTTP-style status. No
// lower-level error (os.PathError, json.SyntaxError, ...) is ever exposed
// at the request boundary; it is wrapped and carried as the Cause.
package errs

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the outer classification of a failure.
type Kind string

const (
	KindUnauthorized    Kind = "unauthorized"
	KindConflict        Kind = "conflict"
	KindRedcapExtract   Kind = "redcap_extraction"
	KindIO              Kind = "io_error"
	KindParse           Kind = "parse_error"
	KindSerialize       Kind = "serialize_error"
)

// Variant is the closed set of named failure reasons within a Kind.
type Variant string

const (
	// Unauthorized variants.
	VariantWrongAuthType     Variant = "wrong_auth_type"
	VariantNoSuchToken       Variant = "no_such_token"
	VariantTokenExpired      Variant = "token_expired"
	VariantNoUserWithToken   Variant = "no_user_with_token"
	VariantInsufficientScope Variant = "insufficient_access"

	// Conflict variants.
	VariantPrimaryKey       Variant = "primary_key"
	VariantForeignKey       Variant = "foreign_key"
	VariantWrongTokenKind   Variant = "wrong_token_kind"
	VariantUnexpectedRedcap Variant = "unexpected_redcap_data"

	// RedcapExtraction variants.
	VariantUnexpectedJSONValue Variant = "unexpected_json_value"
	VariantFieldNotFound       Variant = "field_not_found"
)

// Error is the single envelope type that crosses the request boundary.
// detail is safe to return verbatim to a caller.
type Error struct {
	Kind    Kind
	Variant Variant
	Detail  string
	Cause   error
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return e.Detail
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Variant)
}

func (e *Error) Unwrap() error { return e.Cause }

// Status maps the error's Kind to its fixed HTTP-style status code.
// Token-related confusion (NoSuchToken vs NoUserWithToken) intentionally
// shares both the same Kind and the same wording policy upstream; this
// function does not special-case it further because the two variants
// already collapse to the same 401.
func (e *Error) Status() int {
	switch e.Kind {
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindConflict:
		return http.StatusConflict
	case KindRedcapExtract:
		return http.StatusInternalServerError
	case KindIO, KindParse, KindSerialize:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func new_(kind Kind, variant Variant, detail string, cause error) *Error {
	return &Error{Kind: kind, Variant: variant, Detail: detail, Cause: cause}
}

func Unauthorized(variant Variant, detail string) *Error {
	return new_(KindUnauthorized, variant, detail, nil)
}

func Conflict(variant Variant, detail string) *Error {
	return new_(KindConflict, variant, detail, nil)
}

func Redcap(variant Variant, detail string) *Error {
	return new_(KindRedcapExtract, variant, detail, nil)
}

func IO(op string, cause error) *Error {
	return new_(KindIO, "", fmt.Sprintf("%s: %v", op, cause), cause)
}

func Parse(op string, cause error) *Error {
	return new_(KindParse, "", fmt.Sprintf("%s: %v", op, cause), cause)
}

func Serialize(op string, cause error) *Error {
	return new_(KindSerialize, "", fmt.Sprintf("%s: %v", op, cause), cause)
}

// UnexpectedJSONValue builds the RedcapExtraction(UnexpectedJsonValue) variant.
func UnexpectedJSONValue(field, expected string, got any) *Error {
	return Redcap(VariantUnexpectedJSONValue,
		fmt.Sprintf("field %q: expected %s, got %#v", field, expected, got))
}

// FieldNotFound builds the RedcapExtraction(FieldNotFound) variant.
func FieldNotFound(field string) *Error {
	return Redcap(VariantFieldNotFound, fmt.Sprintf("field %q not found", field))
}

// As is a thin re-export of errors.As for call sites that only import errs.
func As(err error, target **Error) bool {
	return errors.As(err, target)
}

// Is reports whether err is an *Error with the given kind and variant.
func Is(err error, kind Kind, variant Variant) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind && (variant == "" || e.Variant == variant)
}
