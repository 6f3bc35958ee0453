// Package apperr defines the error taxonomy shared across the watchtower
// components. Each kind maps to a stable HTTP status at the gateway edge;
// callers that don't touch HTTP (the ingestion path, the dispute executor)
// use the same kinds to decide what is fatal-to-request versus fatal-to-process.
package apperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindValidation         Kind = "validation"
	KindSignatureInvalid   Kind = "signature_invalid"
	KindPrincipalUnwatched Kind = "principal_not_watched"
	KindPolicy             Kind = "policy"
	KindCoSigner           Kind = "co_signer"
	KindStateStore         Kind = "state_store"
	KindIngest             Kind = "ingest"
)

// Error is a taxonomy-tagged error carrying the HTTP status the gateway
// should answer with and an optional machine-readable reason code.
type Error struct {
	Kind    Kind
	Status  int
	Reason  string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func Validation(msg string) *Error {
	return &Error{Kind: KindValidation, Status: 400, Reason: "invalid-input", Message: msg}
}

func ValidationWrap(msg string, err error) *Error {
	return &Error{Kind: KindValidation, Status: 400, Reason: "invalid-input", Message: msg, Err: err}
}

func SignatureInvalid(reason string) *Error {
	return &Error{Kind: KindSignatureInvalid, Status: 401, Reason: reason, Message: "invalid signature: " + reason}
}

func PrincipalNotWatched(principal string) *Error {
	return &Error{Kind: KindPrincipalUnwatched, Status: 403, Reason: "principal-not-watched", Message: "principal " + principal + " is not watched"}
}

// Policy constructs a policy rejection. status must be 403 or 409 per
// spec.md §7; callers pick based on the specific rule that failed.
func Policy(status int, reason, msg string) *Error {
	return &Error{Kind: KindPolicy, Status: status, Reason: reason, Message: msg}
}

func CoSigner(msg string, err error) *Error {
	return &Error{Kind: KindCoSigner, Status: 503, Reason: "co-signer-unavailable", Message: msg, Err: err}
}

func StateStore(msg string, err error) *Error {
	return &Error{Kind: KindStateStore, Status: 500, Reason: "state-store-error", Message: msg, Err: err}
}

func Ingest(msg string, err error) *Error {
	return &Error{Kind: KindIngest, Status: 400, Reason: "ingest-error", Message: msg, Err: err}
}

// As extracts an *Error from err, if any is in its chain.
func As(err error) (*Error, bool) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}
