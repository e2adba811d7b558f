// Package fault defines the error taxonomy of the callback pipeline.
//
// Every pipeline failure is a *terrors.Error whose code identifies its Kind, so
// the HTTP layer and the observers can classify an error without string matching.
package fault

import (
	"errors"
	"strings"

	"github.com/monzo/terrors"
)

// Kind is a dotted terrors code.
type Kind string

const (
	// DecryptionFailed covers signature mismatches and undecryptable bodies.
	// Nothing has been keyed yet, so no dedup bookkeeping happens.
	DecryptionFailed Kind = terrors.ErrForbidden + ".decryption_failed"

	// MalformedMessage is returned when the body is not XML, lacks MsgType, or a
	// recognised kind is missing a required field.
	MalformedMessage Kind = terrors.ErrBadRequest + ".malformed_message"

	// HandlerFailure wraps any error or panic from application handling,
	// including replies that cannot be serialized.
	HandlerFailure Kind = terrors.ErrInternalService + ".handler_failure"

	// EncryptionFailed happens after handling; the plaintext reply stays cached.
	EncryptionFailed Kind = terrors.ErrInternalService + ".encryption_failed"
)

// New returns a terror of the given kind.
func New(kind Kind, message string, params map[string]string) *terrors.Error {
	return terrors.New(string(kind), message, params)
}

// Wrap returns a terror of the given kind with cause attached, so errors.Is
// and errors.As still reach the cause. A cause that is already of the
// requested kind is returned unchanged.
func Wrap(cause error, kind Kind, message string, params map[string]string) error {
	if cause == nil {
		return nil
	}
	if Is(cause, kind) {
		return cause
	}
	if sub, ok := strings.CutPrefix(string(kind), terrors.ErrInternalService+"."); ok {
		return terrors.NewInternalWithCause(cause, message, params, sub)
	}
	return &caused{terr: New(kind, message, params), cause: cause}
}

// caused pairs a non-internal terror with its cause. terrors only chains
// causes onto internal_service errors.
type caused struct {
	terr  *terrors.Error
	cause error
}

func (e *caused) Error() string   { return e.terr.Error() + ": " + e.cause.Error() }
func (e *caused) Unwrap() []error { return []error{e.terr, e.cause} }

// Is reports whether the outermost terror in err's chain is of the given
// kind. Causes carried by that terror are not consulted, so a handler failure
// caused by a malformed reply stays a handler failure.
func Is(err error, kind Kind) bool {
	var terr *terrors.Error
	if !errors.As(err, &terr) {
		return false
	}
	return terr.PrefixMatches(string(kind))
}

// KindOf returns the kind of err, or "" when err is not a pipeline fault.
func KindOf(err error) Kind {
	for _, k := range []Kind{DecryptionFailed, MalformedMessage, HandlerFailure, EncryptionFailed} {
		if Is(err, k) {
			return k
		}
	}
	return ""
}

// Param returns a single terror parameter, or "".
func Param(err error, key string) string {
	var terr *terrors.Error
	if !errors.As(err, &terr) {
		return ""
	}
	return terr.Params[key]
}
