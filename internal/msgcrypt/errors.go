package msgcrypt

import (
	"errors"
	"fmt"
)

// ErrorCode is the platform's numeric result code for callback crypto.
type ErrorCode int

const (
	OK                     ErrorCode = 0
	ValidateSignatureError ErrorCode = -40001
	ParseXMLError          ErrorCode = -40002
	ComputeSignatureError  ErrorCode = -40003
	IllegalAESKey          ErrorCode = -40004
	ValidateAppIDError     ErrorCode = -40005
	EncryptAESError        ErrorCode = -40006
	DecryptAESError        ErrorCode = -40007
	IllegalBuffer          ErrorCode = -40008
	EncodeBase64Error      ErrorCode = -40009
	DecodeBase64Error      ErrorCode = -40010
	GenReturnXMLError      ErrorCode = -40011
)

var codeNames = map[ErrorCode]string{
	OK:                     "ok",
	ValidateSignatureError: "validate signature",
	ParseXMLError:          "parse xml",
	ComputeSignatureError:  "compute signature",
	IllegalAESKey:          "illegal aes key",
	ValidateAppIDError:     "validate app id",
	EncryptAESError:        "encrypt aes",
	DecryptAESError:        "decrypt aes",
	IllegalBuffer:          "illegal buffer",
	EncodeBase64Error:      "encode base64",
	DecodeBase64Error:      "decode base64",
	GenReturnXMLError:      "generate reply xml",
}

func (c ErrorCode) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("code %d", int(c))
}

// Error is a failed crypto operation.
type Error struct {
	Code ErrorCode
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("msgcrypt %d: %s", int(e.Code), e.Code)
	}
	return fmt.Sprintf("msgcrypt %d: %s: %v", int(e.Code), e.Code, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(code ErrorCode, err error) *Error {
	return &Error{Code: code, Err: err}
}

// CodeOf returns the ErrorCode carried by err: OK for nil, and
// DecryptAESError for errors that did not come from this package.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return OK
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return DecryptAESError
}
