package session

import (
	"errors"
	"fmt"
)

// ErrorKind classifies why a payload could not be produced
type ErrorKind int

const (
	KindAuthorizationData ErrorKind = iota + 1
	KindInvalidKey
	KindEncoding
	KindSigning
)

func (k ErrorKind) String() string {
	switch k {
	case KindAuthorizationData:
		return "authorization data error"
	case KindInvalidKey:
		return "invalid key error"
	case KindEncoding:
		return "encoding error"
	case KindSigning:
		return "signing error"
	default:
		return "unknown error"
	}
}

// Stages at which payload generation can fail
const (
	StageNonce           = "nonce"
	StageClientContext   = "client_context"
	StageClientKey       = "client_key"
	StageSessionKey      = "session_key"
	StageSessionPk       = "session_pk"
	StagePaymasterData   = "paymaster_data"
	StageDigest          = "digest"
	StageClientSignature = "client_signature"
	StageUserSignature   = "user_signature"
)

// Error carries the kind of failure and the stage that produced it.
// errors.Is(err, ErrSigning) etc. match on kind only.
type Error struct {
	Kind  ErrorKind
	Stage string
	Err   error
}

var (
	ErrAuthorizationData = &Error{Kind: KindAuthorizationData}
	ErrInvalidKey        = &Error{Kind: KindInvalidKey}
	ErrEncoding          = &Error{Kind: KindEncoding}
	ErrSigning           = &Error{Kind: KindSigning}
)

func (e *Error) Error() string {
	switch {
	case e.Stage == "" && e.Err == nil:
		return e.Kind.String()
	case e.Err == nil:
		return fmt.Sprintf("%s at %s", e.Kind, e.Stage)
	case e.Stage == "":
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return fmt.Sprintf("%s at %s: %v", e.Kind, e.Stage, e.Err)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func NewError(kind ErrorKind, stage string, err error) *Error {
	return &Error{Kind: kind, Stage: stage, Err: err}
}

// StageOf returns the failing stage of err, or "" when err is not a session error
func StageOf(err error) string {
	var sessionErr *Error
	if errors.As(err, &sessionErr) {
		return sessionErr.Stage
	}
	return ""
}
