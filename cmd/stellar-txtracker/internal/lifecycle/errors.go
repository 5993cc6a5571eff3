package lifecycle

import (
	"errors"
	"fmt"
)

// FailureKind discriminates the ways a wallet can fail to broadcast a request.
type FailureKind int

const (
	// KindUnknown is the zero value so that unrecognised kinds classify as unknown.
	KindUnknown FailureKind = iota
	UserDenied
	CreateTxFailed
	TxFailed
	Timeout
	UnspecifiedError
)

func (k FailureKind) String() string {
	switch k {
	case UserDenied:
		return "user_denied"
	case CreateTxFailed:
		return "create_tx_failed"
	case TxFailed:
		return "tx_failed"
	case Timeout:
		return "timeout"
	case UnspecifiedError:
		return "unspecified_error"
	default:
		return "unknown"
	}
}

// BroadcastError is the typed failure returned by a Wallet.
type BroadcastError struct {
	Kind   FailureKind
	Detail string
	Err    error
}

func NewBroadcastError(kind FailureKind, err error) *BroadcastError {
	detail := ""
	if err != nil {
		detail = err.Error()
	}
	return &BroadcastError{Kind: kind, Detail: detail, Err: err}
}

func (e *BroadcastError) Error() string {
	if e.Detail == "" {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *BroadcastError) Unwrap() error {
	return e.Err
}

// Classify converts a broadcast failure into the message reported through OnError.
func Classify(err error) string {
	var berr *BroadcastError
	if !errors.As(err, &berr) {
		return "Unknown Error: " + fmt.Sprint(err)
	}
	switch berr.Kind {
	case UserDenied:
		return "User Denied"
	case CreateTxFailed:
		return "Create Tx Failed: " + berr.Detail
	case TxFailed:
		return "Tx Failed: " + berr.Detail
	case Timeout:
		return "Timeout"
	case UnspecifiedError:
		return "Unspecified Error: " + berr.Detail
	default:
		if berr.Detail == "" {
			return "Unknown Error: " + berr.Error()
		}
		return "Unknown Error: " + berr.Detail
	}
}

// failureLabel is the metrics label for a broadcast failure.
func failureLabel(err error) string {
	var berr *BroadcastError
	if errors.As(err, &berr) {
		return berr.Kind.String()
	}
	return KindUnknown.String()
}
