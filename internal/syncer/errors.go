package syncer

import (
	"errors"
	"fmt"

	"github.com/roach88/ledgersync/internal/ledger"
)

// RemoteErrorCode categorizes failed submissions.
type RemoteErrorCode string

const (
	// ErrCodeRejected indicates the remote answered with a non-2xx status.
	ErrCodeRejected RemoteErrorCode = "REMOTE_REJECTED"

	// ErrCodeTransport indicates no reply was received.
	ErrCodeTransport RemoteErrorCode = "TRANSPORT_FAILED"

	// ErrCodeBadResponse indicates a 2xx reply that could not be parsed.
	// The remote may have created documents that were not written back.
	ErrCodeBadResponse RemoteErrorCode = "BAD_RESPONSE"
)

// maxBodyInError bounds how much of a remote body ends up in error strings.
const maxBodyInError = 512

// RemoteError reports a batch the remote did not (verifiably) accept. No
// local record was modified.
type RemoteError struct {
	Code       RemoteErrorCode
	Kind       ledger.Kind
	StatusCode int
	Body       []byte
	Err        error
}

func (e *RemoteError) Error() string {
	switch e.Code {
	case ErrCodeRejected:
		body := string(e.Body)
		if len(body) > maxBodyInError {
			body = body[:maxBodyInError] + "..."
		}
		return fmt.Sprintf("%s: %s batch rejected with status %d: %s", e.Code, e.Kind, e.StatusCode, body)
	default:
		return fmt.Sprintf("%s: %s batch: %v", e.Code, e.Kind, e.Err)
	}
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

// IsRemoteError returns true for any failed submission.
// Uses errors.As to handle wrapped and joined errors.
func IsRemoteError(err error) bool {
	var re *RemoteError
	return errors.As(err, &re)
}

// IsRejected returns true if the remote answered with a non-2xx status.
func IsRejected(err error) bool {
	var re *RemoteError
	if errors.As(err, &re) {
		return re.Code == ErrCodeRejected
	}
	return false
}
