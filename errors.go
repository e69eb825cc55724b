package ccs

import "errors"

var (
	// ErrIncorrectPE is returned by the methods requiring a PE index.
	// A PE index should be in the range 0 <= pe < scale.
	ErrIncorrectPE = errors.New("PE index out of range")
	// ErrIncorrectScale is returned when a job is configured without PEs.
	ErrIncorrectScale = errors.New("job scale must be positive")
	// ErrNetClosed is returned by Send once the transport has shut down.
	ErrNetClosed = errors.New("transport closed")

	// ErrHandlerNameTooLong is returned when registering a name that does not
	// fit the envelope's handler field.
	ErrHandlerNameTooLong = errors.New("handler name exceeds 32 bytes")
	// ErrUnknownHandler is returned when attaching a merge policy to a name
	// with no registered handler.
	ErrUnknownHandler = errors.New("unknown handler name")
	// ErrNoMergeFunc is returned when a reply needs reducing but its handler
	// carries no merge policy.
	ErrNoMergeFunc = errors.New("handler has no merge function")

	// ErrNoPendingRequest is returned by the reply calls when the execution
	// context has no outstanding request, i.e. the reply was already sent.
	ErrNoPendingRequest = errors.New("no pending request: reply already sent")
	// ErrReplyConsumed is returned when a delayed reply is completed twice.
	ErrReplyConsumed = errors.New("delayed reply already sent")

	// ErrLengthMismatch is returned by elementwise merges when the inputs
	// declare different payload lengths.
	ErrLengthMismatch = errors.New("reduction inputs have mismatched lengths")

	// ErrStartupBufferFull is returned when more than StartupBufferSize
	// requests arrive before the router is ready.
	ErrStartupBufferFull = errors.New("startup buffer full")

	// ErrShortMessage is returned when decoding a truncated envelope.
	ErrShortMessage = errors.New("short message")
	// ErrRequestTooLarge is returned when a client frame announces more than
	// MaxRequestSize bytes.
	ErrRequestTooLarge = errors.New("request too large")

	// ErrInterceptorClosed is returned when the interceptor channel closes
	// or times out before yielding a reply.
	ErrInterceptorClosed = errors.New("interceptor channel closed")
	// ErrMalformedInterceptor is returned when the interceptor yields a
	// truncated or negative-length frame.
	ErrMalformedInterceptor = errors.New("malformed interceptor reply")
)

// fatal reports whether err is one of the contract violations that must
// abort the job instead of being logged.
func fatal(err error) bool {
	for _, target := range []error{
		ErrNoMergeFunc,
		ErrLengthMismatch,
		ErrStartupBufferFull,
		ErrShortMessage,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
