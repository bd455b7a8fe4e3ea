// Package v380err defines the error-kind taxonomy shared across the
// control, registration, stream, demux and RTSP packages.
package v380err

import "fmt"

// Kind classifies an error so callers can branch on failure class
// without string-matching messages.
type Kind string

const (
	// Transport covers TCP/UDP connect, read and write failures.
	Transport Kind = "transport"
	// Protocol covers framing, magic and status-field mismatches.
	Protocol Kind = "protocol"
	// Login covers a missing v380 block or a non-zero result code.
	Login Kind = "login"
	// Crypto covers key derivation or block-size inconsistencies.
	// Not expected at runtime; a Crypto error is treated as a bug.
	Crypto Kind = "crypto"
	// DemuxDrop is a local, non-fatal event: a fragmented frame was
	// flushed incomplete. Never propagated past the demux package.
	DemuxDrop Kind = "demux_drop"
	// Viewer covers an RTP send to a dead RTSP client; recovered
	// locally by removing the viewer.
	Viewer Kind = "viewer"
	// Cancellation marks a clean shutdown requested by the caller.
	Cancellation Kind = "cancellation"
)

// Error is a typed error carrying a Kind and an operation label,
// wrapping an optional underlying cause.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is(err, v380err.Transport) work by matching on Kind
// when the target is itself a bare *Error with only Kind set.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Op == "" || t.Op == e.Op)
}

func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func Transportf(op string, err error) *Error   { return New(Transport, op, err) }
func Protocolf(op string, err error) *Error    { return New(Protocol, op, err) }
func Loginf(op string, err error) *Error       { return New(Login, op, err) }
func Cryptof(op string, err error) *Error      { return New(Crypto, op, err) }
func DemuxDropf(op string, err error) *Error   { return New(DemuxDrop, op, err) }
func Viewerf(op string, err error) *Error      { return New(Viewer, op, err) }
func Cancellationf(op string) *Error           { return New(Cancellation, op, nil) }

// KindOf extracts the Kind from err if it (or something it wraps) is
// a *Error, returning ok=false otherwise.
func KindOf(err error) (Kind, bool) {
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e.Kind, true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return "", false
}
