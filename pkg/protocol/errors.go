// ABOUTME: Protocol error taxonomy for frame and control decoding
// ABOUTME: Errors carry the offending channel and unwrap to a sentinel kind
package protocol

import (
	"errors"
	"fmt"
)

var (
	// ErrTruncated means the payload length disagrees with its header or declared element count
	ErrTruncated = errors.New("truncated frame")
	// ErrMalformed means the payload could not be interpreted (bad JSON, wrong field types)
	ErrMalformed = errors.New("malformed message")
	// ErrUnknownType means a control message carried an unrecognized type tag
	ErrUnknownType = errors.New("unknown message type")
	// ErrUnsupportedChannel means binary frames are not defined for the channel
	ErrUnsupportedChannel = errors.New("unsupported channel")
)

// Error describes a single undecodable message. The connection that carried it stays open.
type Error struct {
	Kind    error
	Channel ChannelKind
	Detail  string
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s: %v", e.Channel, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %s", e.Channel, e.Kind, e.Detail)
}

func (e *Error) Unwrap() error {
	return e.Kind
}

func newError(kind error, ch ChannelKind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Channel: ch, Detail: fmt.Sprintf(format, args...)}
}
