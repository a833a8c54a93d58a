package protocol

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
)

// LengthPrefixSize is the width of the frame length prefix in bytes.
const LengthPrefixSize = 4

// MaxFrameSize is the maximum accepted envelope size. Frames declaring
// a larger payload are rejected before any allocation.
const MaxFrameSize = 16 * 1024 * 1024

// ErrConnectionClosed indicates the peer closed the connection. When it
// happens between frames the close is clean; mid-transfer it makes the
// attempt incomplete and eligible for retry.
var ErrConnectionClosed = errors.New("protocol: connection closed")

// ErrInvalidEnvelope marks a frame whose bytes were fully read but
// whose envelope failed schema validation. Unlike framing failures, an
// invalid envelope leaves the stream positioned at the next frame, so
// a receiver may log it and keep reading.
var ErrInvalidEnvelope = errors.New("protocol: invalid envelope")

// FrameError describes a wire frame that could not be read or
// understood.
type FrameError struct {
	Reason string
	Err    error
}

func (e *FrameError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("frame error: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("frame error: %s", e.Reason)
}

func (e *FrameError) Unwrap() error {
	return e.Err
}

// Encode serializes msg into a complete frame: length prefix plus JSON
// envelope.
func Encode(msg *Message) ([]byte, error) {
	if err := msg.validate(); err != nil {
		return nil, &FrameError{Reason: "encode", Err: fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)}
	}

	envelope, err := json.Marshal(msg)
	if err != nil {
		return nil, &FrameError{Reason: "encode envelope", Err: err}
	}

	frame := make([]byte, LengthPrefixSize+len(envelope))
	binary.BigEndian.PutUint32(frame[:LengthPrefixSize], uint32(len(envelope)))
	copy(frame[LengthPrefixSize:], envelope)

	return frame, nil
}

// Write encodes msg and writes the whole frame to w.
func Write(w io.Writer, msg *Message) error {
	frame, err := Encode(msg)
	if err != nil {
		return err
	}

	if _, err := w.Write(frame); err != nil {
		if isClosed(err) {
			return fmt.Errorf("write frame: %w", ErrConnectionClosed)
		}
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// Read blocks until one complete frame is available and returns its
// decoded envelope.
//
// A clean close before any prefix byte yields ErrConnectionClosed. A
// close after a partial prefix or mid-payload yields a *FrameError, as
// does an unparsable prefix. A fully-read frame whose envelope fails
// validation yields a *FrameError wrapping ErrInvalidEnvelope; the
// stream remains usable afterwards.
func Read(r io.Reader) (*Message, error) {
	header := make([]byte, LengthPrefixSize)
	if _, err := io.ReadFull(r, header); err != nil {
		// A clean close surfaces as EOF before the first prefix byte;
		// ErrUnexpectedEOF means a partial prefix and is a frame fault.
		if isClosed(err) {
			return nil, ErrConnectionClosed
		}
		return nil, &FrameError{Reason: "read length prefix", Err: err}
	}

	length := binary.BigEndian.Uint32(header)
	if length == 0 {
		return nil, &FrameError{Reason: "zero-length frame"}
	}
	if length > MaxFrameSize {
		return nil, &FrameError{Reason: fmt.Sprintf("declared frame length %d exceeds maximum %d", length, MaxFrameSize)}
	}

	envelope := make([]byte, length)
	if _, err := io.ReadFull(r, envelope); err != nil {
		return nil, &FrameError{Reason: "stream closed before declared payload was read", Err: err}
	}

	msg, err := decodeEnvelope(envelope)
	if err != nil {
		return nil, &FrameError{Reason: "decode envelope", Err: fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)}
	}

	return msg, nil
}

// decodeEnvelope parses and validates one JSON envelope. Unknown fields
// are rejected so a typo'd or hostile envelope cannot slip through as a
// zero-valued message.
func decodeEnvelope(envelope []byte) (*Message, error) {
	var msg Message
	dec := json.NewDecoder(bytes.NewReader(envelope))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&msg); err != nil {
		return nil, err
	}
	if err := msg.validate(); err != nil {
		return nil, err
	}
	return &msg, nil
}

// isClosed reports whether err stems from operating on a closed or
// reset connection.
func isClosed(err error) bool {
	return errors.Is(err, net.ErrClosed) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ECONNRESET)
}
