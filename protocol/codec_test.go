package protocol

import (
	"bytes"
	"encoding/binary"
	"net"
	"os"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	chunkMsg := &Message{Type: TypeChunk, Seq: 7}
	chunkMsg.SetPayload([]byte{0x00, 0x01, 0xff, 0xfe})

	tests := []struct {
		name string
		msg  *Message
	}{
		{
			name: "metadata",
			msg: &Message{
				Type:      TypeMetadata,
				FileName:  "report.bin",
				FileSize:  10240,
				ChunkSize: 1024,
				Total:     10,
				Checksum:  "deadbeef",
			},
		},
		{name: "chunk", msg: chunkMsg},
		{name: "eot", msg: &Message{Type: TypeEOT}},
		{
			name: "result success",
			msg:  &Message{Type: TypeResult, Success: true, Checksum: "deadbeef"},
		},
		{
			name: "result incomplete",
			msg: &Message{
				Type:    TypeResult,
				Missing: []uint32{3, 7},
				Reason:  "incomplete transfer",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := Encode(tt.msg)
			require.NoError(t, err)

			decoded, err := Read(bytes.NewReader(frame))
			require.NoError(t, err)
			assert.Equal(t, tt.msg, decoded)
		})
	}
}

func TestRoundTripBinaryPayload(t *testing.T) {
	// Every byte value must survive the printable envelope.
	payload := make([]byte, 256)
	for i := range payload {
		payload[i] = byte(i)
	}

	msg := &Message{Type: TypeChunk, Seq: 0}
	msg.SetPayload(payload)

	frame, err := Encode(msg)
	require.NoError(t, err)

	decoded, err := Read(bytes.NewReader(frame))
	require.NoError(t, err)

	got, err := decoded.Payload()
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestReadCleanClose(t *testing.T) {
	_, err := Read(bytes.NewReader(nil))
	assert.ErrorIs(t, err, ErrConnectionClosed)
}

// brokenPipeWriter fails the way the kernel reports a write to a peer
// that already reset the connection.
type brokenPipeWriter struct{}

func (brokenPipeWriter) Write(p []byte) (int, error) {
	return 0, &net.OpError{Op: "write", Net: "tcp", Err: os.NewSyscallError("write", syscall.EPIPE)}
}

func TestWriteBrokenPipe(t *testing.T) {
	err := Write(brokenPipeWriter{}, &Message{Type: TypeEOT})
	assert.ErrorIs(t, err, ErrConnectionClosed)
}

type resetReader struct{}

func (resetReader) Read(p []byte) (int, error) {
	return 0, &net.OpError{Op: "read", Net: "tcp", Err: os.NewSyscallError("read", syscall.ECONNRESET)}
}

func TestReadConnectionReset(t *testing.T) {
	_, err := Read(resetReader{})
	assert.ErrorIs(t, err, ErrConnectionClosed)
}

func TestReadTruncatedPrefix(t *testing.T) {
	_, err := Read(bytes.NewReader([]byte{0x00, 0x01}))

	var frameErr *FrameError
	require.ErrorAs(t, err, &frameErr)
}

func TestReadTruncatedPayload(t *testing.T) {
	frame, err := Encode(&Message{Type: TypeEOT})
	require.NoError(t, err)

	_, err = Read(bytes.NewReader(frame[:len(frame)-3]))

	var frameErr *FrameError
	require.ErrorAs(t, err, &frameErr)
	assert.NotErrorIs(t, err, ErrInvalidEnvelope)
}

func TestReadZeroLengthFrame(t *testing.T) {
	_, err := Read(bytes.NewReader([]byte{0, 0, 0, 0}))

	var frameErr *FrameError
	require.ErrorAs(t, err, &frameErr)
}

func TestReadOversizedFrame(t *testing.T) {
	header := make([]byte, LengthPrefixSize)
	binary.BigEndian.PutUint32(header, MaxFrameSize+1)

	_, err := Read(bytes.NewReader(header))

	var frameErr *FrameError
	require.ErrorAs(t, err, &frameErr)
}

func TestReadInvalidEnvelope(t *testing.T) {
	tests := []struct {
		name     string
		envelope string
	}{
		{name: "not json", envelope: "garbage"},
		{name: "unknown type", envelope: `{"type":"bogus","seq":0}`},
		{name: "unknown field", envelope: `{"type":"eot","seq":0,"extra":1}`},
		{name: "chunk without data", envelope: `{"type":"chunk","seq":3}`},
		{name: "chunk with non-hex data", envelope: `{"type":"chunk","seq":3,"data":"zz"}`},
		{name: "metadata without checksum", envelope: `{"type":"metadata","seq":0,"chunk_size":1024}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame := make([]byte, LengthPrefixSize+len(tt.envelope))
			binary.BigEndian.PutUint32(frame[:LengthPrefixSize], uint32(len(tt.envelope)))
			copy(frame[LengthPrefixSize:], tt.envelope)

			_, err := Read(bytes.NewReader(frame))

			var frameErr *FrameError
			require.ErrorAs(t, err, &frameErr)
			assert.ErrorIs(t, err, ErrInvalidEnvelope)
		})
	}
}

func TestReadInvalidEnvelopeLeavesStreamUsable(t *testing.T) {
	bad := `{"type":"bogus","seq":0}`
	var stream bytes.Buffer
	binary.Write(&stream, binary.BigEndian, uint32(len(bad)))
	stream.WriteString(bad)

	good, err := Encode(&Message{Type: TypeEOT})
	require.NoError(t, err)
	stream.Write(good)

	_, err = Read(&stream)
	assert.ErrorIs(t, err, ErrInvalidEnvelope)

	msg, err := Read(&stream)
	require.NoError(t, err)
	assert.Equal(t, TypeEOT, msg.Type)
}

func TestEncodeRejectsInvalidMessage(t *testing.T) {
	_, err := Encode(&Message{Type: "bogus"})
	assert.ErrorIs(t, err, ErrInvalidEnvelope)
}
