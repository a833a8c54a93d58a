// Package protocol implements the wire format for file transfer sessions.
//
// Every message crossing the connection is a frame: a 4-byte big-endian
// length prefix followed by exactly that many bytes of JSON envelope.
// Chunk payloads are hex-encoded inside the envelope so the envelope
// itself stays printable.
//
// Example:
//
//	msg := &protocol.Message{Type: protocol.TypeChunk, Seq: 3}
//	msg.SetPayload(data)
//	if err := protocol.Write(conn, msg); err != nil {
//	    log.Fatal(err)
//	}
package protocol

import (
	"encoding/hex"
	"fmt"
)

// MessageType identifies the kind of envelope inside a frame.
type MessageType string

const (
	// TypeMetadata announces an incoming transfer: file name, size,
	// chunk size, total chunk count and whole-file checksum.
	TypeMetadata MessageType = "metadata"
	// TypeChunk carries one sequence-numbered slice of the file.
	TypeChunk MessageType = "chunk"
	// TypeEOT marks that no further chunks follow in this attempt.
	TypeEOT MessageType = "eot"
	// TypeResult reports the receiver's verification verdict back to
	// the sender.
	TypeResult MessageType = "result"
)

// Message is the envelope carried by every frame. Fields not relevant
// to a given type are left at their zero value and omitted on the wire.
type Message struct {
	Type      MessageType `json:"type"`
	FileName  string      `json:"file_name,omitempty"`
	FileSize  uint64      `json:"size,omitempty"`
	ChunkSize uint32      `json:"chunk_size,omitempty"`
	Total     uint32      `json:"total,omitempty"`
	Checksum  string      `json:"checksum,omitempty"`
	Seq       uint32      `json:"seq"`
	Data      string      `json:"data,omitempty"`
	Success   bool        `json:"success,omitempty"`
	Missing   []uint32    `json:"missing,omitempty"`
	Reason    string      `json:"reason,omitempty"`
}

// SetPayload stores binary chunk data in its hex wire representation.
func (m *Message) SetPayload(data []byte) {
	m.Data = hex.EncodeToString(data)
}

// Payload decodes the hex chunk data back into bytes.
func (m *Message) Payload() ([]byte, error) {
	data, err := hex.DecodeString(m.Data)
	if err != nil {
		return nil, fmt.Errorf("decode chunk payload: %w", err)
	}
	return data, nil
}

// validate rejects envelopes with an unknown discriminant or with
// required fields missing for their type.
func (m *Message) validate() error {
	switch m.Type {
	case TypeMetadata:
		if m.Checksum == "" {
			return fmt.Errorf("metadata message missing checksum")
		}
		if m.ChunkSize == 0 {
			return fmt.Errorf("metadata message missing chunk size")
		}
	case TypeChunk:
		if m.Data == "" {
			return fmt.Errorf("chunk message missing data")
		}
		if _, err := hex.DecodeString(m.Data); err != nil {
			return fmt.Errorf("chunk message data is not valid hex: %w", err)
		}
	case TypeEOT, TypeResult:
		// No required fields beyond the type.
	default:
		return fmt.Errorf("unknown message type %q", m.Type)
	}
	return nil
}
