// Package session implements one transmission attempt of the chunked
// transfer protocol: a Sender streams metadata, chunks and an
// end-of-transmission marker; a Receiver collects the chunks, verifies
// the reassembled buffer and reports a result frame back.
//
// A session never retries itself. Every failure resolves to an error
// returned to the caller; restarting is the retry controller's job.
package session

import (
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/filewire/chunker"
	"github.com/opd-ai/filewire/protocol"
)

// ErrSessionConsumed indicates a session object was reused. Each
// attempt needs a fresh Sender or Receiver.
var ErrSessionConsumed = errors.New("session: already run, create a new session per attempt")

// Injector intercepts an outbound chunk stream before transmission.
// Implementations may drop, corrupt or reorder chunks.
type Injector interface {
	Apply([]chunker.Chunk) []chunker.Chunk
}

// Sender drives the outbound half of one transfer attempt.
type Sender struct {
	conn     io.ReadWriter
	injector Injector
	id       uuid.UUID
	state    State
}

// NewSender creates a sender for one attempt over conn. injector may be
// nil for a faithful stream.
func NewSender(conn io.ReadWriter, injector Injector) *Sender {
	return &Sender{
		conn:     conn,
		injector: injector,
		id:       uuid.New(),
		state:    StateInit,
	}
}

// State returns the sender's current lifecycle state.
func (s *Sender) State() State {
	return s.state
}

// Run performs one complete attempt: metadata frame, chunk stream
// (through the injector when one is configured), end-of-transmission
// frame, then the receiver's result frame.
//
// A nil return means the receiver verified the reconstructed buffer
// against the declared checksum. Failures reported by the receiver come
// back as *IncompleteTransferError or *ChecksumMismatchError; transport
// failures surface as protocol errors.
func (s *Sender) Run(meta chunker.Metadata, chunks []chunker.Chunk) error {
	if s.state != StateInit {
		return ErrSessionConsumed
	}

	log := logrus.WithFields(logrus.Fields{
		"function":   "Run",
		"session_id": s.id,
		"file_name":  meta.FileName,
		"total":      meta.TotalChunks,
	})
	log.Info("Starting send attempt")

	if err := s.sendMetadata(meta); err != nil {
		s.state = StateFailed
		return err
	}

	if err := s.streamChunks(chunks); err != nil {
		s.state = StateFailed
		return err
	}

	if err := protocol.Write(s.conn, &protocol.Message{Type: protocol.TypeEOT}); err != nil {
		s.state = StateFailed
		return fmt.Errorf("send end of transmission: %w", err)
	}

	err := s.awaitResult(meta)
	if err != nil {
		s.state = StateFailed
		log.WithError(err).Error("Send attempt failed")
		return err
	}

	s.state = StateSuccess
	log.Info("Send attempt verified by receiver")
	return nil
}

// sendMetadata emits the metadata frame announcing the transfer.
func (s *Sender) sendMetadata(meta chunker.Metadata) error {
	msg := &protocol.Message{
		Type:      protocol.TypeMetadata,
		FileName:  meta.FileName,
		FileSize:  meta.FileSize,
		ChunkSize: meta.ChunkSize,
		Total:     meta.TotalChunks,
		Checksum:  meta.Checksum,
	}
	if err := protocol.Write(s.conn, msg); err != nil {
		return fmt.Errorf("send metadata: %w", err)
	}
	s.state = StateMetadataSent
	return nil
}

// streamChunks runs the chunk stream through the injector and writes
// every surviving chunk as its own frame.
func (s *Sender) streamChunks(chunks []chunker.Chunk) error {
	s.state = StateStreaming

	outbound := chunks
	if s.injector != nil {
		outbound = s.injector.Apply(chunks)
	}

	for _, c := range outbound {
		msg := &protocol.Message{Type: protocol.TypeChunk, Seq: c.Seq}
		msg.SetPayload(c.Data)
		if err := protocol.Write(s.conn, msg); err != nil {
			return fmt.Errorf("send chunk %d: %w", c.Seq, err)
		}
		logrus.WithFields(logrus.Fields{
			"function":   "streamChunks",
			"session_id": s.id,
			"seq":        c.Seq,
			"size":       len(c.Data),
		}).Debug("Chunk sent")
	}

	return nil
}

// awaitResult blocks for the receiver's verdict and maps a negative
// result onto the matching typed error.
func (s *Sender) awaitResult(meta chunker.Metadata) error {
	res, err := protocol.Read(s.conn)
	if err != nil {
		return fmt.Errorf("read result: %w", err)
	}
	if res.Type != protocol.TypeResult {
		return &protocol.FrameError{Reason: fmt.Sprintf("expected result frame, got %q", res.Type)}
	}

	if res.Success {
		return nil
	}

	if len(res.Missing) > 0 {
		return &IncompleteTransferError{Missing: res.Missing}
	}
	if res.Checksum != "" && res.Checksum != meta.Checksum {
		return &ChecksumMismatchError{Expected: meta.Checksum, Actual: res.Checksum}
	}
	if res.Reason != "" {
		return errors.New(res.Reason)
	}
	return errors.New("receiver rejected transfer without diagnostics")
}
