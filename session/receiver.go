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

// Bounds on declared metadata, to prevent resource exhaustion from
// wire-supplied values.
const (
	// MaxTransferSize is the largest declared file size a receiver
	// accepts, in bytes.
	MaxTransferSize = 4 << 30

	// MaxChunkCount is the largest declared chunk count a receiver
	// accepts.
	MaxChunkCount = 1 << 24
)

// Receiver drives the inbound half of one transfer attempt. Its receive
// buffer is owned exclusively by the execution unit servicing the
// connection, so no locking is needed inside a session.
type Receiver struct {
	conn   io.ReadWriter
	id     uuid.UUID
	state  State
	buffer map[uint32][]byte
}

// NewReceiver creates a receiver for one attempt over conn.
func NewReceiver(conn io.ReadWriter) *Receiver {
	return &Receiver{
		conn:   conn,
		id:     uuid.New(),
		state:  StateInit,
		buffer: make(map[uint32][]byte),
	}
}

// State returns the receiver's current lifecycle state.
func (r *Receiver) State() State {
	return r.state
}

// Run reads frames until end-of-transmission, reassembles and verifies
// the buffer, writes a result frame back to the sender, and returns the
// reconstructed bytes with the transfer metadata.
//
// Malformed envelopes mid-stream are logged and skipped: one bad frame
// must not prevent detection of the remaining chunks. Framing failures
// and a closed connection abort the attempt.
func (r *Receiver) Run() ([]byte, chunker.Metadata, error) {
	if r.state != StateInit {
		return nil, chunker.Metadata{}, ErrSessionConsumed
	}

	meta, err := r.readMetadata()
	if err != nil {
		r.state = StateFailed
		return nil, chunker.Metadata{}, err
	}

	log := logrus.WithFields(logrus.Fields{
		"function":   "Run",
		"session_id": r.id,
		"file_name":  meta.FileName,
		"total":      meta.TotalChunks,
	})
	log.Info("Receiving transfer")

	if err := r.collectChunks(meta); err != nil {
		r.state = StateFailed
		return nil, meta, err
	}

	r.state = StateVerifying
	data, checksum, verr := Reassemble(meta, r.buffer)
	r.reportResult(checksum, verr)

	if verr != nil {
		r.state = StateFailed
		log.WithError(verr).Error("Receive attempt failed verification")
		return nil, meta, verr
	}

	r.state = StateSuccess
	log.WithField("size", len(data)).Info("Receive attempt completed")
	return data, meta, nil
}

// readMetadata consumes the opening metadata frame. At this boundary a
// malformed frame is fatal to the connection, unlike mid-stream.
func (r *Receiver) readMetadata() (chunker.Metadata, error) {
	msg, err := protocol.Read(r.conn)
	if err != nil {
		return chunker.Metadata{}, fmt.Errorf("read metadata: %w", err)
	}
	if msg.Type != protocol.TypeMetadata {
		return chunker.Metadata{}, &protocol.FrameError{Reason: fmt.Sprintf("expected metadata frame, got %q", msg.Type)}
	}

	meta := chunker.Metadata{
		FileName:    msg.FileName,
		FileSize:    msg.FileSize,
		ChunkSize:   msg.ChunkSize,
		TotalChunks: msg.Total,
		Checksum:    msg.Checksum,
	}
	if err := validateMetadata(meta); err != nil {
		return chunker.Metadata{}, err
	}

	r.state = StateAwaitingEOT
	return meta, nil
}

// validateMetadata rejects declarations the receiver cannot safely
// honor. The size and count fields arrive over the wire and drive
// buffer sizing downstream, so implausible values are fatal to the
// connection before any chunk is accepted.
func validateMetadata(meta chunker.Metadata) error {
	if meta.ChunkSize == 0 {
		return &protocol.FrameError{Reason: "metadata declares zero chunk size"}
	}
	if meta.FileSize > MaxTransferSize {
		return &protocol.FrameError{Reason: fmt.Sprintf("declared file size %d exceeds maximum %d", meta.FileSize, MaxTransferSize)}
	}
	if meta.TotalChunks > MaxChunkCount {
		return &protocol.FrameError{Reason: fmt.Sprintf("declared chunk count %d exceeds maximum %d", meta.TotalChunks, MaxChunkCount)}
	}
	expected := (meta.FileSize + uint64(meta.ChunkSize) - 1) / uint64(meta.ChunkSize)
	if uint64(meta.TotalChunks) != expected {
		return &protocol.FrameError{Reason: fmt.Sprintf("declared chunk count %d inconsistent with file size %d and chunk size %d", meta.TotalChunks, meta.FileSize, meta.ChunkSize)}
	}
	return nil
}

// collectChunks classifies inbound frames into the receive buffer until
// the end-of-transmission marker arrives.
func (r *Receiver) collectChunks(meta chunker.Metadata) error {
	for {
		msg, err := protocol.Read(r.conn)
		if err != nil {
			if errors.Is(err, protocol.ErrInvalidEnvelope) {
				logrus.WithFields(logrus.Fields{
					"function":   "collectChunks",
					"session_id": r.id,
					"error":      err.Error(),
				}).Warn("Skipping malformed frame mid-stream")
				continue
			}
			return fmt.Errorf("read frame: %w", err)
		}

		switch msg.Type {
		case protocol.TypeEOT:
			logrus.WithFields(logrus.Fields{
				"function":   "collectChunks",
				"session_id": r.id,
				"received":   len(r.buffer),
			}).Info("End of transmission received")
			return nil
		case protocol.TypeChunk:
			r.storeChunk(meta, msg)
		default:
			logrus.WithFields(logrus.Fields{
				"function":   "collectChunks",
				"session_id": r.id,
				"type":       msg.Type,
			}).Warn("Ignoring unexpected frame type mid-stream")
		}
	}
}

// storeChunk decodes one chunk frame into the receive buffer. Frames
// with undecodable payloads or out-of-range sequence numbers are
// dropped with a warning.
func (r *Receiver) storeChunk(meta chunker.Metadata, msg *protocol.Message) {
	data, err := msg.Payload()
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function":   "storeChunk",
			"session_id": r.id,
			"seq":        msg.Seq,
			"error":      err.Error(),
		}).Warn("Dropping chunk with undecodable payload")
		return
	}
	if msg.Seq >= meta.TotalChunks {
		logrus.WithFields(logrus.Fields{
			"function":   "storeChunk",
			"session_id": r.id,
			"seq":        msg.Seq,
			"total":      meta.TotalChunks,
		}).Warn("Dropping chunk with out-of-range sequence number")
		return
	}

	r.buffer[msg.Seq] = data
	logrus.WithFields(logrus.Fields{
		"function":   "storeChunk",
		"session_id": r.id,
		"seq":        msg.Seq,
		"size":       len(data),
	}).Debug("Chunk received")
}

// reportResult writes the verification verdict back to the sender,
// carrying the digest this receiver computed over the reconstructed
// bytes. A failed write is logged only; the attempt outcome already
// stands.
func (r *Receiver) reportResult(checksum string, verr error) {
	res := &protocol.Message{Type: protocol.TypeResult}

	var incomplete *IncompleteTransferError
	var mismatch *ChecksumMismatchError
	switch {
	case verr == nil:
		res.Success = true
		res.Checksum = checksum
	case errors.As(verr, &incomplete):
		res.Missing = incomplete.Missing
		res.Reason = verr.Error()
	case errors.As(verr, &mismatch):
		res.Checksum = mismatch.Actual
		res.Reason = verr.Error()
	default:
		res.Reason = verr.Error()
	}

	if err := protocol.Write(r.conn, res); err != nil {
		logrus.WithFields(logrus.Fields{
			"function":   "reportResult",
			"session_id": r.id,
			"error":      err.Error(),
		}).Warn("Failed to deliver result frame")
	}
}
