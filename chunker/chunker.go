// Package chunker splits byte buffers into fixed-size, sequence-numbered
// chunks for transmission and computes the whole-buffer checksum used for
// end-to-end integrity verification.
//
// Example:
//
//	checksum, chunks, err := chunker.Split(data, 1024)
//	if err != nil {
//	    log.Fatal(err)
//	}
package chunker

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"

	"github.com/sirupsen/logrus"
)

// ErrInvalidChunkSize indicates a non-positive chunk size was requested.
var ErrInvalidChunkSize = errors.New("chunk size must be positive")

// Chunk is one contiguous slice of the original buffer, tagged with its
// zero-based position. Concatenating all chunks in ascending sequence
// order reproduces the original buffer exactly.
type Chunk struct {
	Seq  uint32
	Data []byte
}

// Metadata describes one transfer attempt. It is built once per attempt
// and never modified afterwards.
type Metadata struct {
	FileName    string
	FileSize    uint64
	ChunkSize   uint32
	TotalChunks uint32
	Checksum    string
}

// Checksum returns the hex-encoded SHA-256 digest of buf.
func Checksum(buf []byte) string {
	sum := sha256.Sum256(buf)
	return hex.EncodeToString(sum[:])
}

// Split divides buf into chunks of chunkSize bytes, assigning sequence
// numbers 0..n-1 left to right. The final chunk may be shorter. The
// returned checksum is computed over the whole buffer before splitting;
// the receiving side recomputes it after reassembly so the comparison is
// end to end.
func Split(buf []byte, chunkSize int) (string, []Chunk, error) {
	if chunkSize <= 0 {
		return "", nil, ErrInvalidChunkSize
	}

	checksum := Checksum(buf)

	chunks := make([]Chunk, 0, (len(buf)+chunkSize-1)/chunkSize)
	for offset := 0; offset < len(buf); offset += chunkSize {
		end := offset + chunkSize
		if end > len(buf) {
			end = len(buf)
		}
		chunks = append(chunks, Chunk{
			Seq:  uint32(len(chunks)),
			Data: buf[offset:end],
		})
	}

	logrus.WithFields(logrus.Fields{
		"function":   "Split",
		"size":       len(buf),
		"chunk_size": chunkSize,
		"chunks":     len(chunks),
		"checksum":   checksum,
	}).Debug("Buffer split into chunks")

	return checksum, chunks, nil
}

// NewMetadata builds the immutable per-attempt metadata for buf.
func NewMetadata(fileName string, buf []byte, chunkSize int) (Metadata, error) {
	if chunkSize <= 0 {
		return Metadata{}, ErrInvalidChunkSize
	}

	total := (len(buf) + chunkSize - 1) / chunkSize

	return Metadata{
		FileName:    fileName,
		FileSize:    uint64(len(buf)),
		ChunkSize:   uint32(chunkSize),
		TotalChunks: uint32(total),
		Checksum:    Checksum(buf),
	}, nil
}
