package session

import (
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/filewire/chunker"
)

// Reassemble reconstructs the original buffer from a receive buffer of
// sequence-numbered payloads and returns it with its computed SHA-256
// digest.
//
// It first checks completeness: any sequence number in
// [0, meta.TotalChunks) absent from buffer yields an
// *IncompleteTransferError listing the missing numbers in ascending
// order. Payloads are then concatenated strictly in sequence-number
// order, regardless of arrival order, and the computed digest must
// equal the declared checksum or a *ChecksumMismatchError is returned.
func Reassemble(meta chunker.Metadata, buffer map[uint32][]byte) ([]byte, string, error) {
	// Scanning 0..total-1 yields the missing set already sorted.
	missing := make([]uint32, 0)
	for seq := uint32(0); seq < meta.TotalChunks; seq++ {
		if _, ok := buffer[seq]; !ok {
			missing = append(missing, seq)
		}
	}
	if len(missing) > 0 {
		logrus.WithFields(logrus.Fields{
			"function": "Reassemble",
			"expected": meta.TotalChunks,
			"received": len(buffer),
			"missing":  missing,
		}).Error("Transfer incomplete after end of transmission")
		return nil, "", &IncompleteTransferError{Missing: missing}
	}

	// Size the output from the payloads actually held, not the declared
	// file size, which arrived over the wire and may be arbitrary.
	var size int
	for _, payload := range buffer {
		size += len(payload)
	}
	reconstructed := make([]byte, 0, size)
	for seq := uint32(0); seq < meta.TotalChunks; seq++ {
		reconstructed = append(reconstructed, buffer[seq]...)
	}

	actual := chunker.Checksum(reconstructed)
	if actual != meta.Checksum {
		logrus.WithFields(logrus.Fields{
			"function": "Reassemble",
			"expected": meta.Checksum,
			"actual":   actual,
		}).Error("Checksum verification failed")
		return nil, "", &ChecksumMismatchError{Expected: meta.Checksum, Actual: actual}
	}

	logrus.WithFields(logrus.Fields{
		"function": "Reassemble",
		"size":     len(reconstructed),
		"checksum": actual,
	}).Info("Buffer reassembled and verified")

	return reconstructed, actual, nil
}
