package session

import (
	"fmt"
)

// IncompleteTransferError reports sequence numbers that never arrived
// before end-of-transmission. Missing is sorted ascending so
// diagnostics stay deterministic.
type IncompleteTransferError struct {
	Missing []uint32
}

func (e *IncompleteTransferError) Error() string {
	return fmt.Sprintf("incomplete transfer: missing %d chunk(s) %v", len(e.Missing), e.Missing)
}

// ChecksumMismatchError reports that the reassembled buffer diverges
// from the checksum declared in the transfer metadata.
type ChecksumMismatchError struct {
	Expected string
	Actual   string
}

func (e *ChecksumMismatchError) Error() string {
	return fmt.Sprintf("checksum mismatch: expected %s, got %s", e.Expected, e.Actual)
}
