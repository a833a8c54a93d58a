package session

// State tracks a transmission session through its lifecycle. StateFailed
// is terminal for the session; whether to start a fresh attempt is the
// retry controller's decision, never the session's.
type State uint8

const (
	// StateInit means the session has not sent or received anything.
	StateInit State = iota
	// StateMetadataSent means the metadata frame crossed the wire.
	StateMetadataSent
	// StateStreaming means chunk frames are in flight.
	StateStreaming
	// StateAwaitingEOT means the receiver is collecting chunks until
	// the end-of-transmission marker.
	StateAwaitingEOT
	// StateVerifying means reassembly and checksum verification are
	// in progress.
	StateVerifying
	// StateSuccess means the attempt completed with a verified buffer.
	StateSuccess
	// StateFailed means the attempt ended without a verified buffer.
	StateFailed
)

// String returns a human-readable state name for logs.
func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateMetadataSent:
		return "metadata_sent"
	case StateStreaming:
		return "streaming"
	case StateAwaitingEOT:
		return "awaiting_eot"
	case StateVerifying:
		return "verifying"
	case StateSuccess:
		return "success"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}
