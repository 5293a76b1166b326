package transfer

// Strategy selects how an object's payload moves to the destination.
type Strategy int

const (
	// SinglePart uploads the whole payload with one put call.
	SinglePart Strategy = iota
	// Chunked splits the payload into fixed-size parts uploaded through a
	// multipart session.
	Chunked
)

func (s Strategy) String() string {
	switch s {
	case SinglePart:
		return "single"
	case Chunked:
		return "chunked"
	default:
		return "unknown"
	}
}

// Select routes an object by size: payloads smaller than chunkSize go up
// in a single put, everything else (including exactly chunkSize) goes
// through a multipart session.
func Select(size, chunkSize int64) Strategy {
	if size < chunkSize {
		return SinglePart
	}
	return Chunked
}
