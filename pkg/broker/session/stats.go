package session

import "sync/atomic"

// Stats is a snapshot of the manager's message counters.
type Stats struct {
	Received  uint64 `json:"received"`
	Delivered uint64 `json:"delivered"`
	Ignored   uint64 `json:"ignored"`
	Published uint64 `json:"published"`
	BytesIn   uint64 `json:"bytes_in"`
	BytesOut  uint64 `json:"bytes_out"`
}

type counters struct {
	received  uint64
	delivered uint64
	ignored   uint64
	published uint64
	bytesIn   uint64
	bytesOut  uint64
}

func (c *counters) snapshot() Stats {
	return Stats{
		Received:  atomic.LoadUint64(&c.received),
		Delivered: atomic.LoadUint64(&c.delivered),
		Ignored:   atomic.LoadUint64(&c.ignored),
		Published: atomic.LoadUint64(&c.published),
		BytesIn:   atomic.LoadUint64(&c.bytesIn),
		BytesOut:  atomic.LoadUint64(&c.bytesOut),
	}
}
