// Package orderserver accepts client order connections over TCP,
// sequences their requests into the matching engine, and routes
// responses back, validating per-connection sequence numbers in both
// directions.
package orderserver

import (
	"sort"

	"github.com/tradewire/tradewire/internal/common"
	"github.com/tradewire/tradewire/internal/wire"
)

// recvRequest is a client request stamped with its socket receive
// time.
type recvRequest struct {
	RecvTime common.Nanos
	Request  wire.ClientRequest
}

// fifoSequencer batches requests read from the client sockets and
// releases them to the matching engine in receive-time order, so a
// request read later on one socket cannot overtake one read earlier
// on another.
type fifoSequencer struct {
	pending  []recvRequest
	requests *common.Producer[wire.ClientRequest]
}

func newFIFOSequencer(requests *common.Producer[wire.ClientRequest]) *fifoSequencer {
	return &fifoSequencer{
		pending:  make([]recvRequest, 0, 256),
		requests: requests,
	}
}

func (s *fifoSequencer) push(r recvRequest) {
	s.pending = append(s.pending, r)
}

// flush publishes the batch in receive order and resets it.
func (s *fifoSequencer) flush() {
	sort.SliceStable(s.pending, func(i, j int) bool {
		return s.pending[i].RecvTime < s.pending[j].RecvTime
	})
	for i := range s.pending {
		s.requests.Write(s.pending[i].Request)
	}
	s.pending = s.pending[:0]
}
