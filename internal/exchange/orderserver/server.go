package orderserver

import (
	"errors"
	"fmt"
	"io"
	"net"
	"runtime"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/tradewire/tradewire/internal/common"
	"github.com/tradewire/tradewire/internal/wire"
)

// session is one client connection. The reader goroutine owns
// clientId and nextInSeq; the response loop owns nextOutSeq.
type session struct {
	conn         net.Conn
	clientId     common.ClientId
	nextInSeq    uint64
	nextOutSeq   uint64
	disconnected atomic.Bool
}

// Server is the exchange's order entry front end. One reader
// goroutine per connection feeds the sequencer channel; a single
// server loop releases requests to the matching engine in receive
// order; a single response loop routes matching engine responses back
// to the owning connection and mirrors them to drop-copy.
type Server struct {
	logger *zap.Logger
	addr   string

	requests  *common.Producer[wire.ClientRequest]
	responses *common.Consumer[wire.ClientResponse]

	// optional mirror of outbound responses, nil when drop-copy is
	// disabled; full queue drops, never blocks
	dropCopy *common.Producer[wire.ClientResponse]

	listener net.Listener
	inbound  chan recvRequest

	mu       sync.RWMutex
	sessions map[common.ClientId]*session

	running atomic.Bool
	wg      sync.WaitGroup

	requestsIn       atomic.Uint64
	responsesOut     atomic.Uint64
	dropCopyDropped  atomic.Uint64
	rejectedSessions atomic.Uint64
}

// NewServer wires the server between its listen address and the
// matching engine queues.
func NewServer(
	addr string,
	requests *common.Producer[wire.ClientRequest],
	responses *common.Consumer[wire.ClientResponse],
	dropCopy *common.Producer[wire.ClientResponse],
	logger *zap.Logger,
) *Server {
	return &Server{
		logger:    logger,
		addr:      addr,
		requests:  requests,
		responses: responses,
		dropCopy:  dropCopy,
		inbound:   make(chan recvRequest, 1024),
		sessions:  make(map[common.ClientId]*session),
	}
}

// Start binds the listener and launches the accept, sequencer, and
// response loops.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.addr, err)
	}
	s.listener = listener
	s.running.Store(true)

	s.wg.Add(3)
	go s.acceptLoop()
	go s.serverLoop()
	go s.responseLoop()

	s.logger.Info("order server started", zap.String("addr", s.addr))
	return nil
}

// Stop closes the listener and every session and waits for all loops
// to exit.
func (s *Server) Stop() {
	s.running.Store(false)
	if s.listener != nil {
		s.listener.Close()
	}

	s.mu.Lock()
	for _, sess := range s.sessions {
		sess.conn.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("order server stopped",
		zap.Uint64("requests_in", s.requestsIn.Load()),
		zap.Uint64("responses_out", s.responsesOut.Load()),
		zap.Uint64("dropcopy_dropped", s.dropCopyDropped.Load()))
}

// Addr reports the bound listen address, useful when addr was ":0".
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.addr
	}
	return s.listener.Addr().String()
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.running.Load() && !errors.Is(err, net.ErrClosed) {
				s.logger.Error("accept failed", zap.Error(err))
			}
			return
		}
		s.wg.Add(1)
		go s.readLoop(conn)
	}
}

// readLoop reads framed requests off one connection, validating the
// connection's sequence numbers and client id, and hands them to the
// sequencer with their receive time.
func (s *Server) readLoop(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	sess := &session{
		conn:       conn,
		clientId:   common.ClientIdInvalid,
		nextInSeq:  1,
		nextOutSeq: 1,
	}
	defer s.dropSession(sess)

	var buf [wire.OMClientRequestSize]byte
	for {
		if _, err := io.ReadFull(conn, buf[:]); err != nil {
			if s.running.Load() && !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				s.logger.Warn("connection read failed",
					zap.String("remote", conn.RemoteAddr().String()), zap.Error(err))
			}
			return
		}
		recvTime := common.NowNanos()

		seqNum := wire.DecodeSeqNum(buf[:])
		req := wire.DecodeClientRequest(buf[8:])

		if seqNum != sess.nextInSeq {
			s.logger.Error("request sequence mismatch, dropping connection",
				zap.Uint32("client_id", uint32(req.ClientId)),
				zap.Uint64("expected", sess.nextInSeq), zap.Uint64("got", seqNum))
			return
		}
		sess.nextInSeq++

		if sess.clientId == common.ClientIdInvalid {
			if !s.registerSession(req.ClientId, sess) {
				s.rejectedSessions.Add(1)
				s.logger.Error("rejecting connection for client with live session",
					zap.Uint32("client_id", uint32(req.ClientId)))
				return
			}
			sess.clientId = req.ClientId
		} else if sess.clientId != req.ClientId {
			s.logger.Error("client id changed mid-connection, dropping",
				zap.Uint32("session_client", uint32(sess.clientId)),
				zap.Uint32("request_client", uint32(req.ClientId)))
			return
		}

		s.inbound <- recvRequest{RecvTime: recvTime, Request: req}
		s.requestsIn.Add(1)
	}
}

// serverLoop drains the inbound channel and releases each batch in
// receive order. It is the sole producer into the matching engine's
// request queue.
func (s *Server) serverLoop() {
	defer s.wg.Done()
	sequencer := newFIFOSequencer(s.requests)

	for s.running.Load() {
		select {
		case r := <-s.inbound:
			sequencer.push(r)
			// take everything already buffered into the same batch
		drain:
			for {
				select {
				case r := <-s.inbound:
					sequencer.push(r)
				default:
					break drain
				}
			}
			sequencer.flush()
		default:
			runtime.Gosched()
		}
	}
}

// responseLoop routes matching engine responses back to the owning
// session, stamping each with the session's outbound sequence number.
func (s *Server) responseLoop() {
	defer s.wg.Done()

	var buf [wire.OMClientResponseSize]byte
	for s.running.Load() {
		resp := s.responses.Peek()
		if resp == nil {
			runtime.Gosched()
			continue
		}

		if s.dropCopy != nil && !s.dropCopy.TryWrite(*resp) {
			s.dropCopyDropped.Add(1)
		}

		s.mu.RLock()
		sess := s.sessions[resp.ClientId]
		s.mu.RUnlock()

		if sess == nil || sess.disconnected.Load() {
			s.logger.Warn("dropping response for disconnected client",
				zap.String("response", resp.String()))
			s.responses.CommitRead()
			continue
		}

		wire.EncodeSeqNum(buf[:], sess.nextOutSeq)
		resp.Encode(buf[8:])
		if _, err := sess.conn.Write(buf[:]); err != nil {
			s.logger.Warn("response write failed, dropping connection",
				zap.Uint32("client_id", uint32(resp.ClientId)), zap.Error(err))
			sess.conn.Close()
		} else {
			sess.nextOutSeq++
			s.responsesOut.Add(1)
		}
		s.responses.CommitRead()
	}
}

func (s *Server) registerSession(clientId common.ClientId, sess *session) bool {
	if clientId >= common.MaxClients {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing := s.sessions[clientId]; existing != nil && !existing.disconnected.Load() {
		return false
	}
	s.sessions[clientId] = sess
	return true
}

func (s *Server) dropSession(sess *session) {
	sess.disconnected.Store(true)
	if sess.clientId == common.ClientIdInvalid {
		return
	}
	s.mu.Lock()
	if s.sessions[sess.clientId] == sess {
		delete(s.sessions, sess.clientId)
	}
	s.mu.Unlock()
}
