// Package marketdata publishes the exchange's market data feeds: the
// sequenced incremental stream and the periodic snapshot stream, each
// on its own UDP multicast group.
package marketdata

import (
	"fmt"
	"net"
)

// Sender delivers one encoded datagram to a feed. The UDP
// implementation is used in production; tests substitute a capture.
type Sender interface {
	Send(buf []byte) error
}

// UDPSender sends datagrams to a multicast group.
type UDPSender struct {
	conn *net.UDPConn
}

// NewUDPSender connects a datagram socket to the group, given as
// "host:port".
func NewUDPSender(group string) (*UDPSender, error) {
	addr, err := net.ResolveUDPAddr("udp", group)
	if err != nil {
		return nil, fmt.Errorf("resolving multicast group %q: %w", group, err)
	}
	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("dialing multicast group %q: %w", group, err)
	}
	return &UDPSender{conn: conn}, nil
}

func (s *UDPSender) Send(buf []byte) error {
	if _, err := s.conn.Write(buf); err != nil {
		return fmt.Errorf("sending datagram: %w", err)
	}
	return nil
}

func (s *UDPSender) Close() error {
	return s.conn.Close()
}
