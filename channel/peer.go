package channel

import (
	"net"
	"strconv"
)

// Peer is a record of a connection the channel has ever accepted. Records
// are never removed once created; they only move from alive to dead
// (spec invariant: once created, a peer's state transitions only
// alive -> dead).
type Peer struct {
	conn net.Conn

	IP   string
	Port int

	Frames     int
	Collisions int
	Dead       bool
}

func newPeer(conn net.Conn) *Peer {
	p := &Peer{conn: conn}
	if host, port, err := net.SplitHostPort(conn.RemoteAddr().String()); err == nil {
		p.IP = host
		if n, err := strconv.Atoi(port); err == nil {
			p.Port = n
		}
	}
	return p
}
