// Package channel implements the slotted-ALOHA arbitrator: it accepts any
// number of peer connections, batches their activity into fixed-length
// slots, detects collisions, broadcasts either the unique frame or a noise
// frame, and keeps per-peer statistics until told to shut down.
package channel

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/cc-coursework/aloha-channel/internal/async"
	"github.com/cc-coursework/aloha-channel/wire"
)

// maxFrameBytes bounds a single read: a header plus the largest payload a
// well-behaved peer may send.
const maxFrameBytes = wire.HeaderSize + wire.MaxPayloadSize

// Channel arbitrates the shared medium. It owns the listener and the
// append-only list of peers it has ever accepted.
type Channel struct {
	ln    *net.TCPListener
	peers []*Peer
}

// Listen binds and starts listening on port, setting SO_REUSEADDR on the
// listening socket the way channel.cpp's setup_server does.
func Listen(port int) (*Channel, error) {
	lc := net.ListenConfig{Control: setReuseAddr}
	ln, err := lc.Listen(context.Background(), "tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("channel: listen on port %d: %w", port, err)
	}
	return &Channel{ln: ln.(*net.TCPListener)}, nil
}

func setReuseAddr(_, _ string, c syscall.RawConn) error {
	var sockErr error
	if err := c.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	}); err != nil {
		return err
	}
	return sockErr
}

// Close releases the listening socket and every connection the channel has
// ever accepted, dead or alive.
func (c *Channel) Close() {
	c.ln.Close()
	for _, p := range c.peers {
		p.conn.Close()
	}
}

// Run drives the slot loop until shutdown is closed (end-of-input on the
// control stream), then returns a snapshot of every peer the channel has
// ever seen, in the order they connected.
func (c *Channel) Run(slotTime time.Duration, shutdown <-chan struct{}) []Peer {
	for {
		select {
		case <-shutdown:
			return c.snapshot()
		default:
		}
		c.runSlot(slotTime)
	}
}

// acceptOutcome and readOutcome carry the result of a single deadline-bound
// socket call back to the control loop, which is the only place peer state
// is ever mutated.
type acceptOutcome struct {
	conn net.Conn
	err  error
}

type readOutcome struct {
	peer *Peer
	buf  []byte
	n    int
	err  error
}

// runSlot waits up to slotTime for readiness on the listener and every
// live peer, then applies the broadcast rule for however many peers
// delivered a frame. This plays the role of one pass through channel.cpp's
// select-then-process loop: every probe shares the same absolute deadline,
// so the slot as a whole never runs longer than slotTime.
func (c *Channel) runSlot(slotTime time.Duration) {
	deadline := time.Now().Add(slotTime)

	c.ln.SetDeadline(deadline)
	acceptCh := async.Probe(func() acceptOutcome {
		conn, err := c.ln.Accept()
		return acceptOutcome{conn, err}
	})

	live := c.livePeers()
	readChs := make([]<-chan readOutcome, len(live))
	for i, p := range live {
		p := p
		readChs[i] = async.Probe(func() readOutcome {
			p.conn.SetReadDeadline(deadline)
			buf := make([]byte, maxFrameBytes)
			n, err := p.conn.Read(buf)
			return readOutcome{peer: p, buf: buf, n: n, err: err}
		})
	}

	if acc := <-acceptCh; acc.err == nil {
		p := newPeer(acc.conn)
		c.peers = append(c.peers, p)
		fmt.Printf("[channel] accepted peer %s port %d\n", p.IP, p.Port)
	}

	type candidate struct {
		peer *Peer
		data []byte
	}
	var ready []candidate
	for _, ch := range readChs {
		out := <-ch
		if out.err != nil {
			var ne net.Error
			if errors.As(out.err, &ne) && ne.Timeout() {
				continue // nothing arrived during this slot; peer is still alive
			}
			out.peer.Dead = true
			fmt.Printf("[channel] peer %s port %d disconnected: %v\n", out.peer.IP, out.peer.Port, out.err)
			continue
		}
		if out.n == 0 {
			out.peer.Dead = true
			fmt.Printf("[channel] peer %s port %d disconnected: EOF\n", out.peer.IP, out.peer.Port)
			continue
		}
		ready = append(ready, candidate{out.peer, canonicalize(out.buf[:out.n])})
	}

	switch len(ready) {
	case 0:
		return
	case 1:
		fmt.Printf("[channel] solo frame from %s port %d, broadcasting\n", ready[0].peer.IP, ready[0].peer.Port)
		c.broadcast(ready[0].data)
		ready[0].peer.Frames++
	default:
		fmt.Printf("[channel] collision among %d peers, broadcasting noise\n", len(ready))
		noise, _ := wire.Marshal(wire.Noise())
		c.broadcast(noise)
		for _, r := range ready {
			r.peer.Collisions++
		}
	}
}

// canonicalize trims raw down to exactly header_size+payload_length bytes
// when a full header was received, so a solo broadcast is byte-identical to
// what the sender declared even if the stream read coalesced extra bytes.
// A partially received frame (raw shorter than the header or the declared
// payload) is forwarded as-is: whatever was read is treated as one frame
// for arbitration purposes.
func canonicalize(raw []byte) []byte {
	frame, err := wire.Unmarshal(raw)
	if err != nil {
		return raw
	}
	canon, err := wire.Marshal(frame)
	if err != nil {
		return raw
	}
	return canon
}

// broadcast sends data verbatim to every non-dead peer. Write errors are
// ignored per-peer; a closed or half-closed peer must never abort the
// channel.
func (c *Channel) broadcast(data []byte) {
	for _, p := range c.peers {
		if p.Dead {
			continue
		}
		p.conn.Write(data)
	}
}

func (c *Channel) livePeers() []*Peer {
	live := make([]*Peer, 0, len(c.peers))
	for _, p := range c.peers {
		if !p.Dead {
			live = append(live, p)
		}
	}
	return live
}

func (c *Channel) snapshot() []Peer {
	out := make([]Peer, len(c.peers))
	for i, p := range c.peers {
		out[i] = *p
	}
	return out
}
