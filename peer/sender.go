// Package peer implements the stop-and-wait sender: it fragments a file
// into sequence-numbered frames and drives transmission across the channel
// with binary-exponential backoff, distinguishing its own echoed
// acknowledgements from foreign broadcasts and noise.
package peer

import (
	"crypto/rand"
	"fmt"
	"net"
	"os"
	"time"

	xrand "golang.org/x/exp/rand"

	"github.com/cc-coursework/aloha-channel/wire"
)

// MaxAttempts is the hard cap on transmissions of any one frame.
const MaxAttempts = 10

// maxFrameBytes bounds a single ack/drain read.
const maxFrameBytes = wire.HeaderSize + wire.MaxPayloadSize

// Config enumerates everything the sender needs to know before it can
// start transmitting.
type Config struct {
	ChannelAddr string
	ChannelPort int
	FrameSize   int // P, bytes per frame, >=1 and <= wire.MaxPayloadSize
	SlotTime    time.Duration
	Seed        int64
	AckTimeout  time.Duration
}

// Sender drives one file transfer across one connection to the channel.
type Sender struct {
	cfg    Config
	conn   net.Conn
	source [6]byte
	dest   [6]byte
	rng    *xrand.Rand
}

// New builds a Sender. source_id is derived from this process's id, the
// same way server.cpp's set_source_dest_id does; dest_id is random and
// plays no role in arbitration, so it is drawn independently of the
// seeded backoff generator to keep backoff sequences reproducible
// regardless of how many random dest_id bytes preceded them.
func New(cfg Config) (*Sender, error) {
	s := &Sender{
		cfg: cfg,
		rng: xrand.New(xrand.NewSource(uint64(cfg.Seed))),
	}

	pid := os.Getpid()
	s.source[0] = byte(pid)
	s.source[1] = byte(pid >> 8)
	s.source[2] = byte(pid >> 16)
	s.source[3] = byte(pid >> 24)

	if _, err := rand.Read(s.dest[:4]); err != nil {
		return nil, fmt.Errorf("peer: generate destination tag: %w", err)
	}

	return s, nil
}

// Connect dials the channel, retrying immediately and indefinitely until
// it succeeds; the channel may not yet be listening.
func (s *Sender) Connect() error {
	addr := net.JoinHostPort(s.cfg.ChannelAddr, fmt.Sprintf("%d", s.cfg.ChannelPort))
	for {
		conn, err := net.Dial("tcp", addr)
		if err == nil {
			s.conn = conn
			return nil
		}
	}
}

// Close releases the connection to the channel.
func (s *Sender) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

// FramesFromFile splits data into frames of at most FrameSize bytes each,
// with ascending sequence numbers starting at 0 and this sender's
// source/destination tags.
func (s *Sender) FramesFromFile(data []byte) []*wire.Frame {
	var frames []*wire.Frame
	for i := 0; i < len(data); i += s.cfg.FrameSize {
		end := min(i+s.cfg.FrameSize, len(data))
		frames = append(frames, &wire.Frame{
			DestID:      s.dest,
			SourceID:    s.source,
			EtherType:   wire.EtherTypeIPv4,
			PayloadType: wire.PayloadTypeData,
			SeqNumber:   uint32(len(frames)),
			Payload:     data[i:end],
		})
	}
	return frames
}

// Result summarizes one call to Send.
type Result struct {
	Success                 bool
	FramesSent              int
	BytesSent               int
	TotalFrames             int
	TotalTransmissions      int
	MaxTransmissionsPerFrame int
	Duration                time.Duration
	FirstFramePayloadLen    int
}

// Send transmits frames in order over the connection established by
// Connect, stopping at the first frame that exhausts MaxAttempts.
func (s *Sender) Send(frames []*wire.Frame) Result {
	result := Result{Success: true, TotalFrames: len(frames)}
	if len(frames) > 0 {
		result.FirstFramePayloadLen = len(frames[0].Payload)
	}

	start := time.Now()
	for _, frame := range frames {
		transmissions, acked := s.sendFrame(frame)

		result.TotalTransmissions += transmissions
		if transmissions > result.MaxTransmissionsPerFrame {
			result.MaxTransmissionsPerFrame = transmissions
		}

		if !acked {
			result.Success = false
			break
		}
		result.FramesSent++
		result.BytesSent += len(frame.Payload)
	}
	result.Duration = time.Since(start)
	return result
}

// sendFrame runs the per-frame state machine of spec.md section 4.2:
// transmit, wait for a matching ack, and on nack back off by a uniformly
// random number of slots before retrying, up to MaxAttempts.
func (s *Sender) sendFrame(frame *wire.Frame) (transmissions int, acked bool) {
	raw, err := wire.Marshal(frame)
	if err != nil {
		return MaxAttempts, false
	}

	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		if _, err := s.conn.Write(raw); err != nil {
			fmt.Printf("[peer] frame %d attempt %d: write error: %v\n", frame.SeqNumber, attempt, err)
			continue
		}

		if s.awaitAck(frame) {
			fmt.Printf("[peer] frame %d sent and ack received on attempt %d\n", frame.SeqNumber, attempt)
			s.drain(s.cfg.SlotTime)
			return attempt, true
		}

		k := s.backoff(attempt)
		fmt.Printf("[peer] frame %d attempt %d: ack timeout, backing off %d slot(s)\n", frame.SeqNumber, attempt, k)
		s.drain(time.Duration(k) * s.cfg.SlotTime)
	}
	fmt.Printf("[peer] frame %d abandoned after %d attempts\n", frame.SeqNumber, MaxAttempts)
	return MaxAttempts, false
}

// awaitAck waits up to AckTimeout for an inbound frame and reports whether
// it is an ack for frame: not noise, matching sequence number, matching
// source tag.
func (s *Sender) awaitAck(frame *wire.Frame) bool {
	resp, ok := s.receive(s.cfg.AckTimeout)
	if !ok {
		return false
	}
	return !resp.IsNoise() &&
		resp.SeqNumber == frame.SeqNumber &&
		resp.SourceID == s.source
}

// backoff draws a uniformly random slot count in [0, 2^min(attempt,10)-1].
func (s *Sender) backoff(attempt int) int {
	exp := attempt
	if exp > 10 {
		exp = 10
	}
	return s.rng.Intn(1 << exp)
}

// receive waits up to timeout for a single inbound frame.
func (s *Sender) receive(timeout time.Duration) (*wire.Frame, bool) {
	s.conn.SetReadDeadline(time.Now().Add(timeout))
	buf := make([]byte, maxFrameBytes)
	n, err := s.conn.Read(buf)
	if err != nil || n == 0 {
		return nil, false
	}
	frame, err := wire.Unmarshal(buf[:n])
	if err != nil {
		return nil, false
	}
	return frame, true
}

// drain consumes and discards every frame that arrives over d, so that the
// sender's next read sees only its own subsequent transmission's echo, not
// leftover broadcasts from this window. It mirrors wait_and_drop_frames:
// wait out the window, then do one final zero-timeout sweep.
func (s *Sender) drain(d time.Duration) {
	deadline := time.Now().Add(d)
	buf := make([]byte, maxFrameBytes)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		s.conn.SetReadDeadline(deadline)
		if _, err := s.conn.Read(buf); err != nil {
			break
		}
	}
	s.conn.SetReadDeadline(time.Now())
	for {
		if _, err := s.conn.Read(buf); err != nil {
			break
		}
	}
}
