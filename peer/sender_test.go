package peer

import (
	"net"
	"testing"
	"time"

	"github.com/cc-coursework/aloha-channel/wire"
)

func newSenderOver(t *testing.T, conn net.Conn) *Sender {
	t.Helper()
	s, err := New(Config{
		FrameSize:  40,
		SlotTime:   2 * time.Millisecond,
		Seed:       1,
		AckTimeout: 100 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s.conn = conn
	return s
}

func TestFramesFromFileSplitsAndNumbers(t *testing.T) {
	s := newSenderOver(t, nil)
	data := make([]byte, 100) // matches S1: P=40 -> lengths 40, 40, 20
	frames := s.FramesFromFile(data)

	if len(frames) != 3 {
		t.Fatalf("len(frames) = %d, want 3", len(frames))
	}
	wantLens := []int{40, 40, 20}
	for i, f := range frames {
		if f.SeqNumber != uint32(i) {
			t.Errorf("frame %d: SeqNumber = %d, want %d", i, f.SeqNumber, i)
		}
		if len(f.Payload) != wantLens[i] {
			t.Errorf("frame %d: len(Payload) = %d, want %d", i, len(f.Payload), wantLens[i])
		}
	}
}

func TestFramesFromEmptyFile(t *testing.T) {
	s := newSenderOver(t, nil)
	if frames := s.FramesFromFile(nil); len(frames) != 0 {
		t.Errorf("len(frames) = %d, want 0", len(frames))
	}
}

// fakeChannel echoes back whatever it receives, unless told to jam instead.
type fakeChannel struct {
	server net.Conn
	jam    bool
}

func startFakeChannel(t *testing.T, jam bool) (client net.Conn, fc *fakeChannel) {
	t.Helper()
	client, server := net.Pipe()
	fc = &fakeChannel{server: server, jam: jam}
	go fc.run()
	return client, fc
}

func (fc *fakeChannel) run() {
	buf := make([]byte, 4096)
	for {
		n, err := fc.server.Read(buf)
		if err != nil {
			return
		}
		f, err := wire.Unmarshal(buf[:n])
		if err != nil {
			continue
		}
		var out *wire.Frame
		if fc.jam {
			out = wire.Noise()
		} else {
			out = f
		}
		raw, _ := wire.Marshal(out)
		fc.server.Write(raw)
	}
}

func TestSendSucceedsOnFirstAttemptAgainstCooperativeChannel(t *testing.T) {
	client, fc := startFakeChannel(t, false)
	defer fc.server.Close()

	s := newSenderOver(t, client)
	defer s.Close()

	frames := s.FramesFromFile([]byte("hello"))
	result := s.Send(frames)

	if !result.Success {
		t.Fatal("expected success against a cooperative channel")
	}
	if result.TotalTransmissions != len(frames) {
		t.Errorf("TotalTransmissions = %d, want %d (one attempt per frame)", result.TotalTransmissions, len(frames))
	}
	if result.MaxTransmissionsPerFrame != 1 {
		t.Errorf("MaxTransmissionsPerFrame = %d, want 1", result.MaxTransmissionsPerFrame)
	}
}

func TestSendAbortsAfterAttemptCapOnPermanentNoise(t *testing.T) {
	client, fc := startFakeChannel(t, true)
	defer fc.server.Close()

	s := newSenderOver(t, client)
	defer s.Close()

	frames := s.FramesFromFile([]byte("x"))
	result := s.Send(frames)

	if result.Success {
		t.Fatal("expected failure when every echo is noise")
	}
	if result.TotalTransmissions != MaxAttempts {
		t.Errorf("TotalTransmissions = %d, want %d", result.TotalTransmissions, MaxAttempts)
	}
	if result.FramesSent != 0 {
		t.Errorf("FramesSent = %d, want 0", result.FramesSent)
	}
}

func TestBackoffStaysWithinUniformBounds(t *testing.T) {
	s := newSenderOver(t, nil)
	for attempt := 1; attempt <= 12; attempt++ {
		exp := attempt
		if exp > 10 {
			exp = 10
		}
		max := 1 << exp
		for i := 0; i < 200; i++ {
			k := s.backoff(attempt)
			if k < 0 || k >= max {
				t.Fatalf("backoff(%d) = %d, want in [0, %d)", attempt, k, max)
			}
		}
	}
}

func TestBackoffReproducibleForSameSeed(t *testing.T) {
	a, err := New(Config{Seed: 42})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	b, err := New(Config{Seed: 42})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for attempt := 1; attempt <= 20; attempt++ {
		if ka, kb := a.backoff(attempt), b.backoff(attempt); ka != kb {
			t.Fatalf("attempt %d: a=%d b=%d, want equal for identical seeds", attempt, ka, kb)
		}
	}
}

func TestAckDiscrimination(t *testing.T) {
	s := newSenderOver(t, nil)
	outgoing := &wire.Frame{SeqNumber: 3, SourceID: s.source}

	cases := []struct {
		name string
		resp *wire.Frame
		want bool
	}{
		{"matching ack", &wire.Frame{SeqNumber: 3, SourceID: s.source, PayloadType: wire.PayloadTypeData}, true},
		{"noise", &wire.Frame{SeqNumber: 3, SourceID: s.source, PayloadType: wire.PayloadTypeNoise}, false},
		{"wrong seq", &wire.Frame{SeqNumber: 4, SourceID: s.source, PayloadType: wire.PayloadTypeData}, false},
		{"wrong source", &wire.Frame{SeqNumber: 3, SourceID: [6]byte{9, 9, 9, 9, 9, 9}, PayloadType: wire.PayloadTypeData}, false},
	}
	for _, tc := range cases {
		client, server := net.Pipe()
		s.conn = client
		raw, _ := wire.Marshal(tc.resp)
		go server.Write(raw)
		acked := s.awaitAck(outgoing)
		client.Close()
		server.Close()
		if acked != tc.want {
			t.Errorf("%s: ack discrimination = %v, want %v", tc.name, acked, tc.want)
		}
	}
}
