// Command peer sends a file across the channel using stop-and-wait with
// binary exponential backoff, reporting a statistics summary on
// completion.
package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/cc-coursework/aloha-channel/peer"
	"github.com/cc-coursework/aloha-channel/wire"
)

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: peer <chan_ip> <chan_port> <file_name> <frame_size> <slot_time> <seed> <timeout>")
}

func main() {
	if len(os.Args) != 8 {
		usage()
		os.Exit(1)
	}

	channelAddr := os.Args[1]
	channelPort, err1 := strconv.Atoi(os.Args[2])
	filename := os.Args[3]
	frameSize, err2 := strconv.Atoi(os.Args[4])
	slotMillis, err3 := strconv.Atoi(os.Args[5])
	seed, err4 := strconv.ParseInt(os.Args[6], 10, 64)
	timeoutSecs, err5 := strconv.Atoi(os.Args[7])

	if err1 != nil || err2 != nil || err3 != nil || err4 != nil || err5 != nil {
		usage()
		os.Exit(1)
	}

	if frameSize < 1 {
		fmt.Fprintln(os.Stderr, "Error: Frame size must be at least 1 byte.")
		os.Exit(1)
	}
	if frameSize > wire.MaxPayloadSize {
		fmt.Fprintf(os.Stderr, "Error: Frame size too large. Maximum is %d bytes.\n", wire.MaxPayloadSize)
		os.Exit(1)
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Cannot open file %s\n", filename)
		return
	}

	sender, err := peer.New(peer.Config{
		ChannelAddr: channelAddr,
		ChannelPort: channelPort,
		FrameSize:   frameSize,
		SlotTime:    time.Duration(slotMillis) * time.Millisecond,
		Seed:        seed,
		AckTimeout:  time.Duration(timeoutSecs) * time.Second,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "peer: %v\n", err)
		os.Exit(1)
	}

	frames := sender.FramesFromFile(data)

	if err := sender.Connect(); err != nil {
		fmt.Fprintf(os.Stderr, "peer: %v\n", err)
		os.Exit(1)
	}
	defer sender.Close()

	result := sender.Send(frames)

	peer.Report(os.Stderr, filename, len(data), result)
}
