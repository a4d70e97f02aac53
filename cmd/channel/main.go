// Command channel runs the shared-medium arbitrator: a TCP listener that
// batches peer activity into fixed-length slots, detects collisions, and
// broadcasts either the unique frame or a noise frame each slot.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/cc-coursework/aloha-channel/channel"
	"github.com/cc-coursework/aloha-channel/internal/async"
)

func main() {
	signal.Ignore(syscall.SIGPIPE)

	if len(os.Args) != 3 {
		fmt.Fprintln(os.Stderr, "Usage: channel <chan_port> <slot_time>")
		os.Exit(1)
	}

	port, err := strconv.Atoi(os.Args[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Usage: channel <chan_port> <slot_time>\n")
		os.Exit(1)
	}
	slotMillis, err := strconv.Atoi(os.Args[2])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Usage: channel <chan_port> <slot_time>\n")
		os.Exit(1)
	}

	ch, err := channel.Listen(port)
	if err != nil {
		fmt.Fprintf(os.Stderr, "channel: %v\n", err)
		os.Exit(1)
	}
	defer ch.Close()

	shutdown := async.WatchEOF(os.Stdin)
	peers := ch.Run(time.Duration(slotMillis)*time.Millisecond, shutdown)

	channel.Report(os.Stderr, peers)
}
