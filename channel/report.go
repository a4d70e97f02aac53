package channel

import (
	"fmt"
	"io"
)

// Report writes one line per peer the channel has ever seen:
//
//	From <ip> port <port>: <collisions> collisions
//
// The frame count is collected on every Peer but, matching the reference
// channel's report_stats, is not printed.
func Report(w io.Writer, peers []Peer) {
	for _, p := range peers {
		fmt.Fprintf(w, "From %s port %d: %d collisions\n", p.IP, p.Port, p.Collisions)
	}
}
