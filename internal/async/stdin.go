package async

import "io"

// WatchEOF starts a background reader over r and returns a channel that is
// closed the moment r reports end-of-stream (or any read error). It is the
// channel's non-blocking equivalent of fcntl(STDIN_FILENO, F_SETFL,
// O_NONBLOCK) followed by a zero-length read check: os.Stdin has no
// portable non-blocking mode in Go, so a single dedicated goroutine is used
// instead, the same way the teacher's EnterKey watches stdin for a newline.
func WatchEOF(r io.Reader) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		buf := make([]byte, 512)
		for {
			if _, err := r.Read(buf); err != nil {
				close(done)
				return
			}
		}
	}()
	return done
}
