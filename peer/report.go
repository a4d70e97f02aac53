package peer

import (
	"fmt"
	"io"
)

// Report writes the six-line summary spec.md section 4.2 and 6 call for:
// file name, outcome, byte/frame counts, elapsed time, transmissions per
// frame, and average bandwidth.
func Report(w io.Writer, filename string, fileSize int, r Result) {
	outcome := "Success :)"
	if !r.Success {
		outcome = "Failure :("
	}

	reportedSize, reportedFrames := fileSize, r.TotalFrames
	if !r.Success {
		// Honest count up to the last successful frame, not the whole file.
		reportedSize, reportedFrames = r.BytesSent, r.FramesSent
	}

	fmt.Fprintf(w, "Sent file: %s\n", filename)
	fmt.Fprintf(w, "Result: %s\n", outcome)
	fmt.Fprintf(w, "File size: %d Bytes (%d frames)\n", reportedSize, reportedFrames)
	fmt.Fprintf(w, "Total transfer time: %d milliseconds\n", r.Duration.Milliseconds())

	avgTransmissions := 0.0
	if r.TotalFrames > 0 {
		avgTransmissions = float64(r.TotalTransmissions) / float64(r.TotalFrames)
	}
	fmt.Fprintf(w, "Transmissions/frame: average %v, maximum %d\n", avgTransmissions, r.MaxTransmissionsPerFrame)

	durationUs := float64(r.Duration.Microseconds())
	bandwidth := 0.0
	if durationUs > 0 {
		bandwidth = float64(r.TotalFrames) * float64(r.FirstFramePayloadLen) * 8.0 / durationUs
	}
	fmt.Fprintf(w, "Average bandwidth: %v Mbps\n", bandwidth)
}
