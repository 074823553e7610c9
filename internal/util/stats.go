package util

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/pterm/pterm"
)

// ──────────────────────────────────────────────────────────────────────────────
// Global stats singleton
// ──────────────────────────────────────────────────────────────────────────────

// Stats is the process-wide envelope traffic counter.
var Stats = &stats{}

type stats struct {
	FramesSent atomic.Int64 // envelopes handed to a data channel
	FramesRecv atomic.Int64 // envelopes decoded from a data channel
	BytesSent  atomic.Int64 // cumulative encoded bytes written
	BytesRecv  atomic.Int64 // cumulative encoded bytes read
	Dropped    atomic.Int64 // frames dropped by the transport (no link, full inbox, bad frame)
}

func (s *stats) AddSent(n int) {
	s.FramesSent.Add(1)
	s.BytesSent.Add(int64(n))
}

func (s *stats) AddRecv(n int) {
	s.FramesRecv.Add(1)
	s.BytesRecv.Add(int64(n))
}

func (s *stats) AddDropped() { s.Dropped.Add(1) }

// ──────────────────────────────────────────────────────────────────────────────
// Periodic reporter
// ──────────────────────────────────────────────────────────────────────────────

// StartStatsReporter launches a goroutine that logs traffic statistics
// every interval. It stops when ctx is cancelled.
func StartStatsReporter(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		secs := interval.Seconds()
		var prevSent, prevRecv, prevFramesOut, prevFramesIn int64
		for {
			select {
			case <-ticker.C:
				sent := Stats.BytesSent.Load()
				recv := Stats.BytesRecv.Load()
				framesOut := Stats.FramesSent.Load()
				framesIn := Stats.FramesRecv.Load()

				outS := float64(sent-prevSent) / secs
				inS := float64(recv-prevRecv) / secs
				outF := framesOut - prevFramesOut
				inF := framesIn - prevFramesIn

				if outF > 0 || inF > 0 {
					pterm.DefaultLogger.Info(formatStats(inS, outS, inF, outF, Stats.Dropped.Load()))
				}

				prevSent = sent
				prevRecv = recv
				prevFramesOut = framesOut
				prevFramesIn = framesIn

			case <-ctx.Done():
				return
			}
		}
	}()
}

// byteUnits defines the units for formatting byte counts in a human-readable way.
var byteUnits = []string{"B", "KiB", "MiB", "GiB", "TiB", "PiB"}

// formatBytes formats a byte count into a human-readable string with fixed width (exactly 8 chars)
// for example: "99.0   B", " 1.5 KiB", " 0.1 MiB", "98.9 GiB", etc.
func formatBytes(b float64) string {
	unitIdx := 0

	// to prevent "100.0 KiB", which is 9 chars
	for b > 99 && unitIdx < 5 {
		b /= 1024
		unitIdx++
	}

	return fmt.Sprintf("%4.1f %3s", b, byteUnits[unitIdx])
}

// formatStats returns a formatted string of the current stats for display in the logger.
func formatStats(inS, outS float64, inF, outF, dropped int64) string {
	return fmt.Sprintf("In: %s/s | Out: %s/s | Frames: %3d↓ %3d↑ | Dropped: %d",
		formatBytes(inS),
		formatBytes(outS),
		inF,
		outF,
		dropped,
	)
}
