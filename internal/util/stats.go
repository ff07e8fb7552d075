package util

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultStatsInterval is how often the reporter logs traffic rates.
const DefaultStatsInterval = 10 * time.Second

// linkStats counts the traffic of one relay engine.
type linkStats struct {
	PacketsIn  atomic.Int64 // packets received from the link
	PacketsOut atomic.Int64 // packets sent to the link
	BytesIn    atomic.Int64
	BytesOut   atomic.Int64
	Failures   atomic.Int64 // failed epochs, including failed connects
}

// Stats is the process-wide traffic counter, keyed by engine name. It
// satisfies the relay observer contract.
type Stats struct {
	mu    sync.Mutex
	links map[string]*linkStats
}

// NewStats creates empty counters.
func NewStats() *Stats {
	return &Stats{links: make(map[string]*linkStats)}
}

func (s *Stats) link(name string) *linkStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	ls, ok := s.links[name]
	if !ok {
		ls = &linkStats{}
		s.links[name] = ls
	}
	return ls
}

func (s *Stats) PacketIn(link string, size int) {
	ls := s.link(link)
	ls.PacketsIn.Add(1)
	ls.BytesIn.Add(int64(size))
}

func (s *Stats) PacketOut(link string, size int) {
	ls := s.link(link)
	ls.PacketsOut.Add(1)
	ls.BytesOut.Add(int64(size))
}

func (s *Stats) EpochFailed(link, class string) { s.link(link).Failures.Add(1) }

func (s *Stats) StateChanged(link, state string) {}

// Snapshot is a point-in-time copy of one engine's counters.
type Snapshot struct {
	Link       string
	PacketsIn  int64
	PacketsOut int64
	BytesIn    int64
	BytesOut   int64
	Failures   int64
}

// Snapshot returns the counters of every engine, sorted by name.
func (s *Stats) Snapshot() []Snapshot {
	s.mu.Lock()
	names := make([]string, 0, len(s.links))
	for name := range s.links {
		names = append(names, name)
	}
	s.mu.Unlock()
	sort.Strings(names)

	out := make([]Snapshot, len(names))
	for i, name := range names {
		ls := s.link(name)
		out[i] = Snapshot{
			Link:       name,
			PacketsIn:  ls.PacketsIn.Load(),
			PacketsOut: ls.PacketsOut.Load(),
			BytesIn:    ls.BytesIn.Load(),
			BytesOut:   ls.BytesOut.Load(),
			Failures:   ls.Failures.Load(),
		}
	}
	return out
}

// ──────────────────────────────────────────────────────────────────────────────
// Periodic reporter
// ──────────────────────────────────────────────────────────────────────────────

// StartStatsReporter launches a goroutine that logs per-engine traffic rates
// every interval while there is traffic. It stops when ctx is cancelled.
func StartStatsReporter(ctx context.Context, s *Stats, log Logger, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultStatsInterval
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		prev := make(map[string]Snapshot)
		for {
			select {
			case <-ticker.C:
				cur := s.Snapshot()
				if line, active := formatStats(cur, prev, interval.Seconds()); active {
					log.Info(line)
				}
				for _, snap := range cur {
					prev[snap.Link] = snap
				}

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

// formatStats renders the rates between prev and cur. active is false when
// nothing moved and no epoch failed during the window.
func formatStats(cur []Snapshot, prev map[string]Snapshot, secs float64) (line string, active bool) {
	parts := make([]string, 0, len(cur))
	for _, c := range cur {
		p := prev[c.Link]
		inPkts := c.PacketsIn - p.PacketsIn
		outPkts := c.PacketsOut - p.PacketsOut
		fails := c.Failures - p.Failures
		if inPkts > 0 || outPkts > 0 || fails > 0 {
			active = true
		}

		parts = append(parts, fmt.Sprintf("%s In: %s/s %3d pkt | Out: %s/s %3d pkt | Fail: %d",
			c.Link,
			formatBytes(float64(c.BytesIn-p.BytesIn)/secs),
			inPkts,
			formatBytes(float64(c.BytesOut-p.BytesOut)/secs),
			outPkts,
			fails,
		))
	}
	return strings.Join(parts, " ║ "), active
}
