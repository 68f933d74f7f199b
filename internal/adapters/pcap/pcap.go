// Package pcap implements the PcapWatcher: it counts the valid handshake
// captures the radio driver has written to the handshakes directory, which
// the core is read-only with respect to.
package pcap

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/gopacket/pcapgo"
)

// Watcher counts unique handshake captures on disk, validating each file's
// pcap global header rather than trusting the ".pcap" extension alone.
type Watcher struct {
	dir string
	log *slog.Logger
}

// New constructs a Watcher rooted at dir.
func New(dir string, log *slog.Logger) *Watcher {
	if log == nil {
		log = slog.Default()
	}
	return &Watcher{dir: dir, log: log}
}

// TotalHandshakes globs dir for *.pcap files and returns how many parse a
// valid pcap global header. A file that exists but fails to parse (e.g.
// still being written by the driver) is skipped, not counted, and logged at
// debug level rather than treated as an error.
func (w *Watcher) TotalHandshakes() int {
	matches, err := filepath.Glob(filepath.Join(w.dir, "*.pcap"))
	if err != nil {
		w.log.Error("failed to glob handshakes directory", "dir", w.dir, "error", err)
		return 0
	}

	count := 0
	for _, path := range matches {
		if w.isValidCapture(path) {
			count++
		}
	}
	return count
}

// Filenames returns the basenames of every file counted by TotalHandshakes.
func (w *Watcher) Filenames() []string {
	matches, err := filepath.Glob(filepath.Join(w.dir, "*.pcap"))
	if err != nil {
		return nil
	}
	out := make([]string, 0, len(matches))
	for _, path := range matches {
		if w.isValidCapture(path) {
			out = append(out, filepath.Base(path))
		}
	}
	return out
}

func (w *Watcher) isValidCapture(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		w.log.Debug("cannot open capture file", "path", path, "error", err)
		return false
	}
	defer f.Close()

	if _, err := pcapgo.NewReader(f); err != nil {
		w.log.Debug("capture file failed pcap header validation", "path", path, "error", err)
		return false
	}
	return true
}
