package report

import (
	"crypto/rand"
	"fmt"
	"time"
)

// GenerateRunID creates a run ID from a timestamp plus a random hex
// suffix, e.g. 20260825T153042-a7f3c901. IDs sort chronologically, which
// LatestRun relies on.
func GenerateRunID() string {
	ts := time.Now().Format("20060102T150405")
	suffix := make([]byte, 4)
	rand.Read(suffix)
	return fmt.Sprintf("%s-%x", ts, suffix)
}
