package timer

import (
	"math"
	"time"

	"github.com/Anjos3/agente-seguimiento/internal/domain"
)

// Minutes converts a task's ordered event ledger into elapsed work minutes.
//
// It walks the events ascending by timestamp, pairing each started/resumed
// with the next paused/completed. An unmatched opening event (task still
// running) contributes up to now. A second opening event while an interval
// is already open is merged: the earliest open timestamp wins, so no work is
// dropped even if a duplicate start slipped into the ledger. A closing event
// without an open interval contributes nothing.
//
// The result is deterministic for a fixed ledger and now, non-decreasing as
// now advances, and always recomputed from scratch; the actual_minutes
// column is only a snapshot of the last call.
func Minutes(events []*domain.TaskEvent, now time.Time) int {
	var total time.Duration
	var openStart *time.Time

	for _, ev := range events {
		switch {
		case ev.Type.OpensInterval():
			if openStart == nil {
				t := ev.OccurredAt
				openStart = &t
			}
		case ev.Type.ClosesInterval():
			if openStart != nil {
				total += ev.OccurredAt.Sub(*openStart)
				openStart = nil
			}
		}
	}

	if openStart != nil {
		total += now.Sub(*openStart)
	}

	mins := int(math.Round(total.Minutes()))
	if mins < 0 {
		return 0
	}
	return mins
}
