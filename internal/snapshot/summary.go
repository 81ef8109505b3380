package snapshot

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/fyrsmithlabs/vigild/internal/event"
)

// renderSummary synthesizes the human-readable narrative from the
// structured fields via fixed templates. It reads only the snapshot, so
// identical snapshots render identical text.
func renderSummary(s *Snapshot) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "window %s to %s: ",
		s.WindowStart.Format(time.RFC3339),
		s.WindowEnd.Format(time.RFC3339))

	total := 0
	types := make([]string, 0, len(s.EventCounts))
	for t, n := range s.EventCounts {
		total += n
		types = append(types, string(t))
	}
	if total == 0 {
		sb.WriteString("no events observed.")
		return sb.String()
	}

	sort.Strings(types)
	parts := make([]string, len(types))
	for i, t := range types {
		parts[i] = fmt.Sprintf("%s=%d", t, s.EventCounts[event.Type(t)])
	}
	fmt.Fprintf(&sb, "%d events (%s).", total, strings.Join(parts, ", "))

	if d := s.Pattern(PatternLowPostureDuration, 0); d > 0 {
		fmt.Fprintf(&sb, " low posture sustained for %.1fs.", d)
	}
	if since := s.Pattern(PatternSecondsSinceRecovery, -1); since >= 0 {
		fmt.Fprintf(&sb, " last recovery %.1fs before window end (confidence %.2f).",
			since, s.Pattern(PatternRecoveryConfidence, 0))
	} else {
		sb.WriteString(" no recovery observed.")
	}

	if len(s.Hypotheses) > 0 {
		lead := s.Hypotheses[0]
		fmt.Fprintf(&sb, " leading hypothesis: %s (confidence %.2f).", lead.Label, lead.Confidence)
	} else {
		sb.WriteString(" no active hypotheses.")
	}

	return sb.String()
}
