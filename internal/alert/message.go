package alert

import (
	"fmt"
	"strings"

	"github.com/tphakala/platewatch/internal/datastore"
)

const (
	timestampLayout = "2006-01-02 15:04:05"
	clockLayout     = "15:04:05"
)

var dangerMarkers = map[string]string{
	datastore.DangerCritical: "🔴",
	datastore.DangerHigh:     "🟠",
	datastore.DangerMedium:   "🟡",
	datastore.DangerLow:      "🔵",
}

// FormatBlacklist renders a blacklist alert. The matched text and similarity
// are shown only for fuzzy matches.
func FormatBlacklist(a Alert) string {
	marker, ok := dangerMarkers[a.DangerLevel]
	if !ok {
		marker = "⚪"
	}

	var b strings.Builder
	b.WriteString("🚨 BLACKLIST ALERT 🚨\n\n")
	fmt.Fprintf(&b, "Detected: %s\n", a.Plate)
	if a.MatchedText != a.Plate {
		fmt.Fprintf(&b, "Matched: %s\n", a.MatchedText)
		fmt.Fprintf(&b, "Similarity: %.1f%%\n", a.Similarity)
	}
	fmt.Fprintf(&b, "Danger Level: %s %s\n", marker, a.DangerLevel)
	fmt.Fprintf(&b, "Reason: %s\n", a.Reason)
	fmt.Fprintf(&b, "Time: %s\n", a.Timestamp.Format(timestampLayout))
	b.WriteString("\n⚡ IMMEDIATE ACTION REQUIRED!")
	return b.String()
}

// FormatSuspicious renders a dwell alert.
func FormatSuspicious(a Alert) string {
	var b strings.Builder
	b.WriteString("⚠️ SUSPICIOUS PRESENCE ALERT ⚠️\n\n")
	fmt.Fprintf(&b, "Plate: %s\n", a.Plate)
	fmt.Fprintf(&b, "Duration: %d minutes\n", int(a.Dwell.Minutes()))
	fmt.Fprintf(&b, "First seen: %s\n", a.FirstSeen.Format(clockLayout))
	fmt.Fprintf(&b, "Current time: %s\n", a.Timestamp.Format(clockLayout))
	b.WriteString("\n👁️ Vehicle has been present for an extended period")
	return b.String()
}

// FormatDailyReport renders the daily digest.
func FormatDailyReport(s datastore.DailyStatistics) string {
	var b strings.Builder
	b.WriteString("📊 Daily Statistics Report 📊\n")
	fmt.Fprintf(&b, "Date: %s\n\n", s.Date)
	fmt.Fprintf(&b, "🚗 Total Detections: %d\n", s.TotalDetections)
	fmt.Fprintf(&b, "🎯 Unique Plates: %d\n", s.UniquePlates)
	fmt.Fprintf(&b, "⚠️ Suspicious Events: %d\n", s.SuspiciousEvents)
	fmt.Fprintf(&b, "🚫 Blacklist Hits: %d\n", s.BlacklistHits)
	return b.String()
}
