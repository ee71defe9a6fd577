package datastore

import (
	"context"
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"github.com/tphakala/platewatch/internal/observability/metrics"
)

var exportHeader = []string{
	"Plate", "First Seen", "Last Seen", "Detection Count",
	"Country", "Highest Confidence", "Suspicious", "Blacklisted",
}

const exportTimeLayout = "2006-01-02 15:04:05"

// ExportCSV writes identities to w, newest first. from limits identities to
// those first seen at or after it, to to those last seen at or before it.
// It returns the number of data rows written.
func (s *Store) ExportCSV(ctx context.Context, w io.Writer, from, to *time.Time) (int, error) {
	started := time.Now()

	q := s.db.WithContext(ctx).Model(&Identity{})
	if from != nil {
		q = q.Where("first_seen >= ?", from.UTC())
	}
	if to != nil {
		q = q.Where("last_seen <= ?", to.UTC())
	}

	var idents []Identity
	err := q.Order("last_seen DESC").Find(&idents).Error
	s.observe(metrics.OpExport, started, err)
	if err != nil {
		return 0, dbError(err, "export", started)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return 0, err
	}
	for i := range idents {
		ident := &idents[i]
		row := []string{
			ident.CanonicalText,
			ident.FirstSeen.Local().Format(exportTimeLayout),
			ident.LastSeen.Local().Format(exportTimeLayout),
			strconv.FormatInt(ident.DetectionCount, 10),
			ident.CountryCode,
			strconv.FormatFloat(ident.HighestConfidence, 'f', 1, 64),
			strconv.FormatBool(ident.IsSuspicious),
			strconv.FormatBool(ident.IsBlacklisted),
		}
		if err := cw.Write(row); err != nil {
			return 0, err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return 0, err
	}
	return len(idents), nil
}
