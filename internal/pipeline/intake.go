package pipeline

import (
	"bytes"
	"context"
	"slices"
	"strings"

	gocache "github.com/patrickmn/go-cache"

	"github.com/tphakala/platewatch/internal/alert"
	"github.com/tphakala/platewatch/internal/errors"
	"github.com/tphakala/platewatch/internal/identity"
	"github.com/tphakala/platewatch/internal/logger"
	"github.com/tphakala/platewatch/internal/notification"
)

// processDetection resolves one reading, records it and evaluates alerts.
// Store failures are counted and logged; alerts are still evaluated against
// the identity the resolver built from the reading.
func (m *Manager) processDetection(ctx context.Context, det RawDetection) error {
	defer det.release()

	if strings.TrimSpace(det.Text) == "" {
		m.stats.skipped.Add(1)
		return nil
	}

	var image []byte
	if det.Image != nil {
		data := det.Image.Bytes()
		if len(data) == 0 {
			m.log.Debug("skipping detection with empty image", logger.String("text", det.Text))
			m.stats.skipped.Add(1)
			return nil
		}
		if m.images != nil {
			image = bytes.Clone(data)
		}
	}
	// the engine gets its image back before any store work
	det.release()

	out, err := m.resolver.Resolve(ctx, identity.Reading{
		Text:        det.Text,
		Confidence:  float64(det.Confidence),
		CountryCode: det.CountryCode,
		Timestamp:   det.Timestamp,
		HasImage:    image != nil,
	})
	if errors.Is(err, identity.ErrEmptyReading) {
		m.stats.skipped.Add(1)
		return nil
	}
	if out == nil {
		return err
	}
	m.stats.storeOps.Add(1)
	if err != nil {
		m.stats.storeErrors.Add(1)
		m.log.Warn("detection not persisted, continuing with in-memory identity",
			logger.String("plate", out.Identity.CanonicalText),
			logger.Error(err))
	}

	m.stats.processed.Add(1)
	if out.Created {
		m.stats.created.Add(1)
	}
	if out.Grouped {
		m.stats.grouped.Add(1)
	}
	m.metrics.RecordResolution(out.Created, out.Grouped)

	canonical := out.Identity.CanonicalText
	imageRef := imageRefOf(out)
	if image != nil && imageRef != "" {
		m.enqueuePersist(persistJob{kind: persistImage, plate: canonical, ref: imageRef, data: image})
	}

	if out.RenamedFrom != "" {
		m.evaluator.Throttle().Rename(out.RenamedFrom, canonical)
		m.recent.Delete(out.RenamedFrom)
		m.log.Info("canonical text updated",
			logger.String("from", out.RenamedFrom),
			logger.String("to", canonical))
	}

	m.recent.Set(canonical, RecentPlate{
		CanonicalText: canonical,
		LastSeen:      det.Timestamp,
		Confidence:    float64(det.Confidence),
		Detections:    out.Identity.DetectionCount,
		Grouped:       out.Grouped,
		IsSuspicious:  out.Identity.IsSuspicious,
		IsBlacklisted: out.Identity.IsBlacklisted,
	}, gocache.DefaultExpiration)

	res, evalErr := m.evaluator.Evaluate(ctx, alert.Subject{
		CanonicalText: canonical,
		FirstSeen:     out.Identity.FirstSeen,
		Timestamp:     det.Timestamp,
		IsSuspicious:  out.Identity.IsSuspicious,
		ImageRef:      imageRef,
	})
	if evalErr != nil {
		m.log.Warn("blacklist check unavailable", logger.String("plate", canonical), logger.Error(evalErr))
	}
	if res.Throttled {
		m.stats.throttled.Add(1)
		m.metrics.RecordThrottled()
	}

	for _, a := range res.Alerts {
		m.stats.alerts.Add(1)
		m.metrics.RecordAlert(string(a.Kind))
		m.log.Info("alert raised",
			logger.String("kind", string(a.Kind)),
			logger.String("plate", a.Plate),
			logger.String("priority", string(a.Priority)))
		if rec := a.Record(); rec != nil {
			m.enqueuePersist(persistJob{kind: persistAlert, plate: a.Plate, alert: rec})
		}
		m.enqueueNotification(a.Notification())
	}
	if res.MarkSuspicious {
		m.enqueuePersist(persistJob{kind: persistSuspicious, plate: canonical})
	}
	return nil
}

// imageRefOf returns the image reference assigned to a standalone detection.
func imageRefOf(out *identity.Outcome) string {
	if out.Detection.ImageRef != nil {
		return *out.Detection.ImageRef
	}
	if !out.Persisted && !out.Grouped {
		return out.Identity.LastImageRef
	}
	return ""
}

func (m *Manager) enqueuePersist(job persistJob) {
	if !m.persistence.TryEnqueue(job) {
		m.metrics.RecordDropped(WorkerPersistence)
	}
}

func (m *Manager) enqueueNotification(n *notification.Notification) {
	if m.notifier == nil {
		return
	}
	if !m.notifications.TryEnqueue(n) {
		m.metrics.RecordDropped(WorkerNotification)
	}
}

func sortRecent(plates []RecentPlate) {
	slices.SortFunc(plates, func(a, b RecentPlate) int {
		if c := b.LastSeen.Compare(a.LastSeen); c != 0 {
			return c
		}
		return strings.Compare(a.CanonicalText, b.CanonicalText)
	})
}
