package datastore

import (
	"context"
	"time"

	"github.com/tphakala/platewatch/internal/errors"
	"github.com/tphakala/platewatch/internal/logger"
	"github.com/tphakala/platewatch/internal/observability/metrics"
	"github.com/tphakala/platewatch/internal/plate"
	"gorm.io/gorm"
)

// Observation is one reading to record against an identity.
type Observation struct {
	// IdentityText is the canonical text of the matched identity. Empty
	// means no match: a new identity keyed by VariantText is created.
	IdentityText   string
	VariantText    string // normalized reading
	RawText        string
	Confidence     float64
	CountryCode    string
	Timestamp      time.Time
	ImageRef       string
	ParentID       *uint
	ElapsedSeconds float64
}

// ObservationResult is the state after an observation was committed.
type ObservationResult struct {
	Identity  Identity
	Detection Detection
	Created   bool
	// RenamedFrom holds the previous canonical text when this observation
	// moved the identity to a new canonical text.
	RenamedFrom string
}

// DetectionGroup is a standalone detection with the grouped detections that
// followed it.
type DetectionGroup struct {
	Detection
	Children []Detection `json:"children"`
}

// SearchResult pairs an identity with its highest confidence variant.
type SearchResult struct {
	Identity
	BestVariant    string  `json:"best_variant"`
	BestConfidence float64 `json:"best_confidence"`
}

// CanonicalTexts returns the canonical text of every identity.
func (s *Store) CanonicalTexts(ctx context.Context) ([]string, error) {
	started := time.Now()
	var texts []string
	err := s.db.WithContext(ctx).Model(&Identity{}).Pluck("canonical_text", &texts).Error
	s.observe(metrics.OpCanonicalTexts, started, err)
	if err != nil {
		return nil, dbError(err, "canonical_texts", started)
	}
	return texts, nil
}

// GetIdentity looks up an identity by canonical text.
func (s *Store) GetIdentity(ctx context.Context, canonicalText string) (*Identity, error) {
	started := time.Now()
	var ident Identity
	err := s.db.WithContext(ctx).Where("canonical_text = ?", canonicalText).Take(&ident).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFoundError(ErrIdentityNotFound, canonicalText)
	}
	if err != nil {
		return nil, dbError(err, "get_identity", started)
	}
	return &ident, nil
}

// RecordObservation applies one reading in a single transaction: the identity
// is created or touched, the detection appended, the variant upserted, and
// the canonical text moved when another variant now has the highest
// confidence. Variant and detection references follow the rewrite.
func (s *Store) RecordObservation(ctx context.Context, obs Observation) (*ObservationResult, error) {
	if obs.VariantText == "" {
		return nil, ErrEmptyText
	}
	obs.Timestamp = obs.Timestamp.UTC()

	started := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	var res ObservationResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ident, created, err := touchIdentity(tx, obs)
		if err != nil {
			return err
		}
		res.Identity = ident
		res.Created = created

		det := Detection{
			IdentityText: ident.CanonicalText,
			RawText:      obs.RawText,
			Timestamp:    obs.Timestamp,
			Confidence:   obs.Confidence,
		}
		if obs.ParentID != nil {
			parent := *obs.ParentID
			det.ParentID = &parent
			det.IsGrouped = true
			det.ElapsedSeconds = obs.ElapsedSeconds
		} else if obs.ImageRef != "" {
			ref := obs.ImageRef
			det.ImageRef = &ref
		}
		if err := tx.Create(&det).Error; err != nil {
			return err
		}

		if err := upsertVariant(tx, ident.CanonicalText, obs); err != nil {
			return err
		}

		renamed, err := s.rederiveCanonical(tx, &res.Identity)
		if err != nil {
			return err
		}
		if renamed != "" {
			det.IdentityText = res.Identity.CanonicalText
			res.RenamedFrom = renamed
		}
		res.Detection = det
		return nil
	})
	s.observe(metrics.OpRecordObservation, started, err)
	if err != nil {
		return nil, dbError(err, "record_observation", started)
	}
	return &res, nil
}

// touchIdentity returns the identity the observation belongs to, creating it
// when needed, with counters and last seen fields updated.
func touchIdentity(tx *gorm.DB, obs Observation) (Identity, bool, error) {
	var ident Identity
	found := false

	for _, key := range []string{obs.IdentityText, obs.VariantText} {
		if key == "" {
			continue
		}
		err := tx.Where("canonical_text = ?", key).Take(&ident).Error
		if err == nil {
			found = true
			break
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return Identity{}, false, err
		}
	}

	if !found {
		// the matched identity may have been swept since it was resolved
		ident = Identity{
			CanonicalText:     obs.VariantText,
			FirstSeen:         obs.Timestamp,
			LastSeen:          obs.Timestamp,
			DetectionCount:    1,
			CountryCode:       obs.CountryCode,
			HighestConfidence: obs.Confidence,
			LastConfidence:    obs.Confidence,
			LastImageRef:      obs.ImageRef,
		}
		var listed int64
		if err := tx.Model(&BlacklistEntry{}).Where("text = ?", obs.VariantText).Count(&listed).Error; err != nil {
			return Identity{}, false, err
		}
		ident.IsBlacklisted = listed > 0
		if err := tx.Create(&ident).Error; err != nil {
			return Identity{}, false, err
		}
		return ident, true, nil
	}

	ident.DetectionCount++
	if obs.Timestamp.After(ident.LastSeen) {
		ident.LastSeen = obs.Timestamp
	}
	ident.HighestConfidence = max(ident.HighestConfidence, obs.Confidence)
	ident.LastConfidence = obs.Confidence
	if obs.ImageRef != "" && obs.ParentID == nil {
		ident.LastImageRef = obs.ImageRef
	}
	if ident.CountryCode == "" {
		ident.CountryCode = obs.CountryCode
	}
	if err := tx.Save(&ident).Error; err != nil {
		return Identity{}, false, err
	}
	return ident, false, nil
}

func upsertVariant(tx *gorm.DB, identityText string, obs Observation) error {
	var v Variant
	err := tx.Where("identity_text = ? AND variant_text = ?", identityText, obs.VariantText).Take(&v).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		v = Variant{
			IdentityText:    identityText,
			VariantText:     obs.VariantText,
			MaxConfidence:   obs.Confidence,
			OccurrenceCount: 1,
			LastSeen:        obs.Timestamp,
		}
		return tx.Create(&v).Error
	case err != nil:
		return err
	}

	v.OccurrenceCount++
	v.MaxConfidence = max(v.MaxConfidence, obs.Confidence)
	if obs.Timestamp.After(v.LastSeen) {
		v.LastSeen = obs.Timestamp
	}
	return tx.Save(&v).Error
}

// rederiveCanonical moves ident to its highest confidence variant. The
// current canonical text wins ties. It returns the previous canonical text
// when a rewrite happened.
func (s *Store) rederiveCanonical(tx *gorm.DB, ident *Identity) (string, error) {
	var top Variant
	err := tx.Where("identity_text = ?", ident.CanonicalText).
		Order("max_confidence DESC").
		Order("variant_text ASC").
		Take(&top).Error
	if err != nil {
		return "", err
	}
	if top.VariantText == ident.CanonicalText {
		return "", nil
	}

	var current Variant
	err = tx.Where("identity_text = ? AND variant_text = ?", ident.CanonicalText, ident.CanonicalText).Take(&current).Error
	switch {
	case err == nil:
		if current.MaxConfidence >= top.MaxConfidence {
			return "", nil
		}
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return "", err
	}

	var taken int64
	if err := tx.Model(&Identity{}).Where("canonical_text = ?", top.VariantText).Count(&taken).Error; err != nil {
		return "", err
	}
	if taken > 0 {
		s.log.Warn("canonical rewrite skipped, target text names another identity",
			logger.String("identity", ident.CanonicalText),
			logger.String("target", top.VariantText))
		if s.metrics != nil {
			s.metrics.RecordRewriteConflict()
		}
		return "", nil
	}

	old := ident.CanonicalText
	next := top.VariantText

	if err := tx.Model(&Identity{}).Where("canonical_text = ?", old).Update("canonical_text", next).Error; err != nil {
		// another writer took the text after the check above
		if isDuplicateKey(err) {
			s.log.Warn("canonical rewrite skipped, target text was taken concurrently",
				logger.String("identity", old),
				logger.String("target", next))
			if s.metrics != nil {
				s.metrics.RecordRewriteConflict()
			}
			return "", nil
		}
		return "", err
	}
	if err := tx.Model(&Variant{}).Where("identity_text = ?", old).Update("identity_text", next).Error; err != nil {
		return "", err
	}
	if err := tx.Model(&Detection{}).Where("identity_text = ?", old).Update("identity_text", next).Error; err != nil {
		return "", err
	}

	var listed int64
	if err := tx.Model(&BlacklistEntry{}).Where("text = ?", next).Count(&listed).Error; err != nil {
		return "", err
	}
	if listed > 0 && !ident.IsBlacklisted {
		if err := tx.Model(&Identity{}).Where("canonical_text = ?", next).Update("is_blacklisted", true).Error; err != nil {
			return "", err
		}
		ident.IsBlacklisted = true
	}

	ident.CanonicalText = next
	if s.metrics != nil {
		s.metrics.RecordCanonicalRewrite()
	}
	s.log.Info("canonical text rewritten",
		logger.String("from", old),
		logger.String("to", next),
		logger.Float64("confidence", top.MaxConfidence))
	return old, nil
}

// LatestUngroupedDetection returns the newest standalone detection of an
// identity, or nil when it has none.
func (s *Store) LatestUngroupedDetection(ctx context.Context, canonicalText string) (*Detection, error) {
	started := time.Now()
	var det Detection
	err := s.db.WithContext(ctx).
		Where("identity_text = ? AND is_grouped = ?", canonicalText, false).
		Order("timestamp DESC").
		Order("id DESC").
		Take(&det).Error
	s.observe(metrics.OpLatestUngrouped, started, ignoreNotFound(err))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, dbError(err, "latest_ungrouped", started)
	}
	return &det, nil
}

// MarkSuspicious flags an identity. It reports true only for the call that
// changed the flag.
func (s *Store) MarkSuspicious(ctx context.Context, canonicalText string) (bool, error) {
	started := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	res := s.db.WithContext(ctx).Model(&Identity{}).
		Where("canonical_text = ? AND is_suspicious = ?", canonicalText, false).
		Update("is_suspicious", true)
	s.observe(metrics.OpMarkSuspicious, started, res.Error)
	if res.Error != nil {
		return false, dbError(res.Error, "mark_suspicious", started)
	}
	return res.RowsAffected > 0, nil
}

// Variants lists an identity's variants, best first.
func (s *Store) Variants(ctx context.Context, canonicalText string) ([]Variant, error) {
	started := time.Now()
	var variants []Variant
	err := s.db.WithContext(ctx).
		Where("identity_text = ?", canonicalText).
		Order("max_confidence DESC").
		Order("occurrence_count DESC").
		Find(&variants).Error
	if err != nil {
		return nil, dbError(err, "variants", started)
	}
	return variants, nil
}

// Detections lists an identity's detections, newest first.
func (s *Store) Detections(ctx context.Context, canonicalText string, limit int) ([]Detection, error) {
	started := time.Now()
	var dets []Detection
	err := s.db.WithContext(ctx).
		Where("identity_text = ?", canonicalText).
		Order("timestamp DESC").
		Limit(limit).
		Find(&dets).Error
	if err != nil {
		return nil, dbError(err, "detections", started)
	}
	return dets, nil
}

// GroupedDetections returns the newest standalone detections of an identity,
// each with the detections grouped under it in chronological order.
func (s *Store) GroupedDetections(ctx context.Context, canonicalText string, limit int) ([]DetectionGroup, error) {
	started := time.Now()
	db := s.db.WithContext(ctx)

	var parents []Detection
	if err := db.Where("identity_text = ? AND parent_id IS NULL", canonicalText).
		Order("timestamp DESC").
		Limit(limit).
		Find(&parents).Error; err != nil {
		return nil, dbError(err, "grouped_detections", started)
	}
	if len(parents) == 0 {
		return []DetectionGroup{}, nil
	}

	ids := make([]uint, len(parents))
	groups := make([]DetectionGroup, len(parents))
	index := make(map[uint]int, len(parents))
	for i, p := range parents {
		ids[i] = p.ID
		groups[i] = DetectionGroup{Detection: p, Children: []Detection{}}
		index[p.ID] = i
	}

	var children []Detection
	if err := db.Where("parent_id IN ?", ids).Order("timestamp ASC").Find(&children).Error; err != nil {
		return nil, dbError(err, "grouped_detections", started)
	}
	for _, c := range children {
		if i, ok := index[*c.ParentID]; ok {
			groups[i].Children = append(groups[i].Children, c)
		}
	}
	return groups, nil
}

// SearchIdentities finds identities whose canonical text or any variant
// contains term. Results are newest first.
func (s *Store) SearchIdentities(ctx context.Context, term string, limit int) ([]SearchResult, error) {
	started := time.Now()
	db := s.db.WithContext(ctx)
	like := "%" + plate.Normalize(term) + "%"

	variantMatches := db.Model(&Variant{}).Select("identity_text").Where("variant_text LIKE ?", like)

	var idents []Identity
	err := db.Where("canonical_text LIKE ? OR canonical_text IN (?)", like, variantMatches).
		Order("last_seen DESC").
		Limit(limit).
		Find(&idents).Error
	s.observe(metrics.OpSearch, started, err)
	if err != nil {
		return nil, dbError(err, "search", started)
	}
	if len(idents) == 0 {
		return []SearchResult{}, nil
	}

	texts := make([]string, len(idents))
	for i := range idents {
		texts[i] = idents[i].CanonicalText
	}
	var variants []Variant
	if err := db.Where("identity_text IN ?", texts).
		Order("max_confidence DESC").
		Order("variant_text ASC").
		Find(&variants).Error; err != nil {
		return nil, dbError(err, "search", started)
	}
	best := make(map[string]Variant, len(idents))
	for _, v := range variants {
		if _, seen := best[v.IdentityText]; !seen {
			best[v.IdentityText] = v
		}
	}

	results := make([]SearchResult, len(idents))
	for i, ident := range idents {
		r := SearchResult{Identity: ident, BestVariant: ident.CanonicalText, BestConfidence: ident.LastConfidence}
		if v, ok := best[ident.CanonicalText]; ok {
			r.BestVariant = v.VariantText
			r.BestConfidence = v.MaxConfidence
		}
		results[i] = r
	}
	return results, nil
}

func ignoreNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	return err
}
