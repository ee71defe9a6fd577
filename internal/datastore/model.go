// model.go defines the persisted entities
package datastore

import "time"

// Identity is a vehicle plate resolved from one or more readings. Its primary
// key is the canonical text, which moves to the highest confidence variant as
// better readings arrive.
type Identity struct {
	CanonicalText     string    `gorm:"primaryKey;size:32" json:"canonical_text"`
	FirstSeen         time.Time `gorm:"index:idx_identities_first_seen" json:"first_seen"`
	LastSeen          time.Time `gorm:"index:idx_identities_last_seen" json:"last_seen"`
	DetectionCount    int64     `gorm:"not null;default:0" json:"detection_count"`
	CountryCode       string    `gorm:"size:8" json:"country_code,omitempty"`
	HighestConfidence float64   `json:"highest_confidence"`
	IsSuspicious      bool      `gorm:"index:idx_identities_suspicious" json:"is_suspicious"`
	IsBlacklisted     bool      `gorm:"index:idx_identities_blacklisted" json:"is_blacklisted"`
	LastImageRef      string    `json:"last_image_ref,omitempty"`
	LastConfidence    float64   `json:"last_confidence"`
}

// TableName sets the table name for Identity.
func (Identity) TableName() string { return "identities" }

// Variant is one distinct normalized reading observed for an identity.
type Variant struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	IdentityText    string    `gorm:"size:32;not null;uniqueIndex:idx_variants_identity_text" json:"identity_text"`
	VariantText     string    `gorm:"size:32;not null;uniqueIndex:idx_variants_identity_text" json:"variant_text"`
	MaxConfidence   float64   `gorm:"not null;default:0" json:"max_confidence"`
	OccurrenceCount int64     `gorm:"not null;default:0" json:"occurrence_count"`
	LastSeen        time.Time `json:"last_seen"`
}

// TableName sets the table name for Variant.
func (Variant) TableName() string { return "variants" }

// Detection is a single raw reading. Rows are never updated except when the
// owning identity's canonical text is rewritten.
type Detection struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	IdentityText   string    `gorm:"size:32;not null;index:idx_detections_identity_ts" json:"identity_text"`
	RawText        string    `gorm:"size:64" json:"raw_text"`
	Timestamp      time.Time `gorm:"not null;index:idx_detections_identity_ts;index:idx_detections_ts" json:"timestamp"`
	Confidence     float64   `json:"confidence"`
	ImageRef       *string   `json:"image_ref,omitempty"`
	ParentID       *uint     `gorm:"index:idx_detections_parent" json:"parent_id,omitempty"`
	ElapsedSeconds float64   `json:"elapsed_seconds,omitempty"`
	IsGrouped      bool      `json:"is_grouped"`
}

// TableName sets the table name for Detection.
func (Detection) TableName() string { return "detections" }

// BlacklistEntry is a plate that raises an alert whenever a close match is seen.
type BlacklistEntry struct {
	Text        string    `gorm:"primaryKey;size:32" json:"text" yaml:"text" validate:"required,max=32"`
	Reason      string    `json:"reason" yaml:"reason"`
	DangerLevel string    `gorm:"size:16" json:"danger_level" yaml:"danger_level" validate:"omitempty,oneof=LOW MEDIUM HIGH CRITICAL"`
	DateAdded   time.Time `json:"date_added" yaml:"date_added"`
	Notes       string    `json:"notes" yaml:"notes"`
}

// TableName sets the table name for BlacklistEntry.
func (BlacklistEntry) TableName() string { return "blacklist" }

// AlertRecord logs a blacklist hit.
type AlertRecord struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	DetectedText string    `gorm:"size:32;index:idx_alerts_detected" json:"detected_text"`
	MatchedText  string    `gorm:"size:32" json:"matched_text"`
	Similarity   float64   `json:"similarity"`
	Timestamp    time.Time `gorm:"index:idx_alerts_timestamp,sort:desc" json:"timestamp"`
}

// TableName sets the table name for AlertRecord.
func (AlertRecord) TableName() string { return "alert_records" }

// DailyStatistics holds the counters for one calendar day. Finished days are
// cached in the statistics table.
type DailyStatistics struct {
	Date             string `gorm:"primaryKey;size:10" json:"date"`
	TotalDetections  int64  `json:"total_detections"`
	UniquePlates     int64  `json:"unique_plates"`
	SuspiciousEvents int64  `json:"suspicious_events"`
	BlacklistHits    int64  `json:"blacklist_hits"`
}

// TableName sets the table name for DailyStatistics.
func (DailyStatistics) TableName() string { return "statistics" }

// allModels lists every entity handled by AutoMigrate.
func allModels() []any {
	return []any{
		&Identity{},
		&Variant{},
		&Detection{},
		&BlacklistEntry{},
		&AlertRecord{},
		&DailyStatistics{},
	}
}
