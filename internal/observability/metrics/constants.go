// Package metrics provides constants used across metric definitions.
package metrics

// Histogram bucket parameters.
const (
	BucketStart1ms = 0.001
	BucketFactor2  = 2.0
	BucketCount12  = 12
	BucketCount15  = 15
)

// Operation names recorded by the datastore.
const (
	OpCanonicalTexts    = "canonical_texts"
	OpRecordObservation = "record_observation"
	OpLatestUngrouped   = "latest_ungrouped"
	OpMarkSuspicious    = "mark_suspicious"
	OpAppendAlert       = "append_alert"
	OpBlacklist         = "blacklist"
	OpSearch            = "search"
	OpStatistics        = "statistics"
	OpCleanup           = "cleanup"
	OpExport            = "export"
)

// Status labels.
const (
	StatusSuccess = "success"
	StatusError   = "error"
	StatusDropped = "dropped"
)
