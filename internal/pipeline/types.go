package pipeline

import (
	"sync"
	"time"

	"github.com/tphakala/platewatch/internal/datastore"
)

// ImageHandle is an image owned by the recognition engine. Release must be
// called exactly once after the bytes are no longer needed.
type ImageHandle interface {
	Bytes() []byte
	Release()
}

// RawDetection is one plate reading delivered by the recognition engine.
type RawDetection struct {
	Text        string
	Confidence  int // 0-100
	CountryCode string
	Timestamp   time.Time
	Image       ImageHandle // may be nil
}

// release frees the image handle, if any.
func (d RawDetection) release() {
	if d.Image != nil {
		d.Image.Release()
	}
}

type onceImage struct {
	ImageHandle
	once sync.Once
}

func (i *onceImage) Release() {
	i.once.Do(i.ImageHandle.Release)
}

// releaseOnce wraps h so repeated Release calls reach the engine only once.
func releaseOnce(h ImageHandle) ImageHandle {
	if h == nil {
		return nil
	}
	if _, ok := h.(*onceImage); ok {
		return h
	}
	return &onceImage{ImageHandle: h}
}

type bytesImage struct {
	data    []byte
	release func()
}

func (b *bytesImage) Bytes() []byte { return b.data }

func (b *bytesImage) Release() {
	if b.release != nil {
		b.release()
	}
}

// NewBytesImage adapts an in-memory image to ImageHandle. release may be nil.
func NewBytesImage(data []byte, release func()) ImageHandle {
	return &bytesImage{data: data, release: release}
}

// RecentPlate is an entry of the recently seen plates cache.
type RecentPlate struct {
	CanonicalText string    `json:"canonical_text"`
	LastSeen      time.Time `json:"last_seen"`
	Confidence    float64   `json:"confidence"`
	Detections    int64     `json:"detection_count"`
	Grouped       bool      `json:"grouped"`
	IsSuspicious  bool      `json:"is_suspicious"`
	IsBlacklisted bool      `json:"is_blacklisted"`
}

type persistKind int

const (
	persistAlert persistKind = iota
	persistSuspicious
	persistImage
	persistRetention
)

func (k persistKind) String() string {
	switch k {
	case persistAlert:
		return "alert"
	case persistSuspicious:
		return "suspicious"
	case persistImage:
		return "image"
	case persistRetention:
		return "retention"
	default:
		return "unknown"
	}
}

// persistJob is a store or filesystem mutation run by the persistence worker.
type persistJob struct {
	kind   persistKind
	alert  *datastore.AlertRecord
	plate  string
	ref    string
	data   []byte
	cutoff time.Time
}

type maintenanceJob int

const (
	jobPruneThrottle maintenanceJob = iota
	jobEvictRecent
	jobRetention
	jobReclaimMemory
)

func (j maintenanceJob) String() string {
	switch j {
	case jobPruneThrottle:
		return "prune_throttle"
	case jobEvictRecent:
		return "evict_recent"
	case jobRetention:
		return "retention"
	case jobReclaimMemory:
		return "reclaim_memory"
	default:
		return "unknown"
	}
}

// reportRequest asks the statistics worker for the digest of one day.
type reportRequest struct {
	day time.Time
}
