package source

import (
	"bufio"
	"context"
	"io"
	"time"

	"github.com/tphakala/platewatch/internal/errors"
	"github.com/tphakala/platewatch/internal/logger"
)

// maxLineSize bounds a single JSON line, inline images included.
const maxLineSize = 8 << 20

// ReplayResult counts what a replay did.
type ReplayResult struct {
	Lines    int
	Accepted int
	Dropped  int
	Invalid  int
}

// ReplaySource reads JSON-lines recognition results and feeds them to a sink.
type ReplaySource struct {
	r        io.Reader
	sink     Sink
	realtime bool
	imageDir string
	log      logger.Logger
}

// ReplayOption configures a ReplaySource.
type ReplayOption func(*ReplaySource)

// WithRealtime waits between messages for the gap between their timestamps.
func WithRealtime(enabled bool) ReplayOption {
	return func(s *ReplaySource) { s.realtime = enabled }
}

// WithImageDir sets the directory relative image paths are resolved against.
func WithImageDir(dir string) ReplayOption {
	return func(s *ReplaySource) { s.imageDir = dir }
}

// NewReplaySource returns a source reading from r.
func NewReplaySource(r io.Reader, sink Sink, opts ...ReplayOption) *ReplaySource {
	s := &ReplaySource{r: r, sink: sink, log: GetLogger()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run feeds every line to the sink until the reader is exhausted or ctx is
// done. Invalid lines are logged and skipped.
func (s *ReplaySource) Run(ctx context.Context) (ReplayResult, error) {
	var res ReplayResult
	var prev time.Time

	scanner := bufio.NewScanner(s.r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		res.Lines++

		msg, err := ParseMessage(line)
		if err != nil {
			res.Invalid++
			s.log.Warn("skipping invalid replay line", logger.Int("line", res.Lines), logger.Error(err))
			continue
		}

		if s.realtime && !prev.IsZero() && msg.Timestamp.After(prev) {
			if err := sleep(ctx, msg.Timestamp.Sub(prev)); err != nil {
				return res, err
			}
		}
		if !msg.Timestamp.IsZero() {
			prev = msg.Timestamp
		}

		det, err := msg.Detection(s.imageDir)
		if err != nil {
			res.Invalid++
			s.log.Warn("skipping replay line with unreadable image", logger.Int("line", res.Lines), logger.Error(err))
			continue
		}
		if s.sink.OnDetection(det) {
			res.Accepted++
		} else {
			res.Dropped++
		}
	}
	if err := scanner.Err(); err != nil {
		return res, errors.New(err).
			Component("source").
			Category(errors.CategoryFileIO).
			Context("line", res.Lines).
			Build()
	}

	s.log.Info("replay finished",
		logger.Int("lines", res.Lines),
		logger.Int("accepted", res.Accepted),
		logger.Int("dropped", res.Dropped),
		logger.Int("invalid", res.Invalid))
	return res, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
