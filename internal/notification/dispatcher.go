package notification

import (
	"context"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/tphakala/platewatch/internal/errors"
	"github.com/tphakala/platewatch/internal/logger"
	"github.com/tphakala/platewatch/internal/observability/metrics"
)

// Delivery status labels beyond the shared success/error ones.
const (
	statusCircuitOpen = "circuit_open"
	statusRateLimited = "rate_limited"
	statusTimeout     = "timeout"
)

// ErrRateLimited is returned when a provider's limiter has no tokens left.
var ErrRateLimited = errors.NewStd("notification rate limit exceeded")

// DispatcherConfig holds the per-provider delivery guards.
type DispatcherConfig struct {
	// Timeout bounds each provider send.
	Timeout time.Duration
	// RequestsPerMinute and Burst configure the token bucket per provider.
	RequestsPerMinute int
	Burst             int
	// MaxFailures consecutive failures open the circuit for BreakerTimeout.
	MaxFailures    int
	BreakerTimeout time.Duration
}

// DefaultDispatcherConfig returns the delivery guards used when none are
// configured.
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		Timeout:           30 * time.Second,
		RequestsPerMinute: 60,
		Burst:             10,
		MaxFailures:       5,
		BreakerTimeout:    30 * time.Second,
	}
}

type guardedProvider struct {
	prov    Provider
	name    string
	breaker *gobreaker.CircuitBreaker[struct{}]
	limiter *rate.Limiter
}

// Dispatcher sends each notification to every registered provider. A
// provider is skipped while its circuit is open or, except for blacklist
// alerts, while its rate limit is spent. Failures are returned for logging only; nothing is retried.
type Dispatcher struct {
	cfg       DispatcherConfig
	providers []*guardedProvider
	metrics   *metrics.NotificationMetrics
	log       logger.Logger
}

// NewDispatcher registers the enabled providers that pass ValidateConfig.
// m may be nil.
func NewDispatcher(cfg DispatcherConfig, m *metrics.NotificationMetrics, providers ...Provider) *Dispatcher {
	def := DefaultDispatcherConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = def.RequestsPerMinute
	}
	if cfg.Burst <= 0 {
		cfg.Burst = def.Burst
	}
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = def.MaxFailures
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = def.BreakerTimeout
	}

	d := &Dispatcher{cfg: cfg, metrics: m, log: GetLogger()}
	for _, p := range providers {
		if p == nil || !p.IsEnabled() {
			continue
		}
		if err := p.ValidateConfig(); err != nil {
			d.log.Error("push provider config invalid",
				logger.String("provider", p.Name()),
				logger.Error(err))
			continue
		}
		d.providers = append(d.providers, d.guard(p))
		d.log.Debug("registered push provider", logger.String("provider", p.Name()))
	}
	return d
}

func (d *Dispatcher) guard(p Provider) *guardedProvider {
	name := p.Name()
	maxFailures := uint32(d.cfg.MaxFailures) //nolint:gosec // validated positive
	if d.metrics != nil {
		d.metrics.SetBreakerState(name, stateToInt(gobreaker.StateClosed))
	}

	breaker := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     d.cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			d.log.Info("circuit breaker state transition",
				logger.String("provider", name),
				logger.String("from", from.String()),
				logger.String("to", to.String()))
			if d.metrics != nil {
				d.metrics.SetBreakerState(name, stateToInt(to))
			}
		},
	})

	perSecond := rate.Limit(float64(d.cfg.RequestsPerMinute) / 60)
	return &guardedProvider{
		prov:    p,
		name:    name,
		breaker: breaker,
		limiter: rate.NewLimiter(perSecond, d.cfg.Burst),
	}
}

// Len returns the number of active providers.
func (d *Dispatcher) Len() int { return len(d.providers) }

// Providers returns the names of the active providers.
func (d *Dispatcher) Providers() []string {
	names := make([]string, 0, len(d.providers))
	for _, p := range d.providers {
		names = append(names, p.name)
	}
	return names
}

// Dispatch delivers n to every provider in turn and returns the joined
// failures.
func (d *Dispatcher) Dispatch(ctx context.Context, n *Notification) error {
	if n == nil {
		return nil
	}
	var errs []error
	for _, gp := range d.providers {
		if err := d.send(ctx, gp, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// rateLimited reports whether n must pass the provider's token bucket.
// Blacklist alerts are always delivered and do not spend tokens.
func rateLimited(n *Notification) bool {
	return n.Type != TypeBlacklist
}

func (d *Dispatcher) send(ctx context.Context, gp *guardedProvider, n *Notification) error {
	if rateLimited(n) && !gp.limiter.Allow() {
		d.record(gp.name, statusRateLimited, 0)
		if d.metrics != nil {
			d.metrics.RecordRateLimited(gp.name)
		}
		return errors.New(ErrRateLimited).
			Component("notification").
			Category(errors.CategoryLimit).
			Context("provider", gp.name).
			Build()
	}

	start := time.Now()
	_, err := gp.breaker.Execute(func() (struct{}, error) {
		sendCtx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
		defer cancel()
		return struct{}{}, gp.prov.Send(sendCtx, n)
	})
	elapsed := time.Since(start)

	switch {
	case err == nil:
		d.record(gp.name, metrics.StatusSuccess, elapsed)
		d.log.Debug("push sent",
			logger.String("provider", gp.name),
			logger.String("id", n.ID),
			logger.String("type", string(n.Type)),
			logger.String("priority", string(n.Priority)),
			logger.Duration("elapsed", elapsed))
		return nil
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		d.record(gp.name, statusCircuitOpen, elapsed)
	case errors.Is(err, context.DeadlineExceeded):
		d.record(gp.name, statusTimeout, elapsed)
	default:
		d.record(gp.name, metrics.StatusError, elapsed)
	}

	return errors.New(err).
		Component("notification").
		Category(errors.CategoryNotification).
		Context("provider", gp.name).
		Context("type", string(n.Type)).
		Timing("push_send", elapsed).
		Build()
}

func (d *Dispatcher) record(provider, status string, elapsed time.Duration) {
	if d.metrics != nil {
		d.metrics.RecordDelivery(provider, status, elapsed.Seconds())
	}
}

// stateToInt converts circuit breaker state to the metric value.
func stateToInt(state gobreaker.State) int {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
