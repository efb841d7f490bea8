package scrape

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/nicktill/ntk-tracker/pkg/logging"
	"github.com/nicktill/ntk-tracker/pkg/metrics"
)

const breakerName = "ntk-homepage"

// Config describes the upstream page.
type Config struct {
	URL       string
	Selector  string
	UserAgent string
	Timeout   time.Duration
	// BreakerFailures consecutive upstream failures open the circuit for
	// BreakerCooldown.
	BreakerFailures uint32
	BreakerCooldown time.Duration
}

// Fetcher downloads and parses the homepage through a circuit breaker.
type Fetcher struct {
	cfg    Config
	client *http.Client
	cb     *gobreaker.CircuitBreaker[int]
	log    zerolog.Logger
}

// NewFetcher creates a fetcher. A nil client gets one with cfg.Timeout.
func NewFetcher(cfg Config, client *http.Client) *Fetcher {
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 5
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}

	f := &Fetcher{cfg: cfg, client: client, log: logging.Component("scraper")}
	metrics.BreakerState.WithLabelValues(breakerName).Set(0)

	f.cb = gobreaker.NewCircuitBreaker[int](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Timeout:     cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		// A page that loads but does not parse is not an outage.
		IsSuccessful: func(err error) bool {
			return err == nil || !errors.Is(err, ErrUpstream)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			f.log.Info().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
			metrics.BreakerState.WithLabelValues(name).Set(float64(to))
		},
	})
	return f
}

// FetchCurrentOccupancy returns the count currently shown on the page.
func (f *Fetcher) FetchCurrentOccupancy(ctx context.Context) (int, error) {
	return f.cb.Execute(func() (int, error) {
		return f.fetch(ctx)
	})
}

// State reports the breaker state.
func (f *Fetcher) State() gobreaker.State {
	return f.cb.State()
}

func (f *Fetcher) fetch(ctx context.Context) (int, error) {
	if f.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.cfg.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.cfg.URL, nil)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	if f.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", f.cfg.UserAgent)
	}

	start := time.Now()
	resp, err := f.client.Do(req)
	metrics.ScrapeDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, fmt.Errorf("%w: status %d", ErrUpstream, resp.StatusCode)
	}

	count, err := ParseOccupancy(resp.Body, f.cfg.Selector)
	if err != nil {
		return 0, err
	}
	f.log.Debug().Int("people_count", count).Dur("elapsed", time.Since(start)).Msg("occupancy scraped")
	return count, nil
}
