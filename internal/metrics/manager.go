// Package metrics derives performance and risk statistics from the
// equity-curve history of a portfolio.
package metrics

import (
	"fmt"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/tiziaco/intelli-trader/internal/portfolio"
)

const (
	// Trading periods per year used for annualization.
	periodsPerYear = 252
	// Annual risk-free rate used in Sharpe/Sortino.
	riskFreeRate = 0.02
)

// Source is the slice of the ledger the metrics manager reads.
type Source interface {
	Snapshot(ts time.Time) portfolio.Snapshot
	RealizedResults() []float64
}

// Performance aggregates the return and risk statistics of a window of
// the equity curve.
type Performance struct {
	Start            time.Time
	End              time.Time
	Samples          int
	TotalReturn      float64
	AnnualizedReturn float64
	Volatility       float64
	Sharpe           float64
	Sortino          float64
	Calmar           float64
	MaxDrawdown      float64 // most negative peak-to-trough return
	DrawdownDuration time.Duration

	Trades       int
	Wins         int
	Losses       int
	WinRate      float64
	AvgWin       float64
	AvgLoss      float64
	ProfitFactor float64
}

// Distribution describes the shape of the period-return distribution.
type Distribution struct {
	Samples        int
	Mean           float64
	StdDev         float64
	Skewness       float64
	ExcessKurtosis float64
	Percentiles    map[int]float64 // keys 1, 5, 25, 50, 75, 95, 99
	VaR95          float64
	VaR99          float64
	CVaR95         float64
	CVaR99         float64
}

// Manager captures portfolio snapshots into a bounded history and
// computes cached statistics over it. Capture is throttled so bar
// storms cannot flood the history; explicit Record calls bypass the
// throttle.
type Manager struct {
	source   Source
	capacity int
	limiter  *rate.Limiter
	ttl      time.Duration

	mu      sync.RWMutex
	history []portfolio.Snapshot
	cache   map[string]cacheEntry
}

type cacheEntry struct {
	at    time.Time
	value any
}

// Option configures a Manager.
type Option func(*Manager)

// WithCapacity bounds the snapshot history; the oldest entries are
// pruned past it.
func WithCapacity(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.capacity = n
		}
	}
}

// WithCaptureRate limits throttled captures to n per second.
func WithCaptureRate(n float64) Option {
	return func(m *Manager) {
		if n > 0 {
			m.limiter = rate.NewLimiter(rate.Limit(n), 1)
		}
	}
}

// WithCacheTTL sets how long computed statistics stay valid without a
// ledger mutation.
func WithCacheTTL(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.ttl = d
		}
	}
}

// NewManager creates a metrics manager over a snapshot source.
func NewManager(source Source, opts ...Option) *Manager {
	m := &Manager{
		source:   source,
		capacity: 10000,
		limiter:  rate.NewLimiter(rate.Limit(5), 1),
		ttl:      5 * time.Second,
		cache:    make(map[string]cacheEntry),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Capture appends a snapshot unless the rate limiter refuses; it
// reports whether a snapshot was taken.
func (m *Manager) Capture(ts time.Time) bool {
	if !m.limiter.Allow() {
		return false
	}
	m.Record(ts)
	return true
}

// Record appends a snapshot unconditionally.
func (m *Manager) Record(ts time.Time) {
	snap := m.source.Snapshot(ts)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = append(m.history, snap)
	if len(m.history) > m.capacity {
		m.history = m.history[len(m.history)-m.capacity:]
	}
}

// Invalidate drops cached statistics. Called on every ledger mutation.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache = make(map[string]cacheEntry)
}

// Current returns the latest captured snapshot.
func (m *Manager) Current() (portfolio.Snapshot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.history) == 0 {
		return portfolio.Snapshot{}, false
	}
	return m.history[len(m.history)-1], true
}

// History returns a copy of the captured snapshots in time order.
func (m *Manager) History() []portfolio.Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]portfolio.Snapshot, len(m.history))
	copy(out, m.history)
	return out
}

// Performance computes return and risk statistics over the snapshots
// inside the window ending now (0 means the full history). Results are
// cached until the TTL expires or the ledger mutates.
func (m *Manager) Performance(window time.Duration) Performance {
	key := fmt.Sprintf("perf:%d", window)
	if v, ok := m.cached(key); ok {
		return v.(Performance)
	}
	perf := m.computePerformance(window)
	m.store(key, perf)
	return perf
}

// ReturnDistribution describes the period-return distribution over the
// same window semantics as Performance.
func (m *Manager) ReturnDistribution(window time.Duration) Distribution {
	key := fmt.Sprintf("dist:%d", window)
	if v, ok := m.cached(key); ok {
		return v.(Distribution)
	}
	snaps := m.window(window)
	dist := computeDistribution(equityReturns(snaps))
	m.store(key, dist)
	return dist
}

func (m *Manager) cached(key string) (any, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.cache[key]
	if !ok || time.Since(e.at) > m.ttl {
		return nil, false
	}
	return e.value, true
}

func (m *Manager) store(key string, v any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache[key] = cacheEntry{at: time.Now(), value: v}
}

func (m *Manager) window(window time.Duration) []portfolio.Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if window <= 0 || len(m.history) == 0 {
		out := make([]portfolio.Snapshot, len(m.history))
		copy(out, m.history)
		return out
	}
	cutoff := time.Now().Add(-window)
	for i, s := range m.history {
		if !s.Timestamp.Before(cutoff) {
			out := make([]portfolio.Snapshot, len(m.history)-i)
			copy(out, m.history[i:])
			return out
		}
	}
	return nil
}

func (m *Manager) computePerformance(window time.Duration) Performance {
	snaps := m.window(window)
	perf := Performance{Samples: len(snaps)}
	if len(snaps) > 0 {
		perf.Start = snaps[0].Timestamp
		perf.End = snaps[len(snaps)-1].Timestamp
	}

	returns := equityReturns(snaps)
	if len(snaps) >= 2 && snaps[0].TotalEquity > 0 {
		perf.TotalReturn = snaps[len(snaps)-1].TotalEquity/snaps[0].TotalEquity - 1
		perf.AnnualizedReturn = math.Pow(1+perf.TotalReturn, periodsPerYear/float64(len(returns))) - 1
	}
	perf.Volatility = stddev(returns) * math.Sqrt(periodsPerYear)
	perf.MaxDrawdown, perf.DrawdownDuration = maxDrawdown(snaps)

	if perf.Volatility > 0 {
		perf.Sharpe = (perf.AnnualizedReturn - riskFreeRate) / perf.Volatility
	}
	if dd := downsideDeviation(returns) * math.Sqrt(periodsPerYear); dd > 0 {
		perf.Sortino = (perf.AnnualizedReturn - riskFreeRate) / dd
	}
	if perf.MaxDrawdown < 0 {
		perf.Calmar = perf.AnnualizedReturn / -perf.MaxDrawdown
	}

	results := m.source.RealizedResults()
	perf.Trades = len(results)
	var grossWin, grossLoss float64
	for _, r := range results {
		if r > 0 {
			perf.Wins++
			grossWin += r
		} else if r < 0 {
			perf.Losses++
			grossLoss += r
		}
	}
	if perf.Trades > 0 {
		perf.WinRate = float64(perf.Wins) / float64(perf.Trades)
	}
	if perf.Wins > 0 {
		perf.AvgWin = grossWin / float64(perf.Wins)
	}
	if perf.Losses > 0 {
		perf.AvgLoss = grossLoss / float64(perf.Losses)
	}
	if grossLoss != 0 {
		perf.ProfitFactor = grossWin / -grossLoss
	}
	return perf
}

// equityReturns derives period returns from consecutive snapshots.
func equityReturns(snaps []portfolio.Snapshot) []float64 {
	if len(snaps) < 2 {
		return nil
	}
	out := make([]float64, 0, len(snaps)-1)
	for i := 1; i < len(snaps); i++ {
		prev := snaps[i-1].TotalEquity
		if prev <= 0 {
			continue
		}
		out = append(out, snaps[i].TotalEquity/prev-1)
	}
	return out
}

// maxDrawdown returns the most negative peak-to-trough return and the
// longest time the curve stayed below a prior peak.
func maxDrawdown(snaps []portfolio.Snapshot) (float64, time.Duration) {
	if len(snaps) == 0 {
		return 0, 0
	}
	peak := snaps[0].TotalEquity
	peakAt := snaps[0].Timestamp
	var worst float64
	var longest time.Duration
	for _, s := range snaps {
		if s.TotalEquity >= peak {
			peak = s.TotalEquity
			peakAt = s.Timestamp
			continue
		}
		if peak > 0 {
			if dd := s.TotalEquity/peak - 1; dd < worst {
				worst = dd
			}
		}
		if under := s.Timestamp.Sub(peakAt); under > longest {
			longest = under
		}
	}
	return worst, longest
}

func downsideDeviation(returns []float64) float64 {
	var neg []float64
	for _, r := range returns {
		if r < 0 {
			neg = append(neg, r)
		}
	}
	return stddev(neg)
}

func computeDistribution(returns []float64) Distribution {
	dist := Distribution{
		Samples:     len(returns),
		Percentiles: make(map[int]float64),
	}
	if len(returns) == 0 {
		return dist
	}
	dist.Mean = mean(returns)
	dist.StdDev = stddev(returns)
	dist.Skewness = skewness(returns)
	dist.ExcessKurtosis = excessKurtosis(returns)
	for _, p := range []int{1, 5, 25, 50, 75, 95, 99} {
		dist.Percentiles[p] = percentile(returns, float64(p))
	}
	p5 := dist.Percentiles[5]
	p1 := dist.Percentiles[1]
	dist.VaR95 = -p5
	dist.VaR99 = -p1
	dist.CVaR95 = -conditionalMeanBelow(returns, p5)
	dist.CVaR99 = -conditionalMeanBelow(returns, p1)
	return dist
}
