// Package metrics exposes hold ledger counters to prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/cimillas/ultimate-ticket/holds/internal/domain"
)

const namespace = "holds"

// Collectors implements app.Observer.
type Collectors struct {
	placed       *prometheus.CounterVec
	confirmed    prometheus.Counter
	released     prometheus.Counter
	expired      prometheus.Counter
	promoted     prometheus.Counter
	failedZones  prometheus.Counter
	lockFailures *prometheus.CounterVec
	sweeps       prometheus.Histogram
	skipped      prometheus.Counter
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Collectors {
	c := &Collectors{
		placed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "placed_total",
			Help:      "Holds created by placement, by initial status.",
		}, []string{"status"}),
		confirmed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "confirmed_total",
			Help:      "Pending holds confirmed into sold seats.",
		}),
		released: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "released_total",
			Help:      "Holds released by a declined or cancelled checkout.",
		}),
		expired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "expired_total",
			Help:      "Pending holds expired by the sweeper.",
		}),
		promoted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "promoted_total",
			Help:      "Waiting holds promoted to pending by the sweeper.",
		}),
		failedZones: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_failed_zones_total",
			Help:      "Zones skipped by a sweep because promotion failed.",
		}),
		lockFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lock_failures_total",
			Help:      "Zone lock timeouts and deadlocks, by operation.",
		}, []string{"op"}),
		sweeps: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sweep_duration_seconds",
			Help:      "Wall time of one expiry and promotion sweep.",
			Buckets:   prometheus.DefBuckets,
		}),
		skipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_skipped_total",
			Help:      "Sweep ticks skipped because another sweep was still running.",
		}),
	}
	reg.MustRegister(
		c.placed, c.confirmed, c.released, c.expired, c.promoted,
		c.failedZones, c.lockFailures, c.sweeps, c.skipped,
	)
	return c
}

func (c *Collectors) HoldsPlaced(status domain.HoldStatus, n int) {
	c.placed.WithLabelValues(string(status)).Add(float64(n))
}

func (c *Collectors) HoldsConfirmed(n int) { c.confirmed.Add(float64(n)) }

func (c *Collectors) HoldsReleased(n int) { c.released.Add(float64(n)) }

func (c *Collectors) SweepFinished(expired, promoted, failedZones int, d time.Duration) {
	c.expired.Add(float64(expired))
	c.promoted.Add(float64(promoted))
	c.failedZones.Add(float64(failedZones))
	c.sweeps.Observe(d.Seconds())
}

func (c *Collectors) LockFailed(op string) {
	c.lockFailures.WithLabelValues(op).Inc()
}

// SweepSkipped counts a tick dropped while a sweep was in flight.
func (c *Collectors) SweepSkipped() { c.skipped.Inc() }
