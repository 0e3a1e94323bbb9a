// Package metrics exposes Prometheus counters for ledger activity.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the ledger collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	purchases   prometheus.Counter
	volume      prometheus.Counter
	fees        prometheus.Counter
	completions prometheus.Counter
	disputes    prometheus.Counter
	deposits    prometheus.Counter
	listings    prometheus.Counter
	profiles    prometheus.Counter
	reviews     *prometheus.CounterVec
	failures    *prometheus.CounterVec
}

// New builds the collectors on a private registry, alongside the Go and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		purchases: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "peerledger_purchases_total",
			Help: "Count of committed purchases.",
		}),
		volume: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "peerledger_volume_total",
			Help: "Sum of committed purchase prices in base units.",
		}),
		fees: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "peerledger_fees_total",
			Help: "Sum of marketplace fees collected in base units.",
		}),
		completions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "peerledger_completions_total",
			Help: "Count of purchases marked completed.",
		}),
		disputes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "peerledger_disputes_total",
			Help: "Count of purchases moved to disputed.",
		}),
		deposits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "peerledger_deposits_total",
			Help: "Sum of wallet deposits in base units.",
		}),
		listings: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "peerledger_listings_created_total",
			Help: "Count of listings created.",
		}),
		profiles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "peerledger_profiles_created_total",
			Help: "Count of user profiles created.",
		}),
		reviews: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "peerledger_reviews_total",
			Help: "Count of reviews by direction.",
		}, []string{"direction"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "peerledger_operation_failures_total",
			Help: "Count of rejected operations by operation and error code.",
		}, []string{"operation", "code"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.purchases,
		m.volume,
		m.fees,
		m.completions,
		m.disputes,
		m.deposits,
		m.listings,
		m.profiles,
		m.reviews,
		m.failures,
	)
	return m
}

// Registry returns the registry backing the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObservePurchase(price, fee int64) {
	if m == nil {
		return
	}
	m.purchases.Inc()
	m.volume.Add(float64(price))
	m.fees.Add(float64(fee))
}

func (m *Metrics) ObserveCompletion() {
	if m == nil {
		return
	}
	m.completions.Inc()
}

func (m *Metrics) ObserveDispute() {
	if m == nil {
		return
	}
	m.disputes.Inc()
}

func (m *Metrics) ObserveDeposit(amount int64) {
	if m == nil {
		return
	}
	m.deposits.Add(float64(amount))
}

func (m *Metrics) ObserveListing() {
	if m == nil {
		return
	}
	m.listings.Inc()
}

func (m *Metrics) ObserveProfile() {
	if m == nil {
		return
	}
	m.profiles.Inc()
}

// ObserveReview counts a review; sellerReview selects the direction label.
func (m *Metrics) ObserveReview(sellerReview bool) {
	if m == nil {
		return
	}
	direction := "buyer"
	if sellerReview {
		direction = "seller"
	}
	m.reviews.WithLabelValues(direction).Inc()
}

// ObserveFailure counts a rejected operation. An empty code is recorded as "internal".
func (m *Metrics) ObserveFailure(operation, code string) {
	if m == nil {
		return
	}
	if code == "" {
		code = "internal"
	}
	m.failures.WithLabelValues(operation, code).Inc()
}
