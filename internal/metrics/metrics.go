// Package metrics exposes Prometheus instrumentation for the entitlement service.
//
//	entitled_cache_hits_total{cache}
//	entitled_cache_misses_total{cache}
//	entitled_cache_expired_total{cache,reason}   reason = get | sweep
//	entitled_resolutions_total{result}           result = hit | fetched | failed
//	entitled_grant_events_total{kind}
//	entitled_http_requests_total{path,status}
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "entitled_cache_hits_total",
	Help: "Cache reads that returned a live entry.",
}, []string{"cache"})

var CacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "entitled_cache_misses_total",
	Help: "Cache reads that found no live entry.",
}, []string{"cache"})

var CacheExpired = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "entitled_cache_expired_total",
	Help: "Cache entries dropped after their TTL passed.",
}, []string{"cache", "reason"})

var Resolutions = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "entitled_resolutions_total",
	Help: "Entitlement resolutions by outcome.",
}, []string{"result"})

var GrantEvents = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "entitled_grant_events_total",
	Help: "Grant mutations by kind.",
}, []string{"kind"})

var HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "entitled_http_requests_total",
	Help: "HTTP requests by path and status code.",
}, []string{"path", "status"})

const (
	ResultHit     = "hit"
	ResultFetched = "fetched"
	ResultFailed  = "failed"
)

// CacheObserver reports cache events for the named cache. It satisfies cache.Observer.
type CacheObserver struct {
	hits   prometheus.Counter
	misses prometheus.Counter
	lazy   prometheus.Counter
	swept  prometheus.Counter
}

func NewCacheObserver(name string) *CacheObserver {
	return &CacheObserver{
		hits:   CacheHits.WithLabelValues(name),
		misses: CacheMisses.WithLabelValues(name),
		lazy:   CacheExpired.WithLabelValues(name, "get"),
		swept:  CacheExpired.WithLabelValues(name, "sweep"),
	}
}

func (o *CacheObserver) Hit()  { o.hits.Inc() }
func (o *CacheObserver) Miss() { o.misses.Inc() }
func (o *CacheObserver) Expired(n int, swept bool) {
	if swept {
		o.swept.Add(float64(n))
		return
	}
	o.lazy.Add(float64(n))
}

// ObserveHTTP records one handled request.
func ObserveHTTP(path string, status int) {
	HTTPRequests.WithLabelValues(path, strconv.Itoa(status)).Inc()
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
