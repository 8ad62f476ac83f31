// Package metrics exposes the relay's Prometheus surface: connection and
// broadcast counters, buffer depth, parser outcomes by signal variant, and
// periodically sampled process CPU/memory gauges (§4.6, §4.3, §4.2).
package metrics

import (
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shirou/gopsutil/v3/process"
)

func currentPID() int { return os.Getpid() }

var (
	subscribersTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relay_subscribers_total",
		Help: "Total number of subscriber connections accepted",
	})

	subscribersActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "relay_subscribers_active",
		Help: "Current number of authenticated subscriber connections",
	})

	subscribersRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_subscribers_rejected_total",
		Help: "Total subscriber connections rejected, by reason",
	}, []string{"reason"})

	broadcastsSent = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relay_broadcasts_sent_total",
		Help: "Total live frames fanned out to subscribers",
	})

	broadcastsDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relay_broadcasts_dropped_total",
		Help: "Total live frames skipped because a subscriber's send buffer was full",
	})

	upstreamReconnects = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relay_upstream_reconnects_total",
		Help: "Total reconnect attempts made by the upstream connector",
	})

	upstreamConnected = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "relay_upstream_connected",
		Help: "Upstream connector status (1=connected, 0=disconnected)",
	})

	messagesProcessed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_messages_processed_total",
		Help: "Total upstream messages processed, by outcome",
	}, []string{"outcome"})

	parserVariants = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_parser_variants_total",
		Help: "Total messages parsed into a signal, by variant",
	}, []string{"variant"})

	processingDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "relay_processing_duration_seconds",
		Help:    "Time spent processing one upstream message end to end",
		Buckets: prometheus.DefBuckets,
	})

	bufferDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "relay_buffer_depth",
		Help: "Current number of items waiting in the durable write buffer",
	})

	bufferCapacity = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "relay_buffer_capacity",
		Help: "Configured capacity of the durable write buffer",
	})

	memoryUsageBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "relay_memory_bytes",
		Help: "Current process resident memory usage in bytes",
	})

	cpuUsagePercent = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "relay_cpu_usage_percent",
		Help: "Current process CPU usage percentage",
	})

	goroutinesActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "relay_goroutines_active",
		Help: "Current number of active goroutines",
	})
)

func init() {
	prometheus.MustRegister(
		subscribersTotal, subscribersActive, subscribersRejected,
		broadcastsSent, broadcastsDropped,
		upstreamReconnects, upstreamConnected,
		messagesProcessed, parserVariants, processingDuration,
		bufferDepth, bufferCapacity,
		memoryUsageBytes, cpuUsagePercent, goroutinesActive,
	)
}

// Outcome labels for messagesProcessed.
const (
	OutcomeSaved      = "saved"
	OutcomeDuplicate  = "duplicate"
	OutcomeFiltered   = "filtered"
	OutcomeBuffered   = "buffered"
	OutcomeMalformed  = "malformed"
)

// IncSubscriberConnected records a subscriber joining the live set.
func IncSubscriberConnected() { subscribersTotal.Inc() }

// SetSubscribersActive reports the current live subscriber count.
func SetSubscribersActive(n int) { subscribersActive.Set(float64(n)) }

// IncSubscriberRejected records a subscriber rejected during auth, by reason
// ("timeout", "invalid_key", "malformed").
func IncSubscriberRejected(reason string) { subscribersRejected.WithLabelValues(reason).Inc() }

// IncBroadcastSent records one live frame delivered to a subscriber.
func IncBroadcastSent() { broadcastsSent.Inc() }

// IncBroadcastDropped records one live frame skipped for a full buffer.
func IncBroadcastDropped() { broadcastsDropped.Inc() }

// IncUpstreamReconnect records one reconnect attempt by the upstream connector.
func IncUpstreamReconnect() { upstreamReconnects.Inc() }

// SetUpstreamConnected reports the upstream connector's current link state.
func SetUpstreamConnected(connected bool) {
	if connected {
		upstreamConnected.Set(1)
		return
	}
	upstreamConnected.Set(0)
}

// IncMessageOutcome records one processed message's terminal outcome.
func IncMessageOutcome(outcome string) { messagesProcessed.WithLabelValues(outcome).Inc() }

// IncParserVariant records one message parsed into the named signal variant.
func IncParserVariant(variant string) { parserVariants.WithLabelValues(variant).Inc() }

// ObserveProcessingDuration records one message's end-to-end processing time.
func ObserveProcessingDuration(d time.Duration) { processingDuration.Observe(d.Seconds()) }

// SetBufferDepth reports the durable buffer's current occupancy and capacity.
func SetBufferDepth(depth, capacity int) {
	bufferDepth.Set(float64(depth))
	bufferCapacity.Set(float64(capacity))
}

// Collector periodically samples process-level CPU and memory into the
// gauges above. Grounded on the teacher's collectMetrics goroutine, which
// reads a single process snapshot each tick rather than a streaming sampler.
type Collector struct {
	interval time.Duration
	stop     chan struct{}
	proc     *process.Process
}

// NewCollector builds a Collector sampling every interval.
func NewCollector(interval time.Duration) *Collector {
	proc, _ := process.NewProcess(int32(currentPID()))
	return &Collector{interval: interval, stop: make(chan struct{}), proc: proc}
}

// Start begins the sampling loop in its own goroutine.
func (c *Collector) Start() {
	ticker := time.NewTicker(c.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.sample()
			case <-c.stop:
				return
			}
		}
	}()
}

// Stop ends the sampling loop.
func (c *Collector) Stop() {
	close(c.stop)
}

func (c *Collector) sample() {
	if c.proc != nil {
		if memInfo, err := c.proc.MemoryInfo(); err == nil {
			memoryUsageBytes.Set(float64(memInfo.RSS))
		}
		if pct, err := c.proc.Percent(0); err == nil {
			cpuUsagePercent.Set(pct)
		}
	}
	goroutinesActive.Set(float64(runtime.NumGoroutine()))
}

// Handler serves the Prometheus exposition format at /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
