package perf

import (
	"expvar"
	"net/http"

	"github.com/encodeous/metric"
)

var (
	DispatchLatency   = metric.NewHistogram("1m1s")
	RecomputeChanges  = metric.NewHistogram("1m1s")
	AdvertsAccepted   = metric.NewCounter("10s1s")
	AdvertsStale      = metric.NewCounter("10s1s")
	AdvertsMalformed  = metric.NewCounter("10s1s")
	Floods            = metric.NewCounter("10s1s")
	PacketsSent       = metric.NewCounter("10s1s")
	PacketsLost       = metric.NewCounter("10s1s")
	TracesForwarded   = metric.NewCounter("10s1s")
	TracesDelivered   = metric.NewCounter("10s1s")
	TracesDropped     = metric.NewCounter("10s1s")
	LinkDeliveryDelay = metric.NewHistogram("1m1s")
)

func init() {
	http.Handle("/debug/metrics", metric.Handler(metric.Exposed))
	expvar.Publish("lsr:DispatchLatency (µs)", DispatchLatency)
	expvar.Publish("lsr:RecomputeChanges", RecomputeChanges)
	expvar.Publish("lsr:AdvertsAccepted/s", AdvertsAccepted)
	expvar.Publish("lsr:AdvertsStale/s", AdvertsStale)
	expvar.Publish("lsr:AdvertsMalformed/s", AdvertsMalformed)
	expvar.Publish("lsr:Floods/s", Floods)
	expvar.Publish("lsr:PacketsSent/s", PacketsSent)
	expvar.Publish("lsr:PacketsLost/s", PacketsLost)
	expvar.Publish("lsr:TracesForwarded/s", TracesForwarded)
	expvar.Publish("lsr:TracesDelivered/s", TracesDelivered)
	expvar.Publish("lsr:TracesDropped/s", TracesDropped)
	expvar.Publish("lsr:LinkDeliveryDelay (µs)", LinkDeliveryDelay)
}
