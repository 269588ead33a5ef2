package fwsnd

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

var (
	unitsOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fwsnd_units_open",
		Help: "The number of units currently open",
	})

	recordsRead = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fwsnd_records_read",
		Help: "The total number of event records read",
	})

	bytesRead = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fwsnd_records_bytes_read",
		Help: "The total number of event record bytes read",
	})

	recordsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fwsnd_records_dropped",
		Help: "Records of unknown type or malformed layout",
	})

	eventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fwsnd_events_published",
		Help: "The total number of events fanned out, by event",
	}, []string{"event"})

	disconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fwsnd_disconnects",
		Help: "The number of units seen disconnecting",
	})

	bridgeErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fwsnd_nats_publish_errors",
		Help: "Events that could not be published to NATS",
	})
)

func counterValue(c prometheus.Counter) int64 {
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		return 0
	}

	return int64(m.GetCounter().GetValue())
}

func gaugeValue(g prometheus.Gauge) int64 {
	var m dto.Metric
	if err := g.Write(&m); err != nil {
		return 0
	}

	return int64(m.GetGauge().GetValue())
}
