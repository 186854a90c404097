package zenwire

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	decodes      *prometheus.CounterVec
	encodes      *prometheus.CounterVec
	decodedBytes prometheus.Counter
}

// newMetrics creates the codec counters. A nil reg leaves them unregistered.
func newMetrics(reg prometheus.Registerer) *metrics {
	return &metrics{
		decodes: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "zenwire",
			Name:      "decode_total",
			Help:      "Total number of decoded messages by result.",
		}, []string{"result"}),
		encodes: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "zenwire",
			Name:      "encode_total",
			Help:      "Total number of encoded messages by result.",
		}, []string{"result"}),
		decodedBytes: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: "zenwire",
			Name:      "decoded_bytes_total",
			Help:      "Total number of input bytes consumed by decodes.",
		}),
	}
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

func (m *metrics) observeDecode(consumed int64, err error) {
	m.decodes.WithLabelValues(result(err)).Inc()
	m.decodedBytes.Add(float64(consumed))
}

func (m *metrics) observeEncode(err error) {
	m.encodes.WithLabelValues(result(err)).Inc()
}
