package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var buildInfoOnce sync.Once

// InitBuildInfo publishes build_info{version,commit} 1 on the default
// registry. Only the first call registers; later calls are no-ops.
func InitBuildInfo(version, commit string) {
	gauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "build_info",
		Help: "Tenauth API build information.",
		ConstLabels: prometheus.Labels{
			"version": version,
			"commit":  commit,
		},
	})
	buildInfoOnce.Do(func() {
		prometheus.MustRegister(gauge)
		gauge.Set(1)
	})
}
