package metrics

import "github.com/prometheus/client_golang/prometheus"

var reg = prometheus.DefaultRegisterer

func Registerer() prometheus.Registerer { return reg }

// UseRegisterer swaps the registerer used by collectors created afterwards.
// Call it before the first accessor.
func UseRegisterer(r prometheus.Registerer) {
	if r != nil {
		reg = r
	}
}
