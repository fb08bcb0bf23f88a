package pyctx

import "github.com/prometheus/client_golang/prometheus"

// profileCounter is the Prometheus gauge family ExportProfile publishes a
// Context's profile counters to, one gauge per counter name; it is
// registered with the default Prometheus registry at package init.
var profileCounter = prometheus.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "pysandbox",
	Name:      "profile_counter",
	Help:      "Per-run interpreter profile counters (op dispatch counts, builtin call counts).",
}, []string{"counter"})

func init() {
	prometheus.MustRegister(profileCounter)
}

// ExportProfile publishes every entry of c.Profile to the registered
// Prometheus gauge vector. Each call sets every gauge to its counter's
// current value, so a later call overwrites rather than adds to an
// earlier one.
func (c *Context) ExportProfile() {
	for name, count := range c.Profile {
		profileCounter.WithLabelValues(name).Set(float64(count))
	}
}
