package processor

import "github.com/prometheus/client_golang/prometheus"

// Job outcome label values.
const (
	outcomeCompleted       = "completed"
	outcomeFailed          = "failed"
	outcomeLayoutViolation = "layout_violation"
)

var (
	queueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "smaq_queue_depth",
		Help: "Number of work items waiting in the queue.",
	})

	workerRunning = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "smaq_worker_running",
		Help: "1 while the worker is draining the queue, 0 while idle.",
	})

	workerActivations = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "smaq_worker_activations_total",
		Help: "Number of idle to running transitions of the worker.",
	})

	jobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smaq_jobs_total",
			Help: "Finished jobs by outcome.",
		},
		[]string{"outcome"},
	)

	computeDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "smaq_compute_duration_seconds",
		Help:    "Wall time of a single engine call.",
		Buckets: prometheus.DefBuckets,
	})
)

func init() {
	prometheus.MustRegister(queueDepth)
	prometheus.MustRegister(workerRunning)
	prometheus.MustRegister(workerActivations)
	prometheus.MustRegister(jobsTotal)
	prometheus.MustRegister(computeDuration)
}
