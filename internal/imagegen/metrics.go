package imagegen

import "github.com/prometheus/client_golang/prometheus"

var (
	// generationAttempts counts upstream attempts by outcome label.
	generationAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "genart_generation_attempts_total",
			Help: "Upstream image generation attempts by outcome.",
		},
		[]string{"outcome"},
	)

	// keyRotations counts credential advances performed by the retrier.
	keyRotations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "genart_key_rotations_total",
			Help: "Number of API credential rotations.",
		},
	)
)

func init() {
	prometheus.MustRegister(generationAttempts, keyRotations)
}
