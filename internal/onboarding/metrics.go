package onboarding

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	finalizeDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "neighborvendors",
		Subsystem: "onboarding",
		Name:      "finalize_decisions_total",
		Help:      "Finalize outcomes by decision kind.",
	}, []string{"kind"})

	orphanRepairs = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "neighborvendors",
		Subsystem: "onboarding",
		Name:      "orphan_repairs_total",
		Help:      "Orphan repairs by strategy.",
	}, []string{"strategy"})

	emailClassifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "neighborvendors",
		Subsystem: "onboarding",
		Name:      "email_classifications_total",
		Help:      "Email-status lookups by resulting status.",
	}, []string{"status"})
)
