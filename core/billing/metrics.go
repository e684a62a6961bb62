package billing

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	notificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "shule",
		Subsystem: "billing",
		Name:      "notifications_total",
		Help:      "Gateway notifications by processing outcome.",
	}, []string{"outcome"})

	settledCentsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "shule",
		Subsystem: "billing",
		Name:      "settled_cents_total",
		Help:      "Total settled amount in cents, all methods.",
	})
)
