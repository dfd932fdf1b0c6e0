package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	stepValidations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "booking_step_validations_total",
		Help: "Step payload validations by step and result.",
	}, []string{"step_id", "result"})

	stepPersists = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "booking_step_persist_total",
		Help: "Successful step progress writes by storage backend.",
	}, []string{"backend"})

	leadForwards = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "booking_lead_forward_total",
		Help: "Lead webhook deliveries by result.",
	}, []string{"result"})
)
