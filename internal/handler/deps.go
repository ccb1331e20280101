package handler

import (
	"github.com/prometheus/client_golang/prometheus"

	"bpmncollab/internal/app/collab"
	"bpmncollab/internal/app/session"
	"bpmncollab/internal/app/user"
	"bpmncollab/internal/configs"
)

// AppDeps holds the process-wide components shared by every handler.
type AppDeps struct {
	Config   *configs.AppConfig
	Users    *user.Store
	Sessions *session.Store
	Registry *collab.Registry
	Router   *collab.Router

	// Gatherer backs the /metrics endpoint.
	Gatherer prometheus.Gatherer
}
