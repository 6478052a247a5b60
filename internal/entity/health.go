package entity

const (
	HealthHealthy  = "healthy"
	HealthDegraded = "degraded"
)

type Health struct {
	Status       string `json:"status"`
	ModelsLoaded bool   `json:"models_loaded"`
	Message      string `json:"message"`
	Encoder      string `json:"encoder,omitempty"`
	Device       string `json:"device,omitempty"`
}
