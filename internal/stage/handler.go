package stage

import (
	"context"

	"reelscribe/internal/queue"
)

// Handler describes the contract the workflow manager needs from each stage.
// Execute returns the location of the stage's output artifact. Handlers are
// shared by every worker of a pool and must be safe for concurrent use.
type Handler interface {
	Prepare(context.Context, queue.WorkClaim) error
	Execute(context.Context, queue.WorkClaim) (string, error)
	HealthCheck(context.Context) Health
}

// Health is a stage's answer to a readiness probe. Detail explains why a
// stage is not ready and is empty otherwise.
type Health struct {
	Name   string
	Ready  bool
	Detail string
}

func Healthy(name string) Health { return Health{Name: name, Ready: true} }

func Unhealthy(name, detail string) Health { return Health{Name: name, Detail: detail} }
