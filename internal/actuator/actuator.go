// Package actuator issues scale commands to the orchestrator. The engine
// only sees the Actuator interface; the kubectl implementation mirrors how
// the experiment harness drives its cluster.
package actuator

import "context"

// Actuator sets a service's desired replica count and reads it back.
// Implementations are assumed idempotent (setting the current count is a
// no-op) and non-transactional across services.
type Actuator interface {
	Scale(ctx context.Context, service string, replicas int) error
	CurrentReplicas(ctx context.Context, service string) (int, error)
}
