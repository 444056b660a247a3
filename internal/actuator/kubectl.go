package actuator

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// KubectlConfig configures the kubectl-backed actuator.
type KubectlConfig struct {
	Binary    string        `mapstructure:"binary"`
	Namespace string        `mapstructure:"namespace"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// DefaultKubectlConfig targets the default namespace with a short timeout;
// a hung orchestrator call must never stall the control loop past a tick.
func DefaultKubectlConfig() KubectlConfig {
	return KubectlConfig{
		Binary:    "kubectl",
		Namespace: "default",
		Timeout:   15 * time.Second,
	}
}

// Kubectl scales deployments by shelling out to kubectl, one deployment
// per tracked service.
type Kubectl struct {
	cfg    KubectlConfig
	logger *zap.Logger

	// runCommand is swappable in tests.
	runCommand func(ctx context.Context, name string, args ...string) ([]byte, error)
}

// NewKubectl creates the kubectl actuator.
func NewKubectl(cfg KubectlConfig, logger *zap.Logger) *Kubectl {
	return &Kubectl{
		cfg:    cfg,
		logger: logger,
		runCommand: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return exec.CommandContext(ctx, name, args...).Output()
		},
	}
}

// Scale sets the deployment's desired replica count.
func (k *Kubectl) Scale(ctx context.Context, service string, replicas int) error {
	cctx, cancel := context.WithTimeout(ctx, k.cfg.Timeout)
	defer cancel()

	args := []string{
		"scale", "deployment", service,
		fmt.Sprintf("--replicas=%d", replicas),
		"-n", k.cfg.Namespace,
	}
	if _, err := k.runCommand(cctx, k.cfg.Binary, args...); err != nil {
		return fmt.Errorf("failed to scale %s to %d replicas: %w", service, replicas, err)
	}

	k.logger.Debug("Issued scale command",
		zap.String("service", service),
		zap.Int("replicas", replicas),
	)
	return nil
}

// CurrentReplicas reads the deployment's desired replica count.
func (k *Kubectl) CurrentReplicas(ctx context.Context, service string) (int, error) {
	cctx, cancel := context.WithTimeout(ctx, k.cfg.Timeout)
	defer cancel()

	args := []string{
		"get", "deployment", service,
		"-n", k.cfg.Namespace,
		"-o", "jsonpath={.spec.replicas}",
	}
	out, err := k.runCommand(cctx, k.cfg.Binary, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to read replicas for %s: %w", service, err)
	}

	n, err := strconv.Atoi(strings.TrimSpace(string(out)))
	if err != nil {
		return 0, fmt.Errorf("unexpected replica count %q for %s: %w", strings.TrimSpace(string(out)), service, err)
	}
	return n, nil
}
