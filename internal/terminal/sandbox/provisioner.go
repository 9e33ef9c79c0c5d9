package sandbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/WebIDE/backend/internal/infrastructure/resilience"
)

// ErrSandboxUnavailable is returned when a sandbox cannot be provisioned.
// Callers fall back instead of failing the session.
var ErrSandboxUnavailable = errors.New("sandbox unavailable")

const (
	// Workdir is where the session workspace is mounted inside the container.
	Workdir = "/workspace"
	// SessionLabel marks containers owned by this service.
	SessionLabel = "ide.session"

	namePrefix = "ide-sandbox-"
)

// Handle identifies a provisioned sandbox. It is owned by exactly one session.
type Handle struct {
	ID        string
	Name      string
	SessionID string
	Workspace string
}

// Provisioner creates and destroys per-session sandboxes.
type Provisioner interface {
	Provision(ctx context.Context, sessionID, workspaceDir string) (*Handle, error)
	Teardown(ctx context.Context, h *Handle) error
	Available(ctx context.Context) error
	Sweep(ctx context.Context) (int, error)
}

// Config holds sandbox container settings.
type Config struct {
	Image            string
	SetupCommand     string
	Network          string
	MemoryMB         int64
	PidsLimit        int64
	ProvisionTimeout time.Duration
	// StopGrace is the stop timeout passed to the engine, in seconds.
	StopGrace int
	// PollInterval is how often container and exec state is polled.
	PollInterval time.Duration
}

// DockerProvisioner provisions sandboxes through the Docker Engine API.
type DockerProvisioner struct {
	engine  *EngineClient
	cfg     Config
	breaker *resilience.Breaker
	logger  *zap.Logger
}

// NewDockerProvisioner creates a provisioner. Runtime calls made while
// provisioning go through a circuit breaker so an unreachable daemon makes
// new sessions fall back immediately.
func NewDockerProvisioner(engine *EngineClient, cfg Config, logger *zap.Logger) *DockerProvisioner {
	if cfg.ProvisionTimeout <= 0 {
		cfg.ProvisionTimeout = 60 * time.Second
	}
	if cfg.StopGrace <= 0 {
		cfg.StopGrace = 2
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 100 * time.Millisecond
	}
	if cfg.Network == "" {
		cfg.Network = "none"
	}

	breaker := resilience.New("docker", resilience.Settings{
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(c resilience.Counts) bool {
			return c.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to resilience.State) {
			logger.Warn("Sandbox runtime breaker changed state",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})

	return &DockerProvisioner{engine: engine, cfg: cfg, breaker: breaker, logger: logger}
}

// Available pings the runtime.
func (p *DockerProvisioner) Available(ctx context.Context) error {
	if err := p.engine.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrSandboxUnavailable, err)
	}
	return nil
}

// Provision creates, starts and prepares a container bound to workspaceDir.
// Any failure removes the partial container and returns an error wrapping
// ErrSandboxUnavailable.
func (p *DockerProvisioner) Provision(ctx context.Context, sessionID, workspaceDir string) (*Handle, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.ProvisionTimeout)
	defer cancel()

	var h *Handle
	err := p.breaker.Do(ctx, func(ctx context.Context) error {
		var err error
		h, err = p.provision(ctx, sessionID, workspaceDir)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSandboxUnavailable, err)
	}
	return h, nil
}

func (p *DockerProvisioner) provision(ctx context.Context, sessionID, workspaceDir string) (*Handle, error) {
	if err := p.engine.Ping(ctx); err != nil {
		return nil, err
	}

	h := &Handle{
		Name:      namePrefix + uuid.NewString(),
		SessionID: sessionID,
		Workspace: workspaceDir,
	}
	spec := ContainerSpec{
		Image:      p.cfg.Image,
		Cmd:        []string{"sleep", "infinity"},
		WorkingDir: Workdir,
		Labels: map[string]string{
			SessionLabel: sessionID,
		},
		HostConfig: HostConfig{
			Binds:       []string{workspaceDir + ":" + Workdir + ":rw"},
			NetworkMode: p.cfg.Network,
			Memory:      p.cfg.MemoryMB * 1024 * 1024,
			PidsLimit:   p.cfg.PidsLimit,
			CapDrop:     []string{"ALL"},
			SecurityOpt: []string{"no-new-privileges"},
			Init:        true,
		},
	}

	id, err := p.engine.CreateContainer(ctx, h.Name, spec)
	if err != nil {
		return nil, err
	}
	h.ID = id

	if err := p.prepare(ctx, h); err != nil {
		p.discard(h, err)
		return nil, err
	}
	return h, nil
}

// prepare starts the container, waits for it to run and runs the setup command.
func (p *DockerProvisioner) prepare(ctx context.Context, h *Handle) error {
	if err := p.engine.StartContainer(ctx, h.ID); err != nil {
		return err
	}
	if err := p.waitRunning(ctx, h.ID); err != nil {
		return err
	}
	if p.cfg.SetupCommand == "" {
		return nil
	}

	code, err := p.engine.Exec(ctx, h.ID, []string{"/bin/sh", "-c", p.cfg.SetupCommand}, Workdir, p.cfg.PollInterval)
	if err != nil {
		return fmt.Errorf("setup command: %w", err)
	}
	if code != 0 {
		return fmt.Errorf("setup command exited with status %d", code)
	}
	return nil
}

func (p *DockerProvisioner) waitRunning(ctx context.Context, id string) error {
	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()
	for {
		state, err := p.engine.InspectContainer(ctx, id)
		if err != nil {
			return err
		}
		if state.Running {
			return nil
		}
		if state.Status == "exited" || state.Status == "dead" {
			return fmt.Errorf("container %s exited with status %d: %s", id, state.ExitCode, state.Error)
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for container %s: %w", id, ctx.Err())
		case <-ticker.C:
		}
	}
}

// discard removes a partially provisioned container. It uses its own
// context because the provisioning context may already be done.
func (p *DockerProvisioner) discard(h *Handle, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := p.engine.RemoveContainer(ctx, h.ID); err != nil {
		p.logger.Warn("Failed to remove partial sandbox",
			zap.String("session_id", h.SessionID),
			zap.String("container", h.Name),
			zap.NamedError("cause", cause),
			zap.Error(err))
	}
}

// Teardown stops and force-removes the container. A container that no
// longer exists counts as removed.
func (p *DockerProvisioner) Teardown(ctx context.Context, h *Handle) error {
	if h == nil || h.ID == "" {
		return nil
	}
	if err := p.engine.StopContainer(ctx, h.ID, p.cfg.StopGrace); err != nil {
		p.logger.Debug("Stop failed, forcing removal",
			zap.String("session_id", h.SessionID),
			zap.String("container", h.Name),
			zap.Error(err))
	}
	if err := p.engine.RemoveContainer(ctx, h.ID); err != nil {
		return fmt.Errorf("remove sandbox %s: %w", h.Name, err)
	}
	return nil
}

// Sweep removes every container carrying the session label, left behind by
// a previous process. It returns how many were removed.
func (p *DockerProvisioner) Sweep(ctx context.Context) (int, error) {
	containers, err := p.engine.ListByLabel(ctx, SessionLabel)
	if err != nil {
		return 0, err
	}
	removed := 0
	var errs []error
	for _, c := range containers {
		if err := p.engine.RemoveContainer(ctx, c.ID); err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}

// BreakerState reports the runtime breaker state for health checks.
func (p *DockerProvisioner) BreakerState() resilience.State {
	return p.breaker.State()
}
