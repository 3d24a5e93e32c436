// Package container runs one-shot, sandboxed commands in Docker containers.
// It backs the tool manager's ContainerExecTool: the spec treats the
// isolated worker-module executor as an opaque sandbox, and this is that
// sandbox's concrete body.
package container

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	dockercontainer "github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
)

const (
	labelPrefix = "agentruntime"
	networkName = "agentruntime-net"
)

// Config controls how the sandbox launches containers.
type Config struct {
	Image      string
	MaxRunning int
}

// Sandbox runs one-shot commands inside disposable, labeled containers.
type Sandbox struct {
	docker      *client.Client
	cfg         Config
	mu          sync.Mutex
	running     int
	networkName string
}

// NewSandbox builds a sandbox bound to the local Docker daemon.
func NewSandbox(cfg Config) (*Sandbox, error) {
	docker, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("docker client: %w", err)
	}
	if cfg.MaxRunning <= 0 {
		cfg.MaxRunning = 5
	}
	return &Sandbox{docker: docker, cfg: cfg}, nil
}

func (s *Sandbox) ensureNetwork(ctx context.Context) error {
	if s.networkName != "" {
		return nil
	}
	if _, err := s.docker.NetworkInspect(ctx, networkName, network.InspectOptions{}); err == nil {
		s.networkName = networkName
		return nil
	}
	if _, err := s.docker.NetworkCreate(ctx, networkName, network.CreateOptions{Driver: "bridge"}); err != nil {
		return fmt.Errorf("create network %s: %w", networkName, err)
	}
	s.networkName = networkName
	slog.Info("created sandbox network", "network", networkName)
	return nil
}

// RunCommand starts a disposable container, runs cmd to completion, and
// returns its combined stdout+stderr. The container is always removed,
// whether the command succeeds, fails, or the context is cancelled.
func (s *Sandbox) RunCommand(ctx context.Context, image string, cmd []string, env map[string]string) (string, error) {
	s.mu.Lock()
	if s.running >= s.cfg.MaxRunning {
		s.mu.Unlock()
		return "", fmt.Errorf("max sandboxed containers (%d) reached", s.cfg.MaxRunning)
	}
	s.running++
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running--
		s.mu.Unlock()
	}()

	if err := s.ensureNetwork(ctx); err != nil {
		return "", err
	}

	if image == "" {
		image = s.cfg.Image
	}

	envList := make([]string, 0, len(env))
	for k, v := range env {
		envList = append(envList, fmt.Sprintf("%s=%s", k, v))
	}

	containerCfg := &dockercontainer.Config{
		Image:  image,
		Cmd:    cmd,
		Env:    envList,
		Labels: map[string]string{labelPrefix + ".managed": "true"},
	}
	hostCfg := &dockercontainer.HostConfig{
		NetworkMode: dockercontainer.NetworkMode(s.networkName),
		AutoRemove:  false,
	}

	resp, err := s.docker.ContainerCreate(ctx, containerCfg, hostCfg, &network.NetworkingConfig{}, nil, "")
	if err != nil {
		return "", fmt.Errorf("create container: %w", err)
	}
	defer func() {
		_ = s.docker.ContainerRemove(context.Background(), resp.ID, dockercontainer.RemoveOptions{Force: true})
	}()

	if err := s.docker.ContainerStart(ctx, resp.ID, dockercontainer.StartOptions{}); err != nil {
		return "", fmt.Errorf("start container: %w", err)
	}

	statusCh, errCh := s.docker.ContainerWait(ctx, resp.ID, dockercontainer.WaitConditionNotRunning)
	var exitCode int64
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case err := <-errCh:
		if err != nil {
			return "", fmt.Errorf("wait container: %w", err)
		}
	case status := <-statusCh:
		exitCode = status.StatusCode
	}

	logs, err := s.docker.ContainerLogs(ctx, resp.ID, dockercontainer.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return "", fmt.Errorf("container logs: %w", err)
	}
	defer logs.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, logs); err != nil {
		return "", fmt.Errorf("read logs: %w", err)
	}

	output := stdout.String() + stderr.String()
	if exitCode != 0 {
		return output, fmt.Errorf("exit code %d: %s", exitCode, output)
	}
	return output, nil
}

// CleanupStale removes any leftover sandbox containers from a prior run
// that crashed before it could remove its own container.
func (s *Sandbox) CleanupStale(ctx context.Context) error {
	filterArgs := filters.NewArgs()
	filterArgs.Add("label", labelPrefix+".managed=true")

	containers, err := s.docker.ContainerList(ctx, dockercontainer.ListOptions{All: true, Filters: filterArgs})
	if err != nil {
		return fmt.Errorf("list containers: %w", err)
	}
	for _, c := range containers {
		slog.Info("cleaning up stale sandbox container", "container", c.ID[:12])
		_ = s.docker.ContainerRemove(ctx, c.ID, dockercontainer.RemoveOptions{Force: true})
	}
	return nil
}

// ActiveCount returns the number of containers currently running.
func (s *Sandbox) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// RunCommandWithTimeout is a convenience wrapper that bounds RunCommand by
// a caller-provided timeout, used by ContainerExecTool.Execute.
func (s *Sandbox) RunCommandWithTimeout(ctx context.Context, image string, cmd []string, env map[string]string, timeout time.Duration) (string, error) {
	if timeout <= 0 {
		return s.RunCommand(ctx, image, cmd, env)
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return s.RunCommand(ctx, image, cmd, env)
}
