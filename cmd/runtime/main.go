package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/agentrt/runtime/internal/config"
	"github.com/agentrt/runtime/internal/container"
	"github.com/agentrt/runtime/internal/edge"
	"github.com/agentrt/runtime/internal/kernel"
	"github.com/agentrt/runtime/internal/tool"
	"github.com/agentrt/runtime/internal/workflowsched"
)

var version = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "version":
		fmt.Printf("agentrt %s\n", version)
	case "serve":
		if err := runServe(); err != nil {
			slog.Error("serve failed", "error", err)
			os.Exit(1)
		}
	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, "Usage: agentrt <command>\n\nCommands:\n  serve      Start the runtime kernel, scheduler, and edge server\n  version    Print version\n")
}

func runServe() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	slog.Info("starting agent runtime", "version", version)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	k, err := kernel.New(cfg)
	if err != nil {
		return fmt.Errorf("init kernel: %w", err)
	}
	defer k.Close()
	slog.Info("kernel initialized", "store", cfg.Store.Path)

	registerContainerTool(k, cfg)

	go k.WatchAgentActivity(ctx)

	sched := workflowsched.New(k.Store, k, k.Events, cfg.Scheduler.PollInterval)
	go sched.Start(ctx)

	if cfg.Edge.Enabled {
		srv := edge.New(k, k.Registry, k.Events)
		go func() {
			if err := srv.Run(ctx, cfg.Edge.Addr); err != nil {
				slog.Error("edge server error", "error", err)
			}
		}()
		slog.Info("edge server started", "addr", cfg.Edge.Addr)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info("shutting down", "signal", sig)
	cancel()
	return nil
}

// registerContainerTool wires internal/container.Sandbox into the tool
// manager for every tool config of type "container_exec". Dialing the
// Docker daemon is deferred to here rather than kernel.New so
// Docker-less test environments never construct a Sandbox.
func registerContainerTool(k *kernel.Kernel, cfg *config.Config) {
	for name, tc := range cfg.Tools {
		if tc.Type != "container_exec" {
			continue
		}
		sandbox, err := container.NewSandbox(container.Config{Image: tc.Image})
		if err != nil {
			slog.Error("failed to init container sandbox, skipping tool", "tool", name, "error", err)
			continue
		}
		k.Tools.Register(tool.NewContainerExecTool(sandbox, tc.Image, int64(tc.TimeoutMs), tc.RateLimitPerMinute))
		slog.Info("registered container tool", "tool", name, "image", tc.Image)
	}
}
