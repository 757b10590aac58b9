package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/causahq/causa/pkg/config"
	"github.com/causahq/causa/pkg/runtime"
)

// ServeCmd starts the orchestrator server.
type ServeCmd struct {
	ConfigType string   `name:"config-type" help:"Config source: file, consul, etcd, zookeeper." default:"file"`
	Endpoints  []string `help:"Endpoints for remote config sources (consul, etcd, zookeeper)."`
	Watch      bool     `help:"Watch the config source for changes."`
	Port       int      `help:"Override the configured listen port."`
}

func (c *ServeCmd) Run(cli *CLI) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("Shutting down...")
		cancel()
	}()

	if cli.Config == "" {
		return fmt.Errorf("--config is required for serve")
	}

	sourceType, err := config.ParseConfigType(c.ConfigType)
	if err != nil {
		return err
	}

	cfg, loader, err := config.LoadConfigWithLoader(config.LoaderOptions{
		Type:      sourceType,
		Path:      cli.Config,
		Endpoints: c.Endpoints,
		Watch:     c.Watch,
		OnChange:  onConfigChange,
	})
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	defer loader.Stop()
	slog.Info("Loaded configuration", "source", sourceType, "path", cli.Config)

	// Override port if explicitly specified
	if c.Port != 0 {
		cfg.Server.Port = c.Port
	}

	rt, err := runtime.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to build runtime: %w", err)
	}
	defer func() {
		if err := rt.Close(); err != nil {
			slog.Warn("Runtime teardown failed", "error", err)
		}
	}()

	printStartupInfo(cfg)

	return rt.Run(ctx)
}

// onConfigChange runs when a watched source publishes a new config that
// passed validation. Components capture their configuration at construction,
// so the reload takes effect on the next restart.
func onConfigChange(_ *config.Config) error {
	slog.Info("Configuration changed and revalidated; restart to apply")
	return nil
}

// printStartupInfo mirrors the resolved config back at the operator.
func printStartupInfo(cfg *config.Config) {
	blueColor := "\033[38;2;37;99;235m"
	resetColor := "\033[0m"

	addr := displayAddress(cfg.Server.Host, cfg.Server.Port)

	fmt.Printf("\n%sCausa server ready%s\n", blueColor, resetColor)
	fmt.Printf("   Agent API:   http://%s/v1/cases/{case_id}/agent/messages\n", addr)
	fmt.Printf("   Webhooks:    http://%s/v1/webhooks/payments\n", addr)
	fmt.Printf("   Health:      http://%s/health\n", addr)
	fmt.Printf("   Metrics:     http://%s/metrics\n", addr)

	fmt.Printf("\n   Case store:  %s\n", cfg.Stores.Case.Backend)
	fmt.Printf("   Party store: %s\n", cfg.Stores.Party.Backend)
	fmt.Printf("   Case lock:   %s\n", cfg.Lock.Backend)
	fmt.Printf("   Objects:     %s\n", cfg.ObjectStore.Backend)
	fmt.Printf("   Knowledge:   %s\n", cfg.KB.Backend)

	fmt.Printf("\n   Assistant:   %s (%s)\n", cfg.LLM.Assistant.Provider, cfg.LLM.Assistant.Model)
	fmt.Printf("   Reasoner:    %s (%s)\n", cfg.LLM.Reasoner.Provider, cfg.LLM.Reasoner.Model)

	if cfg.Server.Auth.Enabled {
		fmt.Printf("\n   Auth:        JWT (%s)\n", cfg.Server.Auth.JWKSURL)
	} else {
		fmt.Printf("\n   Auth:        disabled (X-User-ID header)\n")
	}
	if cfg.Observability.Tracing.Enabled {
		fmt.Printf("   Tracing:     %s (%s)\n", cfg.Observability.Tracing.Exporter, cfg.Observability.Tracing.Endpoint)
	}
	if cfg.Maintenance.Enabled == nil || *cfg.Maintenance.Enabled {
		fmt.Printf("   Maintenance: enabled\n")
	} else {
		fmt.Printf("   Maintenance: disabled\n")
	}

	fmt.Println("\nPress Ctrl+C to stop")
}

// displayAddress turns a bind address into something clickable.
func displayAddress(host string, port int) string {
	if host == "0.0.0.0" || host == "::" || host == "" {
		host = "localhost"
	}
	return fmt.Sprintf("%s:%d", host, port)
}
