// Command enrich runs the streaming enrichment pipeline (SPEC_FULL.md §8).
// One binary, one subcommand per deployment flavour, grounded on
// ai-infra/cmd/ai-infra-service/main.go's flag-parse / construct / signal-wait
// shape.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq"

	"github.com/flowlattice/enrich/internal/adminserver"
	"github.com/flowlattice/enrich/internal/config"
	"github.com/flowlattice/enrich/internal/environment"
	"github.com/flowlattice/enrich/internal/registry"
)

// Exit codes per SPEC_FULL.md §8: 0 normal shutdown, 1 config/startup error,
// 2 unrecoverable runtime failure.
const (
	exitOK   = 0
	exitConfig = 1
	exitRuntime = 2
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: enrich <kinesis|kafka> --config <path>")
		return exitConfig
	}
	flavour := args[0]
	if flavour != "kinesis" && flavour != "kafka" {
		fmt.Fprintf(os.Stderr, "unknown subcommand %q: expected \"kinesis\" or \"kafka\"\n", flavour)
		return exitConfig
	}

	fs := flag.NewFlagSet(flavour, flag.ContinueOnError)
	configPath := fs.String("config", "", "path to the YAML configuration document")
	if err := fs.Parse(args[1:]); err != nil {
		return exitConfig
	}
	if *configPath == "" {
		log.Printf("[startup] --config is required")
		return exitConfig
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Printf("[startup] config load: %v", err)
		return exitConfig
	}
	if cfg.Input.Type != flavour {
		log.Printf("[startup] config input.type %q does not match subcommand %q", cfg.Input.Type, flavour)
		return exitConfig
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	env, err := environment.Build(ctx, cfg, environment.Options{
		Decoder:      jsonLineDecoder{},
		SchemaClient: passthroughSchemaClient{},
		PII:          noopPIIExtractor{},
		BuildRegistry: func(paths map[string]string) *registry.Registry {
			return registry.New(nil, paths)
		},
	})
	if err != nil {
		log.Printf("[startup] environment build: %v", err)
		return exitConfig
	}

	admin := adminserver.New(adminserver.Config{
		Counters:     env.Counters,
		Ready:        func() bool { return env.Ready },
		Refresh:      func() error { return env.AssetManager.RefreshNow(context.Background()) },
		RequireAuth:  cfg.Admin.RequireAuth,
		BearerSecret: cfg.Admin.BearerSecret,
	})
	adminAddr := cfg.Admin.Addr
	if adminAddr == "" {
		adminAddr = ":8080"
	}
	adminSrv := &adminServerWrapper{addr: adminAddr, handler: admin.Router()}
	go adminSrv.ListenAndServe()

	runErrCh := make(chan error, 1)
	go func() {
		runErrCh <- env.Runtime.Run(ctx)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Printf("[shutdown] signal received, stopping")
		cancel()
		<-runErrCh
		adminSrv.Shutdown()
		return exitOK
	case err := <-runErrCh:
		adminSrv.Shutdown()
		if err != nil {
			log.Printf("[runtime] fatal: %v", err)
			return exitRuntime
		}
		return exitOK
	}
}
