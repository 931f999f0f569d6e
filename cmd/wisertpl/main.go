// wisertpl is the command-line front end of the template module: publish
// template versions, deploy them into branch databases and run the legacy
// conversion, all against the tenant database named in the config file.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wiserhq/templates/internal/config"
	"github.com/wiserhq/templates/internal/service"
	"github.com/wiserhq/templates/internal/telemetry"
	"github.com/wiserhq/templates/internal/types"
)

// Version is stamped by the build.
var Version = "dev"

var (
	configPath string
	actorFlag  string
	jsonOutput bool

	rootCtx    context.Context
	rootCancel context.CancelFunc
)

var rootCmd = &cobra.Command{
	Use:   "wisertpl",
	Short: "Wiser template module CLI",
	Long: `wisertpl manages template versions in the tenant database: publishing
versions through the environment ladder, deploying templates into branch
databases and converting legacy easy_* content.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	rootCtx, rootCancel = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer rootCancel()

	if err := telemetry.Init(rootCtx, "wisertpl", Version); err != nil {
		fmt.Fprintf(os.Stderr, "warning: telemetry disabled: %v\n", err)
	}
	defer telemetry.Shutdown(rootCtx)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file path (default: wiser.yaml in ., ~/.wiser, /etc/wiser)")
	rootCmd.PersistentFlags().StringVar(&actorFlag, "actor", "", "Actor recorded in the audit trail (default: config actor)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
}

// newService loads config and connects. Every subcommand starts here.
func newService(ctx context.Context) (*service.Service, *config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	if actorFlag != "" {
		cfg.Actor = actorFlag
	}
	svc, err := service.New(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return svc, cfg, nil
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

// reportResult prints a ServiceResult and returns an error for non-2xx so
// the process exits non-zero.
func reportResult[T any](r types.ServiceResult[T]) error {
	if jsonOutput {
		outputJSON(r)
		if !r.Succeeded() {
			return fmt.Errorf("operation failed with status %d", r.StatusCode)
		}
		return nil
	}
	if !r.Succeeded() {
		return fmt.Errorf("%s (status %d)", r.ErrorMessage, r.StatusCode)
	}
	return nil
}
