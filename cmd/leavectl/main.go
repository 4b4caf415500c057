package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rongwang/leave-roster-server/internal/config"
	"github.com/rongwang/leave-roster-server/internal/i18n"
	"github.com/rongwang/leave-roster-server/internal/models"
	"github.com/rongwang/leave-roster-server/internal/repository"
	"github.com/rongwang/leave-roster-server/internal/service"
	"github.com/rongwang/leave-roster-server/internal/utils"
	"github.com/spf13/cobra"
)

var (
	actorName string
	adminKey  string

	rootCmd = &cobra.Command{
		Use:           "leavectl",
		Short:         "Operate the pilot leave roster store",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&actorName, "actor", models.SystemActor, "name recorded as the actor of writes")
	rootCmd.PersistentFlags().StringVar(&adminKey, "admin-key", os.Getenv("ADMIN_KEY"), "admin key for privileged commands")

	rootCmd.AddCommand(migrateCmd, setAdminKeyCmd, importPilotsCmd, feedCmd, revertCmd, hideCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// env carries what every command needs: the service over the configured
// store, and a function releasing the store
type env struct {
	svc    *service.DefaultService
	logger *utils.Logger
	close  func() error
}

func openEnv(ctx context.Context) (*env, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}

	logger := utils.NewLogger(cfg.Server.LogLevel)
	repo, closeRepo, err := repository.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to set up %s store: %w", cfg.Database.Store, err)
	}

	svc := service.NewDefaultService(repo, service.Options{
		Logger:      logger,
		Locale:      i18n.ParseTag(cfg.Roster.Locale, i18n.English),
		WriteFanOut: cfg.Roster.WriteFanOut,
	})
	return &env{svc: svc, logger: logger, close: closeRepo}, nil
}

// withEnv adapts a command body to cobra, opening and releasing the store
func withEnv(fn func(ctx context.Context, e *env, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		e, err := openEnv(ctx)
		if err != nil {
			return err
		}
		defer e.close()
		return fn(ctx, e, args)
	}
}

func requestContext() service.RequestContext {
	return service.RequestContext{Actor: actorName, Credential: adminKey}
}
