// Command rgsync runs the bidirectional issue-tracker sync engine: migrate
// its mapping store, discover linked projects, run a single pass, or serve
// the poll driver continuously.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rgsync/rgsync/internal/config"
	"github.com/rgsync/rgsync/internal/gitlab"
	"github.com/rgsync/rgsync/internal/mapping"
	"github.com/rgsync/rgsync/internal/observability"
	"github.com/rgsync/rgsync/internal/redmine"
	"github.com/rgsync/rgsync/internal/rlog"
	"github.com/rgsync/rgsync/internal/sync"
)

var configPath string

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "rgsync",
		Short: "Synchronize issues between a Redmine-like tracker and a GitLab-like tracker",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "path to config.yaml")

	root.AddCommand(migrateCmd(), discoverCmd(), runCmd(), serveCmd(), statusCmd())
	return root
}

// signalContext mirrors the teacher's rootCtx/rootCancel pattern: a
// context cancelled on SIGINT/SIGTERM so a poll pass in flight observes
// ctx.Err() at its next suspension point (spec §5).
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func openStore(ctx context.Context) (*mapping.Store, error) {
	boot := config.LoadBootstrap(configPath)
	if boot.StorageConnectionString == "" {
		return nil, fmt.Errorf("storage.connectionString is not set in %s", configPath)
	}
	return mapping.Open(ctx, boot.StorageConnectionString)
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply any pending mapping-store migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			store, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			rlog.Infof("migrations applied", nil)
			return nil
		},
	}
}

// buildEngine builds the fully wired Engine from config: both adapters, the
// category/lister/resolver facets, and the mapping store. metrics may be
// nil, in which case RunPass runs unobserved.
func buildEngine(ctx context.Context, cfg *config.Config, store *mapping.Store, metrics *observability.Provider) *sync.Engine {
	rmClient := redmine.NewClient(cfg.PlatformA.BaseURL, cfg.PlatformA.APIKey)
	rmAdapter := redmine.New(rmClient, cfg.PlatformA.CustomFieldName, store)

	glClient := gitlab.NewClient(cfg.PlatformB.BaseURL, cfg.PlatformB.Token)
	glAdapter := gitlab.New(glClient, cfg.CategoryKeys, store)

	engine := sync.NewEngine(
		store,
		rmAdapter, rmAdapter, rmAdapter,
		glAdapter, glAdapter,
		cfg.CategoryKeys, cfg.PlatformA.CustomFieldName,
		cfg.PlatformA.PublicURL, cfg.PlatformB.PublicURL,
	)
	if metrics != nil {
		engine.WithMetrics(metrics)
	}
	return engine
}

func discoverCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "discover",
		Short: "Run project discovery once and print each project's link state",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			store, err := mapping.Open(ctx, cfg.StorageConnectionString)
			if err != nil {
				return err
			}
			defer store.Close()

			rmClient := redmine.NewClient(cfg.PlatformA.BaseURL, cfg.PlatformA.APIKey)
			rmAdapter := redmine.New(rmClient, cfg.PlatformA.CustomFieldName, store)
			glClient := gitlab.NewClient(cfg.PlatformB.BaseURL, cfg.PlatformB.Token)
			glAdapter := gitlab.New(glClient, cfg.CategoryKeys, store)

			if err := sync.DiscoverProjects(ctx, store, rmAdapter, glAdapter, cfg.PlatformA.CustomFieldName); err != nil {
				return err
			}

			projects, err := store.ListProjects(ctx)
			if err != nil {
				return err
			}
			for _, p := range projects {
				remoteB, err := store.GetRemoteProjectB(ctx, p.ID)
				if err != nil {
					rlog.Warnf("read remote project b", rlog.Fields{"project_id": p.ID, "err": err.Error()})
					continue
				}
				if remoteB.Linked() {
					fmt.Printf("%s\t%s\tlinked -> %d\n", p.ExternalAKey, remoteB.PathWithNamespace, *remoteB.ExternalBID)
				} else {
					fmt.Printf("%s\t%s\tunlinked\n", p.ExternalAKey, remoteB.PathWithNamespace)
				}
			}
			return nil
		},
	}
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run a single sync pass and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			store, err := mapping.Open(ctx, cfg.StorageConnectionString)
			if err != nil {
				return err
			}
			defer store.Close()

			metrics, err := observability.New(ctx, cfg.Observability.OTLPEndpoint)
			if err != nil {
				return fmt.Errorf("start observability: %w", err)
			}
			defer metrics.Shutdown(ctx)

			engine := buildEngine(ctx, cfg, store, metrics)
			if err := engine.RunPass(ctx); err != nil {
				return fmt.Errorf("pass failed: %w", err)
			}
			rlog.Infof("pass complete", nil)
			return nil
		},
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the poll driver continuously until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if !cfg.Polling.Enabled {
				return fmt.Errorf("polling.enabled is false in %s", configPath)
			}
			store, err := mapping.Open(ctx, cfg.StorageConnectionString)
			if err != nil {
				return err
			}
			defer store.Close()

			metrics, err := observability.New(ctx, cfg.Observability.OTLPEndpoint)
			if err != nil {
				return fmt.Errorf("start observability: %w", err)
			}
			defer metrics.Shutdown(ctx)

			engine := buildEngine(ctx, cfg, store, metrics)
			driver := sync.NewPollDriver(engine, cfg.Polling.Interval, cfg.Polling.Jitter)

			watcher, err := config.WatchConfig(ctx, configPath, func(next *config.Config, err error) {
				if err != nil {
					rlog.Warnf("config reload failed, keeping prior settings", rlog.Fields{"err": err.Error()})
					return
				}
				engine.SetCategoryKeys(next.CategoryKeys)
				driver.SetCadence(next.Polling.Interval, next.Polling.Jitter)
				rlog.Infof("config reloaded", rlog.Fields{"category_keys": strings.Join(next.CategoryKeys, ",")})
			})
			if err != nil {
				rlog.Warnf("config hot-reload disabled", rlog.Fields{"err": err.Error()})
			} else {
				defer watcher.Close()
			}

			rlog.Infof("serving", rlog.Fields{"interval": cfg.Polling.Interval.String()})
			driver.Run(ctx)
			return nil
		},
	}
}

// truncate clips s to width columns, leaving room for the last-sync column
// on a narrow terminal. A non-positive width disables clipping.
func truncate(s string, width int) string {
	if width <= 0 || len(s) <= width {
		return s
	}
	if width <= 1 {
		return s[:width]
	}
	return s[:width-1] + "…"
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print each linked project's last sync time",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			store, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			projects, err := store.ListProjects(ctx)
			if err != nil {
				return err
			}

			width := rlog.TerminalWidth(80)
			fmt.Println(rlog.Heading(fmt.Sprintf("%-20s %s", "PROJECT", "LAST SYNC")))
			for _, p := range projects {
				last := rlog.Fail("never")
				if p.LastSyncAt != nil {
					last = rlog.OK(p.LastSyncAt.Format("2006-01-02T15:04:05Z07:00"))
				}
				line := fmt.Sprintf("%-20s %s", truncate(p.ExternalAKey, width-30), last)
				fmt.Println(line)
			}
			return nil
		},
	}
}
