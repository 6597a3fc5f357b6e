package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/ignatij/exectrack/internal/config"
	internal_http "github.com/ignatij/exectrack/internal/http"
	"github.com/ignatij/exectrack/internal/log"
	"github.com/ignatij/exectrack/internal/source"
	internal_storage "github.com/ignatij/exectrack/internal/storage"
	"github.com/ignatij/exectrack/pkg/service"
	"github.com/ignatij/exectrack/pkg/storage"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func SetupCLI(rootCmd *cobra.Command) {
	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "YAML config file (defaults to $EXECTRACK_CONFIG)")
	flags.String("backend", "", "Execution source: rest or dynamodb")
	flags.String("base-url", "", "Base URL of the executions REST API")
	flags.String("table", "", "DynamoDB executions table")
	flags.String("store", "", "Session store: memory, postgres://... or sqlite://<path>")
	flags.String("slot", "", "Slot that remembers the tracked execution")
	flags.Duration("interval", 0, "Poll interval")
	flags.Int("max-retries", 0, "Empty results tolerated before giving up")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the tracking API over HTTP",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := loadConfig(cmd)
			port, _ := cmd.Flags().GetString("port")
			if port != "" {
				cfg.Port = port
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			src := initSource(ctx, cfg)
			store := initStore(cfg.Store)
			defer store.Close()

			ctrl := service.NewController(ctx, src, store, log.GetLogger(), controllerOptions(cfg)...)
			defer ctrl.Close()
			if resumed, err := ctrl.Resume(); err != nil {
				log.GetLogger().Errorf("Failed to resume tracking: %v", err)
			} else if resumed {
				log.GetLogger().Infof("Resumed tracking %s", ctrl.Snapshot().TrackedExecutionID)
			}
			if err := ctrl.LoadAllExecutions(ctx); err != nil {
				log.GetLogger().Errorf("Failed to load executions: %v", err)
			}
			if err := internal_http.StartServer(ctx, cfg.Port, ctrl); err != nil {
				log.GetLogger().Errorf("Server stopped: %v", err)
				os.Exit(1)
			}
		},
	}
	serveCmd.Flags().String("port", "", "Port to listen on (defaults to $PORT or 8080)")

	trackCmd := &cobra.Command{
		Use:   "track [execution-id]",
		Short: "Poll one execution until it completes, fails or is not found",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			resume, _ := cmd.Flags().GetBool("resume")
			if len(args) == 0 && !resume {
				fmt.Fprintln(os.Stderr, "Error: an execution ID or --resume is required")
				os.Exit(1)
			}
			id := ""
			if len(args) == 1 {
				id = args[0]
			}
			cfg := loadConfig(cmd)
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			src := initSource(ctx, cfg)
			store := initStore(cfg.Store)
			defer store.Close()

			if _, err := trackExecution(ctx, src, store, id, resume, os.Stdout, controllerOptions(cfg)...); err != nil {
				log.GetLogger().Debugf("Tracking ended: %v", err)
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
		},
	}
	trackCmd.Flags().Bool("resume", false, "Track the execution remembered in the slot")

	executionsCmd := &cobra.Command{
		Use:   "executions",
		Short: "List every execution, grouped and optionally filtered",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := loadConfig(cmd)
			search, _ := cmd.Flags().GetString("search")
			tmplPath, _ := cmd.Flags().GetString("template")
			tmplText := ""
			if tmplPath != "" {
				data, err := os.ReadFile(tmplPath)
				if err != nil {
					fmt.Fprintf(os.Stderr, "Error: failed to read template: %v\n", err)
					os.Exit(1)
				}
				tmplText = string(data)
			}

			ctx, cancel := context.WithTimeout(context.Background(), cfg.FetchTimeout)
			defer cancel()
			src := initSource(ctx, cfg)
			if err := listExecutions(ctx, src, search, tmplText, os.Stdout); err != nil {
				log.GetLogger().Errorf("Failed to list executions: %v", err)
				fmt.Fprintf(os.Stderr, "Error: failed to list executions: %v\n", err)
				os.Exit(1)
			}
		},
	}
	executionsCmd.Flags().String("search", "", "Only show records containing this term")
	executionsCmd.Flags().String("template", "", "Go template file used to render the listing")

	slotsCmd := &cobra.Command{
		Use:   "slots",
		Short: "List the persisted tracking slots",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := loadConfig(cmd)
			store := initStore(cfg.Store)
			defer store.Close()
			if err := listSlots(store, cfg.Slot, os.Stdout); err != nil {
				log.GetLogger().Errorf("Failed to list slots: %v", err)
				fmt.Fprintf(os.Stderr, "Error: failed to list slots: %v\n", err)
				os.Exit(1)
			}
		},
	}

	rootCmd.AddCommand(serveCmd, trackCmd, executionsCmd, slotsCmd)
}

// trackExecution polls one execution, printing every snapshot to out, until
// the session leaves the tracking state or ctx ends. It returns an error
// unless the execution completed.
func trackExecution(ctx context.Context, src service.ExecutionSource, store storage.SessionStore, id string, resume bool, out io.Writer, opts ...service.ControllerOption) (service.Snapshot, error) {
	var mu sync.Mutex
	printSnapshot := func(snap service.Snapshot) {
		mu.Lock()
		defer mu.Unlock()
		RenderSnapshot(out, snap)
	}
	opts = append(opts, service.WithObserver(printSnapshot))
	ctrl := service.NewController(ctx, src, store, log.GetLogger(), opts...)
	defer ctrl.Close()

	if resume {
		ok, err := ctrl.Resume()
		if err != nil {
			return service.Snapshot{}, err
		}
		if !ok {
			return service.Snapshot{}, errors.New("no tracked execution to resume")
		}
	} else if err := ctrl.StartTracking(id); err != nil {
		return service.Snapshot{}, err
	}

	select {
	case <-ctrl.Done():
	case <-ctx.Done():
		return ctrl.Snapshot(), errors.Wrap(ctx.Err(), "tracking interrupted")
	}

	snap := ctrl.Snapshot()
	switch snap.State {
	case service.FailedPollState:
		if snap.Err != nil {
			return snap, snap.Err
		}
		return snap, errors.Errorf("execution %s finished with an error", snap.LastExecutionID)
	case service.RetryExhaustedPollState:
		return snap, errors.New(snap.NotFoundMessage)
	}
	return snap, nil
}

func listExecutions(ctx context.Context, src service.ExecutionSource, search, tmplText string, out io.Writer) error {
	items, err := src.ListExecutions(ctx)
	if err != nil {
		return err
	}
	records := service.FilterRecords(search, service.NormalizeRecords(items))
	return RenderExecutions(out, service.GroupExecutions(records), search, tmplText)
}

func listSlots(store storage.SessionStore, slot string, out io.Writer) error {
	lister, ok := store.(storage.SlotLister)
	if !ok {
		id, err := store.Load(slot)
		if errors.Is(err, storage.ErrNotFound) {
			fmt.Fprintf(out, "No tracked execution in slot %s.\n", slot)
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "- %s: %s\n", slot, id)
		return nil
	}
	slots, err := lister.ListSlots()
	if err != nil {
		return err
	}
	if len(slots) == 0 {
		fmt.Fprintf(out, "No tracking slots found.\n")
		return nil
	}
	fmt.Fprintf(out, "Slots:\n")
	for _, s := range slots {
		fmt.Fprintf(out, "- %s: %s (updated %s)\n", s.Slot, s.ExecutionID, s.UpdatedAt.Format(time.RFC3339))
	}
	return nil
}

// loadConfig resolves the config and applies the command line overrides.
func loadConfig(cmd *cobra.Command) *config.Config {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	applyFlags(cmd, cfg)
	log.Configure(cfg.LogLevel, cfg.LogFormat)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid configuration: %v\n", err)
		os.Exit(1)
	}
	log.GetLogger().Debugf("Using %s backend with store %s", cfg.Backend, cfg.Store)
	return cfg
}

func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	stringFlags := map[string]*string{
		"backend":  &cfg.Backend,
		"base-url": &cfg.BaseURL,
		"table":    &cfg.Table,
		"store":    &cfg.Store,
		"slot":     &cfg.Slot,
	}
	for name, dest := range stringFlags {
		if flags.Changed(name) {
			*dest, _ = flags.GetString(name)
		}
	}
	if flags.Changed("interval") {
		cfg.PollInterval, _ = flags.GetDuration("interval")
	}
	if flags.Changed("max-retries") {
		cfg.MaxRetries, _ = flags.GetInt("max-retries")
	}
}

func controllerOptions(cfg *config.Config) []service.ControllerOption {
	return []service.ControllerOption{
		service.WithPollInterval(cfg.PollInterval),
		service.WithMaxRetries(cfg.MaxRetries),
		service.WithFetchTimeout(cfg.FetchTimeout),
		service.WithSlot(cfg.Slot),
	}
}

func initSource(ctx context.Context, cfg *config.Config) service.ExecutionSource {
	src, err := newSource(ctx, cfg)
	if err != nil {
		log.GetLogger().Errorf("Failed to initialize execution source: %v", err)
		os.Exit(1)
	}
	return src
}

func newSource(ctx context.Context, cfg *config.Config) (service.ExecutionSource, error) {
	switch cfg.Backend {
	case config.DynamoDBBackend:
		client, err := source.NewDynamoDBClient(ctx, source.DynamoDBConfig{
			Table:     cfg.Table,
			Region:    cfg.Region,
			Endpoint:  cfg.Endpoint,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
		})
		if err != nil {
			return nil, err
		}
		return source.NewDynamoDBSource(client, cfg.Table), nil
	case config.RESTBackend:
		return source.NewRESTSource(cfg.BaseURL, cfg.FetchTimeout), nil
	default:
		return nil, errors.Errorf("unknown backend %q", cfg.Backend)
	}
}

func initStore(dsn string) storage.SessionStore {
	store, err := internal_storage.InitStore(dsn)
	if err != nil {
		log.GetLogger().Errorf("Failed to initialize store: %v", err)
		os.Exit(1)
	}
	return store
}
