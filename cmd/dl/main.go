package main

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"dayline/internal/app"
	"dayline/internal/budget"
	"dayline/internal/config"
	"dayline/internal/db"
	"dayline/internal/domain"
	"dayline/internal/migrate"
	"dayline/internal/phase"
	"dayline/internal/repo"
	"dayline/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "dl",
	Short: "Dayline CLI",
	Long: `Dayline schedules a vessel's autonomous work across the day.
Core concepts:
- Workspace: the .dayline directory holding the database; dayline.yml beside it configures everything.
- Phase: one of morning/afternoon/evening/night; boundaries come from config and gate which queue is drained.
- Action: the smallest executable step, declared in the catalog with a handler ref and an estimated cost.
- Template: a named sequence of actions; the planner enqueues templates when a phase begins.
- Work unit: one runtime instance of a template; statuses go queued -> running -> completed/failed.
- Budget: a daily USD pool; every action deducts on success, and an unaffordable unit waits instead of running.
- Summary: the immutable outcome record of a finished unit, with per-action results.
- Event log: the diary of everything that happened, view with 'dl log tail'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("DAYLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func registerCommands() {
	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(phaseCmd())
	rootCmd.AddCommand(queueCmd())
	rootCmd.AddCommand(budgetCmd())
	rootCmd.AddCommand(unitCmd())
	rootCmd.AddCommand(templateCmd())
	rootCmd.AddCommand(actionCmd())
	rootCmd.AddCommand(summaryCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(configCmd())
}

// --- plumbing ---

func openDB(ctx context.Context) (*sql.DB, error) {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, err
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

func withRepo(ctx context.Context, fn func(ctx context.Context, r repo.Repo) error) error {
	conn, err := openDB(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()
	return fn(ctx, repo.Repo{DB: conn})
}

// buildStack loads config, runs startup validation, and wires the full
// component set. Validation errors are fatal here, before anything runs.
func buildStack(ctx context.Context) (*app.Stack, *sql.DB, error) {
	conn, err := openDB(ctx)
	if err != nil {
		return nil, nil, err
	}
	cfg, err := config.Load(viper.GetString("workspace"))
	if err != nil {
		conn.Close()
		return nil, nil, err
	}
	stack, verrs, err := app.Build(conn, cfg, app.Options{})
	if err != nil {
		conn.Close()
		return nil, nil, err
	}
	if len(verrs) > 0 {
		for _, ve := range verrs {
			fmt.Fprintln(os.Stderr, "validation:", ve.Error())
		}
		conn.Close()
		return nil, nil, config.Join(verrs)
	}
	return stack, conn, nil
}

func printJSON(v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}

// --- run / serve ---

func runCmd() *cobra.Command {
	var addr, basePath string
	var noAPI bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the autonomous scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			stack, conn, err := buildStack(cmd.Context())
			if err != nil {
				return err
			}
			defer conn.Close()
			if !stack.Config.Enabled {
				return errors.New("scheduler disabled in config; set enabled: true")
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if err := stack.Scheduler.Restore(ctx); err != nil {
				return err
			}
			go stack.Tracker.Start(ctx)
			go stack.Scheduler.Start(ctx)
			fmt.Printf("Dayline scheduler running (phase=%s, budget=%.2f USD/day)\n",
				stack.Tracker.Current(), stack.Config.Budget.DailyLimitUSD)

			if noAPI {
				<-ctx.Done()
				return nil
			}
			handler, err := server.New(server.Config{
				Scheduler: stack.Scheduler,
				Repo:      stack.Repo,
				Registry:  stack.Registry,
				Templates: stack.Templates,
				BasePath:  basePath,
				Auth:      authConfig(),
			})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(shutdownCtx)
			}()
			fmt.Printf("Serving Dayline API on http://%s%s (OpenAPI at %s/openapi.json)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	cmd.Flags().BoolVar(&noAPI, "no-api", false, "run without the HTTP API")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API without the scheduler loops",
		RunE: func(cmd *cobra.Command, args []string) error {
			stack, conn, err := buildStack(cmd.Context())
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := stack.Scheduler.Restore(cmd.Context()); err != nil {
				return err
			}
			handler, err := server.New(server.Config{
				Scheduler: stack.Scheduler,
				Repo:      stack.Repo,
				Registry:  stack.Registry,
				Templates: stack.Templates,
				BasePath:  basePath,
				Auth:      authConfig(),
			})
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(shutdownCtx)
			}()
			fmt.Printf("Serving Dayline API on http://%s%s\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

func authConfig() server.AuthConfig {
	secret := os.Getenv("DAYLINE_JWT_SECRET")
	return server.AuthConfig{
		JWTSecret: secret,
		Disabled:  os.Getenv("DAYLINE_AUTH_DISABLED") == "1",
	}
}

// --- read commands ---

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Current phase, queues and budget",
		RunE: func(cmd *cobra.Command, args []string) error {
			stack, conn, err := buildStack(cmd.Context())
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := stack.Scheduler.Restore(cmd.Context()); err != nil {
				return err
			}
			st, err := stack.Scheduler.CurrentStatus(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(st)
		},
	}
}

func phaseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "phase",
		Short: "Current phase and the configured boundaries",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			boundaries, err := phase.ParseBoundaries(cfg.Phases)
			if err != nil {
				return err
			}
			current := boundaries.PhaseAt(time.Now())
			if viper.GetBool("json") {
				return printJSON(map[string]any{
					"current":    current,
					"boundaries": cfg.Phases,
				})
			}
			fmt.Println("current:", current)
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"Phase", "Starts"})
			for _, p := range domain.Phases {
				tw.AppendRow(table.Row{p, cfg.Phases[string(p)]})
			}
			tw.Render()
			return nil
		},
	}
}

func queueCmd() *cobra.Command {
	queue := &cobra.Command{Use: "queue", Short: "Phase queues"}
	list := &cobra.Command{
		Use:   "list [phase]",
		Short: "Pending units, in dequeue order",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stack, conn, err := buildStack(cmd.Context())
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := stack.Scheduler.Restore(cmd.Context()); err != nil {
				return err
			}
			phases := domain.Phases
			if len(args) == 1 {
				p := domain.Phase(args[0])
				if !p.Valid() {
					return fmt.Errorf("unknown phase %q", args[0])
				}
				phases = []domain.Phase{p}
			}
			var units []domain.WorkUnit
			for _, p := range phases {
				units = append(units, stack.Scheduler.Peek(p)...)
			}
			if viper.GetBool("json") {
				return printJSON(units)
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"ID", "Template", "Phase", "Priority", "Queued At"})
			for _, u := range units {
				tw.AppendRow(table.Row{u.ID, u.TemplateID, u.TargetPhase, u.Priority, u.QueuedAt})
			}
			tw.Render()
			return nil
		},
	}
	queue.AddCommand(list)
	return queue
}

func budgetCmd() *cobra.Command {
	bud := &cobra.Command{Use: "budget", Short: "Daily budget ledger"}
	show := &cobra.Command{
		Use:   "show",
		Short: "Spend for today",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				cfg, err := config.Load(viper.GetString("workspace"))
				if err != nil {
					return err
				}
				day := budget.Day(time.Now())
				spent, byCategory, err := r.SpendForDay(ctx, day)
				if err != nil {
					return err
				}
				return printJSON(domain.BudgetSnapshot{
					Day:        day,
					LimitUSD:   cfg.Budget.DailyLimitUSD,
					SpentUSD:   spent,
					ByCategory: byCategory,
				})
			})
		},
	}
	entries := &cobra.Command{
		Use:   "entries [day]",
		Short: "Ledger entries, oldest first",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				day := budget.Day(time.Now())
				if len(args) == 1 {
					day = args[0]
				}
				list, err := r.ListBudgetEntries(ctx, day)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(list)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"TS", "Category", "Amount", "Balance", "Unit", "Action"})
				for _, e := range list {
					tw.AppendRow(table.Row{e.TS, e.Category, fmt.Sprintf("%.2f", e.AmountUSD), fmt.Sprintf("%.2f", e.BalanceUSD), e.WorkUnitID, e.ActionID})
				}
				tw.Render()
				return nil
			})
		},
	}
	bud.AddCommand(show)
	bud.AddCommand(entries)
	return bud
}

func unitCmd() *cobra.Command {
	unit := &cobra.Command{Use: "unit", Short: "Work units"}
	unit.AddCommand(unitListCmd())
	unit.AddCommand(unitEnqueueCmd())
	unit.AddCommand(unitGetCmd())
	unit.AddCommand(unitCancelCmd())
	return unit
}

func unitListCmd() *cobra.Command {
	var phaseF, statusF string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List work units",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				units, err := r.ListWorkUnits(ctx, repo.WorkUnitFilter{Phase: phaseF, Status: statusF, Limit: limit})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(units)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Template", "Phase", "Status", "Priority", "Queued At"})
				for _, u := range units {
					tw.AppendRow(table.Row{u.ID, u.TemplateID, u.TargetPhase, u.Status, u.Priority, u.QueuedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&phaseF, "phase", "", "phase filter")
	cmd.Flags().StringVar(&statusF, "status", "", "status filter")
	cmd.Flags().IntVar(&limit, "limit", 0, "max rows")
	return cmd
}

func unitEnqueueCmd() *cobra.Command {
	var phaseF string
	var priority int
	cmd := &cobra.Command{
		Use:   "enqueue <template-id>",
		Short: "Instantiate a template for a phase",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stack, conn, err := buildStack(cmd.Context())
			if err != nil {
				return err
			}
			defer conn.Close()
			target := domain.Phase(phaseF)
			if phaseF == "" {
				target = stack.Tracker.Current()
			}
			u, err := stack.Scheduler.Enqueue(cmd.Context(), args[0], target, priority)
			if err != nil {
				return err
			}
			return printJSON(u)
		},
	}
	cmd.Flags().StringVar(&phaseF, "phase", "", "target phase (default: current)")
	cmd.Flags().IntVar(&priority, "priority", 0, "priority override")
	return cmd
}

func unitGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show one work unit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				u, err := r.GetWorkUnit(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(u)
			})
		},
	}
}

func unitCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a queued unit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stack, conn, err := buildStack(cmd.Context())
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := stack.Scheduler.Restore(cmd.Context()); err != nil {
				return err
			}
			if err := stack.Scheduler.Cancel(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Println("canceled", args[0])
			return nil
		},
	}
}

func templateCmd() *cobra.Command {
	tpl := &cobra.Command{Use: "template", Short: "Work unit templates"}
	list := &cobra.Command{
		Use:   "list",
		Short: "List loaded templates",
		RunE: func(cmd *cobra.Command, args []string) error {
			stack, conn, err := buildStack(cmd.Context())
			if err != nil {
				return err
			}
			defer conn.Close()
			tpls := stack.Templates.All()
			if viper.GetBool("json") {
				return printJSON(tpls)
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"ID", "Name", "Category", "Actions", "Est. Cost", "Priority"})
			for _, t := range tpls {
				tw.AppendRow(table.Row{t.ID, t.Name, t.Category, strings.Join(t.ActionSequence, ","), fmt.Sprintf("%.2f", t.EstimatedCost), t.Priority})
			}
			tw.Render()
			return nil
		},
	}
	validate := &cobra.Command{
		Use:   "validate",
		Short: "Validate config, catalog and templates",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, conn, err := buildStack(cmd.Context())
			if err != nil {
				return err
			}
			conn.Close()
			fmt.Println("configuration valid")
			return nil
		},
	}
	tpl.AddCommand(list)
	tpl.AddCommand(validate)
	return tpl
}

func actionCmd() *cobra.Command {
	action := &cobra.Command{Use: "action", Short: "Action catalog"}
	list := &cobra.Command{
		Use:   "list",
		Short: "List registered actions",
		RunE: func(cmd *cobra.Command, args []string) error {
			stack, conn, err := buildStack(cmd.Context())
			if err != nil {
				return err
			}
			defer conn.Close()
			defs := stack.Registry.All()
			if viper.GetBool("json") {
				return printJSON(defs)
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"ID", "Name", "Category", "Handler", "Est. Cost", "Minutes"})
			for _, d := range defs {
				tw.AppendRow(table.Row{d.ID, d.Name, d.Category, d.HandlerRef, fmt.Sprintf("%.2f", d.EstimatedCost), d.EstimatedMins})
			}
			tw.Render()
			return nil
		},
	}
	action.AddCommand(list)
	return action
}

func summaryCmd() *cobra.Command {
	sum := &cobra.Command{Use: "summary", Short: "Work summaries"}
	var phaseF string
	var failed bool
	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List summaries, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				f := repo.SummaryFilter{Phase: phaseF, Limit: limit}
				if failed {
					v := false
					f.Success = &v
				}
				summaries, err := r.ListWorkSummaries(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(summaries)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Unit", "Template", "Phase", "Success", "Cost", "Completed At"})
				for _, s := range summaries {
					tw.AppendRow(table.Row{s.WorkUnitID, s.TemplateID, s.Phase, s.Success, fmt.Sprintf("%.2f", s.ActualCost), s.CompletedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	list.Flags().StringVar(&phaseF, "phase", "", "phase filter")
	list.Flags().BoolVar(&failed, "failed", false, "only failed units")
	list.Flags().IntVar(&limit, "limit", 0, "max rows")
	show := &cobra.Command{
		Use:   "show <work-unit-id>",
		Short: "Show one summary with action results",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				s, err := r.GetWorkSummary(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(s)
			})
		},
	}
	sum.AddCommand(list)
	sum.AddCommand(show)
	return sum
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "The diary of everything that happened: phase changes, unit lifecycle, budget deductions.",
	}
	var typeF string
	var limit int
	tail := &cobra.Command{
		Use:   "tail",
		Short: "Latest events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				events, err := r.ListEvents(ctx, repo.EventFilter{Type: typeF, Limit: limit})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(events)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"TS", "Type", "Entity", "Payload"})
				for _, e := range events {
					tw.AppendRow(table.Row{e.TS, e.Type, e.EntityID, e.Payload})
				}
				tw.Render()
				return nil
			})
		},
	}
	tail.Flags().StringVar(&typeF, "type", "", "event type filter")
	tail.Flags().IntVar(&limit, "limit", 50, "max rows")
	log.AddCommand(tail)
	return log
}

func apikeyCmd() *cobra.Command {
	key := &cobra.Command{Use: "apikey", Short: "Operator API keys"}
	var name, actor string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create an API key (printed once)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				raw := make([]byte, 24)
				if _, err := rand.Read(raw); err != nil {
					return err
				}
				secret := "dk_" + hex.EncodeToString(raw)
				k := domain.APIKey{
					ID:      uuid.New().String(),
					ActorID: actor,
					Name:    name,
					KeyHash: repo.HashAPIKey(secret),
				}
				if err := r.InsertAPIKey(ctx, nil, k); err != nil {
					return err
				}
				fmt.Println(secret)
				return nil
			})
		},
	}
	create.Flags().StringVar(&name, "name", "", "key label")
	create.Flags().StringVar(&actor, "actor-id", "operator", "actor the key authenticates as")
	list := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				keys, err := r.ListAPIKeys(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(keys)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Actor", "Name", "Created At"})
				for _, k := range keys {
					tw.AppendRow(table.Row{k.ID, k.ActorID, k.Name, k.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	revoke := &cobra.Command{
		Use:   "revoke <id>",
		Short: "Delete an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.DeleteAPIKey(ctx, args[0])
			})
		},
	}
	key.AddCommand(create)
	key.AddCommand(list)
	key.AddCommand(revoke)
	return key
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Workspace configuration"}
	show := &cobra.Command{
		Use:   "show",
		Short: "Print the effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := config.Load(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(c)
			}
			out, err := c.ToYAML()
			if err != nil {
				return err
			}
			fmt.Print(string(out))
			return nil
		},
	}
	initC := &cobra.Command{
		Use:   "init",
		Short: "Write the default dayline.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			out, err := config.Default().ToYAML()
			if err != nil {
				return err
			}
			if err := os.WriteFile(path, out, 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	cfg.AddCommand(show)
	cfg.AddCommand(initC)
	return cfg
}
