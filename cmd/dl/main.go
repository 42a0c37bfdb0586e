package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"dayline/internal/app"
	"dayline/internal/config"
	"dayline/internal/db"
	"dayline/internal/domain"
	"dayline/internal/engine"
	"dayline/internal/migrate"
	"dayline/internal/notify"
	"dayline/internal/repo"
	"dayline/internal/routine"
	"dayline/internal/scoring"
	"dayline/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "dl",
	Short: "Dayline CLI",
	Long: `Dayline is a personal task manager with points.
- Tasks are pending until you complete them, mark them not done, or postpone them.
- Completing earns the task type's reward; skipping or postponing costs points.
- Postpone penalties accumulate per task and survive completion, so the net
  score always shows what the procrastination cost.
- Snooze just delays the reminder; it never changes status and never costs points.
- Routines offer the next occurrence when you finish one; recurring tasks
  pre-generate the whole series up front.
- Undo reverses the last resolution or postpone, with a warning when it would
  delete auto-generated occurrences.`,
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
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
}

func registerCommands() {
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(typeCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(serveCmd())
}

func taskCmd() *cobra.Command {
	task := &cobra.Command{
		Use:   "task",
		Short: "Manage tasks",
		Long:  "Work items with due dates, optional subtasks, and a points type. Resolve them with done / not-done / postpone, delay reminders with snooze, and take anything back with undo.",
	}
	task.AddCommand(taskAddCmd())
	task.AddCommand(taskListCmd())
	task.AddCommand(taskShowCmd())
	task.AddCommand(taskDoneCmd())
	task.AddCommand(taskNotDoneCmd())
	task.AddCommand(taskPostponeCmd())
	task.AddCommand(taskSnoozeCmd())
	task.AddCommand(taskToggleCmd())
	task.AddCommand(taskUndoCmd())
	task.AddCommand(taskNextCmd())
	task.AddCommand(taskDeleteCmd())
	return task
}

func taskAddCmd() *cobra.Command {
	var opts engine.TaskCreateOptions
	var kind, due, freq string
	var interval, count int
	var subtasks []string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a task",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ActorID = viper.GetString("actor-id")
			opts.Kind = domain.TaskKind(kind)
			opts.Subtasks = subtasks
			dueDate, err := parseDueDate(due)
			if err != nil {
				return err
			}
			opts.DueDate = dueDate
			if cmd.Flags().Changed("freq") {
				opts.Recurrence = &domain.RecurrenceRule{Freq: freq, Interval: interval, Count: count}
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.CreateTask(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "task id (optional, random UUID if omitted)")
	cmd.Flags().StringVar(&opts.Title, "title", "", "title")
	cmd.Flags().StringVar(&opts.Notes, "notes", "", "notes")
	cmd.Flags().StringVar(&kind, "kind", "normal", "task kind (normal, recurring, routine)")
	cmd.Flags().StringVar(&due, "due", "", "due date (YYYY-MM-DD or RFC3339)")
	cmd.Flags().StringVar(&opts.DueTime, "due-time", "", "due time of day (HH:MM)")
	cmd.Flags().StringVar(&opts.TaskTypeName, "type", "", "task type name")
	cmd.Flags().StringArrayVar(&subtasks, "subtask", []string{}, "subtask title (repeatable)")
	cmd.Flags().StringVar(&freq, "freq", "", "recurrence frequency (daily, weekly, monthly)")
	cmd.Flags().IntVar(&interval, "interval", 1, "recurrence interval")
	cmd.Flags().IntVar(&count, "count", 1, "recurrence occurrence count")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("due")
	return cmd
}

func taskListCmd() *cobra.Command {
	var f repo.TaskFilters
	var overdue bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if overdue {
					now := time.Now().UTC()
					f.DueBefore = &now
					if f.Status == "" {
						f.Status = "open"
					}
				}
				tasks, err := e.Repo.ListTasks(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(tasks)
				}
				now := time.Now().UTC()
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Kind", "Status", "Due", "Net", "Flags"})
				for _, t := range tasks {
					tw.AppendRow(table.Row{
						shortID(t.ID), t.Title, t.Kind, t.Status,
						t.DueDate.Format("2006-01-02"),
						scoring.NetPoints(t),
						taskFlags(t, now),
					})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter (pending, completed, not_done, postponed, open)")
	cmd.Flags().StringVar(&f.Kind, "kind", "", "kind filter (normal, recurring, routine)")
	cmd.Flags().StringVar(&f.RoutineGroupID, "routine-group", "", "routine group filter")
	cmd.Flags().StringVar(&f.RecurrenceGroup, "recurrence-group", "", "recurrence group filter")
	cmd.Flags().BoolVar(&overdue, "overdue", false, "only open tasks past their due date")
	return cmd
}

func taskShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.Repo.GetTask(ctx, id)
				if err != nil {
					return err
				}
				tt, err := e.Repo.TaskTypeFor(ctx, t)
				if err != nil {
					return err
				}
				out := map[string]any{
					"task":          t,
					"net_points":    scoring.NetPoints(t),
					"projected_net": scoring.Projection(t, tt),
					"snoozed":       t.IsSnoozed(time.Now().UTC()),
					"open_subtasks": t.IncompleteSubtasks(),
				}
				if t.Kind == domain.KindRoutine && t.ProgressStartDate != nil {
					out["progress_fraction"] = routine.ProgressFraction(time.Now().UTC(), *t.ProgressStartDate, t.DueDate)
				}
				return printJSONOrTable(out)
			})
		},
	}
	return cmd
}

func taskDoneCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "done <id>",
		Short: "Complete task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.CompleteTask(ctx, id, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				cancelReminders(ctx, e, id)
				if err := printJSONOrTable(res); err != nil {
					return err
				}
				if res.OfferNextRoutine && !viper.GetBool("json") {
					fmt.Printf("Routine completed. Schedule the next occurrence with: dl task next %s --due <date>\n", id)
				}
				return nil
			})
		},
	}
	return cmd
}

func taskNotDoneCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "not-done <id>",
		Short: "Mark task not done",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.MarkTaskNotDone(ctx, id, reason, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				cancelReminders(ctx, e, id)
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "why the task was not done")
	_ = cmd.MarkFlagRequired("reason")
	return cmd
}

func taskPostponeCmd() *cobra.Command {
	var due, reason string
	cmd := &cobra.Command{
		Use:   "postpone <id>",
		Short: "Move the due date forward",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			newDue, err := parseDueDate(due)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.PostponeTask(ctx, id, newDue, reason, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				cancelReminders(ctx, e, id)
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&due, "due", "", "new due date (YYYY-MM-DD or RFC3339)")
	cmd.Flags().StringVar(&reason, "reason", "", "why the task is postponed")
	_ = cmd.MarkFlagRequired("due")
	_ = cmd.MarkFlagRequired("reason")
	return cmd
}

func taskSnoozeCmd() *cobra.Command {
	var minutes int
	cmd := &cobra.Command{
		Use:   "snooze <id>",
		Short: "Delay the reminder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if minutes == 0 {
					minutes = e.Config.Snooze.DefaultMinutes
				}
				t, err := e.SnoozeTask(ctx, id, minutes, "cli", viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				if t.SnoozedUntil != nil {
					sched := notify.NewScheduler(e.Config)
					if err := sched.ScheduleSnooze(ctx, t.ID, t.Title, "Snoozed task is due again", *t.SnoozedUntil, map[string]any{
						"task_id":       t.ID,
						"snoozed_until": t.SnoozedUntil.UTC().Format(time.RFC3339),
					}); err != nil {
						fmt.Fprintf(os.Stderr, "warning: reminder scheduling failed: %v\n", err)
					}
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().IntVar(&minutes, "minutes", 0, "snooze duration in minutes (config default if omitted)")
	return cmd
}

func taskToggleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "toggle <id> <subtask-index>",
		Short: "Toggle a subtask",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			index, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("subtask index must be a number: %w", err)
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.ToggleSubtask(ctx, id, index, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	return cmd
}

func taskUndoCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "undo <id>",
		Short: "Undo the last resolution or postpone",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				cls, err := e.ClassifyUndo(ctx, id)
				if err != nil {
					return err
				}
				if cls.WillDeleteTasks > 0 && !yes {
					return fmt.Errorf("undo would delete %d auto-generated occurrence(s); re-run with --yes to confirm", cls.WillDeleteTasks)
				}
				t, err := e.UndoTask(ctx, id, viper.GetString("actor-id"), cls.WillDeleteTasks > 0)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm deleting auto-generated occurrences")
	return cmd
}

func taskNextCmd() *cobra.Command {
	var due, dueTime string
	cmd := &cobra.Command{
		Use:   "next <id>",
		Short: "Create the next routine occurrence",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			newDue, err := parseDueDate(due)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.NextRoutine(ctx, id, newDue, dueTime, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&due, "due", "", "due date for the next occurrence")
	cmd.Flags().StringVar(&dueTime, "due-time", "", "due time of day (defaults to the source's)")
	_ = cmd.MarkFlagRequired("due")
	return cmd
}

func taskDeleteCmd() *cobra.Command {
	var series bool
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if series {
					removed, err := e.DeleteSeries(ctx, id, viper.GetString("actor-id"))
					if err != nil {
						return err
					}
					return printJSONOrTable(map[string]any{"deleted": removed})
				}
				if err := e.Repo.DeleteTask(ctx, id); err != nil {
					return err
				}
				cancelReminders(ctx, e, id)
				return printJSONOrTable(map[string]any{"deleted": 1})
			})
		},
	}
	cmd.Flags().BoolVar(&series, "series", false, "delete the whole routine/recurrence series")
	return cmd
}

func typeCmd() *cobra.Command {
	tt := &cobra.Command{
		Use:   "type",
		Short: "Manage task types",
		Long:  "Task types carry the points: a reward for completing and penalties for skipping or postponing. Tasks without a type earn nothing and only pay the default postpone penalty.",
	}
	tt.AddCommand(typeAddCmd())
	tt.AddCommand(typeListCmd())
	tt.AddCommand(typeDeleteCmd())
	return tt
}

func typeAddCmd() *cobra.Command {
	var name string
	var reward, penaltyNotDone, penaltyPostpone int
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a task type",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				tt, err := e.CreateTaskType(ctx, name, reward, penaltyNotDone, penaltyPostpone, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(tt)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "type name")
	cmd.Flags().IntVar(&reward, "reward", 0, "points for completing")
	cmd.Flags().IntVar(&penaltyNotDone, "penalty-not-done", 0, "points lost when marked not done")
	cmd.Flags().IntVar(&penaltyPostpone, "penalty-postpone", 0, "points lost per postpone")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func typeListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List task types",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				types, err := e.Repo.ListTaskTypes(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(types)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Reward", "Not Done", "Postpone"})
				for _, tt := range types {
					tw.AppendRow(table.Row{shortID(tt.ID), tt.Name, tt.RewardOnDone, tt.PenaltyNotDone, tt.PenaltyPostpone})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func typeDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a task type",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.DeleteTaskType(ctx, id)
			})
		},
	}
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Manage settings",
	}
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configImportCmd())
	cfg.AddCommand(configInitCmd())
	return cfg
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show settings stored in DB",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return printJSONOrTable(e.Config)
			})
		},
	}
	return cmd
}

func configImportCmd() *cobra.Command {
	var filePath string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import settings from YAML into the DB",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				cfg, err := app.ImportConfig(ctx, filePath, r)
				if err != nil {
					return err
				}
				e := engine.New(r.DB, cfg)
				if err := e.SeedTaskTypes(ctx, viper.GetString("actor-id")); err != nil {
					return err
				}
				return printJSONOrTable(cfg)
			})
		},
	}
	cmd.Flags().StringVar(&filePath, "file", "", "path to YAML config")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func configInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default dayline.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists; use --force to overwrite", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing file")
	return cmd
}

func logCmd() *cobra.Command {
	lg := &cobra.Command{Use: "log", Short: "Inspect the event log"}
	lg.AddCommand(logTailCmd())
	return lg
}

func logTailCmd() *cobra.Command {
	var n int
	var taskID string
	var after int64
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				events, err := r.ListEvents(ctx, repo.EventFilters{
					TaskID:  taskID,
					AfterID: after,
					Limit:   n,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&taskID, "task", "", "task id filter")
	cmd.Flags().Int64Var(&after, "after", 0, "only events after this id")
	return cmd
}

func apikeyCmd() *cobra.Command {
	ak := &cobra.Command{Use: "apikey", Short: "Manage API keys"}
	ak.AddCommand(apikeyListCmd())
	ak.AddCommand(apikeyDeleteCmd())
	return ak
}

func apikeyListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				keys, err := r.ListAPIKeys(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(keys)
			})
		},
	}
	return cmd
}

func apikeyDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.DeleteAPIKey(ctx, id)
			})
		},
	}
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var allowLegacy bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			r := repo.Repo{DB: conn}
			cfg, err := app.ResolveConfig(cmd.Context(), workspace, r)
			if err != nil {
				return err
			}
			e := engine.New(conn, cfg)
			if err := e.SeedTaskTypes(cmd.Context(), viper.GetString("actor-id")); err != nil {
				return err
			}
			authCfg := server.AuthConfig{
				JWTSecret:              os.Getenv("DAYLINE_JWT_SECRET"),
				AllowLegacyActorHeader: allowLegacy,
			}
			if authCfg.JWTSecret == "" && !allowLegacy {
				return fmt.Errorf("DAYLINE_JWT_SECRET is required for bearer auth (or pass --allow-legacy-actor-header)")
			}
			handler, err := server.New(server.Config{Engine: e, BasePath: basePath, Auth: authCfg})
			if err != nil {
				return err
			}
			notify.Start(r, cfg)
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Dayline API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	cmd.Flags().BoolVar(&allowLegacy, "allow-legacy-actor-header", false, "accept X-Actor-Id without credentials")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	r := repo.Repo{DB: conn}
	cfg, err := app.ResolveConfig(ctx, workspace, r)
	if err != nil {
		return err
	}
	e := engine.New(conn, cfg)
	if err := e.SeedTaskTypes(ctx, viper.GetString("actor-id")); err != nil {
		return err
	}
	return fn(ctx, e)
}

// cancelReminders tears down pending reminders for a task that just left the
// open workflow. Delivery is best effort; the transition already committed.
func cancelReminders(ctx context.Context, e engine.Engine, taskID string) {
	sched := notify.NewScheduler(e.Config)
	if err := sched.CancelAllForTask(ctx, taskID); err != nil {
		fmt.Fprintf(os.Stderr, "warning: reminder cancel failed: %v\n", err)
	}
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, repo.Repo{DB: conn})
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseDueDate(in string) (time.Time, error) {
	in = strings.TrimSpace(in)
	if in == "" {
		return time.Time{}, fmt.Errorf("--due is required")
	}
	if t, err := time.Parse(time.RFC3339, in); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse("2006-01-02", in); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("invalid due date %q; use YYYY-MM-DD or RFC3339", in)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func taskFlags(t domain.TaskRecord, now time.Time) string {
	var flags []string
	if t.IsSnoozed(now) {
		flags = append(flags, "snoozed")
	}
	if t.PostponeCount > 0 {
		flags = append(flags, fmt.Sprintf("postponed x%d", t.PostponeCount))
	}
	if t.Status.Open() && t.DueDate.Before(now) {
		flags = append(flags, "overdue")
	}
	return strings.Join(flags, ", ")
}
