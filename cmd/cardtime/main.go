package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"cardtime/internal/app"
	"cardtime/internal/config"
	"cardtime/internal/db"
	"cardtime/internal/engine"
	"cardtime/internal/logger"
	"cardtime/internal/migrate"
	"cardtime/internal/repo"
	"cardtime/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "cardtime",
	Short: "Cardtime CLI",
	Long: `Cardtime tracks time spent on Trello cards and turns it into billing data.
- Workspace: the directory holding cardtime.yml and the .cardtime database.
- Timers: one open timer per user; starting a new one settles the old one first.
- Entries: closed spans with a duration, an optional rate snapshot and an amount.
- Projects map Trello boards to clients and hourly rates.
- Invoices fold unbilled billable entries into a numbered total.`,
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
	viper.SetEnvPrefix("CARDTIME")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("trello-id", "local-user", "Trello member id to act as")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("trello-id", rootCmd.PersistentFlags().Lookup("trello-id"))
}

func registerCommands() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(startCmd())
	rootCmd.AddCommand(stopCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(entriesCmd())
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(clientCmd())
	rootCmd.AddCommand(invoiceCmd())
	rootCmd.AddCommand(reportCmd())
	rootCmd.AddCommand(logCmd())
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var debug bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.Bootstrap(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			defer a.Close()
			log, err := logger.New(debug)
			if err != nil {
				return err
			}
			defer log.Sync()
			if addr == "" {
				addr = a.Config.Server.Addr
			}
			if basePath == "" {
				basePath = a.Config.Server.BasePath
			}
			authCfg := server.AuthConfig{
				JWTSecret:    a.Config.Auth.JWTSecret,
				TokenTTL:     a.Config.TokenTTL(),
				DemoEnabled:  a.Config.Auth.Demo.Enabled,
				DemoTrelloID: a.Config.Auth.Demo.TrelloID,
				Logger:       log,
			}
			if secret := os.Getenv("CARDTIME_JWT_SECRET"); secret != "" {
				authCfg.JWTSecret = secret
			}
			if authCfg.JWTSecret == "" && !authCfg.DemoEnabled {
				return fmt.Errorf("auth.jwt_secret (or CARDTIME_JWT_SECRET) is required unless demo auth is enabled")
			}
			handler, err := server.New(server.Config{Engine: a.Engine, BasePath: basePath, Auth: authCfg})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			log.Info("serving Cardtime API",
				zap.String("addr", addr),
				zap.String("base_path", basePath),
				zap.Bool("demo_auth", authCfg.DemoEnabled))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (defaults to config)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (defaults to config)")
	cmd.Flags().BoolVar(&debug, "debug", false, "debug logging")
	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			fmt.Println("migrations applied")
			return nil
		},
	}
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Manage workspace config"}
	cfg.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write a default cardtime.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault(db.Path(workspace))), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	})
	cfg.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show loaded config",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(a *app.App) error {
				return printJSONOrTable(a.Config)
			})
		},
	})
	cfg.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate config",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := config.Load(viper.GetString("workspace"))
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			_ = c
			fmt.Println("config OK")
			return nil
		},
	})
	return cfg
}

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for the current user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(a *app.App) error {
				secret := a.Config.Auth.JWTSecret
				if env := os.Getenv("CARDTIME_JWT_SECRET"); env != "" {
					secret = env
				}
				if secret == "" {
					return fmt.Errorf("auth.jwt_secret is not configured")
				}
				u, err := a.Engine.EnsureUser(cmd.Context(), viper.GetString("trello-id"), "", "")
				if err != nil {
					return err
				}
				token, err := server.SignToken(secret, u.ID, a.Config.TokenTTL())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]string{"token": token, "user_id": u.ID})
				}
				fmt.Println(token)
				return nil
			})
		},
	}
	return cmd
}

func startCmd() *cobra.Command {
	var opts engine.StartOptions
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a timer on a card",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withUser(cmd.Context(), func(ctx context.Context, e engine.Engine, userID string) error {
				opts.UserID = userID
				entry, err := e.Start(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(entry)
			})
		},
	}
	cmd.Flags().StringVar(&opts.CardID, "card", "", "Trello card id")
	cmd.Flags().StringVar(&opts.CardName, "card-name", "", "card name")
	cmd.Flags().StringVar(&opts.BoardID, "board", "", "Trello board id")
	cmd.Flags().StringVar(&opts.ListName, "list", "", "list name")
	cmd.Flags().StringVar(&opts.ProjectID, "project", "", "project id")
	cmd.Flags().StringVar(&opts.Description, "description", "", "description")
	_ = cmd.MarkFlagRequired("card")
	return cmd
}

func stopCmd() *cobra.Command {
	var discard bool
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the running timer",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withUser(cmd.Context(), func(ctx context.Context, e engine.Engine, userID string) error {
				entry, err := e.Stop(ctx, userID, discard)
				if err != nil {
					return err
				}
				return printJSONOrTable(entry)
			})
		},
	}
	cmd.Flags().BoolVar(&discard, "discard", false, "discard the entry instead of saving it")
	return cmd
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the running timer",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withUser(cmd.Context(), func(ctx context.Context, e engine.Engine, userID string) error {
				active, ok, err := e.Active(ctx, userID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"active": ok, "timer": active})
				}
				if !ok {
					fmt.Println("no timer running")
					return nil
				}
				fmt.Printf("Tracking %q for %.1f min (card %s)\n", active.Entry.CardName, active.ElapsedMinutes, active.Entry.CardID)
				return nil
			})
		},
	}
}

func entriesCmd() *cobra.Command {
	entries := &cobra.Command{Use: "entries", Short: "Manage time entries"}
	entries.AddCommand(entriesListCmd())
	entries.AddCommand(entriesAddCmd())
	entries.AddCommand(entriesDeleteCmd())
	return entries
}

func entriesListCmd() *cobra.Command {
	var boardID, projectID, from, to string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withUser(cmd.Context(), func(ctx context.Context, e engine.Engine, userID string) error {
				items, err := e.Repo.ListEntries(ctx, repo.EntryFilters{
					UserID:    userID,
					ProjectID: projectID,
					BoardID:   boardID,
					From:      from,
					To:        to,
					Limit:     limit,
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Card", "Start", "Minutes", "Amount", "Billed"})
				for _, en := range items {
					minutes, amount := "", ""
					if en.DurationMinutes != nil {
						minutes = fmt.Sprintf("%.1f", *en.DurationMinutes)
					}
					if en.Amount != nil {
						amount = fmt.Sprintf("%.2f", *en.Amount)
					}
					tw.AppendRow(table.Row{en.ID, en.CardName, en.StartTime, minutes, amount, en.IsBilled})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&boardID, "board", "", "board filter")
	cmd.Flags().StringVar(&projectID, "project", "", "project filter")
	cmd.Flags().StringVar(&from, "from", "", "start of range (RFC3339)")
	cmd.Flags().StringVar(&to, "to", "", "end of range (RFC3339)")
	cmd.Flags().IntVar(&limit, "limit", 50, "max rows")
	return cmd
}

func entriesAddCmd() *cobra.Command {
	var opts engine.ManualEntryOptions
	var billable bool
	var rate float64
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Record a manual entry",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("billable") {
				opts.Billable = &billable
			}
			if cmd.Flags().Changed("rate") {
				opts.HourlyRate = &rate
			}
			return withUser(cmd.Context(), func(ctx context.Context, e engine.Engine, userID string) error {
				opts.UserID = userID
				entry, err := e.RecordManual(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(entry)
			})
		},
	}
	cmd.Flags().StringVar(&opts.CardID, "card", "", "Trello card id")
	cmd.Flags().StringVar(&opts.CardName, "card-name", "", "card name")
	cmd.Flags().StringVar(&opts.BoardID, "board", "", "Trello board id")
	cmd.Flags().StringVar(&opts.ProjectID, "project", "", "project id")
	cmd.Flags().StringVar(&opts.StartTime, "start", "", "start time (RFC3339)")
	cmd.Flags().StringVar(&opts.EndTime, "end", "", "end time (RFC3339)")
	cmd.Flags().StringVar(&opts.Description, "description", "", "description")
	cmd.Flags().BoolVar(&billable, "billable", true, "billable")
	cmd.Flags().Float64Var(&rate, "rate", 0, "hourly rate override")
	cmd.Flags().StringSliceVar(&opts.Tags, "tag", nil, "tag (repeatable)")
	_ = cmd.MarkFlagRequired("card")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")
	return cmd
}

func entriesDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withUser(cmd.Context(), func(ctx context.Context, e engine.Engine, userID string) error {
				return e.DeleteEntry(ctx, userID, args[0])
			})
		},
	}
}

func projectCmd() *cobra.Command {
	prj := &cobra.Command{Use: "project", Short: "Manage projects"}
	prj.AddCommand(projectListCmd())
	prj.AddCommand(projectCreateCmd())
	return prj
}

func projectListCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withUser(cmd.Context(), func(ctx context.Context, e engine.Engine, userID string) error {
				items, err := e.ListProjects(ctx, userID, status)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Board", "Status", "Hours", "Earnings"})
				for _, p := range items {
					tw.AppendRow(table.Row{p.ID, p.Name, p.TrelloBoardID, p.Status,
						fmt.Sprintf("%.1f", p.Stats.TotalHours), fmt.Sprintf("%.2f", p.Stats.TotalEarnings)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status filter")
	return cmd
}

func projectCreateCmd() *cobra.Command {
	var opts engine.ProjectCreateOptions
	var rate float64
	var billable bool
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("rate") {
				opts.HourlyRate = &rate
			}
			if cmd.Flags().Changed("billable") {
				opts.Billable = &billable
			}
			return withUser(cmd.Context(), func(ctx context.Context, e engine.Engine, userID string) error {
				opts.UserID = userID
				p, err := e.CreateProject(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Name, "name", "", "project name")
	cmd.Flags().StringVar(&opts.ClientID, "client", "", "client id")
	cmd.Flags().StringVar(&opts.Description, "description", "", "description")
	cmd.Flags().StringVar(&opts.TrelloBoardID, "board", "", "Trello board id")
	cmd.Flags().StringVar(&opts.Color, "color", "", "display color")
	cmd.Flags().Float64Var(&rate, "rate", 0, "hourly rate")
	cmd.Flags().BoolVar(&billable, "billable", true, "billable")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func clientCmd() *cobra.Command {
	cl := &cobra.Command{Use: "client", Short: "Manage clients"}
	cl.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List clients",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withUser(cmd.Context(), func(ctx context.Context, e engine.Engine, userID string) error {
				items, err := e.ListClients(ctx, userID)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	})
	cl.AddCommand(clientCreateCmd())
	return cl
}

func clientCreateCmd() *cobra.Command {
	var opts engine.ClientCreateOptions
	var rate float64
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a client",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("rate") {
				opts.HourlyRate = &rate
			}
			return withUser(cmd.Context(), func(ctx context.Context, e engine.Engine, userID string) error {
				opts.UserID = userID
				c, err := e.CreateClient(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Name, "name", "", "client name")
	cmd.Flags().StringVar(&opts.Email, "email", "", "email")
	cmd.Flags().StringVar(&opts.Company, "company", "", "company")
	cmd.Flags().StringVar(&opts.Color, "color", "", "display color")
	cmd.Flags().Float64Var(&rate, "rate", 0, "hourly rate")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func invoiceCmd() *cobra.Command {
	inv := &cobra.Command{Use: "invoice", Short: "Manage invoices"}
	inv.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List invoices",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withUser(cmd.Context(), func(ctx context.Context, e engine.Engine, userID string) error {
				items, err := e.ListInvoices(ctx, userID)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	})
	inv.AddCommand(invoiceCreateCmd())
	return inv
}

func invoiceCreateCmd() *cobra.Command {
	var opts engine.InvoiceOptions
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an invoice from unbilled entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withUser(cmd.Context(), func(ctx context.Context, e engine.Engine, userID string) error {
				opts.UserID = userID
				res, err := e.CreateInvoice(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(res)
			})
		},
	}
	cmd.Flags().StringVar(&opts.ClientID, "client", "", "client id")
	cmd.Flags().StringVar(&opts.ProjectID, "project", "", "project id")
	cmd.Flags().StringVar(&opts.From, "from", "", "start of range (RFC3339)")
	cmd.Flags().StringVar(&opts.To, "to", "", "end of range (RFC3339)")
	cmd.Flags().Float64Var(&opts.TaxRate, "tax-rate", 0, "tax rate percent")
	cmd.Flags().StringVar(&opts.DueDate, "due", "", "due date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.Notes, "notes", "", "notes")
	return cmd
}

func reportCmd() *cobra.Command {
	rep := &cobra.Command{Use: "report", Short: "Reports"}
	rep.AddCommand(&cobra.Command{
		Use:   "dashboard",
		Short: "Today and this week at a glance",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withUser(cmd.Context(), func(ctx context.Context, e engine.Engine, userID string) error {
				out, err := e.Dashboard(ctx, userID)
				if err != nil {
					return err
				}
				return printJSONOrTable(out)
			})
		},
	})
	rep.AddCommand(reportSummaryCmd())
	return rep
}

func reportSummaryCmd() *cobra.Command {
	var opts engine.SummaryOptions
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Aggregated totals with a daily series",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withUser(cmd.Context(), func(ctx context.Context, e engine.Engine, userID string) error {
				opts.UserID = userID
				out, err := e.Summary(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(out)
			})
		},
	}
	cmd.Flags().StringVar(&opts.From, "from", "", "start day (YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.To, "to", "", "end day (YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.ProjectID, "project", "", "project filter")
	cmd.Flags().StringVar(&opts.BoardID, "board", "", "board filter")
	cmd.Flags().StringVar(&opts.CardID, "card", "", "card filter")
	cmd.Flags().StringVar(&opts.GroupBy, "group-by", "", "group by project, board or card")
	return cmd
}

func logCmd() *cobra.Command {
	lg := &cobra.Command{Use: "log", Short: "Event log"}
	lg.AddCommand(logTailCmd())
	return lg
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withUser(cmd.Context(), func(ctx context.Context, e engine.Engine, userID string) error {
				events, err := e.Repo.LatestEvents(ctx, n, userID, evtType, "", "")
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	return cmd
}

// --- helpers ---

func withApp(fn func(*app.App) error) error {
	a, err := app.Bootstrap(viper.GetString("workspace"))
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func withUser(ctx context.Context, fn func(context.Context, engine.Engine, string) error) error {
	return withApp(func(a *app.App) error {
		u, err := a.Engine.EnsureUser(ctx, viper.GetString("trello-id"), "", "")
		if err != nil {
			return err
		}
		return fn(ctx, a.Engine, u.ID)
	})
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
