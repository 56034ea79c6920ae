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

	"worknest/internal/config"
	"worknest/internal/db"
	"worknest/internal/directory"
	"worknest/internal/domain"
	"worknest/internal/engine"
	"worknest/internal/migrate"
	"worknest/internal/repo"
	"worknest/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "worknest",
	Short: "WorkNest CLI",
	Long: `WorkNest tracks projects, their stages and tasks with role-based access.
- Workspace: the .worknest directory holding the database.
- Project: owns stages, tasks and a member list; managers and admins create them.
- Stage: an ordered column tasks move through.
- Task: a work item with priority and an optional assignee.
- Event log: diary of changes, view with 'worknest log tail'.`,
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
	viper.SetEnvPrefix("WORKNEST")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("user-id", "local-admin", "acting user id")
	rootCmd.PersistentFlags().String("role", "ROLE_ADMIN", "acting user role")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("user-id", rootCmd.PersistentFlags().Lookup("user-id"))
	_ = viper.BindPFlag("role", rootCmd.PersistentFlags().Lookup("role"))
}

func registerCommands() {
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(stageCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func actingUser() domain.User {
	return domain.User{
		ID:   viper.GetString("user-id"),
		Role: domain.ParseRole(viper.GetString("role")),
	}
}

func projectCmd() *cobra.Command {
	prj := &cobra.Command{Use: "project", Short: "Manage projects"}
	prj.AddCommand(projectListCmd())
	prj.AddCommand(projectCreateCmd())
	prj.AddCommand(projectShowCmd())
	prj.AddCommand(projectDeleteCmd())
	prj.AddCommand(projectMemberCmd())
	return prj
}

func projectListCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				filters := repo.ProjectFilters{NameContains: name}
				sort := repo.Sort{Column: "created_at", Direction: "desc"}
				items, _, err := e.ListProjects(ctx, actingUser(), filters, sort, repo.Page{Limit: 100})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Manager", "Members", "Created"})
				for _, p := range items {
					manager := ""
					if p.ManagerID != nil {
						manager = *p.ManagerID
					}
					tw.AppendRow(table.Row{p.ID, p.Name, manager, len(p.EmployeeIDs), p.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "name contains filter")
	return cmd
}

func projectCreateCmd() *cobra.Command {
	var name, desc, manager string
	var members []string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				var managerPtr *string
				if manager != "" {
					managerPtr = &manager
				}
				p, err := e.CreateProject(ctx, actingUser(), engine.ProjectCreate{
					Name:        name,
					Description: desc,
					ManagerID:   managerPtr,
					EmployeeIDs: members,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "project name")
	cmd.Flags().StringVar(&desc, "description", "", "description")
	cmd.Flags().StringVar(&manager, "manager-id", "", "manager user id")
	cmd.Flags().StringSliceVar(&members, "member", nil, "member user id (repeatable)")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func projectShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <project-id>",
		Short: "Show a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.GetProject(ctx, actingUser(), args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	return cmd
}

func projectDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <project-id>",
		Short: "Delete a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeleteProject(ctx, actingUser(), args[0])
			})
		},
	}
	return cmd
}

func projectMemberCmd() *cobra.Command {
	member := &cobra.Command{Use: "member", Short: "Manage project members"}
	add := &cobra.Command{
		Use:   "add <project-id> <user-id>",
		Short: "Add a member",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.AddMember(ctx, actingUser(), args[0], args[1])
			})
		},
	}
	remove := &cobra.Command{
		Use:   "remove <project-id> <user-id>",
		Short: "Remove a member",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.RemoveMember(ctx, actingUser(), args[0], args[1])
			})
		},
	}
	member.AddCommand(add)
	member.AddCommand(remove)
	return member
}

func stageCmd() *cobra.Command {
	stage := &cobra.Command{Use: "stage", Short: "Manage stages"}
	stage.AddCommand(stageListCmd())
	stage.AddCommand(stageCreateCmd())
	stage.AddCommand(stageDeleteCmd())
	return stage
}

func stageListCmd() *cobra.Command {
	var projectID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stages",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				filters := repo.StageFilters{ProjectID: projectID}
				sort := repo.Sort{Column: "position", Direction: "asc"}
				items, _, err := e.ListStages(ctx, actingUser(), filters, sort, repo.Page{Limit: 100})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Project", "Name", "Position"})
				for _, s := range items {
					tw.AppendRow(table.Row{s.ID, s.ProjectID, s.Name, s.Position})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&projectID, "project", "", "project id filter")
	return cmd
}

func stageCreateCmd() *cobra.Command {
	var projectID, name, color string
	var position int
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create stage",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				var colorPtr *string
				if color != "" {
					colorPtr = &color
				}
				s, err := e.CreateStage(ctx, actingUser(), engine.StageCreate{
					ProjectID: projectID,
					Name:      name,
					Position:  position,
					Color:     colorPtr,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
	cmd.Flags().StringVar(&projectID, "project", "", "project id")
	cmd.Flags().StringVar(&name, "name", "", "stage name")
	cmd.Flags().IntVar(&position, "position", 0, "sort position")
	cmd.Flags().StringVar(&color, "color", "", "display color")
	_ = cmd.MarkFlagRequired("project")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func stageDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <stage-id>",
		Short: "Delete a stage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeleteStage(ctx, actingUser(), args[0])
			})
		},
	}
	return cmd
}

func taskCmd() *cobra.Command {
	task := &cobra.Command{Use: "task", Short: "Manage tasks"}
	task.AddCommand(taskListCmd())
	task.AddCommand(taskCreateCmd())
	task.AddCommand(taskShowCmd())
	task.AddCommand(taskMoveCmd())
	task.AddCommand(taskDeleteCmd())
	return task
}

func taskListCmd() *cobra.Command {
	var f repo.TaskFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				sort := repo.Sort{Column: "created_at", Direction: "desc"}
				items, _, err := e.ListTasks(ctx, actingUser(), f, sort, repo.Page{Limit: 100})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Priority", "Stage", "Assignee"})
				for _, t := range items {
					assignee := ""
					if t.Assignee != nil {
						assignee = strings.TrimSpace(t.Assignee.FirstName + " " + t.Assignee.LastName)
					} else if t.AssignedTo != nil {
						assignee = *t.AssignedTo
					}
					tw.AppendRow(table.Row{t.ID, t.Title, t.Priority, t.StageID, assignee})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.ProjectID, "project", "", "project id filter")
	cmd.Flags().StringVar(&f.StageID, "stage", "", "stage id filter")
	cmd.Flags().StringVar(&f.Priority, "priority", "", "priority filter")
	cmd.Flags().StringVar(&f.AssignedTo, "assigned-to", "", "assignee filter")
	return cmd
}

func taskCreateCmd() *cobra.Command {
	var projectID, stageID, title, desc, priority, assignedTo string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create task",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				var assigneePtr *string
				if assignedTo != "" {
					assigneePtr = &assignedTo
				}
				t, err := e.CreateTask(ctx, actingUser(), engine.TaskCreate{
					ProjectID:   projectID,
					StageID:     stageID,
					Title:       title,
					Description: desc,
					Priority:    priority,
					AssignedTo:  assigneePtr,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&projectID, "project", "", "project id")
	cmd.Flags().StringVar(&stageID, "stage", "", "stage id")
	cmd.Flags().StringVar(&title, "title", "", "task title")
	cmd.Flags().StringVar(&desc, "description", "", "description")
	cmd.Flags().StringVar(&priority, "priority", "", "LOW, MEDIUM or HIGH")
	cmd.Flags().StringVar(&assignedTo, "assigned-to", "", "assignee user id")
	_ = cmd.MarkFlagRequired("project")
	_ = cmd.MarkFlagRequired("stage")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func taskShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <task-id>",
		Short: "Show a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				v, err := e.GetTask(ctx, actingUser(), args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(v)
			})
		},
	}
	return cmd
}

func taskMoveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "move <task-id> <stage-id>",
		Short: "Move a task to another stage",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.PatchTask(ctx, actingUser(), args[0], map[string]any{"stageId": args[1]})
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	return cmd
}

func taskDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <task-id>",
		Short: "Delete a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeleteTask(ctx, actingUser(), args[0])
			})
		},
	}
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "The diary of everything that happened: project, stage and task changes.",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, projectID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				events, err := e.ListEvents(ctx, actingUser(), n, 0, projectID, evtType)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&projectID, "project", "", "project id filter")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			cfg, err := config.Load(workspace)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			if basePath != "" {
				cfg.Server.BasePath = basePath
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			var dir directory.Client
			if cfg.Directory.BaseURL != "" {
				dir = directory.NewHTTP(cfg.Directory.BaseURL, cfg.Directory.Token)
			}
			e := engine.New(conn, dir)
			secret := cfg.Auth.JWTSecret
			if secret == "" {
				secret = os.Getenv("WORKNEST_JWT_SECRET")
			}
			if secret == "" && !cfg.Auth.AllowDevHeaders {
				return fmt.Errorf("jwt secret is required for bearer auth (auth.jwt_secret or WORKNEST_JWT_SECRET)")
			}
			authCfg := server.AuthConfig{
				JWTSecret:       secret,
				AllowDevHeaders: cfg.Auth.AllowDevHeaders,
			}
			handler, err := server.New(server.Config{Engine: e, BasePath: cfg.Server.BasePath, Auth: authCfg})
			if err != nil {
				return err
			}
			server.StartWebhookDispatcher(e, cfg.Webhooks)
			srv := &http.Server{Addr: cfg.Server.Addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving WorkNest API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", cfg.Server.Addr, cfg.Server.BasePath, cfg.Server.BasePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (overrides config)")
	return cmd
}

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
	e := engine.New(conn, directory.Static{})
	return fn(ctx, e)
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
