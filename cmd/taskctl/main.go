package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/taskpulse/project/internal/app/health"
	"github.com/taskpulse/project/internal/contracts"
	"github.com/taskpulse/project/internal/domain"
	"github.com/taskpulse/project/internal/messaging"
	"github.com/taskpulse/project/internal/platform/auth"
	"github.com/taskpulse/project/internal/platform/cliflags"
)

func main() {
	app := &cli.App{
		Name:  "taskctl",
		Usage: "operate a taskpulse deployment over NATS",
		Flags: append(cliflags.Common(),
			&cli.DurationFlag{Name: "timeout", Value: 5 * time.Second, Usage: "per-command timeout", EnvVars: []string{"TASKCTL_TIMEOUT"}},
		),
		Commands: []*cli.Command{
			healthCommand(),
			taskCommand(),
			commentCommand(),
			notificationCommand(),
			tokenCommand(),
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "taskctl:", describe(err))
		os.Exit(1)
	}
}

func describe(err error) string {
	c := domain.Classify(err)
	if c.Reason != "" {
		return fmt.Sprintf("%s (%s): %s", c.Kind, c.Reason, c.Message)
	}
	if c.Kind == domain.KindInternal {
		return err.Error()
	}
	return fmt.Sprintf("%s: %s", c.Kind, err)
}

type session struct {
	conn   *nats.Conn
	client *messaging.RPCClient
	logger log.FieldLogger
}

func open(c *cli.Context) (*session, error) {
	_, logger := cliflags.Logger(c, "taskctl")
	conn, err := nats.Connect(c.String(cliflags.NATSURL), nats.Name("taskctl"), nats.Timeout(c.Duration(cliflags.NATSTimeout)))
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &session{conn: conn, client: messaging.NewRPCClient(conn, c.Duration("timeout")), logger: logger}, nil
}

func (s *session) Close() { s.conn.Close() }

// call runs one command and prints its reply data as indented JSON.
func call(c *cli.Context, command string, req any) error {
	s, err := open(c)
	if err != nil {
		return err
	}
	defer s.Close()

	var out json.RawMessage
	if err := s.client.Call(c.Context, command, req, &out); err != nil {
		return err
	}
	return printJSON(c, out)
}

func printJSON(c *cli.Context, v any) error {
	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func healthCommand() *cli.Command {
	return &cli.Command{
		Name:  "health",
		Usage: "probe every service health command",
		Action: func(c *cli.Context) error {
			s, err := open(c)
			if err != nil {
				return err
			}
			defer s.Close()

			probeClient := messaging.NewRPCClient(s.conn, health.DefaultTimeout)
			probe := &health.Probe{
				Checks: map[string]health.Check{
					"tasks":         health.Remote(probeClient, contracts.CmdTasksHealth),
					"notifications": health.Remote(probeClient, contracts.CmdNotificationsHealth),
					"auth":          health.Remote(probeClient, contracts.CmdAuthHealth),
				},
				Logger: s.logger,
			}
			report := probe.Run(c.Context)
			if err := printJSON(c, report); err != nil {
				return err
			}
			if report.Status != contracts.StatusUp {
				return cli.Exit("", 2)
			}
			return nil
		},
	}
}

func optional(c *cli.Context, name string) *string {
	if !c.IsSet(name) {
		return nil
	}
	v := c.String(name)
	return &v
}

func assignees(c *cli.Context) []domain.AssignedUser {
	ids := c.StringSlice("assignee")
	out := make([]domain.AssignedUser, 0, len(ids))
	for _, id := range ids {
		out = append(out, domain.AssignedUser{UserID: id, Username: id})
	}
	return out
}

var actorFlags = []cli.Flag{
	&cli.StringFlag{Name: "actor", Usage: "acting user id", EnvVars: []string{"TASKCTL_ACTOR"}},
	&cli.StringFlag{Name: "actor-name", Usage: "acting user name", EnvVars: []string{"TASKCTL_ACTOR_NAME"}},
}

func taskCommand() *cli.Command {
	fieldFlags := []cli.Flag{
		&cli.StringFlag{Name: "title"},
		&cli.StringFlag{Name: "description"},
		&cli.StringFlag{Name: "due", Usage: "due date, RFC 3339 or YYYY-MM-DD"},
		&cli.StringFlag{Name: "priority", Usage: "LOW, MEDIUM, HIGH or URGENT"},
		&cli.StringFlag{Name: "status", Usage: "TODO, IN_PROGRESS, REVIEW or DONE"},
		&cli.StringSliceFlag{Name: "assignee", Usage: "assignee user id, repeatable"},
	}
	idFlag := &cli.StringFlag{Name: "id", Required: true}

	return &cli.Command{
		Name:  "task",
		Usage: "create, inspect and change tasks",
		Subcommands: []*cli.Command{
			{
				Name:  "create",
				Flags: append(append([]cli.Flag{}, fieldFlags...), actorFlags...),
				Action: func(c *cli.Context) error {
					return call(c, contracts.CmdCreateTask, contracts.CreateTaskCommand{
						Title:         c.String("title"),
						Description:   optional(c, "description"),
						DueDate:       optional(c, "due"),
						Priority:      optional(c, "priority"),
						Status:        optional(c, "status"),
						AuthorID:      c.String("actor"),
						AuthorName:    c.String("actor-name"),
						AssignedUsers: assignees(c),
					})
				},
			},
			{
				Name:  "update",
				Flags: append(append([]cli.Flag{idFlag}, fieldFlags...), actorFlags...),
				Action: func(c *cli.Context) error {
					patch := contracts.TaskPatch{
						Title:       optional(c, "title"),
						Description: optional(c, "description"),
						DueDate:     optional(c, "due"),
						Priority:    optional(c, "priority"),
						Status:      optional(c, "status"),
					}
					if c.IsSet("assignee") {
						users := assignees(c)
						patch.AssignedUsers = &users
					}
					return call(c, contracts.CmdUpdateTask, contracts.UpdateTaskCommand{
						ID:        c.String("id"),
						ActorID:   c.String("actor"),
						ActorName: c.String("actor-name"),
						Patch:     patch,
					})
				},
			},
			{
				Name:  "get",
				Flags: []cli.Flag{idFlag, &cli.IntFlag{Name: "audit", Usage: "number of audit records"}},
				Action: func(c *cli.Context) error {
					return call(c, contracts.CmdGetTask, contracts.GetTaskQuery{ID: c.String("id"), AuditLimit: c.Int("audit")})
				},
			},
			{
				Name:  "list",
				Flags: []cli.Flag{&cli.IntFlag{Name: "page", Value: 1}, &cli.IntFlag{Name: "size", Value: 10}},
				Action: func(c *cli.Context) error {
					return call(c, contracts.CmdGetTasks, contracts.ListTasksQuery{Page: c.Int("page"), Size: c.Int("size")})
				},
			},
			{
				Name:  "delete",
				Flags: []cli.Flag{idFlag},
				Action: func(c *cli.Context) error {
					return call(c, contracts.CmdDeleteTask, contracts.DeleteTaskCommand{ID: c.String("id")})
				},
			},
		},
	}
}

func commentCommand() *cli.Command {
	taskFlag := &cli.StringFlag{Name: "task", Required: true}
	return &cli.Command{
		Name:  "comment",
		Usage: "add and list task comments",
		Subcommands: []*cli.Command{
			{
				Name:  "add",
				Flags: append([]cli.Flag{taskFlag, &cli.StringFlag{Name: "content", Required: true}}, actorFlags...),
				Action: func(c *cli.Context) error {
					return call(c, contracts.CmdCreateComment, contracts.CreateCommentCommand{
						TaskID:     c.String("task"),
						Content:    c.String("content"),
						AuthorID:   c.String("actor"),
						AuthorName: c.String("actor-name"),
					})
				},
			},
			{
				Name:  "list",
				Flags: []cli.Flag{taskFlag, &cli.IntFlag{Name: "page", Value: 1}, &cli.IntFlag{Name: "size", Value: 10}},
				Action: func(c *cli.Context) error {
					return call(c, contracts.CmdGetComments, contracts.ListCommentsQuery{TaskID: c.String("task"), Page: c.Int("page"), Size: c.Int("size")})
				},
			},
		},
	}
}

func notificationCommand() *cli.Command {
	userFlag := &cli.StringFlag{Name: "user", Required: true}
	return &cli.Command{
		Name:  "notifications",
		Usage: "read a user's notifications",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Flags: []cli.Flag{userFlag, &cli.IntFlag{Name: "limit"}},
				Action: func(c *cli.Context) error {
					return call(c, contracts.CmdListNotifications, contracts.ListNotificationsQuery{UserID: c.String("user"), Limit: c.Int("limit")})
				},
			},
			{
				Name:  "read",
				Flags: []cli.Flag{userFlag, &cli.StringFlag{Name: "id", Required: true}},
				Action: func(c *cli.Context) error {
					return call(c, contracts.CmdMarkNotificationRead, contracts.MarkNotificationReadCommand{ID: c.String("id"), UserID: c.String("user")})
				},
			},
		},
	}
}

func tokenCommand() *cli.Command {
	return &cli.Command{
		Name:  "token",
		Usage: "mint a push stream token",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "user", Required: true},
			&cli.StringFlag{Name: "username"},
			&cli.StringFlag{Name: "jwt-secret", Value: "dev-insecure-change-me", EnvVars: []string{"JWT_SECRET"}},
			&cli.DurationFlag{Name: "ttl", Value: time.Hour},
		},
		Action: func(c *cli.Context) error {
			token, err := auth.NewManager(c.String("jwt-secret"), c.Duration("ttl")).Sign(c.String("user"), c.String("username"))
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(c.App.Writer, token)
			return err
		},
	}
}
