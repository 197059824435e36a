package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/alertrelay/alertrelay/internal/bus"
	"github.com/alertrelay/alertrelay/internal/channels"
	"github.com/alertrelay/alertrelay/internal/config"
	"github.com/alertrelay/alertrelay/internal/container"
	"github.com/alertrelay/alertrelay/internal/cron"
)

var scheduleCmd = &cobra.Command{
	Use:     "schedule",
	Aliases: []string{"cron"},
	Short:   "Manage scheduled notifications",
}

func init() {
	scheduleCmd.AddCommand(scheduleListCmd)
	scheduleCmd.AddCommand(scheduleAddCmd)
	scheduleCmd.AddCommand(scheduleRemoveCmd)
	scheduleCmd.AddCommand(scheduleEnableCmd)
	scheduleCmd.AddCommand(scheduleRunCmd)
}

// ---- list ------------------------------------------------------------------

var scheduleListAll bool

var scheduleListCmd = &cobra.Command{
	Use:   "list",
	Short: "List scheduled notifications",
	RunE: func(_ *cobra.Command, _ []string) error {
		svc, err := storeOnly()
		if err != nil {
			return err
		}
		jobs, err := svc.ListJobs(scheduleListAll)
		if err != nil {
			return err
		}
		if len(jobs) == 0 {
			fmt.Println("No scheduled notifications.")
			return nil
		}
		fmt.Printf("%-10s %-20s %-10s %-25s %-10s %-20s\n", "ID", "Name", "Backend", "Schedule", "Status", "Next Run")
		fmt.Println(repeatStr("-", 99))
		for _, j := range jobs {
			status := "enabled"
			if !j.Enabled {
				status = "disabled"
			}
			nextRun := ""
			if j.State.NextRunAtMs != nil {
				nextRun = time.UnixMilli(*j.State.NextRunAtMs).Format("2006-01-02 15:04")
			}
			fmt.Printf("%-10s %-20s %-10s %-25s %-10s %-20s\n", j.ID, truncStr(j.Name, 19),
				j.Payload.Backend, truncStr(formatSchedule(j.Schedule), 24), status, nextRun)
		}
		return nil
	},
}

func init() {
	scheduleListCmd.Flags().BoolVarP(&scheduleListAll, "all", "a", false, "Include disabled jobs")
}

// ---- add -------------------------------------------------------------------

var (
	scheduleAddName    string
	scheduleAddText    string
	scheduleAddEvery   time.Duration
	scheduleAddCron    string
	scheduleAddTZ      string
	scheduleAddAt      string
	scheduleAddBackend string
	scheduleAddTargets []string
	scheduleAddPhotos  []string
	scheduleAddVideos  []string
)

var scheduleAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a scheduled notification",
	RunE: func(_ *cobra.Command, _ []string) error {
		if scheduleAddTZ != "" && scheduleAddCron == "" {
			return errors.New("--tz can only be used with --cron")
		}

		var sched cron.Schedule
		switch {
		case scheduleAddEvery > 0:
			sched = cron.Every(scheduleAddEvery)
		case scheduleAddCron != "":
			sched = cron.Cron(scheduleAddCron, scheduleAddTZ)
		case scheduleAddAt != "":
			dt, err := time.ParseInLocation("2006-01-02T15:04:05", scheduleAddAt, time.Local)
			if err != nil {
				dt, err = time.Parse(time.RFC3339, scheduleAddAt)
				if err != nil {
					return fmt.Errorf("invalid --at value %q: %w", scheduleAddAt, err)
				}
			}
			sched = cron.At(dt)
		default:
			return errors.New("must specify --every, --cron, or --at")
		}

		svc, err := storeOnly()
		if err != nil {
			return err
		}
		job, err := svc.AddJob(scheduleAddName, sched, cron.Payload{
			Backend: scheduleAddBackend,
			Targets: scheduleAddTargets,
			Text:    scheduleAddText,
			Photos:  scheduleAddPhotos,
			Videos:  scheduleAddVideos,
		}, sched.Kind == cron.KindAt)
		if err != nil {
			return err
		}
		fmt.Printf("✓ Added job '%s' (%s)\n", job.Name, job.ID)
		return nil
	},
}

func init() {
	f := scheduleAddCmd.Flags()
	f.StringVarP(&scheduleAddName, "name", "n", "", "Job name (required)")
	f.StringVarP(&scheduleAddText, "message", "m", "", "Notification text")
	f.DurationVarP(&scheduleAddEvery, "every", "e", 0, "Run at a fixed interval (e.g. 10m)")
	f.StringVar(&scheduleAddCron, "cron", "", "Cron expression (e.g. '0 9 * * *')")
	f.StringVar(&scheduleAddTZ, "tz", "", "IANA timezone for --cron")
	f.StringVar(&scheduleAddAt, "at", "", "Run once at ISO datetime")
	f.StringVarP(&scheduleAddBackend, "backend", "b", "telegram", "Backend to deliver through")
	f.StringSliceVarP(&scheduleAddTargets, "target", "t", nil, "Target chat id or webhook url (repeatable)")
	f.StringSliceVar(&scheduleAddPhotos, "photo", nil, "Photo url (repeatable)")
	f.StringSliceVar(&scheduleAddVideos, "video", nil, "Video url (repeatable)")

	_ = scheduleAddCmd.MarkFlagRequired("name")
	_ = scheduleAddCmd.MarkFlagRequired("target")
}

// ---- remove / enable -------------------------------------------------------

var scheduleRemoveCmd = &cobra.Command{
	Use:   "remove <job-id>",
	Short: "Remove a scheduled notification",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		svc, err := storeOnly()
		if err != nil {
			return err
		}
		ok, err := svc.RemoveJob(args[0])
		if err != nil {
			return err
		}
		if ok {
			fmt.Printf("✓ Removed job %s\n", args[0])
		} else {
			fmt.Printf("Job %s not found\n", args[0])
		}
		return nil
	},
}

var scheduleEnableDisable bool

var scheduleEnableCmd = &cobra.Command{
	Use:   "enable <job-id>",
	Short: "Enable (or disable) a job",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		svc, err := storeOnly()
		if err != nil {
			return err
		}
		job, err := svc.EnableJob(args[0], !scheduleEnableDisable)
		if err != nil {
			return err
		}
		action := "enabled"
		if scheduleEnableDisable {
			action = "disabled"
		}
		fmt.Printf("✓ Job '%s' %s\n", job.Name, action)
		return nil
	},
}

func init() {
	scheduleEnableCmd.Flags().BoolVar(&scheduleEnableDisable, "disable", false, "Disable instead of enable")
}

// ---- run -------------------------------------------------------------------

var scheduleRunForce bool

var scheduleRunCmd = &cobra.Command{
	Use:   "run <job-id>",
	Short: "Deliver a job's notification now",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		c, err := container.New(cfg)
		if err != nil {
			return fmt.Errorf("wire services: %w", err)
		}
		log := c.Logger()
		defer func() { _ = log.Sync() }()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		out := &deliverNow{ctx: ctx, mgr: c.Manager()}
		svc := cron.NewService(cfg.Schedules.StorePath(), out, log.Named("cron"))
		if err := svc.RunJob(args[0], scheduleRunForce); err != nil {
			if errors.Is(err, cron.ErrJobDisabled) {
				return fmt.Errorf("%w (use --force)", err)
			}
			return err
		}
		fmt.Println("✓ Job delivered")
		return nil
	},
}

func init() {
	scheduleRunCmd.Flags().BoolVarP(&scheduleRunForce, "force", "f", false, "Run even if disabled")
}

// deliverNow initializes the envelope's backend on first use and delivers
// synchronously, so a one-shot CLI run reports the delivery outcome.
type deliverNow struct {
	ctx    context.Context
	mgr    *channels.Manager
	inited map[bus.Backend]bool
}

func (d *deliverNow) Enqueue(env bus.Envelope) error {
	if d.inited == nil {
		d.inited = make(map[bus.Backend]bool)
	}
	if !d.inited[env.Backend()] {
		if err := d.mgr.Init(d.ctx, env.Backend()); err != nil {
			return err
		}
		d.inited[env.Backend()] = true
	}
	return d.mgr.Deliver(d.ctx, env)
}

// ---- helpers ---------------------------------------------------------------

// storeOnly opens the job store without wiring any backend.
func storeOnly() (*cron.Service, error) {
	cfg, err := config.Load(configPath())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cron.NewService(cfg.Schedules.StorePath(), nil, nil), nil
}

func formatSchedule(s cron.Schedule) string {
	switch s.Kind {
	case cron.KindEvery:
		if s.EveryMs != nil {
			return "every " + (time.Duration(*s.EveryMs) * time.Millisecond).String()
		}
	case cron.KindCron:
		if s.Expr != nil {
			if s.TZ != nil {
				return *s.Expr + " (" + *s.TZ + ")"
			}
			return *s.Expr
		}
	case cron.KindAt:
		if s.AtMs != nil {
			return "at " + time.UnixMilli(*s.AtMs).Format("2006-01-02 15:04")
		}
	}
	return s.Kind
}

func truncStr(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-1] + "…"
}
