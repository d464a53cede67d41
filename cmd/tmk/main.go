package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"tmk/internal/bootstrap"
	trackerdto "tmk/internal/modules/tracker/dto"
	"tmk/internal/platform/config"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	serverStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#04B575")).
			Bold(true)

	clientStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#4A90E2"))

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6C6C6C"))
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var instance string

	root := &cobra.Command{
		Use:           "tmk",
		Short:         "Shared timesheet tracking across editor instances",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&instance, "instance", "default", "daemon instance name")

	root.AddCommand(newDaemonCmd(&instance))
	root.AddCommand(newReportCmd(&instance))
	root.AddCommand(newStatusCmd(&instance))
	root.AddCommand(newSheetCmd(&instance))
	root.AddCommand(newHookCmd(&instance))
	return root
}

func loadApp(instance string) (*bootstrap.App, error) {
	workDir, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(workDir)
	if err != nil {
		return nil, err
	}
	return bootstrap.New(cfg, instance)
}

func newDaemonCmd(instance *string) *cobra.Command {
	daemon := &cobra.Command{Use: "daemon", Short: "Manage the tracker daemon"}

	daemon.AddCommand(&cobra.Command{
		Use:   "start",
		Short: "Start the tracker daemon in the background",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := loadApp(*instance)
			if err != nil {
				return err
			}
			if err := app.TrackerCLI.StartDaemon(context.Background()); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "daemon started")
			return nil
		},
	})
	daemon.AddCommand(&cobra.Command{
		Use:   "stop",
		Short: "Stop the tracker daemon",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := loadApp(*instance)
			if err != nil {
				return err
			}
			if err := app.TrackerCLI.StopDaemon(context.Background()); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "daemon stopped")
			return nil
		},
	})

	var verbose bool
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show tracker daemon status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := loadApp(*instance)
			if err != nil {
				return err
			}
			status, err := app.TrackerCLI.Status(context.Background())
			if err != nil {
				return err
			}
			renderStatus(cmd, status)
			if verbose {
				events, err := app.TrackerCLI.Activity(context.Background(), 20)
				if err != nil {
					return err
				}
				for _, e := range events {
					_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s\n",
						dimStyle.Render(e.OccurredAt.Format(time.RFC3339)), e.Type, e.Message)
				}
			}
			return nil
		},
	}
	statusCmd.Flags().BoolVar(&verbose, "verbose", false, "include recent activity events")
	daemon.AddCommand(statusCmd)

	daemon.AddCommand(&cobra.Command{
		Use:    "__run",
		Short:  "Run the tracker daemon in the foreground",
		Hidden: true,
		RunE: func(_ *cobra.Command, _ []string) error {
			app, err := loadApp(*instance)
			if err != nil {
				return err
			}
			return app.TrackerCLI.RunDaemon(context.Background())
		},
	})
	return daemon
}

func newReportCmd(instance *string) *cobra.Command {
	var project, job string
	var seconds int64

	report := &cobra.Command{
		Use:   "report",
		Short: "Report active seconds for a project and job",
		RunE: func(_ *cobra.Command, _ []string) error {
			if project == "" || job == "" {
				return fmt.Errorf("--project and --job are required")
			}
			app, err := loadApp(*instance)
			if err != nil {
				return err
			}
			if !app.Config.TrackingEnabled {
				return nil
			}
			return app.TrackerCLI.Report(context.Background(), project, job, seconds)
		},
	}
	report.Flags().StringVar(&project, "project", "", "project name")
	report.Flags().StringVar(&job, "job", "", "job name")
	report.Flags().Int64Var(&seconds, "seconds", 0, "active seconds since the last report")
	return report
}

func newStatusCmd(instance *string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show tracking status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := loadApp(*instance)
			if err != nil {
				return err
			}
			status, err := app.TrackerCLI.Status(context.Background())
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), titleStyle.Render("tmk"))
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "sheet: %s\n", app.Config.TimesheetPath)
			renderStatus(cmd, status)
			return nil
		},
	}
}

func renderStatus(cmd *cobra.Command, status trackerdto.DaemonStatusOutput) {
	out := cmd.OutOrStdout()
	if !status.Running {
		_, _ = fmt.Fprintln(out, warnStyle.Render("daemon not running"))
		return
	}
	role := status.Role
	switch role {
	case "server":
		role = serverStyle.Render(role)
	case "client":
		role = clientStyle.Render(role)
	default:
		role = dimStyle.Render(role)
	}
	_, _ = fmt.Fprintf(out, "running pid=%d role=%s epoch=%d peers=%d\n", status.PID, role, status.Epoch, status.PeerCount)
	if status.ServerID != "" {
		_, _ = fmt.Fprintf(out, "server: %s\n", status.ServerID)
	}
	if status.LastProject != "" {
		_, _ = fmt.Fprintf(out, "active: %s.%s\n", status.LastProject, status.LastJob)
	}
	_, _ = fmt.Fprintf(out, "pending: %ds", status.PendingSeconds)
	if status.DroppedSeconds > 0 {
		_, _ = fmt.Fprintf(out, " dropped: %s", warnStyle.Render(fmt.Sprintf("%ds", status.DroppedSeconds)))
	}
	if status.Degraded {
		_, _ = fmt.Fprintf(out, " %s", warnStyle.Render("degraded"))
	}
	_, _ = fmt.Fprintln(out)
	for _, addr := range status.ListenAddrs {
		_, _ = fmt.Fprintf(out, "listen: %s\n", dimStyle.Render(addr))
	}
}

func newSheetCmd(instance *string) *cobra.Command {
	sheet := &cobra.Command{Use: "sheet", Short: "Inspect and manage the timesheet"}

	sheet.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show entries in the active section",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := loadApp(*instance)
			if err != nil {
				return err
			}
			out, err := app.SheetCLI.Show(context.Background())
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", titleStyle.Render(out.Section), dimStyle.Render(out.Path))
			if len(out.Entries) == 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "no entries")
				return nil
			}
			for _, e := range out.Entries {
				line := fmt.Sprintf("%s.%s  total=%s pending=%s", e.Project, e.Job, formatSeconds(e.Accumulated), formatSeconds(e.Pending))
				if e.Status == "completed" {
					line += " " + dimStyle.Render("completed")
				}
				if e.Note != "" {
					line += " " + dimStyle.Render(e.Note)
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), line)
			}
			if out.Malformed > 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), warnStyle.Render(fmt.Sprintf("%d malformed lines preserved", out.Malformed)))
			}
			return nil
		},
	})
	sheet.AddCommand(&cobra.Command{
		Use:   "report",
		Short: "Show per-project totals across all sections",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := loadApp(*instance)
			if err != nil {
				return err
			}
			out, err := app.SheetCLI.Report(context.Background())
			if err != nil {
				return err
			}
			if len(out.Rows) == 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "no entries")
				return nil
			}
			for _, row := range out.Rows {
				section := "default"
				if row.Host != "" || row.User != "" {
					section = fmt.Sprintf("%s:%s", row.Host, row.User)
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%-30s %-20s total=%s pending=%s\n",
					fmt.Sprintf("%s.%s", row.Project, row.Job), dimStyle.Render(section),
					formatSeconds(row.Accumulated), formatSeconds(row.Pending))
			}
			return nil
		},
	})
	sheet.AddCommand(&cobra.Command{
		Use:   "complete <project> <job>",
		Short: "Mark an entry completed",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := loadApp(*instance)
			if err != nil {
				return err
			}
			if err := app.SheetCLI.Complete(context.Background(), args[0], args[1]); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "completed %s.%s\n", args[0], args[1])
			return nil
		},
	})
	return sheet
}

// newHookCmd wires the commit hook entry points. Quote and attribute
// never fail the calling hook: any setup error is reported on stderr
// and swallowed so the commit proceeds without an annotation.
func newHookCmd(instance *string) *cobra.Command {
	hook := &cobra.Command{Use: "hook", Short: "Commit hook entry points"}

	hook.AddCommand(&cobra.Command{
		Use:   "quote <commit-msg-file>",
		Short: "Append the pending time annotation to a commit message",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			app, err := loadApp(*instance)
			if err != nil {
				_, _ = fmt.Fprintln(os.Stderr, "tmk: skipping annotation:", err)
				return nil
			}
			return app.ReconcileCLI.Quote(context.Background(), args[0])
		},
	})
	hook.AddCommand(&cobra.Command{
		Use:   "attribute",
		Short: "Attribute the just-committed time window",
		RunE: func(_ *cobra.Command, _ []string) error {
			app, err := loadApp(*instance)
			if err != nil {
				_, _ = fmt.Fprintln(os.Stderr, "tmk: skipping attribution:", err)
				return nil
			}
			return app.ReconcileCLI.Attribute(context.Background())
		},
	})
	hook.AddCommand(&cobra.Command{
		Use:   "install",
		Short: "Install commit hooks into the current repository",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := loadApp(*instance)
			if err != nil {
				return err
			}
			out, err := app.ReconcileCLI.InstallHooks(context.Background())
			if err != nil {
				return err
			}
			for _, path := range out.Written {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "installed %s\n", path)
			}
			return nil
		},
	})
	return hook
}

func formatSeconds(seconds int64) string {
	if seconds < 3600 {
		return fmt.Sprintf("%dmin", seconds/60)
	}
	return fmt.Sprintf("%dh%d", seconds/3600, (seconds%3600)/60)
}
