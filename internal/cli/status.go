package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"
)

// NewStatusCmd creates the status command
func NewStatusCmd(a *App) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "status [session-id]",
		Short: "Show active sessions, or one session in detail",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				return a.showSession(cmd.Context(), args[0])
			}
			return a.showSessions(cmd.Context(), !all)
		},
	}

	cmd.Flags().BoolVarP(&all, "all", "a", false, "Include finished sessions")

	return cmd
}

// showSessions prints the session table
func (a *App) showSessions(ctx context.Context, activeOnly bool) error {
	c, err := a.connect()
	if err != nil {
		return err
	}
	defer c.Close()

	sessions, err := c.ListSessions(ctx, activeOnly)
	if err != nil {
		return sessionError("", err)
	}

	if len(sessions) == 0 {
		if activeOnly {
			a.printf("No active sessions\n")
		} else {
			a.printf("No sessions\n")
		}
		return nil
	}

	displaySessions(a.out, sessions, time.Now())
	return nil
}

// showSession prints one session in detail
func (a *App) showSession(ctx context.Context, id string) error {
	c, err := a.connect()
	if err != nil {
		return err
	}
	defer c.Close()

	s, err := c.GetSession(ctx, id)
	if err != nil {
		return sessionError(id, err)
	}

	displaySession(a.out, s, time.Now())
	return nil
}
