package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/RevCBH/siren/internal/client"
	"github.com/RevCBH/siren/internal/config"
)

// VersionInfo holds build metadata set via ldflags
type VersionInfo struct {
	Version string
	Commit  string
	Date    string
}

// App represents the CLI application with all wired dependencies
type App struct {
	// Root command
	rootCmd *cobra.Command

	// Flags shared by every command
	home    string
	verbose bool

	// Version information
	versionInfo VersionInfo

	// out is where command output goes; tests swap it
	out io.Writer
}

// New creates a new CLI application
func New() *App {
	app := &App{out: os.Stdout}
	app.setupRootCmd()
	return app
}

// Execute runs the CLI application
func (a *App) Execute() error {
	return a.rootCmd.Execute()
}

// SetVersion sets the version string for the version command
func (a *App) SetVersion(version, commit, date string) {
	a.versionInfo = VersionInfo{
		Version: version,
		Commit:  commit,
		Date:    date,
	}
}

// SetArgs overrides os.Args for the root command
func (a *App) SetArgs(args []string) {
	a.rootCmd.SetArgs(args)
}

// SetOutput redirects command output
func (a *App) SetOutput(w io.Writer) {
	a.out = w
	a.rootCmd.SetOut(w)
	a.rootCmd.SetErr(w)
}

// setupRootCmd configures the root Cobra command
func (a *App) setupRootCmd() {
	a.rootCmd = &cobra.Command{
		Use:   "siren",
		Short: "Personal safety check-ins with automatic escalation",
		Long: `Siren runs safety sessions that expect you to check in.

When a check-in is missed, or a shake or safety phrase is detected and not
acknowledged, Siren messages and then calls your emergency contacts.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	a.rootCmd.PersistentFlags().StringVar(&a.home, "home", "",
		"Siren home directory (default $SIREN_HOME or ~/.siren)")
	a.rootCmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false,
		"Verbose output")

	a.rootCmd.AddCommand(
		NewDaemonCmd(a),
		NewSessionCmd(a),
		NewAckCmd(a),
		NewCompleteCmd(a),
		NewCancelCmd(a),
		NewTriggerCmd(a),
		NewStatusCmd(a),
		NewWatchCmd(a),
		NewContactsCmd(a),
		NewDrillCmd(a),
		NewVersionCmd(a),
	)
}

// homeDir resolves the Siren home directory from --home or the environment
func (a *App) homeDir() (string, error) {
	if a.home != "" {
		return a.home, nil
	}
	return config.DefaultHome()
}

// loadConfig loads siren.yaml from the home directory
func (a *App) loadConfig() (*config.Config, error) {
	home, err := a.homeDir()
	if err != nil {
		return nil, err
	}
	cfg, err := config.LoadConfig(home)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// connect loads the config and dials the daemon socket
func (a *App) connect() (*client.Client, error) {
	cfg, err := a.loadConfig()
	if err != nil {
		return nil, err
	}
	c, err := client.New(cfg.Daemon.Socket)
	if err != nil {
		return nil, fmt.Errorf("daemon not running: %w", err)
	}
	return c, nil
}

// printf writes formatted output to the app's writer
func (a *App) printf(format string, args ...any) {
	fmt.Fprintf(a.out, format, args...)
}
