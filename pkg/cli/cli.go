package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dmdmdm-nz/connwatch/internal/netmon"
	"github.com/dmdmdm-nz/connwatch/pkg/version"
)

var (
	ErrInvalidPort     = errors.New("port must be between 0 and 65535")
	ErrInvalidInterval = errors.New("poll interval must be positive")
	ErrInvalidLogLevel = errors.New("unknown log level")
	ErrInvalidSource   = errors.New("unknown source")
)

var logLevels = []string{"trace", "debug", "info", "warn", "error"}

var sources = []string{
	netmon.KindAuto,
	netmon.KindNetlink,
	netmon.KindRoute,
	netmon.KindNetworkManager,
	netmon.KindPoll,
}

// Config holds the application configuration from CLI flags
type Config struct {
	Port         int
	Host         string
	LogLevel     string
	Source       string
	PollInterval time.Duration
	APIEnabled   bool
}

// NewRootCommand builds the connwatchd command. run is called with the parsed
// and validated Config.
func NewRootCommand(run func(*Config) error) *cobra.Command {
	cfg := &Config{}

	root := &cobra.Command{
		Use:   "connwatchd",
		Short: "Watch host connectivity and report online/offline transitions",
		Long: `connwatchd follows the operating system's view of the active network
and reports when the host goes online or offline, together with the transport
carrying traffic (cellular, wifi or ethernet).`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Validate(); err != nil {
				return err
			}
			return run(cfg)
		},
	}

	flags := root.Flags()
	flags.IntVar(&cfg.Port, "port", 60106, "Port to listen on")
	flags.StringVar(&cfg.Host, "host", "127.0.0.1", "Host to bind to")
	flags.StringVar(&cfg.LogLevel, "log-level", "info", "Log level (trace, debug, info, warn, error)")
	flags.StringVar(&cfg.Source, "source", netmon.KindAuto, "Connectivity source (auto, netlink, route, networkmanager, poll)")
	flags.DurationVar(&cfg.PollInterval, "poll-interval", netmon.DefaultPollInterval, "Interval between scans for the poll source")
	flags.BoolVar(&cfg.APIEnabled, "api", true, "Serve the HTTP/WebSocket status API")

	root.AddCommand(newVersionCommand())
	return root
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "connwatchd version %s (commit: %s, built at: %s)\n",
				version.Version,
				version.CommitHash,
				version.BuildTime)
		},
	}
}

// Validate checks flag values that cobra cannot check by type alone.
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("%d: %w", c.Port, ErrInvalidPort)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("%s: %w", c.PollInterval, ErrInvalidInterval)
	}
	if !contains(logLevels, c.LogLevel) {
		return fmt.Errorf("%q: %w", c.LogLevel, ErrInvalidLogLevel)
	}
	if !contains(sources, c.Source) {
		return fmt.Errorf("%q: %w", c.Source, ErrInvalidSource)
	}
	return nil
}

// String returns a string representation of the Config
func (c *Config) String() string {
	return fmt.Sprintf("Host: %s, Port: %d, LogLevel: %s, Source: %s, PollInterval: %s, APIEnabled: %t",
		c.Host, c.Port, c.LogLevel, c.Source, c.PollInterval, c.APIEnabled)
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
