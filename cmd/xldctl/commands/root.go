package commands

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/xldeploy/terraform-provider-xldeploy/internal/config"
	"github.com/xldeploy/terraform-provider-xldeploy/internal/engine"
	"github.com/xldeploy/terraform-provider-xldeploy/internal/logging"
	"github.com/xldeploy/terraform-provider-xldeploy/internal/xldeploy"
)

// cli carries the state shared by all commands of one invocation.
type cli struct {
	url          string
	username     string
	password     string
	pollInterval time.Duration
	logLevel     string
	noColor      bool

	client *xldeploy.Client
	engine *engine.Engine
}

// Execute runs xldctl with the process arguments.
func Execute() error {
	return NewRootCommand().ExecuteContext(context.Background())
}

// NewRootCommand builds the xldctl command tree.
func NewRootCommand() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:          "xldctl",
		Short:        "Drive an XL Deploy server from the command line",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.setup(cmd)
		},
	}

	root.PersistentFlags().StringVar(&c.url, "url", "", "server base URL (env XLDCTL_SERVER_URL)")
	root.PersistentFlags().StringVarP(&c.username, "username", "u", "", "server username (env XLDCTL_SERVER_USERNAME)")
	root.PersistentFlags().StringVarP(&c.password, "password", "p", "", "server password (env XLDCTL_SERVER_PASSWORD)")
	root.PersistentFlags().DurationVar(&c.pollInterval, "poll-interval", 0, "task polling interval (env XLDCTL_SERVER_POLL_INTERVAL_MS)")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "trace, debug, info, warn or error (env XLDCTL_LOG_LEVEL)")
	root.PersistentFlags().BoolVar(&c.noColor, "no-color", false, "disable colored log output (env XLDCTL_LOG_NO_COLOR)")

	root.AddCommand(
		c.uploadCmd(),
		c.deployCmd(),
		c.createEnvCmd(),
		c.skipStepsCmd(),
		c.runTaskCmd(),
		c.taskStatusCmd(),
		c.isDeployedCmd(),
		c.showEnvCmd(),
	)
	return root
}

// setup loads the configuration, applies flags that were set explicitly and
// builds the client and engine.
func (c *cli) setup(cmd *cobra.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("url") {
		cfg.Server.URL = c.url
	}
	if flags.Changed("username") {
		cfg.Server.Username = c.username
	}
	if flags.Changed("password") {
		cfg.Server.Password = c.password
	}
	if flags.Changed("poll-interval") {
		cfg.Server.PollIntervalMs = int(c.pollInterval.Milliseconds())
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = c.logLevel
	}
	if flags.Changed("no-color") {
		cfg.Log.NoColor = c.noColor
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := logging.NewConsole(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.NoColor)
	c.client = xldeploy.NewClient(cfg.ClientConfig())
	c.engine = engine.New(engine.ServicesFor(c.client), logging.Zerolog{L: logger}, engine.Options{
		PollInterval: cfg.PollInterval(),
	})

	logger.Debug().Str("url", c.client.URL()).Msg("configured server")
	return nil
}
