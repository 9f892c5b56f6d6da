package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	"github.com/bft-labs/serially/internal/cliconfig"
	"github.com/bft-labs/serially/internal/domain"
	"github.com/bft-labs/serially/pkg/log"
)

const helpBanner = `
-----------------
Serially - v1.1
by Stefan Broeder
-----------------`

const helpDescription = `
Enumerate the Java libraries on the classpath of a remote application.

Modes:
  local                   Write base64 encoded serialized objects to a CSV file
  remote <host> <port>    Connect to a JMX RMI endpoint and try deserialization

Each catalogued jar is tested with the classes it defines. A jar is reported
once one of its classes is accepted by the target.
`

var longHelp = strings.TrimSpace(helpBanner) + "\n\n" + strings.TrimSpace(helpDescription)

var exampleUsage = strings.TrimSpace(`
  serially index
  serially local -f org.apache.commons
  serially remote 10.0.0.5 1099 -d
`)

// usageError marks errors that print the usage text.
type usageError struct{ msg string }

func (e usageError) Error() string { return e.msg }

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

// cli holds the state shared by all commands.
type cli struct {
	cfg     cliconfig.Config
	cfgPath string
	logger  *log.ZerologAdapter
}

func main() {
	c := &cli{cfg: cliconfig.DefaultConfig()}
	root := c.rootCommand()

	code := 0
	if err := root.Execute(); err != nil {
		code = c.report(root, err)
	}
	if c.logger != nil {
		_ = c.logger.Close()
	}
	os.Exit(code)
}

func (c *cli) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "serially",
		Short:         "Enumerate Java libraries through deserialization",
		Long:          longHelp,
		Example:       exampleUsage,
		Version:       fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, domain.ModeLocal)
		},
	}
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError{msg: err.Error()}
	})

	pf := root.PersistentFlags()
	pf.StringVarP(&c.cfg.Filter, "filter", "f", c.cfg.Filter, "only test classes whose name contains this string (e.g. org.apache.commons)")
	pf.BoolVarP(&c.cfg.Debug, "debug", "d", c.cfg.Debug, "debug output")
	pf.StringVar(&c.cfgPath, "config", "", "path to config file (default: $HOME/.serially/config.toml)")
	pf.StringVar(&c.cfg.Home, "home", c.cfg.Home, "serially home directory")
	pf.StringVar(&c.cfg.JarDir, "jar-dir", "", "directory holding the catalogued jars (default: <home>/jars)")
	pf.StringVar(&c.cfg.Catalog, "catalog", "", "path of the SQLite catalog (default: <home>/java.sqlite)")
	pf.StringVar(&c.cfg.LogFile, "log-file", "", "write a JSON debug log to this file")
	pf.BoolVar(&c.cfg.NoColor, "no-color", false, "disable colored output")
	pf.IntVar(&c.cfg.Workers, "workers", c.cfg.Workers, "concurrent jar parsers while indexing")

	root.Flags().StringVar(&c.cfg.OutputDir, "output-dir", c.cfg.OutputDir, "directory receiving the CSV file")

	root.AddCommand(c.localCommand(), c.remoteCommand(), c.indexCommand(), c.listCommand())
	return root
}

func (c *cli) localCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "local",
		Short: "Write base64 encoded serialized objects to a CSV file",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, domain.ModeLocal)
		},
	}
	cmd.Flags().StringVar(&c.cfg.OutputDir, "output-dir", c.cfg.OutputDir, "directory receiving the CSV file")
	return cmd
}

func (c *cli) remoteCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remote <host> <port>",
		Short: "Connect to a JMX RMI endpoint and try deserialization",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 2 {
				return usageError{msg: "remote mode requires a host and a port"}
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			port, err := cliconfig.ParsePort(args[1])
			if err != nil {
				return usageError{msg: err.Error()}
			}
			c.cfg.Host = args[0]
			c.cfg.Port = port
			return c.run(cmd, domain.ModeRemote)
		},
	}
	cmd.Flags().DurationVar(&c.cfg.Timeout, "timeout", c.cfg.Timeout, "timeout of each RMI connection")
	cmd.Flags().BoolVar(&c.cfg.UseRegistryHost, "use-registry-host", false, "dial the registry host instead of the host named by the server stub")
	return cmd
}

func noArgs(cmd *cobra.Command, args []string) error {
	if len(args) > 0 {
		return usageError{msg: fmt.Sprintf("unexpected argument %q", args[0])}
	}
	return nil
}

// setup loads the configuration and creates the console logger. Precedence
// is flags, then environment, then config file, then defaults.
func (c *cli) setup(cmd *cobra.Command, mode domain.Mode) error {
	cfgFile := c.cfgPath
	if cfgFile == "" {
		cfgFile = cliconfig.DefaultConfigPath()
	}

	changed := map[string]bool{}
	cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })

	if cfgFile != "" && cliconfig.FileExists(cfgFile) {
		fc, err := cliconfig.LoadFileConfig(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := cliconfig.ApplyFileConfig(&c.cfg, fc, changed); err != nil {
			return err
		}
	}
	if err := cliconfig.ApplyEnvConfig(&c.cfg, changed); err != nil {
		return err
	}

	c.cfg.Mode = mode
	if err := c.cfg.Validate(); err != nil {
		return err
	}

	c.logger = log.NewConsoleLogger(log.ConsoleOptions{
		Debug:   c.cfg.Debug,
		NoColor: c.cfg.NoColor,
		LogFile: c.cfg.LogFile,
	})
	c.logger.Debug("configuration",
		log.String("mode", string(c.cfg.Mode)),
		log.String("jar_dir", c.cfg.JarDir),
		log.String("catalog", c.cfg.Catalog),
		log.String("filter", c.cfg.Filter),
	)
	return nil
}

// signalContext returns a context canceled on SIGINT or SIGTERM.
func (c *cli) signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		defer signal.Stop(sigCh)
		select {
		case <-sigCh:
			c.logger.Info("received signal, stopping...")
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// report prints err and returns the exit code.
func (c *cli) report(root *cobra.Command, err error) int {
	var ue usageError
	if errors.As(err, &ue) {
		fmt.Fprintf(os.Stdout, "%s\n\n", longHelp)
		fmt.Fprintf(os.Stdout, "Error: %s\n\n", ue.msg)
		fmt.Fprint(os.Stdout, root.UsageString())
		return 1
	}

	logger := c.logger
	if logger == nil {
		logger = log.NewConsoleLogger(log.ConsoleOptions{NoColor: c.cfg.NoColor})
	}
	switch {
	case errors.Is(err, domain.ErrTargetPatched):
		// Already reported by the run.
	case errors.Is(err, domain.ErrEmptyCatalog):
		logger.Error("No jar files found, please run `serially index` first")
	case errors.Is(err, domain.ErrNoFilterMatch):
		logger.Error("No jar files found that match the filter")
	case errors.Is(err, context.Canceled):
		logger.Info("Interrupted")
	default:
		logger.Error(strings.TrimPrefix(err.Error(), "serially: "))
	}
	return 1
}
