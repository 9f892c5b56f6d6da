package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/bft-labs/serially/internal/domain"
	"github.com/bft-labs/serially/internal/format"
	"github.com/bft-labs/serially/pkg/serially"
	"github.com/bft-labs/serially/plugins/jarwatcher"
)

func (c *cli) session(opts ...serially.Option) (*serially.Session, error) {
	opts = append([]serially.Option{serially.WithLogger(c.logger)}, opts...)
	return serially.New(serially.Config{
		Mode:            c.cfg.Mode,
		Filter:          c.cfg.Filter,
		Host:            c.cfg.Host,
		Port:            c.cfg.Port,
		JarDir:          c.cfg.JarDir,
		Catalog:         c.cfg.Catalog,
		OutputDir:       c.cfg.OutputDir,
		Timeout:         c.cfg.Timeout,
		UseRegistryHost: c.cfg.UseRegistryHost,
		Workers:         c.cfg.Workers,
	}, opts...)
}

// run enumerates the catalog once in the given mode.
func (c *cli) run(cmd *cobra.Command, mode domain.Mode) error {
	if err := c.setup(cmd, mode); err != nil {
		return err
	}
	s, err := c.session()
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, cancel := c.signalContext()
	defer cancel()

	summary, err := s.Run(ctx)
	if c.cfg.Debug {
		fmt.Println(format.Summary(summary, format.ASCII))
	}
	return err
}

func (c *cli) indexCommand() *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Add the jars in the jar directory to the catalog",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.setup(cmd, domain.ModeLocal); err != nil {
				return err
			}
			var opts []serially.Option
			if watch {
				opts = append(opts, jarwatcher.WithJarWatcher(jarwatcher.DefaultConfig()))
			}
			s, err := c.session(opts...)
			if err != nil {
				return err
			}
			defer s.Close()

			ctx, cancel := c.signalContext()
			defer cancel()

			if _, err := s.Index(ctx); err != nil {
				return err
			}
			if !watch {
				return nil
			}

			if err := s.Start(ctx); err != nil {
				return fmt.Errorf("start watcher: %w", err)
			}
			<-ctx.Done()
			return s.Stop()
		},
	}
	cmd.Flags().BoolVar(&watch, "watch", false, "keep indexing jars as they appear in the jar directory")
	return cmd
}

func (c *cli) listCommand() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show the catalogued jars",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if output != "table" && output != "yaml" {
				return usageError{msg: fmt.Sprintf("unknown output format %q", output)}
			}
			if err := c.setup(cmd, domain.ModeLocal); err != nil {
				return err
			}
			s, err := c.session()
			if err != nil {
				return err
			}
			defer s.Close()

			jars, err := s.Jars(cmd.Context(), c.cfg.Filter)
			if err != nil {
				return err
			}
			if output == "yaml" {
				enc := yaml.NewEncoder(os.Stdout)
				enc.SetIndent(2)
				if err := enc.Encode(jars); err != nil {
					return err
				}
				return enc.Close()
			}
			fmt.Println(jarTable(jars))
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "table", "output format: table or yaml")
	return cmd
}

func jarTable(jars []serially.JarInfo) string {
	tb := format.NewTable(format.ASCII)
	tb.Header("Jar", "MD5", "Classes", "Serializable")
	var classes, serializable int
	for _, j := range jars {
		tb.Row(format.Truncate(j.Filename, 60), j.Hash, j.Classes, j.Serializable)
		classes += j.Classes
		serializable += j.Serializable
	}
	tb.Footer(fmt.Sprintf("%d jars", len(jars)), "", classes, serializable)
	tb.Columns(
		format.ColumnConfig{Number: 3, Align: format.AlignRight},
		format.ColumnConfig{Number: 4, Align: format.AlignRight},
	)
	return tb.String()
}
