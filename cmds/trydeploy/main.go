// Copyright 2018-2024 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// trydeploy provisions a trytond host over ssh and manages the server
// running on it.
//
// Synopsis:
//
//	trydeploy [OPTIONS] TASK [MODULE-PATH]
//
// Description:
//
//	Each task is a subcommand; trydeploy help lists them. Settings
//	come from the defaults, then --config, then the dotenv file, then
//	TRYDEPLOY_* variables, then --host. Only copy_module takes an
//	argument.
//
//	trydeploy exits 1 on failure, or with the exit status of the
//	remote command that failed.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/u-root/trydeploy/client"
	"github.com/u-root/trydeploy/config"
	"github.com/u-root/trydeploy/deploy"
	"github.com/u-root/trydeploy/remote"
	"golang.org/x/sys/unix"
)

const defaultEnvFile = ".env"

type options struct {
	configFile  string
	envFile     string
	host        string
	network     string
	metricsFile string
	dryRun      bool
	debug       bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), unix.SIGINT, unix.SIGTERM)
	err := rootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		logrus.Error(err)
		os.Exit(exitCode(err))
	}
}

// exitCode is the remote exit status when a remote command failed, 1 otherwise.
func exitCode(err error) int {
	var ce *remote.CommandError
	if errors.As(err, &ce) {
		if s := ce.ExitStatus(); s > 0 {
			return s
		}
	}
	return 1
}

func rootCmd() *cobra.Command {
	o := &options{}
	root := &cobra.Command{
		Use:           "trydeploy",
		Short:         "Deploy and manage a trytond server over ssh",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			o.logging()
		},
	}
	f := root.PersistentFlags()
	f.StringVar(&o.configFile, "config", "", "YAML config file")
	f.StringVar(&o.envFile, "env-file", defaultEnvFile, "dotenv file loaded into the environment, if it exists")
	f.StringVar(&o.host, "host", "", "target as [user@]host[:port], overriding the config")
	f.StringVar(&o.network, "net", "", "network type to use, e.g. tcp4")
	f.StringVar(&o.metricsFile, "metrics-file", "", "write task metrics to this file in the Prometheus text format")
	f.BoolVar(&o.dryRun, "dry-run", false, "log the commands and uploads without connecting")
	f.BoolVarP(&o.debug, "debug", "d", false, "enable debug prints")

	for _, t := range deploy.Tasks() {
		root.AddCommand(o.taskCmd(t))
	}
	return root
}

func (o *options) taskCmd(t deploy.Task) *cobra.Command {
	cmd := &cobra.Command{
		Use:   t.Name,
		Short: t.Doc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.run(cmd, t, args)
		},
	}
	if len(t.Arg) != 0 {
		cmd.Use += " [" + t.Arg + "]"
		cmd.Args = cobra.MaximumNArgs(1)
	}
	if alias := strings.ReplaceAll(t.Name, "_", "-"); alias != t.Name {
		cmd.Aliases = []string{alias}
	}
	return cmd
}

func (o *options) logging() {
	logrus.SetOutput(os.Stderr)
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if o.debug {
		logrus.SetLevel(logrus.DebugLevel)
		client.SetVerbose(logrus.Debugf)
	}
}

// config builds the configuration. The default dotenv file is optional;
// one named on the command line is not.
func (o *options) config(cmd *cobra.Command) (*config.Config, error) {
	envFile := o.envFile
	if !cmd.Flags().Changed("env-file") {
		if _, err := os.Stat(envFile); errors.Is(err, fs.ErrNotExist) {
			envFile = ""
		}
	}
	cfg, err := config.Load(o.configFile, envFile)
	if err != nil {
		return nil, err
	}
	if len(o.host) != 0 {
		cfg.Host = o.host
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (o *options) run(cmd *cobra.Command, t deploy.Task, args []string) error {
	cfg, err := o.config(cmd)
	if err != nil {
		return err
	}
	log := logrus.StandardLogger()

	var r deploy.Remote
	if o.dryRun {
		r = remote.NewDryRun(cfg.Shell, log)
	} else {
		c := client.New(cfg.Host)
		defer func() {
			if cerr := c.Close(); cerr != nil {
				log.WithError(cerr).Warn("close")
			}
		}()
		if err := c.SetOptions(
			client.WithPrivateKeyFile(cfg.KeyFile),
			client.WithKnownHostsFile(cfg.KnownHosts),
			client.WithPort(cfg.Port),
			client.WithNetwork(o.network)); err != nil {
			return err
		}
		if err := c.Dial(); err != nil {
			return fmt.Errorf("Dial: %w", err)
		}
		r = remote.NewHost(c, cfg.Shell, log)
	}

	var m *deploy.Metrics
	if len(o.metricsFile) != 0 {
		m = deploy.NewMetrics()
		defer func() {
			if werr := m.WriteTextfile(o.metricsFile); werr != nil {
				log.WithError(werr).Warnf("writing %s", o.metricsFile)
			}
		}()
	}

	d := deploy.New(cfg, r, deploy.WithLogger(log), deploy.WithMetrics(m))
	log.WithField("run", d.RunID()).Debugf("%s on %s", t.Name, cfg.Host)
	return t.Run(cmd.Context(), d, args)
}
