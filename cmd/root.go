// Copyright 2025 mcpkit Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cmd

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mcpkit/mcpkit/internal/log"
	"github.com/mcpkit/mcpkit/internal/server"
)

var (
	// versionString indicates the version of this library.
	//go:embed version.txt
	versionString string
	// metadataString indicates additional build or distribution metadata.
	metadataString string
)

func init() {
	versionString = semanticVersion()
}

// semanticVersion returns the version of the CLI including a compile-time metadata.
func semanticVersion() string {
	v := strings.TrimSpace(versionString)
	if metadataString != "" {
		v += "+" + metadataString
	}
	return v
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := NewCommand().Execute(); err != nil {
		exit := 1
		os.Exit(exit)
	}
}

// Command represents an invocation of the CLI.
type Command struct {
	*cobra.Command

	cfg        server.ServerConfig
	logger     log.Logger
	configFile string
	stdio      bool

	inStream  io.Reader
	outStream io.Writer
}

// NewCommand returns a Command object representing an invocation of the CLI.
func NewCommand(opts ...Option) *Command {
	cmd := &Command{
		Command: &cobra.Command{
			Use:           "mcpkit",
			Version:       versionString,
			SilenceErrors: true,
		},
		inStream:  os.Stdin,
		outStream: os.Stdout,
	}

	for _, o := range opts {
		o(cmd)
	}

	flags := cmd.Flags()
	flags.StringVarP(&cmd.cfg.Address, "address", "a", "127.0.0.1", "Address of the interface the server will listen on.")
	flags.IntVarP(&cmd.cfg.Port, "port", "p", 5000, "Port the server will listen on.")

	flags.StringVar(&cmd.configFile, "config", "", "File path of an optional YAML server configuration.")
	flags.BoolVar(&cmd.stdio, "stdio", false, "Serve over stdin/stdout instead of HTTP.")
	flags.Var(&cmd.cfg.LogLevel, "log-level", "Specify the minimum level logged. Allowed: 'DEBUG', 'INFO', 'WARN', 'ERROR'.")
	flags.Var(&cmd.cfg.LoggingFormat, "logging-format", "Specify logging format to use. Allowed: 'standard' or 'JSON'.")

	// wrap RunE command so that we have access to original Command object
	cmd.RunE = func(*cobra.Command, []string) error { return run(cmd) }

	return cmd
}

// applyFileConfig folds the parsed configuration file into the flag-bound
// config. Flags set on the command line take precedence over the file.
func (c *Command) applyFileConfig(fileCfg server.ServerConfig) {
	flags := c.Flags()
	if !flags.Changed("address") && fileCfg.Address != "" {
		c.cfg.Address = fileCfg.Address
	}
	if !flags.Changed("port") && fileCfg.Port != 0 {
		c.cfg.Port = fileCfg.Port
	}
	if !flags.Changed("log-level") && fileCfg.LogLevel != "" {
		c.cfg.LogLevel = fileCfg.LogLevel
	}
	if !flags.Changed("logging-format") && fileCfg.LoggingFormat != "" {
		c.cfg.LoggingFormat = fileCfg.LoggingFormat
	}
	c.cfg.Name = fileCfg.Name
	c.cfg.Instructions = fileCfg.Instructions
	c.cfg.ProtocolVersions = fileCfg.ProtocolVersions
	c.cfg.Strict = fileCfg.Strict
	c.cfg.Sampling = fileCfg.Sampling
	c.cfg.HTTP = fileCfg.HTTP
	c.cfg.Session = fileCfg.Session
	c.cfg.Buffer = fileCfg.Buffer
	c.cfg.Auth = fileCfg.Auth
}

func run(cmd *Command) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Handle logger separately from config
	if cmd.logger == nil {
		switch strings.ToLower(cmd.cfg.LoggingFormat.String()) {
		case "json":
			logger, err := log.NewStructuredLogger(os.Stdout, os.Stderr, cmd.cfg.LogLevel.String())
			if err != nil {
				return fmt.Errorf("unable to initialize logger: %w", err)
			}
			cmd.logger = logger
		default:
			logger, err := log.NewStdLogger(os.Stdout, os.Stderr, cmd.cfg.LogLevel.String())
			if err != nil {
				return fmt.Errorf("unable to initialize logger: %w", err)
			}
			cmd.logger = logger
		}
	}

	if cmd.configFile != "" {
		buf, err := os.ReadFile(cmd.configFile)
		if err != nil {
			errMsg := fmt.Errorf("unable to read config file at %q: %w", cmd.configFile, err)
			cmd.logger.Error(errMsg.Error())
			return errMsg
		}
		fileCfg, err := server.ParseConfig(buf)
		if err != nil {
			errMsg := fmt.Errorf("unable to parse config file at %q: %w", cmd.configFile, err)
			cmd.logger.Error(errMsg.Error())
			return errMsg
		}
		cmd.applyFileConfig(fileCfg)
	}
	if cmd.cfg.Name == "" {
		cmd.cfg.Name = "mcpkit"
	}
	cmd.cfg.Version = versionString

	// run server
	s, err := server.NewServer(ctx, cmd.cfg, cmd.logger)
	if err != nil {
		errMsg := fmt.Errorf("mcpkit failed to start with the following error: %w", err)
		cmd.logger.Error(errMsg.Error())
		return errMsg
	}

	if cmd.stdio {
		if err := s.ServeStdio(ctx, cmd.inStream, cmd.outStream); err != nil && !errors.Is(err, context.Canceled) {
			errMsg := fmt.Errorf("mcpkit crashed with the following error: %w", err)
			cmd.logger.Error(errMsg.Error())
			return errMsg
		}
		return nil
	}

	if err := s.Listen(ctx); err != nil {
		errMsg := fmt.Errorf("mcpkit failed to start with the following error: %w", err)
		cmd.logger.Error(errMsg.Error())
		return errMsg
	}
	srvErr := make(chan error, 1)
	go func() { srvErr <- s.Serve() }()

	select {
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errMsg := fmt.Errorf("mcpkit crashed with the following error: %w", err)
			cmd.logger.Error(errMsg.Error())
			return errMsg
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.Shutdown(shutdownCtx); err != nil {
			errMsg := fmt.Errorf("unable to shut down gracefully: %w", err)
			cmd.logger.Error(errMsg.Error())
			return errMsg
		}
	}

	return nil
}
