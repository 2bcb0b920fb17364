// Package main provides the entry point for the OPC UA PubSub server daemon.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	logging "github.com/ipfs/go-log/v2"
	"github.com/spf13/cobra"

	"github.com/opcmesh/uapubsub/internal/config"
	"github.com/opcmesh/uapubsub/internal/server"
)

var log = logging.Logger("uapubsub")

var rootCmd = &cobra.Command{
	Use:   "uapubsub",
	Short: "OPC UA PubSub management server",
	Long: `uapubsub runs the PubSub side of an OPC UA server: it manages the
configuration tree of connections, writer and reader groups, writers, readers
and datasets over UDP and MQTT transports.`,
}

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Start the PubSub daemon",
	RunE:  runDaemon,
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize the server configuration",
	RunE:  runInit,
}

var (
	configPath string
	debug      bool
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "enable debug logging")

	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(initCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setupLogging() {
	if debug {
		logging.SetAllLoggers(logging.LevelDebug)
	} else {
		logging.SetAllLoggers(logging.LevelInfo)
	}
}

func runInit(cmd *cobra.Command, args []string) error {
	setupLogging()

	path := configPath
	if path == "" {
		path = config.DefaultPath()
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config already exists at %s", path)
	}

	cfg := config.Default()
	if err := cfg.Save(path); err != nil {
		return err
	}
	fmt.Printf("wrote default configuration to %s\n", path)
	return nil
}

func runDaemon(cmd *cobra.Command, args []string) error {
	setupLogging()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	srv, err := server.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	ctx := context.Background()
	if cfg.Storage.Restore && cfg.Storage.Path != "" {
		if err := srv.RestoreConfiguration(ctx); err != nil {
			log.Errorf("restoring configuration: %v", err)
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	log.Infof("daemon running, press Ctrl+C to stop")
	<-sigCh

	if cfg.Storage.Path != "" {
		if err := srv.SaveConfiguration(ctx); err != nil {
			log.Errorf("saving configuration: %v", err)
		}
	}
	srv.Shutdown()
	return nil
}
