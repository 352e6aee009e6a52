package main

// Commandline for the RF remote receiver. This turns arguments and the
// config file into a configuration, but is not responsible for any of the
// actual logic.

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"hive13/rfremote/config"
	"hive13/rfremote/logging"
	"hive13/rfremote/service"
)

var (
	configPath string
	sourceKind string
	chip       string
	offset     int
	pin        string
	port       string
	file       string
	listenAddr string
	recordDir  string
	verbose    bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// Cobra boilerplate:
var rootCmd = &cobra.Command{
	Use:          "rfremote",
	Short:        "Decode a 433MHz remote and trigger relays",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Read(configPath)
		if err != nil {
			return err
		}
		applyFlags(cmd, cfg)
		if err := config.Validate(cfg); err != nil {
			return err
		}

		log, closer, err := logging.New(cfg.Log)
		if err != nil {
			return err
		}
		defer closer()

		log.Debug().Interface("config", cfg).Msg("configuration")

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		// We have a configuration. Go run the receiver.
		if err := service.Run(ctx, cfg, log); err != nil {
			log.Error().Err(err).Msg("receiver failed")
			return err
		}
		return nil
	},
}

// applyFlags overrides the config file with whatever was given on the
// command line.
func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("source") {
		cfg.Source.Kind = sourceKind
	}
	if flags.Changed("chip") {
		cfg.Source.Chip = chip
	}
	if flags.Changed("offset") {
		cfg.Source.Offset = offset
	}
	if flags.Changed("pin") {
		cfg.Source.Pin = pin
	}
	if flags.Changed("port") {
		cfg.Source.Port = port
	}
	if flags.Changed("file") {
		cfg.Source.File = file
	}
	if flags.Changed("addr") {
		cfg.HTTP.ListenAddr = listenAddr
	}
	if flags.Changed("record") {
		cfg.RecordDir = recordDir
	}
	if verbose {
		cfg.Log.Level = "debug"
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c",
		"/etc/rfremote.yaml", "YAML configuration file")

	rootCmd.PersistentFlags().StringVar(&sourceKind, "source", config.SourceGPIOD,
		"Edge source: gpiod, periph, serial or replay")
	rootCmd.PersistentFlags().StringVar(&chip, "chip", "gpiochip0",
		"GPIO chip of the RF receiver's data pin (gpiod)")
	rootCmd.PersistentFlags().IntVar(&offset, "offset", 27,
		"Line offset of the RF receiver's data pin (gpiod, BCM pin number on a Pi)")
	rootCmd.PersistentFlags().StringVar(&pin, "pin", "",
		"Pin name of the RF receiver's data pin (periph, e.g. GPIO27)")
	rootCmd.PersistentFlags().StringVar(&port, "port", "",
		"Serial device of the edge sniffer (serial)")
	rootCmd.PersistentFlags().StringVar(&file, "file", "",
		"Recording to play back (replay)")

	rootCmd.PersistentFlags().StringVar(&listenAddr, "addr",
		":9000", "Address for HTTP server to listen on (empty to disable)")
	rootCmd.PersistentFlags().StringVar(&recordDir, "record", "",
		"Directory to save every captured frame to")

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v",
		false, "Enable more verbose logging")
}
