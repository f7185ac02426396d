// Command updownbot trades Polymarket's 5-minute BTC up/down windows. It
// loads configuration, validates it, sets up logging and signal handling,
// and runs the bot in live or paper mode.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/alanyoungcy/updownbot/internal/app"
	"github.com/alanyoungcy/updownbot/internal/config"
	"github.com/alanyoungcy/updownbot/internal/crypto"
)

func main() {
	configPath := flag.String("config", "", "path to TOML configuration file (defaults and environment only when empty)")
	encryptKey := flag.String("encrypt-key", "", "encrypt a private key read from stdin into this file and exit")
	flag.Parse()

	if *encryptKey != "" {
		if err := runEncryptKey(*encryptKey); err != nil {
			fmt.Fprintf(os.Stderr, "encrypt-key: %v\n", err)
			os.Exit(1)
		}
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, closeLog := app.NewLogger(cfg.Log)
	defer func() { _ = closeLog() }()
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("updown bot starting",
		slog.String("mode", cfg.Mode),
		slog.String("config", *configPath),
		slog.Any("settings", config.RedactedConfig(cfg)),
	)

	application := app.New(cfg, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err = application.Run(ctx)
	stop()
	application.Close()

	if err != nil {
		logger.Error("application exited with error", slog.String("error", err.Error()))
		_ = closeLog()
		os.Exit(1)
	}
	logger.Info("updown bot stopped")
}

// runEncryptKey reads "<hex key>\n<password>\n" from stdin and writes the
// sealed key file to path.
func runEncryptKey(path string) error {
	in := bufio.NewScanner(os.Stdin)
	var lines []string
	for len(lines) < 2 && in.Scan() {
		lines = append(lines, strings.TrimSpace(in.Text()))
	}
	if err := in.Err(); err != nil {
		return err
	}
	if len(lines) < 2 || lines[0] == "" || lines[1] == "" {
		return errors.New("expected the private key and the password on separate lines of stdin")
	}
	if err := crypto.WriteEncryptedKey(path, lines[0], lines[1]); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "encrypted key written to %s\n", path)
	return nil
}
