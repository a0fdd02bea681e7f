package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/KevinKickass/OpenStimCore/internal/auth"
	"github.com/KevinKickass/OpenStimCore/internal/config"
	"github.com/KevinKickass/OpenStimCore/internal/logging"
	"github.com/KevinKickass/OpenStimCore/internal/system"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

func main() {
	// Flags parsen
	fs := config.NewFlagSet(os.Args[0])
	hashPassword := fs.Bool("hash-password", false, "Read a password from stdin, print its argon2id hash and exit")
	newToken := fs.Bool("new-machine-token", false, "Print a new machine token and its hash and exit")
	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	// Provisioning, kein Serverstart
	if *hashPassword || *newToken {
		if err := provision(*hashPassword, *newToken); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	// Config laden
	cfg, err := config.Load(config.ConfigFileFlag(fs), fs)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Logger initialisieren
	logger, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("Config loaded successfully",
		zap.String("config_path", cfg.Stimulation.ConfigPath),
		zap.Bool("test_mode", cfg.Stimulation.TestMode),
		zap.String("journal", cfg.Journal.Driver))
	if cfg.Auth.Enabled && !cfg.Auth.IsProductionReady() {
		logger.Warn("Auth enabled with development JWT secret")
	}

	// Lifecycle Manager
	lifecycle, err := system.NewLifecycleManager(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to create system", zap.Error(err))
	}

	// System starten
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := lifecycle.Start(ctx); err != nil {
		logger.Error("Failed to start system", zap.Error(err))
		shutdown(lifecycle, cfg, logger)
		os.Exit(1)
	}

	logger.Info("OpenStimCore started successfully")

	// Graceful Shutdown auf Signal oder per REST
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case <-lifecycle.Done():
		logger.Info("Shutdown requested")
	}

	if err := shutdown(lifecycle, cfg, logger); err != nil {
		os.Exit(1)
	}

	logger.Info("OpenStimCore stopped successfully")
}

func provision(hashPassword, newToken bool) error {
	if hashPassword {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("failed to read password: %w", err)
		}
		hash, err := auth.NewPasswordHasher().HashPassword(strings.TrimRight(line, "\r\n"))
		if err != nil {
			return err
		}
		fmt.Println(hash)
	}
	if newToken {
		token, hash, err := auth.GenerateMachineToken()
		if err != nil {
			return err
		}
		fmt.Printf("token: %s\nhash:  %s\n", token, hash)
	}
	return nil
}

func shutdown(lifecycle *system.LifecycleManager, cfg *config.Config, logger *zap.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := lifecycle.Shutdown(ctx); err != nil {
		logger.Error("Shutdown failed", zap.Error(err))
		return err
	}
	return nil
}
