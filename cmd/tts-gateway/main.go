// main package for the tts-gateway
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/book-expert/logger"
	"github.com/nats-io/nats.go"

	"github.com/book-expert/tts-gateway/internal/config"
	"github.com/book-expert/tts-gateway/internal/engine"
	"github.com/book-expert/tts-gateway/internal/server"
	"github.com/book-expert/tts-gateway/internal/synthesis"
	"github.com/book-expert/tts-gateway/internal/worker"
)

// envDeployment selects between one-shot local self-test (unset) and
// continuous serving (any value). It is not part of the per-request contract.
const envDeployment = "TTS_GATEWAY_DEPLOYMENT"

const selfTestTimeout = 10 * time.Minute

func setupLogger(logPath string) (*logger.Logger, error) {
	log, err := logger.New(logPath, "tts-gateway.log")
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return log, nil
}

func run() error {
	bootstrapLog, err := setupLogger(os.TempDir())
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to create bootstrap logger: %v\n", err)

		return err
	}

	bootstrapLog.Info("Bootstrap logger created.")

	cfg, err := config.Load(bootstrapLog)
	if err != nil {
		bootstrapLog.Error("Failed to load configuration: %v", err)

		return fmt.Errorf("failed to load configuration: %w", err)
	}

	bootstrapLog.Info("Configuration loaded successfully.")

	finalLog, err := setupLogger(cfg.Paths.BaseLogsDir)
	if err != nil {
		bootstrapLog.Error("Failed to create final logger: %v", err)

		return fmt.Errorf("failed to create final logger: %w", err)
	}

	defer func() {
		closeErr := finalLog.Close()
		if closeErr != nil {
			fmt.Fprintf(os.Stderr, "error closing final logger: %v\n", closeErr)
		}
	}()

	handler := buildHandler(cfg, finalLog)

	if os.Getenv(envDeployment) == "" {
		return runSelfTest(handler, finalLog)
	}

	return serve(cfg, handler, finalLog)
}

// buildHandler wires the runtime client, session adapter, and synthesis
// handler from the loaded configuration.
func buildHandler(cfg *config.Config, log *logger.Logger) *synthesis.Handler {
	timeout := time.Duration(cfg.Engine.TimeoutSeconds) * time.Second

	client := engine.NewClient(cfg.Engine.RuntimeURL, timeout)
	adapter := engine.NewAdapter(client, cfg.Engine.WarmupText, log)

	return synthesis.NewHandler(adapter, cfg.Engine.ModelName, log)
}

// runSelfTest exercises the whole pipeline once with the Sanskrit smoke
// batch and exits.
func runSelfTest(handler *synthesis.Handler, log *logger.Logger) error {
	log.System("No deployment environment set, running one-shot self test.")

	ctx, cancel := context.WithTimeout(context.Background(), selfTestTimeout)
	defer cancel()

	resp, err := handler.SelfTest(ctx)
	if err != nil {
		return fmt.Errorf("self test failed: %w", err)
	}

	fmt.Printf(
		"Self test passed: %d buffers at %d Hz in %.2fs\n",
		resp.BufferCount,
		resp.SamplingRate,
		resp.ProcessingTime,
	)

	return nil
}

// serve runs the HTTP boundary and, when configured, the NATS worker, until
// the process receives an interrupt.
func serve(cfg *config.Config, handler *synthesis.Handler, log *logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.NATS.Enabled {
		err := startWorker(ctx, cfg, handler, log)
		if err != nil {
			return err
		}
	}

	log.System("TTS-Gateway initialized, serving on port %d", cfg.HTTP.Port)

	httpServer := server.New(handler, log)

	err := httpServer.ListenAndServe(ctx, cfg.HTTP.Port)
	if err != nil {
		return fmt.Errorf("serving failed: %w", err)
	}

	return nil
}

// startWorker connects to NATS and runs the synthesis job worker in the
// background for the lifetime of ctx.
func startWorker(
	ctx context.Context,
	cfg *config.Config,
	handler *synthesis.Handler,
	log *logger.Logger,
) error {
	natsConnection, err := nats.Connect(cfg.NATS.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS at %s: %w", cfg.NATS.URL, err)
	}

	natsWorker, err := worker.NewNatsWorker(
		natsConnection,
		cfg.NATS.SynthesisSubject,
		handler,
		log,
	)
	if err != nil {
		return fmt.Errorf("failed to create NATS worker: %w", err)
	}

	go func() {
		runErr := natsWorker.Run(ctx)
		if runErr != nil {
			log.Error("NATS worker stopped: %v", runErr)
		}

		natsConnection.Close()
	}()

	log.System("NATS worker listening on subject: %s", cfg.NATS.SynthesisSubject)

	return nil
}

func main() {
	err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Service exited with error: %v\n", err)
		os.Exit(1)
	}
}
