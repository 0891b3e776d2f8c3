package main

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"pgresults/internal/config"
	"pgresults/internal/stream"
	"pgresults/pkg/logger"
	"pgresults/pkg/results"
)

// Uso: pgresults [config.yaml] [sql]
// Com sql o resultado é escrito em stdout (uma mensagem JSON por linha) e o
// processo termina; sem sql sobe a interface HTTP.
func main() {
	configPath := ""
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	loaded, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	config.Init()
	config.SetOnce(loaded, configPath)
	cfg := config.GetCfg()

	if err := logger.Init(cfg.Logging.Level, cfg.Logging.File); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	if configPath != "" {
		logger.Info("Using config file: %s", configPath)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	source, err := stream.NewPoolSource(ctx, cfg.Postgres)
	if err != nil {
		log.Fatalf("Failed to connect to PostgreSQL: %v", err)
	}
	defer source.Close()

	engine := stream.NewEngine(context.Background(), source, stream.OptionsFromConfig(cfg.Stream))

	if len(os.Args) > 2 {
		code := runOnce(ctx, engine, os.Args[2])
		source.Close()
		stop()
		os.Exit(code)
	}

	stopGUI, err := stream.StartGUIServer(engine, cfg.GUI.ListenHost, cfg.GUI.ListenPort)
	if err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
	logger.Info("pgresults started. Press Ctrl+C to stop.")

	<-ctx.Done()
	logger.Info("Shutting down server...")
	stopGUI()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := engine.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error stopping engine: %v", err)
	}
	logger.Info("Server stopped")
}

// runOnce streams sql to stdout and returns the exit code.
func runOnce(ctx context.Context, engine *stream.Engine, sql string) int {
	sink := &jsonLinesSink{w: os.Stdout}
	s, err := engine.Execute(ctx, sql, "", sink)
	if err != nil {
		logger.Error("%v", err)
		return 1
	}
	select {
	case <-s.Done():
	case <-ctx.Done():
		_ = engine.Dispose(s.ID)
		<-s.Done()
		return 130
	}
	if s.LastError() != nil {
		return 1
	}
	return 0
}

// jsonLinesSink writes each push message as one JSON line.
type jsonLinesSink struct {
	mu sync.Mutex
	w  io.Writer
}

func (j *jsonLinesSink) Post(msg results.Message) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return json.NewEncoder(j.w).Encode(struct {
		Kind    string          `json:"kind"`
		Message results.Message `json:"message"`
	}{msg.MessageKind(), msg})
}
