package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/xiaot623/gogo/menuchat/internal/backend"
	"github.com/xiaot623/gogo/menuchat/internal/backend/answer"
	"github.com/xiaot623/gogo/menuchat/internal/backend/knowledge"
	"github.com/xiaot623/gogo/menuchat/internal/backend/policy"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the demo chat backend",
	Long: `Start a chat backend that answers menu questions on /ws/chat.

Answers are built from the menu context store and streamed in chunks,
followed by the [DONE] sentinel. GET /health reports open connections.`,
	RunE: runServe,
}

var servePort int

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Listen port (overrides WS_PORT)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if servePort > 0 {
		cfg.Backend.WSPort = servePort
	}
	logger, closeLog := newLogger(cfg)
	defer closeLog()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	menu, err := knowledge.NewSQLiteStore(cfg.Backend.MenuDB)
	if err != nil {
		return fmt.Errorf("failed to open menu store: %w", err)
	}
	defer menu.Close()

	items := knowledge.DefaultMenu
	if cfg.Backend.MenuSeedFile != "" {
		if items, err = knowledge.LoadSeedFile(cfg.Backend.MenuSeedFile); err != nil {
			return err
		}
	}
	if err := menu.Seed(ctx, items); err != nil {
		return fmt.Errorf("failed to seed menu: %w", err)
	}
	logger.Info().Int("items", len(items)).Str("db", cfg.Backend.MenuDB).Msg("menu context ready")

	engine, err := policy.NewEngine(ctx, policy.DefaultPolicy)
	if err != nil {
		return fmt.Errorf("failed to create policy engine: %w", err)
	}

	srv := backend.NewServer(cfg.Backend, backend.Deps{
		Retriever: menu,
		Policy:    engine,
		Answerer:  answer.NewMenuAnswerer(cfg.Backend.StreamChunkSize, cfg.Backend.StreamRate),
	}, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		addr := fmt.Sprintf(":%d", cfg.Backend.WSPort)
		if err := srv.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("chat backend: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down chat backend")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info().Msg("chat backend stopped")
	return nil
}
