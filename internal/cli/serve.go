package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lorekeep/lorekeep/internal/server"
	"github.com/lorekeep/lorekeep/internal/tools"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the MCP server on stdio",
	Long: `Serve exposes the memory store, knowledge graph and generation
pipeline as MCP tools over stdio, for use by MCP-capable writing clients.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
		go func() {
			sig := <-sigCh
			logger.Info("received shutdown signal", "signal", sig)
			cancel()
		}()

		eng, err := getEngine(ctx, true)
		if err != nil {
			return err
		}

		logger.Info("lorekeep starting",
			"version", Version,
			"surrealdb_url", cfg.SurrealDBURL,
			"embedding_model", cfg.EmbedModel,
		)

		srv := server.New(Version, logger)
		srv.Setup()
		tools.RegisterAll(srv.MCPServer(), &tools.Dependencies{
			Memory: eng.store,
			Graph:  eng.graph,
			Orch:   eng.orch,
			Logger: logger,
		})

		if err := srv.Run(ctx); err != nil && ctx.Err() == nil {
			return err
		}
		logger.Info("server stopped")
		return nil
	},
}
