package cmd

import (
	"os/signal"
	"syscall"

	"github.com/rustyeddy/tradedesk/api"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the desk with its HTTP API",
	Long: `Start the trading engine, the configured market data feed and the
REST/websocket API. Runs until interrupted.

Examples:
  tradedesk serve
  tradedesk serve --config desk.yaml --addr :9090`,
	RunE: runServe,
}

var serveAddr string

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server.addr)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	d, err := newDesk(ctx, cfg, log, deskOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err := d.Close(); err != nil {
			log.Warn("shutdown", zap.Error(err))
		}
	}()

	src, err := d.source()
	if err != nil {
		return err
	}
	srv := api.NewServer(d.engine, d.hub, cfg.Server.AllowedOrigins, log)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Start(ctx, cfg.Server.Addr) })
	if src != nil {
		g.Go(func() error { return src.Run(ctx, d.engine) })
	}
	err = g.Wait()
	if ctx.Err() != nil && err == nil {
		log.Info("shutdown complete")
	}
	return err
}

