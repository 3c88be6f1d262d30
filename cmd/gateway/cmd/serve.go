package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/nsqio/go-nsq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/austindbirch/prestus_bff/internal/config"
	"github.com/austindbirch/prestus_bff/internal/downstream"
	"github.com/austindbirch/prestus_bff/internal/events"
	"github.com/austindbirch/prestus_bff/internal/gateway"
	"github.com/austindbirch/prestus_bff/internal/health"
	"github.com/austindbirch/prestus_bff/internal/httpapi"
	"github.com/austindbirch/prestus_bff/internal/logging"
	"github.com/austindbirch/prestus_bff/internal/metrics"
	"github.com/austindbirch/prestus_bff/internal/tracing"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the gateway",
	Long: `Run the HTTP gateway, plus the gRPC health service when a gRPC port is set.
SIGINT or SIGTERM drains in-flight requests before exiting.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(v)
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func serve(ctx context.Context, cfg config.Config) error {
	logging.SetDefaultService(cfg.AppName)
	logger := logging.New(cfg.AppName)

	shutdownTracing, err := tracing.InitTracing(ctx, cfg.AppName)
	if err != nil {
		logger.Plain().WithError(err).Warn("tracing disabled")
	} else {
		defer shutdownTracing()
	}

	reg := prometheus.NewRegistry()
	metrics.MustRegister(reg)
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	var sink gateway.WorkflowSink
	if cfg.NSQ.NsqdTCPAddr != "" {
		prod, err := nsq.NewProducer(cfg.NSQ.NsqdTCPAddr, nsq.NewConfig())
		if err != nil {
			return fmt.Errorf("nsq producer: %w", err)
		}
		prod.SetLogger(events.NewNSQLogger(logger), nsq.LogLevelWarning)
		defer prod.Stop()
		sink = events.NewPublisher(prod, cfg.NSQ.WorkflowTopic, logger)
	}

	svcs := downstream.NewServices(cfg.Services, downstream.WithLogger(logger))
	api := httpapi.New(httpapi.Deps{
		Jobs:               svcs.Jobs,
		Bookings:           svcs.Bookings,
		Notifications:      svcs.Notifications,
		Payments:           svcs.Payments,
		TriggerPayment:     cfg.TriggerPayment,
		NotificationsLimit: cfg.Dashboard.NotificationsLimit,
		Events:             sink,
		Gatherer:           reg,
		Logger:             logger,
	})

	errCh := make(chan error, 2)

	httpSrv := &http.Server{
		Addr:              cfg.HTTPPort,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Plain().WithFields(map[string]any{
			"addr":            cfg.HTTPPort,
			"trigger_payment": cfg.TriggerPayment,
			"workflow_events": sink != nil,
		}).Info("gateway HTTP listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP serve: %w", err)
		}
	}()

	grpcSrv, grpcHealth := health.NewGRPCServer()
	if cfg.GRPCPort != "" {
		lis, err := net.Listen("tcp", cfg.GRPCPort)
		if err != nil {
			return fmt.Errorf("gRPC listen: %w", err)
		}
		go func() {
			logger.Plain().WithField("addr", cfg.GRPCPort).Info("gateway gRPC health listening")
			if err := grpcSrv.Serve(lis); err != nil {
				errCh <- fmt.Errorf("gRPC serve: %w", err)
			}
		}()
	}

	select {
	case <-ctx.Done():
		logger.Plain().Info("shutdown requested")
	case err := <-errCh:
		logger.Plain().WithError(err).Error("server failed")
		return err
	}

	grpcHealth.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Plain().WithError(err).Warn("HTTP shutdown incomplete")
	}
	grpcSrv.GracefulStop()
	logger.Plain().Info("gateway stopped")
	return nil
}
