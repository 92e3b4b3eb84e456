package cmd

import (
	"net/http"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/conveyorhq/conveyor/internal/service"
)

var metricsAddr string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the synchronization service for all configured workspaces",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		svc := service.New().
			WithConfig(conf).
			WithLogger(log)
		if err := svc.Run(ctx); err != nil {
			return err
		}
		defer svc.Close()

		if metricsAddr != "" {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			go func() {
				if err := http.ListenAndServe(metricsAddr, mux); err != nil {
					log.Errorf("metrics listener: %v", err)
				}
			}()
			log.Infof("serving metrics on %s", metricsAddr)
		}

		<-ctx.Done()
		log.Infof("shutting down")
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "address to serve Prometheus metrics on (empty disables)")
	rootCmd.AddCommand(runCmd)
}
