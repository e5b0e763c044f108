package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/terrascan/terrascan/internal/analysis"
	"github.com/terrascan/terrascan/internal/aoi"
	"github.com/terrascan/terrascan/internal/api"
	"github.com/terrascan/terrascan/internal/logging"
	"github.com/terrascan/terrascan/internal/notification"
	"github.com/terrascan/terrascan/internal/properties"
	"github.com/terrascan/terrascan/internal/provider"
	"github.com/terrascan/terrascan/internal/session"
	"github.com/terrascan/terrascan/internal/ui"
	"github.com/terrascan/terrascan/output"
)

const dateLayout = "2006-01-02"

type rootOptions struct {
	provider  string
	logLevel  string
	logFormat string
	logger    *logrus.Logger
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "terrascan",
		Short: "TerraScan classifies vegetation health from satellite NDVI",
		Long: `TerraScan fetches satellite imagery for an area of interest, computes NDVI,
classifies each pixel as degraded or healthy against a threshold and
produces CSV reports, images and GeoJSON summaries.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			opts.logger = logging.Setup(opts.logLevel, opts.logFormat)
		},
	}

	rootCmd.PersistentFlags().StringVar(&opts.provider, "provider", properties.Provider(), "imagery provider (sentinel|planet|earthengine)")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", properties.LogLevel(), "log level (debug|info|warn|error)")
	rootCmd.PersistentFlags().StringVar(&opts.logFormat, "log-format", "text", "log format (text|json)")

	rootCmd.AddCommand(newServeCmd(opts))
	rootCmd.AddCommand(newAnalyzeCmd(opts))
	rootCmd.AddCommand(newInteractiveCmd(opts))
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

// newService wires the configured provider and the Discord notifier when webhooks are set.
func (o *rootOptions) newService() (*analysis.Service, error) {
	p, err := provider.New(o.provider, o.logger)
	if err != nil {
		return nil, err
	}
	var notifier analysis.Notifier
	if discord := notification.DiscordFromProperties(); discord.Enabled() {
		notifier = discord
	}
	return analysis.NewService(p, notifier, o.logger), nil
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	var (
		addr       string
		sessionTTL time.Duration
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the dashboard HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			service, err := opts.newService()
			if err != nil {
				return err
			}
			store := session.NewStore(properties.DefaultThreshold())

			server := &http.Server{
				Addr:              addr,
				Handler:           api.SetupRouter(store, service, opts.logger),
				ReadHeaderTimeout: 10 * time.Second,
				WriteTimeout:      5 * time.Minute,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			go func() {
				ticker := time.NewTicker(time.Minute)
				defer ticker.Stop()
				for {
					select {
					case <-ctx.Done():
						return
					case <-ticker.C:
						if removed := store.Expire(sessionTTL); removed > 0 {
							opts.logger.WithField("removed", removed).Info("expired idle sessions")
						}
					}
				}
			}()

			go func() {
				<-ctx.Done()
				opts.logger.Info("Shutting down server...")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					opts.logger.WithError(err).Warn("failed to shutdown server")
				}
			}()

			opts.logger.WithFields(logrus.Fields{
				"addr":     addr,
				"provider": service.ProviderName(),
			}).Info("Server starting")
			if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", properties.HTTPAddr(), "listen address")
	cmd.Flags().DurationVar(&sessionTTL, "session-ttl", 24*time.Hour, "remove sessions older than this")

	return cmd
}

func newAnalyzeCmd(opts *rootOptions) *cobra.Command {
	var (
		aoiPath   string
		threshold float64
		start     string
		end       string
		outDir    string
		images    bool
		parallel  int
	)

	cmd := &cobra.Command{
		Use:   "analyze --aoi <file.geojson>",
		Short: "Analyze every polygon of a GeoJSON file and write one report per area",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := session.ValidateThreshold(threshold); err != nil {
				return err
			}
			dates, err := parseDates(start, end)
			if err != nil {
				return err
			}
			areas, err := aoi.ParseFile(aoiPath)
			if err != nil {
				return err
			}
			service, err := opts.newService()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			outcomes, err := service.AnalyzeBatch(ctx, areas, analysis.Request{Threshold: threshold, Dates: dates}, parallel)
			if err != nil {
				return err
			}

			failed := 0
			for i, outcome := range outcomes {
				if outcome.Err != nil {
					failed++
					fmt.Printf("\033[31m%s: %s\033[0m\n", outcome.Name, outcome.Err.Error())
					continue
				}
				if err := writeOutcome(service, i, outcome, outDir, images); err != nil {
					failed++
					fmt.Printf("\033[31m%s: %s\033[0m\n", outcome.Name, err.Error())
					continue
				}
				fmt.Printf("\033[32m%s\033[0m\n", analysis.Summary(outcome.Name, outcome.Analysis))
			}

			if failed > 0 {
				return fmt.Errorf("%d of %d areas failed", failed, len(outcomes))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&aoiPath, "aoi", "", "GeoJSON file holding one or more polygons")
	cmd.Flags().Float64Var(&threshold, "threshold", properties.DefaultThreshold(), "NDVI threshold below which pixels are degraded (0.0 to 0.5)")
	cmd.Flags().StringVar(&start, "start", "", "start date YYYY-MM-DD (default TERRASCAN_START_DATE or 90 days before end)")
	cmd.Flags().StringVar(&end, "end", "", "end date YYYY-MM-DD (default TERRASCAN_END_DATE or today)")
	cmd.Flags().StringVarP(&outDir, "out", "o", properties.DataPath("result"), "output directory")
	cmd.Flags().BoolVar(&images, "images", false, "also write NDVI, mask and true colour images with a GeoJSON summary")
	cmd.Flags().IntVar(&parallel, "parallel", 4, "areas analysed at the same time")
	cmd.MarkFlagRequired("aoi")

	return cmd
}

func parseDates(start, end string) (provider.DateRange, error) {
	from, to := properties.DefaultDateRange(time.Now())
	var err error
	if end != "" {
		if to, err = time.Parse(dateLayout, end); err != nil {
			return provider.DateRange{}, fmt.Errorf("invalid end date %q: %w", end, err)
		}
		if start == "" {
			from = to.AddDate(0, 0, -90)
		}
	}
	if start != "" {
		if from, err = time.Parse(dateLayout, start); err != nil {
			return provider.DateRange{}, fmt.Errorf("invalid start date %q: %w", start, err)
		}
	}
	dates := provider.DateRange{Start: from, End: to}
	return dates, dates.Validate()
}

// writeOutcome writes the report of the index-th area, and its images when asked.
// Area names are free text, so file names carry the sanitized name plus the feature position.
func writeOutcome(service *analysis.Service, index int, outcome analysis.Outcome, outDir string, images bool) error {
	r, err := service.Report(outcome.Session, outcome.Analysis.CompletedAt)
	if err != nil {
		return err
	}
	data, err := r.CSV()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(outDir, os.ModePerm); err != nil {
		return fmt.Errorf("failed to create output folder: %w", err)
	}
	prefix := fmt.Sprintf("%s_%02d_%s", output.FileName(outcome.Name), index+1, r.GeneratedAt.Format("20060102_150405"))
	if err := os.WriteFile(filepath.Join(outDir, prefix+".csv"), data, 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	if !images {
		return nil
	}

	if _, err := output.RenderAll(outDir, prefix, outcome.Analysis); err != nil {
		return err
	}
	_, area := outcome.Session.Area()
	return output.WriteGeoJSON(filepath.Join(outDir, prefix+".geojson"), outcome.Name, area, outcome.Analysis)
}

func newInteractiveCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "interactive",
		Short: "Run the numbered menu console",
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = reportPanic(r)
				}
			}()
			printBanner()

			service, err := opts.newService()
			if err != nil {
				return err
			}
			console := ui.NewConsole(os.Stdin, os.Stdout, service, properties.DefaultThreshold(), properties.DataPath("result"), opts.logger)
			return console.ShowMenu(cmd.Context())
		},
	}
}

// reportPanic prints where the console panicked and forwards the stack to the Discord error webhook.
func reportPanic(r interface{}) error {
	pc, file, line, ok := runtime.Caller(3)
	location := "Unknown location"
	if ok {
		location = fmt.Sprintf("%s:%d in %s", file, line, runtime.FuncForPC(pc).Name())
	}

	fmt.Printf("\n\033[31mPANIC: %v\033[0m\n", r)
	fmt.Printf("\033[31mLocation: %s\033[0m\n", location)
	fmt.Printf("\033[31mPlease check the input and try again.\033[0m\n")

	errMessage := fmt.Sprintf("TerraScan CLI panic:\n\n%v\n\nLocation: %s\n\nStack trace:\n%s", r, location, debug.Stack())
	if err := notification.SendDiscordErrorNotification(errMessage); err != nil {
		fmt.Printf("\033[31mFailed to send notification: %s\033[0m\n", err.Error())
	}
	return fmt.Errorf("panic: %v", r)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("terrascan %s\n", properties.Version)
		},
	}
}
