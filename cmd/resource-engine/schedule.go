package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/havenmap/resource-engine/internal/classify"
	"github.com/havenmap/resource-engine/internal/geocode"
	"github.com/havenmap/resource-engine/internal/ingest"
	"github.com/havenmap/resource-engine/internal/logging"
	"github.com/havenmap/resource-engine/internal/rank"
	"github.com/havenmap/resource-engine/internal/schedule"
	"github.com/havenmap/resource-engine/internal/secrets"
	"github.com/havenmap/resource-engine/internal/store"
	"github.com/havenmap/resource-engine/pkg/types"
)

const scheduledStageLimit = 2000

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run the refresh scheduler or individual refresh jobs",
}

var scheduleStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Run the scheduling loop until interrupted",
	Long: `Start runs the refresh scheduler: a ticker loop that fires each job of the
static schedule when its cadence interval elapses, in priority order. Stage
jobs respect their dependencies; a stage will not run until its upstream
stage has succeeded within the last 24 hours.`,
	RunE: runScheduleStart,
}

var scheduleRunCmd = &cobra.Command{
	Use:   "run <job>",
	Short: "Force one refresh job outside its cadence",
	Long: `Run executes one named job immediately. The dependency check still applies.
Known jobs: ` + joinJobNames() + `.`,
	Args: cobra.ExactArgs(1),
	RunE: runScheduleRun,
}

var scheduleHealthCmd = &cobra.Command{
	Use:   "health",
	Short: "Report pipeline health for the last 24 hours",
	RunE:  runScheduleHealth,
}

func init() {
	scheduleCmd.AddCommand(scheduleStartCmd, scheduleRunCmd, scheduleHealthCmd)
	rootCmd.AddCommand(scheduleCmd)
}

func joinJobNames() string {
	out := ""
	for i, name := range schedule.JobNames() {
		if i > 0 {
			out += ", "
		}
		out += name
	}
	return out
}

func scheduleConfig() types.ScheduleConfig {
	return types.ScheduleConfig{
		Tick:          viper.GetDuration("schedule.tick"),
		HistorySize:   viper.GetInt("schedule.history_size"),
		RetentionDays: viper.GetInt("schedule.retention_days"),
	}
}

// buildScheduler wires every stage runner into a scheduler over one store.
func buildScheduler(ctx context.Context, cmd *cobra.Command, st *store.Store) (*schedule.Scheduler, error) {
	level, _ := rootCmd.PersistentFlags().GetString("log-level")
	logger := logging.New(level)
	sched := schedule.New(st, scheduleConfig(), logger)

	ingestCfg := ingestConfig(ingestCmd)
	geocodeCfg := geocodeConfig(geocodeCmd)
	if geocodeCfg.RequestDelay > 0 {
		geocode.PrimaryDelay = geocodeCfg.RequestDelay
	}

	classifyCfg := types.ClassifyConfig{
		Engine:           viper.GetString("classify.engine"),
		Model:            viper.GetString("classify.model"),
		APIKey:           secrets.Get(loadedSecrets, "gemini-api-key", "RESOURCE_ENGINE_GEMINI_API_KEY"),
		CallDelay:        viper.GetDuration("classify.call_delay"),
		MaxAnalysisChars: viper.GetInt("classify.max_analysis_chars"),
	}
	var engine classify.Engine = classify.KeywordEngine{}
	if classifyCfg.Engine == "gemini" {
		g, err := classify.NewGeminiEngine(ctx, classifyCfg.APIKey, classifyCfg.Model)
		if err != nil {
			return nil, err
		}
		engine = g
	}
	classifier := classify.New(st, engine, classifyCfg)

	geocoder := geocode.New(st, buildProviders(&http.Client{Timeout: geocodeCfg.Timeout}, geocodeCfg))

	ranker, err := rank.New(st, viper.GetString("rank.profile"))
	if err != nil {
		return nil, err
	}

	sched.Register("full_ingestion", func(ctx context.Context) (types.JobMetrics, error) {
		sources, err := ingest.LoadRegistry(ingestCfg.RegistryPath)
		if err != nil {
			return types.JobMetrics{}, err
		}
		client := &http.Client{Timeout: ingestCfg.Timeout}
		summary, err := ingest.NewEngine(st, client, sources, ingestCfg).IngestAll(ctx, "", os.Stdout)
		return types.JobMetrics{RecordsProcessed: summary.Records}, err
	})
	sched.Register("classify_new", func(ctx context.Context) (types.JobMetrics, error) {
		summary, err := classifier.ClassifyPending(ctx, scheduledStageLimit, os.Stdout)
		return types.JobMetrics{
			RecordsProcessed: summary.Processed,
			Extra:            map[string]float64{"avg_confidence": summary.AvgConfidence},
		}, err
	})
	sched.Register("geocode_new", func(ctx context.Context) (types.JobMetrics, error) {
		summary, err := geocoder.GeocodePending(ctx, scheduledStageLimit, os.Stdout)
		return types.JobMetrics{
			RecordsProcessed: summary.Processed,
			Extra:            map[string]float64{"cache_hits": float64(summary.CacheHits)},
		}, err
	})
	sched.Register("rank_new", func(ctx context.Context) (types.JobMetrics, error) {
		summary, err := ranker.RankPending(ctx, scheduledStageLimit, os.Stdout)
		return types.JobMetrics{RecordsProcessed: summary.Processed}, err
	})
	sched.Register("quality_improvement", func(ctx context.Context) (types.JobMetrics, error) {
		var total int
		summary, err := classifier.ReclassifyLowConfidence(ctx, 50, scheduledStageLimit, os.Stdout)
		total += summary.Processed
		if err != nil {
			return types.JobMetrics{RecordsProcessed: total}, err
		}
		geoSummary, err := geocoder.RegeocodeLowQuality(ctx, scheduledStageLimit, os.Stdout)
		total += geoSummary.Processed
		if err != nil {
			return types.JobMetrics{RecordsProcessed: total}, err
		}
		rankSummary, err := ranker.RerankAll(ctx, scheduledStageLimit, os.Stdout)
		total += rankSummary.Processed
		return types.JobMetrics{RecordsProcessed: total}, err
	})

	return sched, nil
}

func runScheduleStart(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	sched, err := buildScheduler(cmd.Context(), cmd, st)
	if err != nil {
		return err
	}

	tick := viper.GetDuration("schedule.tick")
	if tick == 0 {
		tick = time.Minute
	}
	err = sched.Start(cmd.Context(), tick)
	if err == context.Canceled {
		return nil
	}
	return err
}

func runScheduleRun(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	sched, err := buildScheduler(cmd.Context(), cmd, st)
	if err != nil {
		return err
	}

	result, err := sched.RunOnce(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	fmt.Printf("%s: %d records in %s\n", result.JobName, result.RecordsProcessed, result.Duration())
	return nil
}

func runScheduleHealth(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	sched, err := buildScheduler(cmd.Context(), cmd, st)
	if err != nil {
		return err
	}

	report, err := sched.HealthCheck(cmd.Context())
	if err != nil {
		return err
	}

	fmt.Printf("Jobs run (24h):  %d (%d failed)\n", report.JobsRun, report.JobsFailed)
	fmt.Printf("Classified/raw:  %.0f%%\n", report.ClassifiedRatio*100)
	fmt.Printf("Geocoded/class:  %.0f%%\n", report.GeocodedRatio*100)
	fmt.Printf("Ranked/geocoded: %.0f%%\n", report.RankedRatio*100)
	for _, alert := range report.Alerts {
		fmt.Printf("[%s] %s\n", alert.Level, alert.Message)
	}
	if !report.Healthy() {
		return fmt.Errorf("pipeline unhealthy: %d alert(s)", len(report.Alerts))
	}
	fmt.Println("Pipeline healthy")
	return nil
}
