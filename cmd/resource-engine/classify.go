package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/havenmap/resource-engine/internal/classify"
	"github.com/havenmap/resource-engine/internal/secrets"
	"github.com/havenmap/resource-engine/pkg/types"
)

var classifyCmd = &cobra.Command{
	Use:   "classify",
	Short: "Categorize raw records into the service taxonomy",
	Long: `Classify assigns each pending raw record a category from the fixed
27-value service taxonomy, target-population tags, and a confidence score.
The keyword engine is deterministic and offline; the gemini engine calls the
Gemini API and needs an API key (secret file gemini-api-key or
RESOURCE_ENGINE_GEMINI_API_KEY).`,
	RunE: runClassify,
}

func init() {
	classifyCmd.Flags().Int("limit", 500, "maximum records to classify in one run")
	classifyCmd.Flags().String("engine", "", "classification engine: keyword or gemini")
	classifyCmd.Flags().String("model", "", "Gemini model (gemini engine only)")
	classifyCmd.Flags().Float64("reclassify-below", 0, "re-classify stored results below this confidence instead of classifying new records")

	rootCmd.AddCommand(classifyCmd)
}

func runClassify(cmd *cobra.Command, args []string) error {
	engineName, _ := cmd.Flags().GetString("engine")
	if engineName == "" {
		engineName = viper.GetString("classify.engine")
	}
	model, _ := cmd.Flags().GetString("model")
	if model == "" {
		model = viper.GetString("classify.model")
	}

	cfg := types.ClassifyConfig{
		Engine:           engineName,
		Model:            model,
		APIKey:           secrets.Get(loadedSecrets, "gemini-api-key", "RESOURCE_ENGINE_GEMINI_API_KEY"),
		CallDelay:        viper.GetDuration("classify.call_delay"),
		MaxAnalysisChars: viper.GetInt("classify.max_analysis_chars"),
	}

	var engine classify.Engine
	switch engineName {
	case "", "keyword":
		engine = classify.KeywordEngine{}
	case "gemini":
		g, err := classify.NewGeminiEngine(cmd.Context(), cfg.APIKey, cfg.Model)
		if err != nil {
			return err
		}
		engine = g
	default:
		return fmt.Errorf("unknown classification engine %q (known: keyword, gemini)", engineName)
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	classifier := classify.New(st, engine, cfg)
	limit, _ := cmd.Flags().GetInt("limit")
	threshold, _ := cmd.Flags().GetFloat64("reclassify-below")

	var summary classify.BatchSummary
	if threshold > 0 {
		summary, err = classifier.ReclassifyLowConfidence(cmd.Context(), threshold, limit, os.Stdout)
	} else {
		summary, err = classifier.ClassifyPending(cmd.Context(), limit, os.Stdout)
	}
	if err != nil {
		return err
	}
	if summary.Failed > 0 {
		return fmt.Errorf("%d record(s) failed classification", summary.Failed)
	}
	return nil
}
