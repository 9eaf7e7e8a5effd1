package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/havenmap/resource-engine/internal/rank"
)

var rankCmd = &cobra.Command{
	Use:   "rank",
	Short: "Score geocoded resources and assign priority tiers",
	Long: `Rank computes eight independent 0-100 sub-scores for each pending geocoded
resource, aggregates them under the selected weighting profile, and assigns
a category-gated priority tier. With --rerank it re-scores the whole catalog,
persisting only strictly improved overall scores.`,
	RunE: runRank,
}

func init() {
	rankCmd.Flags().Int("limit", 1000, "maximum resources to rank in one run")
	rankCmd.Flags().String("profile", "", "weighting profile: "+strings.Join(rank.ProfileNames(), ", "))
	rankCmd.Flags().Bool("rerank", false, "re-score already-ranked resources, keeping only improvements")

	rootCmd.AddCommand(rankCmd)
}

func runRank(cmd *cobra.Command, args []string) error {
	profile, _ := cmd.Flags().GetString("profile")
	if profile == "" {
		profile = viper.GetString("rank.profile")
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	ranker, err := rank.New(st, profile)
	if err != nil {
		return err
	}

	limit, _ := cmd.Flags().GetInt("limit")
	rerank, _ := cmd.Flags().GetBool("rerank")

	var summary rank.BatchSummary
	if rerank {
		summary, err = ranker.RerankAll(cmd.Context(), limit, os.Stdout)
	} else {
		summary, err = ranker.RankPending(cmd.Context(), limit, os.Stdout)
	}
	if err != nil {
		return err
	}
	if summary.Failed > 0 {
		return fmt.Errorf("%d resource(s) failed ranking", summary.Failed)
	}
	return nil
}
