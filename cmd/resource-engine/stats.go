package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print per-stage row counts and conversion ratios",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		counts, err := st.CountStages(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Printf("Raw records: %d\n", counts.Raw)
		fmt.Printf("Classified:  %d", counts.Classified)
		if counts.Raw > 0 {
			fmt.Printf(" (%.0f%%)", float64(counts.Classified)/float64(counts.Raw)*100)
		}
		fmt.Println()
		fmt.Printf("Geocoded:    %d", counts.Geocoded)
		if counts.Classified > 0 {
			fmt.Printf(" (%.0f%%)", float64(counts.Geocoded)/float64(counts.Classified)*100)
		}
		fmt.Println()
		fmt.Printf("Ranked:      %d", counts.Ranked)
		if counts.Geocoded > 0 {
			fmt.Printf(" (%.0f%%)", float64(counts.Ranked)/float64(counts.Geocoded)*100)
		}
		fmt.Println()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
