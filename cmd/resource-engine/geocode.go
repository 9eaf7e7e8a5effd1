package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/havenmap/resource-engine/internal/geocode"
	"github.com/havenmap/resource-engine/internal/secrets"
	"github.com/havenmap/resource-engine/pkg/types"
)

var geocodeCmd = &cobra.Command{
	Use:   "geocode",
	Short: "Resolve classified resources to coordinates",
	Long: `Geocode resolves each pending classified resource through a three-provider
cascade (Nominatim, then Geocodio when a key is configured, then the Census
geocoder), derives a category-aware service radius, and grades each result.
With --requeue-low-quality it instead re-resolves stored poor/failed
geocodes, keeping the better grade.`,
	RunE: runGeocode,
}

func init() {
	geocodeCmd.Flags().Int("limit", 500, "maximum resources to geocode in one run")
	geocodeCmd.Flags().Bool("requeue-low-quality", false, "re-resolve stored poor/failed geocodes")
	geocodeCmd.Flags().Duration("request-delay", 0, "primary provider spacing (default 1.1s)")

	rootCmd.AddCommand(geocodeCmd)
}

func geocodeConfig(cmd *cobra.Command) types.GeocodeConfig {
	timeout := viper.GetDuration("geocode.timeout")
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	delay, _ := cmd.Flags().GetDuration("request-delay")
	if delay == 0 {
		delay = viper.GetDuration("geocode.request_delay")
	}

	return types.GeocodeConfig{
		HTTPConfig: types.HTTPConfig{
			Timeout:   timeout,
			UserAgent: defaultUserAgent,
		},
		NominatimURL:       viper.GetString("geocode.nominatim_url"),
		GeocodioURL:        viper.GetString("geocode.geocodio_url"),
		GeocodioAPIKey:     secrets.Get(loadedSecrets, "geocodio-api-key", "RESOURCE_ENGINE_GEOCODIO_API_KEY"),
		GeocodioDailyQuota: viper.GetInt("geocode.geocodio_daily_quota"),
		CensusURL:          viper.GetString("geocode.census_url"),
		RequestDelay:       delay,
	}
}

// buildProviders assembles the cascade in reliability order: open, then
// commercial when configured, then government.
func buildProviders(client *http.Client, cfg types.GeocodeConfig) []geocode.Provider {
	providers := []geocode.Provider{
		geocode.NewNominatim(client, cfg.NominatimURL, cfg.UserAgent),
	}
	geocodio := geocode.NewGeocodio(client, cfg.GeocodioURL, cfg.GeocodioAPIKey, cfg.GeocodioDailyQuota)
	if geocodio.Configured() {
		providers = append(providers, geocodio)
	}
	providers = append(providers, geocode.NewCensus(client, cfg.CensusURL, cfg.UserAgent))
	return providers
}

func runGeocode(cmd *cobra.Command, args []string) error {
	cfg := geocodeConfig(cmd)
	if cfg.RequestDelay > 0 {
		geocode.PrimaryDelay = cfg.RequestDelay
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	client := &http.Client{Timeout: cfg.Timeout}
	geocoder := geocode.New(st, buildProviders(client, cfg))

	limit, _ := cmd.Flags().GetInt("limit")
	requeue, _ := cmd.Flags().GetBool("requeue-low-quality")

	var summary geocode.BatchSummary
	if requeue {
		summary, err = geocoder.RegeocodeLowQuality(cmd.Context(), limit, os.Stdout)
	} else {
		summary, err = geocoder.GeocodePending(cmd.Context(), limit, os.Stdout)
	}
	if err != nil {
		return err
	}
	if summary.Failed > 0 {
		return fmt.Errorf("%d resource(s) failed geocoding", summary.Failed)
	}
	return nil
}
