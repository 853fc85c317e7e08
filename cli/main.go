package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/trailmark/rotor/pkg/rotation"
)

var (
	serverURL  string
	adminToken string
	Version    = "dev"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "rotorctl",
		Short: "Rotor - tracking suffix rotation for campaign URLs",
		Long:  "Inspect campaigns, stock pools, and trigger replenishment on a rotor server",
	}

	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", "http://localhost:8080", "Rotor server URL")
	rootCmd.PersistentFlags().StringVarP(&adminToken, "token", "t", os.Getenv("ROTOR_ADMIN_TOKEN"), "Admin bearer token")

	rootCmd.AddCommand(
		statusCmd(),
		campaignsCmd(),
		stockCmd(),
		replenishCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show server health and campaign totals",
		RunE: func(cmd *cobra.Command, args []string) error {
			var health struct {
				Status  string `json:"status"`
				Version string `json:"version"`
			}
			if err := getJSON("/v1/health", &health); err != nil {
				return err
			}
			campaigns, err := fetchCampaigns()
			if err != nil {
				return err
			}

			enabled := 0
			for _, c := range campaigns {
				if c.Enabled {
					enabled++
				}
			}

			fmt.Printf("Rotor Status\n")
			fmt.Printf("============\n\n")
			fmt.Printf("Server:          %s (%s)\n", health.Status, health.Version)
			fmt.Printf("Campaigns:       %d\n", len(campaigns))
			fmt.Printf("Enabled:         %d\n", enabled)
			fmt.Printf("Disabled:        %d\n", len(campaigns)-enabled)

			return nil
		},
	}
}

func campaignsCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "campaigns",
		Aliases: []string{"ls", "list"},
		Short:   "List all campaigns",
		RunE: func(cmd *cobra.Command, args []string) error {
			campaigns, err := fetchCampaigns()
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "CAMPAIGN\tUSER\tCYCLE\tTHRESHOLD\tENABLED\tUPDATED")
			fmt.Fprintln(w, "--------\t----\t-----\t---------\t-------\t-------")

			for _, c := range campaigns {
				updated := time.Since(c.UpdatedAt).Round(time.Second)
				fmt.Fprintf(w, "%s\t%s\t%dm\t%d\t%v\t%s ago\n",
					c.CampaignID, c.UserID, c.CycleMinutes, c.ClickThreshold, c.Enabled, updated)
			}

			w.Flush()
			return nil
		},
	}
}

func stockCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stock [campaign-id]",
		Short: "Show stock pool counts for a campaign",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp struct {
				CampaignID string           `json:"campaign_id"`
				Stock      map[string]int64 `json:"stock"`
			}
			if err := getJSON("/v1/admin/campaigns/"+args[0]+"/stock", &resp); err != nil {
				return err
			}

			fmt.Printf("Campaign: %s\n", resp.CampaignID)
			fmt.Printf("========================================\n\n")
			for _, status := range []string{rotation.StockAvailable, rotation.StockLeased, rotation.StockConsumed, rotation.StockFailed} {
				fmt.Printf("%-12s %d\n", status+":", resp.Stock[status])
			}

			return nil
		},
	}
}

func replenishCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "replenish [campaign-id]",
		Short: "Top stock pools up to their watermarks",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/v1/admin/replenish"
			if len(args) == 1 {
				path += "?campaign_id=" + args[0]
			}

			var result rotation.ReplenishResult
			if err := postJSON(path, &result); err != nil {
				return err
			}

			fmt.Printf("Replenished %d campaign(s), created %d suffix(es)\n", result.Campaigns, result.Created)
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("rotorctl version %s\n", Version)
		},
	}
}

func fetchCampaigns() ([]rotation.Campaign, error) {
	var campaigns []rotation.Campaign
	if err := getJSON("/v1/admin/campaigns", &campaigns); err != nil {
		return nil, err
	}
	return campaigns, nil
}

func getJSON(path string, out any) error {
	req, err := http.NewRequest(http.MethodGet, serverURL+path, nil)
	if err != nil {
		return err
	}
	return doJSON(req, out)
}

func postJSON(path string, out any) error {
	req, err := http.NewRequest(http.MethodPost, serverURL+path, nil)
	if err != nil {
		return err
	}
	return doJSON(req, out)
}

func doJSON(req *http.Request, out any) error {
	if adminToken != "" {
		req.Header.Set("Authorization", "Bearer "+adminToken)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("server returned status %d: %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("server returned status %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(body, out)
}
