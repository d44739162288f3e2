package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vigil-sys/vigil/internal/models"
	"github.com/vigil-sys/vigil/internal/utils"
)

func newStatusCmd() *cobra.Command {
	var (
		address  string
		asJSON   bool
		top      int
		timeout  time.Duration
		showInfo bool
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the latest health assessment",
		RunE: func(cmd *cobra.Command, args []string) error {
			assessment, err := fetchAssessment(address, timeout)
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(assessment)
			}

			render(os.Stdout, assessment, top, showInfo)
			return nil
		},
	}

	cmd.Flags().StringVar(&address, "address", "http://127.0.0.1:7411", "vigild API address")
	cmd.Flags().BoolVar(&asJSON, "json", false, "emit the raw assessment as JSON")
	cmd.Flags().IntVar(&top, "top", 10, "maximum issues to display")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "request timeout")
	cmd.Flags().BoolVar(&showInfo, "show-info", false, "include info-level issues")

	return cmd
}

func fetchAssessment(address string, timeout time.Duration) (*models.ProactiveAssessment, error) {
	client := &http.Client{Timeout: timeout}
	resp, err := client.Get(strings.TrimRight(address, "/") + "/v1/assessment")
	if err != nil {
		return nil, fmt.Errorf("contact vigild at %s: %w", address, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, fmt.Errorf("no assessment yet, vigild may still be starting")
	default:
		return nil, fmt.Errorf("vigild returned %s", resp.Status)
	}

	var assessment models.ProactiveAssessment
	if err := json.NewDecoder(resp.Body).Decode(&assessment); err != nil {
		return nil, fmt.Errorf("decode assessment: %w", err)
	}
	return &assessment, nil
}

func render(out *os.File, a *models.ProactiveAssessment, top int, showInfo bool) {
	now := time.Now().UTC()
	fmt.Fprintf(out, "Health: %d/100 (%s)  assessed %s\n",
		a.HealthScore, a.HealthBand(), utils.FormatSince(a.Timestamp, now))
	fmt.Fprintf(out, "Issues: %d critical, %d warning, %d info\n\n",
		a.CriticalCount, a.WarningCount, a.InfoCount)

	issues := a.CorrelatedIssues
	if !showInfo {
		filtered := issues[:0:0]
		for _, issue := range issues {
			if issue.Severity != models.SeverityInfo {
				filtered = append(filtered, issue)
			}
		}
		issues = filtered
	}
	if top > 0 && len(issues) > top {
		issues = issues[:top]
	}

	if len(issues) > 0 {
		w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "SEVERITY\tCONF\tSUBJECT\tSUMMARY")
		for _, issue := range issues {
			fmt.Fprintf(w, "%s\t%d%%\t%s\t%s\n",
				strings.ToUpper(string(issue.Severity)), issue.Confidence, issue.Subject, issue.Summary)
		}
		w.Flush()

		fmt.Fprintln(out)
		for _, issue := range issues {
			if len(issue.RemediationCommands) == 0 {
				continue
			}
			fmt.Fprintf(out, "To investigate %s:\n", issue.Subject)
			for _, command := range issue.RemediationCommands {
				fmt.Fprintf(out, "  $ %s\n", command)
			}
		}
	} else {
		fmt.Fprintln(out, "No open issues.")
	}

	if len(a.Trends) > 0 {
		fmt.Fprintln(out, "\nTrends:")
		for _, trend := range a.Trends {
			fmt.Fprintf(out, "  %s: %s for %s. %s\n",
				trend.TrendType, trend.Subject, utils.FormatHours(trend.DurationHours), trend.Recommendation)
		}
	}

	if len(a.Recoveries) > 0 {
		fmt.Fprintln(out, "\nRecovered:")
		for _, recovery := range a.Recoveries {
			fmt.Fprintf(out, "  %s (%s) after %s, %s\n",
				recovery.Subject, recovery.OriginalSeverity,
				utils.FormatHours(recovery.DurationHours),
				utils.FormatSince(recovery.RecoveryTime, now))
		}
	}
}
