package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// --- submit ---

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit an analysis job to a running server",
}

var submitChannelCmd = &cobra.Command{
	Use:   "channel <name|url|@handle>",
	Short: "Queue a channel analysis",
	Long: `Queue a channel analysis.

Examples:
  vigil submit channel @somechannel
  vigil submit channel "Tên Kênh" --max-videos 10 --min-severity 2
  vigil submit channel https://www.youtube.com/@somechannel --skip-comments`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		maxVideos, _ := cmd.Flags().GetInt("max-videos")
		minSeverity, _ := cmd.Flags().GetInt("min-severity")
		skipComments, _ := cmd.Flags().GetBool("skip-comments")

		req := map[string]any{
			"channel_input":   args[0],
			"max_videos":      maxVideos,
			"min_severity":    minSeverity,
			"scrape_comments": !skipComments,
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/api/jobs/channel", req)
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Queued job %s", result["job_id"])
		return nil
	},
}

var submitVideoCmd = &cobra.Command{
	Use:   "video <url>",
	Short: "Queue a single video analysis",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		minSeverity, _ := cmd.Flags().GetInt("min-severity")
		skipComments, _ := cmd.Flags().GetBool("skip-comments")

		req := map[string]any{
			"video_url":       args[0],
			"min_severity":    minSeverity,
			"scrape_comments": !skipComments,
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/api/jobs/video", req)
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Queued job %s", result["job_id"])
		return nil
	},
}

func init() {
	submitChannelCmd.Flags().Int("max-videos", 5, "maximum videos to process")
	submitChannelCmd.Flags().Int("min-severity", 1, "minimum severity level to flag (1-4)")
	submitChannelCmd.Flags().Bool("skip-comments", false, "skip comment scraping and analysis")
	submitVideoCmd.Flags().Int("min-severity", 1, "minimum severity level to flag (1-4)")
	submitVideoCmd.Flags().Bool("skip-comments", false, "skip comment scraping and analysis")

	submitCmd.AddCommand(submitChannelCmd)
	submitCmd.AddCommand(submitVideoCmd)
}

// --- jobs ---

type jobView struct {
	ID         string          `json:"job_id"`
	Type       string          `json:"type"`
	Status     string          `json:"status"`
	CreatedAt  time.Time       `json:"created_at"`
	FinishedAt *time.Time      `json:"finished_at"`
	Error      string          `json:"error"`
	Result     json.RawMessage `json:"result"`
}

var jobsCmd = &cobra.Command{
	Use:   "jobs [id]",
	Short: "List recent jobs or show one job",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		if len(args) == 1 {
			resp, err := client.get(cmd.Context(), "/api/jobs/"+args[0])
			if err != nil {
				return err
			}
			var job jobView
			if err := decodeJSON(resp, &job); err != nil {
				return err
			}
			printJob(job)
			if len(job.Result) > 0 {
				pretty, err := json.MarshalIndent(json.RawMessage(job.Result), "  ", "  ")
				if err == nil {
					fmt.Printf("  %s\n", pretty)
				}
			}
			return nil
		}

		limit, _ := cmd.Flags().GetInt("limit")
		resp, err := client.get(cmd.Context(), fmt.Sprintf("/api/jobs?limit=%d", limit))
		if err != nil {
			return err
		}
		var listing struct {
			Jobs []jobView `json:"jobs"`
		}
		if err := decodeJSON(resp, &listing); err != nil {
			return err
		}
		if len(listing.Jobs) == 0 {
			fmt.Println("no jobs")
			return nil
		}
		for _, job := range listing.Jobs {
			printJob(job)
		}
		return nil
	},
}

func printJob(job jobView) {
	line := fmt.Sprintf("%s  %-16s %-12s %s", job.ID, job.Type, job.Status, job.CreatedAt.Local().Format(time.DateTime))
	if job.Error != "" {
		line += "  " + colorize(colorRed, job.Error)
	}
	fmt.Println(line)
}

func init() {
	jobsCmd.Flags().Int("limit", 20, "maximum jobs to list")
}
