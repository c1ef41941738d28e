package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/shyim/carbon-analyzer/internal/client"
	"github.com/shyim/carbon-analyzer/internal/models"
	"github.com/shyim/carbon-analyzer/internal/recommend"
	"github.com/shyim/carbon-analyzer/internal/report"
	"github.com/shyim/carbon-analyzer/internal/session"
)

const defaultAPIURL = "http://localhost:8080"

var errAnalysisFailed = errors.New("analysis failed")

var (
	apiURL     string
	timeout    time.Duration
	jsonOutput bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [url]",
	Short: "Analyze a web page",
	Long: `Submits the URL to the analysis API and prints the estimated emissions,
the measured page metrics and the recommendations derived from them.

The API address is taken from --api-url, then $CARBON_API_URL.

Example:
  carbon analyze https://example.com
  carbon analyze --json https://example.com`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if apiURL == "" {
			apiURL = os.Getenv("CARBON_API_URL")
		}
		if apiURL == "" {
			apiURL = defaultAPIURL
		}

		c := client.New(apiURL, client.WithTimeout(timeout), client.WithLogger(logger))
		return runAnalyze(cmd, c, args[0])
	},
}

func init() {
	analyzeCmd.Flags().StringVar(&apiURL, "api-url", "", "analysis API base URL (default $CARBON_API_URL or "+defaultAPIURL+")")
	analyzeCmd.Flags().DurationVar(&timeout, "timeout", 0, "give up after this long (0 waits indefinitely)")
	analyzeCmd.Flags().BoolVar(&jsonOutput, "json", false, "print the result and recommendations as JSON")
}

type jsonReport struct {
	*models.AnalysisResult
	Recommendations []models.Recommendation `json:"recommendations"`
}

func runAnalyze(cmd *cobra.Command, a session.Analyzer, url string) error {
	out := cmd.OutOrStdout()

	opts := []session.Option{session.WithLogger(logger)}
	if !jsonOutput {
		opts = append(opts, session.WithObserver(func(st session.State) {
			report.Progress(cmd.ErrOrStderr(), st)
		}))
	}
	s := session.New(a, opts...)

	st, err := s.Analyze(cmd.Context(), url)
	if err != nil {
		return err
	}

	if jsonOutput {
		return writeJSON(out, st)
	}

	report.State(out, st)
	if st.Phase == session.Failed {
		return errAnalysisFailed
	}
	return nil
}

func writeJSON(w io.Writer, st session.State) error {
	if st.Phase == session.Failed {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(models.ErrorResponse{Detail: st.Message}); err != nil {
			return err
		}
		return errAnalysisFailed
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(jsonReport{
		AnalysisResult:  st.Result,
		Recommendations: recommend.ForResult(st.Result),
	}); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return nil
}
