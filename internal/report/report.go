// Package report renders analysis state for a terminal.
package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/fatih/color"

	"github.com/shyim/carbon-analyzer/internal/models"
	"github.com/shyim/carbon-analyzer/internal/recommend"
	"github.com/shyim/carbon-analyzer/internal/session"
)

var (
	heading = color.New(color.FgCyan, color.Bold).SprintFunc()
	bold    = color.New(color.Bold).SprintFunc()
	gray    = color.New(color.FgHiBlack).SprintFunc()
	red     = color.New(color.FgRed, color.Bold).SprintFunc()
	yellow  = color.New(color.FgYellow, color.Bold).SprintFunc()
)

// Progress prints the one-line indicator for a state change.
func Progress(w io.Writer, st session.State) {
	if st.Phase == session.Loading {
		fmt.Fprintf(w, "%s %s\n", gray("Analyzing..."), st.URL)
	}
}

// State renders whatever the session currently has to show: an error alert,
// the last result and its recommendations.
func State(w io.Writer, st session.State) {
	if st.Phase == session.Failed {
		Error(w, st.Message)
	}
	if st.Result != nil {
		Result(w, st.Result)
		Recommendations(w, recommend.ForResult(st.Result))
	}
}

func Error(w io.Writer, msg string) {
	fmt.Fprintf(w, "\n%s %s\n", red("Error:"), msg)
}

func Result(w io.Writer, r *models.AnalysisResult) {
	fmt.Fprintf(w, "\n%s\n\n", heading("=== Carbon Footprint Analysis ==="))
	fmt.Fprintf(w, "  %s\n\n", bold(number(r.TotalCO2)+" g CO2/pageview"))

	m := r.Metrics
	if m == nil {
		return
	}
	rows := [][2]string{
		{"Total Page Size", number(m.PageSize) + " MB"},
		{"Images Size", number(m.ImagesSize) + " MB"},
		{"JavaScript Size", number(m.JSSize) + " MB"},
		{"Server Location", m.ServerLocation},
		{"Caching", m.Caching},
		{"CDN", yesNo(m.CDNUsage)},
		{"Resources", fmt.Sprintf("%d scripts, %d stylesheets, %d images", m.JSCount, m.CSSCount, m.ImageCount)},
	}
	for _, row := range rows {
		fmt.Fprintf(w, "  %-16s %s\n", gray(row[0]), row[1])
	}
}

func Recommendations(w io.Writer, recs []models.Recommendation) {
	fmt.Fprintf(w, "\n%s\n", heading("=== Recommendations ==="))
	if len(recs) == 0 {
		fmt.Fprintf(w, "  %s\n", gray("Nothing to improve, nice work."))
		return
	}
	for _, rec := range recs {
		tag := yellow("[" + string(rec.Impact) + "]")
		if rec.Impact == models.ImpactHigh {
			tag = red("[" + string(rec.Impact) + "]")
		}
		fmt.Fprintf(w, "\n  %s %s\n", tag, bold(rec.Title))
		fmt.Fprintf(w, "  %s\n", rec.Description)
		for _, d := range rec.Details {
			fmt.Fprintf(w, "    • %s\n", d)
		}
	}
}

// number prints the shortest representation, without padding.
func number(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
