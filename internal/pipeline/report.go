package pipeline

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/backmassage/dashmaster/internal/planner"
	"github.com/backmassage/dashmaster/internal/term"
)

// planRow is one line of the dry-run table.
type planRow struct {
	Name       string
	Status     string
	Renditions string
	Manifest   string
}

// PrintPlanTable writes the dry-run overview: what each asset would get.
func PrintPlanTable(w io.Writer, results []Result) {
	if len(results) == 0 {
		return
	}
	rows := make([]planRow, 0, len(results))
	for _, res := range results {
		rows = append(rows, rowFor(res))
	}

	nameW := len("Asset")
	statusW := len("Status")
	rendW := len("Renditions")
	for _, r := range rows {
		nameW = max(nameW, len(r.Name))
		statusW = max(statusW, len(r.Status))
		rendW = max(rendW, len(r.Renditions))
	}
	if nameW > 50 {
		nameW = 50
	}

	header := fmt.Sprintf("  %-*s  %-*s  %-*s  %s",
		nameW, "Asset",
		statusW, "Status",
		rendW, "Renditions",
		"Manifest",
	)
	fmt.Fprintln(w, header)
	fmt.Fprintln(w, "  "+strings.Repeat("─", len(header)-2))

	for _, r := range rows {
		name := r.Name
		if len(name) > nameW {
			name = name[:nameW-1] + "…"
		}
		fmt.Fprintf(w, "  %-*s  %s  %-*s  %s\n",
			nameW, name,
			colorPad(r.Status, statusW),
			rendW, r.Renditions,
			r.Manifest,
		)
	}
	fmt.Fprintln(w)
}

func rowFor(res Result) planRow {
	row := planRow{Name: filepath.Base(res.Asset), Status: "render", Renditions: "-", Manifest: "-"}
	switch {
	case res.Outcome == OutcomeFailed:
		row.Status = "error"
	case res.Outcome == OutcomeSkipped:
		row.Status = res.Reason
	}
	plan := res.Plan
	if plan == nil {
		return row
	}
	if len(plan.Renditions) > 0 {
		names := make([]string, 0, len(plan.Renditions))
		for _, rd := range plan.Renditions {
			names = append(names, rd.Name)
		}
		row.Renditions = strings.Join(names, ",")
	}
	if plan.NeedsManifest {
		row.Manifest = manifestLabel(plan)
	}
	return row
}

func manifestLabel(plan *planner.Plan) string {
	if !plan.ManifestPresent {
		return "new"
	}
	for _, rd := range plan.Renditions {
		if rd.Kind == planner.KindAudio || (rd.Kind == planner.KindVideo && !rd.Small) {
			return "rebuild"
		}
	}
	return "present"
}

// colorPad pads a plain string to width, then wraps in ANSI color. This
// keeps %-*s-style alignment correct regardless of escape sequences.
func colorPad(s string, width int) string {
	padded := fmt.Sprintf("%-*s", width, s)
	switch s {
	case "render":
		return term.Green + padded + term.NC
	case "error":
		return term.Red + padded + term.NC
	case ReasonBusy, ReasonIneligible:
		return term.Yellow + padded + term.NC
	default:
		return padded
	}
}
