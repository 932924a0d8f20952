package render

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/olekukonko/tablewriter"

	"github.com/hamed0406/pgdiag/internal/domain"
)

const (
	FormatTable = "table"
	FormatJSON  = "json"
)

func Report(w io.Writer, rep *domain.DiagnosticReport, format string) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	case FormatTable, "":
		return table(w, rep)
	default:
		return fmt.Errorf("unknown output format %q (want table|json)", format)
	}
}

func table(w io.Writer, rep *domain.DiagnosticReport) error {
	fmt.Fprintf(w, "Target: %s\n", rep.Target)
	nc := rep.Network
	switch {
	case nc.LocalIPError != "":
		fmt.Fprintln(w, nc.LocalIPError)
	case nc.LocalIP != "":
		fmt.Fprintf(w, "Local IP: %s\n", nc.LocalIP)
	}
	switch {
	case nc.PublicIPError != "":
		fmt.Fprintln(w, nc.PublicIPError)
	case nc.PublicIP != "":
		fmt.Fprintf(w, "Your public IP address: %s\n", nc.PublicIP)
	}

	tw := tablewriter.NewWriter(w)
	tw.SetHeader([]string{"Step", "Result", "Latency", "Message"})
	tw.SetAutoWrapText(false)
	for _, r := range rep.Results {
		msg := r.Message
		if r.Detail != "" && r.Step == domain.StepDBAuth {
			msg += "\n" + r.Detail
		}
		tw.Append([]string{string(r.Step), Outcome(r.Success), fmt.Sprintf("%.1fms", r.LatencyMS), msg})
	}
	tw.Render()

	for _, ex := range rep.Extras {
		fmt.Fprintf(w, "\n%s (%s)\n", ex.Name, Outcome(ex.Success))
		if len(ex.Lines) > 0 {
			fmt.Fprintln(w, strings.Join(ex.Lines, "\n"))
		}
		if ex.Error != "" {
			fmt.Fprintf(w, "error: %s\n", ex.Error)
		}
	}
	return nil
}

func Outcome(ok bool) string {
	if ok {
		return "PASS"
	}
	return "FAIL"
}
