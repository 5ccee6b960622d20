// Package report renders engine results as plain text or Org-mode.
package report

import (
	"fmt"
	"io"
	"time"

	"github.com/rustyeddy/creditrisk/analytics"
	"github.com/rustyeddy/creditrisk/concentration"
	"github.com/rustyeddy/creditrisk/credit"
	"github.com/rustyeddy/creditrisk/regulatory"
	"github.com/rustyeddy/creditrisk/stress"
	"github.com/rustyeddy/creditrisk/warning"
)

type Format string

const (
	FormatText Format = "text"
	FormatOrg  Format = "org"
)

func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatText, "":
		return FormatText, nil
	case FormatOrg:
		return FormatOrg, nil
	}
	return "", credit.InvalidInput("unknown format %q (want text or org)", s)
}

// Full bundles every engine's output for one as-of date. Nil sections are skipped.
type Full struct {
	AsOf          time.Time
	Summary       *analytics.Summary
	Concentration *concentration.Report
	Alerts        *warning.Result
	Stress        []*stress.Result
	Regulatory    *regulatory.Report
}

// Write renders f in the requested format.
func Write(w io.Writer, format Format, f Full) error {
	switch format {
	case FormatOrg:
		_, err := io.WriteString(w, FormatFullOrg(f))
		return err
	case FormatText, "":
		PrintFull(w, f)
		return nil
	}
	return fmt.Errorf("unsupported format %q", format)
}

// PrintFull writes every non-nil section as text.
func PrintFull(w io.Writer, f Full) {
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w, " Credit Risk Report")
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "As of:         %s\n", f.AsOf.Format(time.DateOnly))
	fmt.Fprintln(w)

	if f.Summary != nil {
		PrintSummary(w, f.Summary)
	}
	if f.Concentration != nil {
		PrintConcentration(w, f.Concentration)
	}
	if f.Alerts != nil {
		PrintAlerts(w, f.Alerts)
	}
	if len(f.Stress) > 0 {
		PrintStress(w, f.Stress)
	}
	if f.Regulatory != nil {
		PrintRegulatory(w, f.Regulatory)
	}
}
