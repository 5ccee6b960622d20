package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/rustyeddy/creditrisk/warning"
)

// FormatAlertOrg renders an alert as an Org heading with its facts in a
// PROPERTIES drawer and the recommended action as a checkbox.
func FormatAlertOrg(a warning.Alert) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*** %s %s: %s\n", strings.ToUpper(string(a.Severity)), a.Signal, a.Entity)
	b.WriteString(":PROPERTIES:\n")
	fmt.Fprintf(&b, ":ALERT_ID: %s\n", a.ID)
	fmt.Fprintf(&b, ":SIGNAL: %s\n", a.Signal)
	fmt.Fprintf(&b, ":SEVERITY: %s\n", a.Severity)
	if a.ContractID != 0 {
		fmt.Fprintf(&b, ":CONTRACT_ID: %d\n", a.ContractID)
	}
	if a.CustomerID != 0 {
		fmt.Fprintf(&b, ":CUSTOMER_ID: %d\n", a.CustomerID)
	}
	fmt.Fprintf(&b, ":METRIC: %.2f\n", a.Metric)
	fmt.Fprintf(&b, ":THRESHOLD: %.2f\n", a.Threshold)
	fmt.Fprintf(&b, ":EXPOSURE: %.2f\n", a.Exposure)
	b.WriteString(":END:\n")
	fmt.Fprintf(&b, "%s\n", a.Message)
	fmt.Fprintf(&b, "- [ ] %s\n", a.Action)
	return b.String()
}

// FormatAlertsOrg renders a whole scan under one heading.
func FormatAlertsOrg(r *warning.Result) string {
	var b strings.Builder
	b.WriteString("** Early Warning\n")
	sum := r.Summary()
	props(&b, map[string]string{
		"ALERTS":   fmt.Sprint(sum.Total),
		"URGENT":   fmt.Sprint(sum.BySeverity[warning.Urgent]),
		"CRITICAL": fmt.Sprint(sum.BySeverity[warning.Critical]),
	}, "ALERTS", "URGENT", "CRITICAL")
	for _, a := range r.Alerts {
		b.WriteString(FormatAlertOrg(a))
	}
	return b.String()
}

// FormatFullOrg renders every non-nil section as an Org document.
func FormatFullOrg(f Full) string {
	var b strings.Builder
	fmt.Fprintf(&b, "* Credit Risk Report %s\n", f.AsOf.Format(time.DateOnly))

	if s := f.Summary; s != nil {
		b.WriteString("** Portfolio\n")
		props(&b, map[string]string{
			"CONTRACTS": fmt.Sprint(s.Contracts),
			"CUSTOMERS": fmt.Sprint(s.Customers),
			"EXPOSURE":  money(s.TotalExposure),
			"NPL_RATIO": pct(s.NPL.Ratio),
			"COVERAGE":  pct(s.Coverage.Ratio),
		}, "CONTRACTS", "CUSTOMERS", "EXPOSURE", "NPL_RATIO", "COVERAGE")
		rows := [][]string{}
		for _, r := range s.Ratings {
			rows = append(rows, []string{string(r.Grade), fmt.Sprint(r.Customers), fmt.Sprint(r.Contracts), money(r.Exposure), pct(r.Share)})
		}
		table(&b, []string{"Grade", "Customers", "Contracts", "Exposure", "Share"}, rows)
	}

	if c := f.Concentration; c != nil {
		b.WriteString("** Concentration\n")
		props(&b, map[string]string{
			"ACTIVE_EXPOSURE": money(c.TotalExposure),
			"BREACHES":        fmt.Sprint(len(c.Breaches())),
		}, "ACTIVE_EXPOSURE", "BREACHES")
		rows := [][]string{}
		for _, s := range c.Industries {
			rows = append(rows, []string{s.Key, money(s.Exposure), pct(s.Share), fmt.Sprint(s.Breached)})
		}
		table(&b, []string{"Industry", "Exposure", "Share", "Breached"}, rows)
	}

	if f.Alerts != nil {
		b.WriteString(FormatAlertsOrg(f.Alerts))
	}

	if len(f.Stress) > 0 {
		b.WriteString("** Stress Tests\n")
		rows := [][]string{}
		for _, r := range f.Stress {
			rows = append(rows, []string{r.Scenario.Name, money(r.BaselineEL), money(r.StressedEL), pct(r.DeltaPct), money(r.CapitalImpact)})
		}
		table(&b, []string{"Scenario", "Base EL", "Stress EL", "Delta", "Capital"}, rows)
	}

	if r := f.Regulatory; r != nil {
		b.WriteString("** Regulatory\n")
		props(&b, map[string]string{
			"RUN_ID":    r.RunID,
			"TOTAL_ECL": money(r.TotalECL),
			"RWA":       money(r.Capital.RWA),
			"CET1":      money(r.Capital.CET1),
			"TOTAL_CAP": money(r.Capital.Total),
		}, "RUN_ID", "TOTAL_ECL", "RWA", "CET1", "TOTAL_CAP")
		rows := [][]string{}
		for _, s := range r.Stages {
			rows = append(rows, []string{fmt.Sprint(s.Stage), fmt.Sprint(s.Contracts), money(s.EAD), money(s.ECL), pct(s.Coverage)})
		}
		table(&b, []string{"Stage", "Contracts", "EAD", "ECL", "Coverage"}, rows)
	}

	return b.String()
}

// props writes a drawer in the given key order.
func props(b *strings.Builder, kv map[string]string, order ...string) {
	b.WriteString(":PROPERTIES:\n")
	for _, k := range order {
		fmt.Fprintf(b, ":%s: %s\n", k, kv[k])
	}
	b.WriteString(":END:\n")
}

func table(b *strings.Builder, head []string, rows [][]string) {
	fmt.Fprintf(b, "| %s |\n", strings.Join(head, " | "))
	b.WriteString("|")
	for i := range head {
		if i > 0 {
			b.WriteString("+")
		}
		b.WriteString("---")
	}
	b.WriteString("|\n")
	for _, r := range rows {
		fmt.Fprintf(b, "| %s |\n", strings.Join(r, " | "))
	}
	b.WriteString("\n")
}

func money(v float64) string { return fmt.Sprintf("%.2f", v) }
func pct(v float64) string   { return fmt.Sprintf("%.2f%%", v) }
