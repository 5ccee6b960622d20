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

const (
	rule    = "=================================================="
	subrule = "--------------------------------------------------"
)

func section(w io.Writer, title string) {
	fmt.Fprintln(w, title)
	fmt.Fprintln(w, subrule)
}

func header(w io.Writer, title string, asOf time.Time) {
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, " %s\n", title)
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "As of:         %s\n", asOf.Format(time.DateOnly))
	fmt.Fprintln(w)
}

func PrintSummary(w io.Writer, s *analytics.Summary) {
	header(w, "Portfolio Analytics", s.AsOf)

	section(w, "Portfolio")
	fmt.Fprintf(w, "Contracts:     %d (%d active)\n", s.Contracts, s.ActiveContracts)
	fmt.Fprintf(w, "Customers:     %d\n", s.Customers)
	fmt.Fprintf(w, "Exposure:      %.2f\n", s.TotalExposure)
	fmt.Fprintf(w, "Active:        %.2f\n", s.ActiveExposure)
	fmt.Fprintf(w, "Limits:        %.2f (utilized %.2f)\n", s.TotalLimit, s.TotalUtilized)
	fmt.Fprintf(w, "Collateral:    %.2f\n", s.TotalCollateral)
	fmt.Fprintf(w, "Unsecured:     %.2f\n", s.UnsecuredExposure)
	fmt.Fprintf(w, "Avg Rate:      %.2f%%\n", s.AvgInterestRate*100)
	fmt.Fprintf(w, "Avg Term:      %.1f months\n", s.AvgTermMonths)
	if s.OverLimit > 0 {
		fmt.Fprintf(w, "Over Limit:    %d contracts\n", s.OverLimit)
	}

	fmt.Fprintln(w)
	section(w, "Credit Quality")
	fmt.Fprintf(w, "NPL:           %d contracts, %.2f\n", s.NPL.Contracts, s.NPL.Exposure)
	fmt.Fprintf(w, "NPL Ratio:     %.2f%%\n", s.NPL.Ratio)
	fmt.Fprintf(w, "Provisions:    %.2f\n", s.Coverage.Provisions)
	fmt.Fprintf(w, "Coverage:      %.2f%%\n", s.Coverage.Ratio)
	fmt.Fprintf(w, "Stage 3 Cov.:  %.2f%%\n", s.Coverage.Stage3Ratio)

	fmt.Fprintln(w)
	section(w, "Rating Distribution")
	fmt.Fprintf(w, "%-6s %9s %9s %16s %8s %9s\n", "Grade", "Customers", "Contracts", "Exposure", "Share", "Def.Rate")
	for _, b := range s.Ratings {
		fmt.Fprintf(w, "%-6s %9d %9d %16.2f %7.2f%% %8.2f%%\n",
			b.Grade, b.Customers, b.Contracts, b.Exposure, b.Share, b.DefaultRate)
	}

	fmt.Fprintln(w)
	section(w, "Risk Classes")
	for _, b := range s.RiskClasses {
		fmt.Fprintf(w, "%-10s %6d customers %16.2f %7.2f%%\n", b.Class, b.Customers, b.Exposure, b.Share)
	}

	if len(s.Vintages) > 0 {
		fmt.Fprintln(w)
		section(w, "Vintages")
		for _, v := range s.Vintages {
			fmt.Fprintf(w, "%-8s %5d contracts %16.2f %7.2f%% default\n", v.Key, v.Contracts, v.Exposure, v.DefaultRate)
		}
	}

	fmt.Fprintln(w)
	section(w, "Delinquency")
	for _, d := range s.Delinquency {
		fmt.Fprintf(w, "%-8s %6d payments %14.2f outstanding %7.2f%%\n", d.Label, d.Payments, d.Outstanding, d.Share)
	}

	printIntegrity(w, s.Warnings)
	fmt.Fprintln(w)
}

func PrintConcentration(w io.Writer, r *concentration.Report) {
	header(w, "Concentration Risk", r.AsOf)
	fmt.Fprintf(w, "Active Exposure: %.2f\n", r.TotalExposure)
	fmt.Fprintln(w)

	printShares(w, "Industries", r.Industries)
	printShares(w, "Regions", r.Regions)
	printShares(w, "Products", r.Products)

	section(w, "Top Exposures")
	fmt.Fprintf(w, "%-4s %-24s %-4s %14s %14s %7s\n", "#", "Customer", "Rtg", "Gross", "Net", "Share")
	for i, t := range r.Top {
		fmt.Fprintf(w, "%-4d %-24s %-4s %14.2f %14.2f %6.2f%%\n", i+1, clip(t.Name, 24), t.Rating, t.Gross, t.Net, t.Share)
	}

	if len(r.LargeExposures) > 0 {
		fmt.Fprintln(w)
		section(w, "Large Exposures")
		for _, le := range r.LargeExposures {
			flag := ""
			if le.Regulatory {
				flag = " [regulatory]"
			}
			fmt.Fprintf(w, "%-28s %14.2f %6.2f%%%s\n", clip(le.Name, 28), le.Exposure, le.Share, flag)
		}
	}

	if len(r.Limits) > 0 {
		fmt.Fprintln(w)
		section(w, "Risk Limits")
		for _, ls := range r.Limits {
			state := string(ls.State)
			if !ls.Active {
				state += " (inactive)"
			}
			fmt.Fprintf(w, "%-24s %14.2f / %14.2f %7.2f%% %s\n",
				clip(ls.Limit.Name, 24), ls.Limit.Utilization, ls.Limit.Amount, ls.Limit.UtilizationPct, state)
		}
	}

	if b := r.Breaches(); len(b) > 0 {
		fmt.Fprintln(w)
		section(w, "Breaches")
		for _, x := range b {
			fmt.Fprintf(w, "- %s %s: %.2f%% > %.2f%%\n", x.Dimension, x.Key, x.Value, x.Ceiling)
		}
	}

	printIntegrity(w, r.Warnings)
	fmt.Fprintln(w)
}

func printShares(w io.Writer, title string, ss []concentration.Share) {
	section(w, title)
	for _, s := range ss {
		mark := ""
		if s.Breached {
			mark = " !"
		}
		fmt.Fprintf(w, "%-24s %14.2f %6.2f%% (max %.0f%%)%s\n", clip(s.Key, 24), s.Exposure, s.Share, s.Ceiling, mark)
	}
	fmt.Fprintln(w)
}

func PrintAlerts(w io.Writer, r *warning.Result) {
	header(w, "Early Warning", r.AsOf)

	sum := r.Summary()
	section(w, "Summary")
	fmt.Fprintf(w, "Alerts:        %d\n", sum.Total)
	for _, sev := range warning.Severities {
		fmt.Fprintf(w, "%-14s %d\n", string(sev)+":", sum.BySeverity[sev])
	}

	if len(r.Alerts) > 0 {
		fmt.Fprintln(w)
		section(w, "Alerts")
		for _, a := range r.Alerts {
			fmt.Fprintf(w, "[%-8s] %-24s %-22s %s\n", a.Severity, a.Signal, a.Entity, a.Message)
			fmt.Fprintf(w, "           metric %.2f threshold %.2f exposure %.2f -> %s\n", a.Metric, a.Threshold, a.Exposure, a.Action)
		}
	}

	printIntegrity(w, r.Warnings)
	fmt.Fprintln(w)
}

func PrintStress(w io.Writer, rs []*stress.Result) {
	if len(rs) == 0 {
		return
	}
	header(w, "Stress Tests", rs[0].AsOf)

	section(w, "Scenarios")
	fmt.Fprintf(w, "%-26s %12s %12s %8s %10s %12s %5s\n", "Scenario", "Base EL", "Stress EL", "Delta", "NPL", "Capital", "Migr")
	for _, r := range rs {
		fmt.Fprintf(w, "%-26s %12.2f %12.2f %7.1f%% %9.2f%% %12.2f %5d\n",
			clip(r.Scenario.Name, 26), r.BaselineEL, r.StressedEL, r.DeltaPct, r.StressedNPLRatio, r.CapitalImpact, r.Migration.Total())
	}

	if len(rs) == 1 {
		r := rs[0]
		fmt.Fprintln(w)
		section(w, "By Industry")
		for _, b := range r.Industries {
			fmt.Fprintf(w, "%-24s %14.2f %12.2f %12.2f\n", clip(b.Key, 24), b.Exposure, b.BaselineEL, b.StressedEL)
		}
		fmt.Fprintln(w)
		section(w, "By Rating")
		for _, b := range r.Ratings {
			fmt.Fprintf(w, "%-24s %14.2f %12.2f %12.2f\n", b.Key, b.Exposure, b.BaselineEL, b.StressedEL)
		}
		fmt.Fprintln(w)
		section(w, "Stage Migration")
		fmt.Fprintf(w, "1 -> 2:        %d\n", r.Migration.OneToTwo)
		fmt.Fprintf(w, "1 -> 3:        %d\n", r.Migration.OneToThree)
		fmt.Fprintf(w, "2 -> 3:        %d\n", r.Migration.TwoToThree)
		printIntegrity(w, r.Warnings)
	}
	fmt.Fprintln(w)
}

func PrintSensitivity(w io.Writer, base string, pts []stress.SensitivityPoint) {
	section(w, "Sensitivity: "+base)
	fmt.Fprintf(w, "%10s %14s %14s %9s %14s\n", "PD x", "Stress EL", "Delta", "Delta %", "Capital")
	for _, p := range pts {
		fmt.Fprintf(w, "%10.2f %14.2f %14.2f %8.1f%% %14.2f\n", p.Multiplier, p.StressedEL, p.Delta, p.DeltaPct, p.CapitalImpact)
	}
	fmt.Fprintln(w)
}

func PrintRegulatory(w io.Writer, r *regulatory.Report) {
	header(w, "Regulatory Report", r.AsOf)
	fmt.Fprintf(w, "Run ID:        %s\n", r.RunID)
	fmt.Fprintln(w)

	section(w, "IFRS 9 Stages")
	fmt.Fprintf(w, "%-6s %9s %16s %14s %9s\n", "Stage", "Contracts", "EAD", "ECL", "Coverage")
	for _, s := range r.Stages {
		fmt.Fprintf(w, "%-6d %9d %16.2f %14.2f %8.2f%%\n", s.Stage, s.Contracts, s.EAD, s.ECL, s.Coverage)
	}
	fmt.Fprintf(w, "Total ECL:     %.2f\n", r.TotalECL)
	fmt.Fprintf(w, "Change:        %+.2f\n", r.ProvisionDelta)

	fmt.Fprintln(w)
	section(w, "Risk-Weighted Assets")
	for _, b := range r.RWA {
		fmt.Fprintf(w, "%-6s %5d contracts %16.2f x %4.0f%% = %16.2f\n", b.Rating, b.Contracts, b.EAD, b.RiskWeight*100, b.RWA)
	}
	c := r.Capital
	fmt.Fprintf(w, "RWA:           %.2f (density %.2f%%)\n", c.RWA, c.Density)

	fmt.Fprintln(w)
	section(w, "Capital Requirements")
	fmt.Fprintf(w, "CET1:          %.2f\n", c.CET1)
	fmt.Fprintf(w, "Tier 1:        %.2f\n", c.Tier1)
	fmt.Fprintf(w, "Total:         %.2f\n", c.Total)
	fmt.Fprintf(w, "Buffer:        %.2f\n", c.ConservationBuffer)
	fmt.Fprintf(w, "With Buffer:   %.2f\n", c.TotalWithBuffer)

	fmt.Fprintln(w)
	fmt.Fprintf(w, "NPL Ratio:     %.2f%%\n", r.NPLRatio)
	if len(r.LargeExposures) > 0 {
		fmt.Fprintf(w, "Large Exp.:    %d\n", len(r.LargeExposures))
	}

	printIntegrity(w, r.Warnings)
	fmt.Fprintln(w)
}

func printIntegrity(w io.Writer, ws []credit.IntegrityWarning) {
	if len(ws) == 0 {
		return
	}
	fmt.Fprintln(w)
	section(w, "Skipped Records")
	for _, x := range ws {
		fmt.Fprintf(w, "- %s\n", x)
	}
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "~"
}
