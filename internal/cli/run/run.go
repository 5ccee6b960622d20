// Package run holds the commands that execute the risk engines.
package run

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/rustyeddy/creditrisk/analytics"
	"github.com/rustyeddy/creditrisk/concentration"
	"github.com/rustyeddy/creditrisk/credit"
	"github.com/rustyeddy/creditrisk/internal/cli/config"
	"github.com/rustyeddy/creditrisk/regulatory"
	"github.com/rustyeddy/creditrisk/report"
	"github.com/rustyeddy/creditrisk/store"
	"github.com/rustyeddy/creditrisk/stress"
	"github.com/rustyeddy/creditrisk/warning"
	"github.com/spf13/cobra"
)

func NewAnalyzeCmd(rc *config.RootConfig) *cobra.Command {
	var (
		topN         int
		updateLimits bool
	)

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Portfolio analytics and concentration risk",
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := rc.OutputFormat()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			st, snap, err := load(ctx, rc)
			if err != nil {
				return err
			}
			defer st.Close()

			conc := concentration.New(rc.Cfg, rc.Log)
			if topN != 0 {
				if conc, err = conc.WithTopN(topN); err != nil {
					return fmt.Errorf("analyze: %w", err)
				}
			}

			f := report.Full{
				AsOf:          snap.TakenAt,
				Summary:       analytics.New(rc.Cfg, rc.Log).Summarize(snap),
				Concentration: conc.Analyze(snap),
			}

			if updateLimits {
				limits := make([]credit.RiskLimit, 0, len(f.Concentration.Limits))
				for _, ls := range f.Concentration.Limits {
					limits = append(limits, ls.Limit)
				}
				if err := st.UpdateRiskLimitUtilization(ctx, limits); err != nil {
					return fmt.Errorf("update limits: %w", err)
				}
				rc.Log.Info().Int("limits", len(limits)).Msg("risk limit utilization updated")
			}

			return report.Write(cmd.OutOrStdout(), format, f)
		},
	}

	cmd.Flags().IntVar(&topN, "top", 0, "Number of top exposures to rank (default from config)")
	cmd.Flags().BoolVar(&updateLimits, "update-limits", false, "Write recomputed limit utilization back to the database")

	return cmd
}

func NewEarlyWarningCmd(rc *config.RootConfig) *cobra.Command {
	var minSeverity string

	cmd := &cobra.Command{
		Use:   "early-warning",
		Short: "Scan the portfolio for early-warning signals",
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := rc.OutputFormat()
			if err != nil {
				return err
			}
			asOf, err := rc.AsOfDate()
			if err != nil {
				return err
			}
			floor, err := parseSeverity(minSeverity)
			if err != nil {
				return err
			}

			st, snap, err := load(cmd.Context(), rc)
			if err != nil {
				return err
			}
			defer st.Close()

			res, err := warning.New(rc.Cfg, rc.Log).Scan(snap, asOf)
			if err != nil {
				return fmt.Errorf("early warning: %w", err)
			}
			res.Alerts = res.Filter(floor)

			return report.Write(cmd.OutOrStdout(), format, report.Full{AsOf: asOf, Alerts: res})
		},
	}

	cmd.Flags().StringVar(&minSeverity, "min-severity", "info", "Lowest severity to show: urgent|critical|warning|info")

	return cmd
}

func parseSeverity(s string) (warning.Severity, error) {
	for _, sev := range warning.Severities {
		if string(sev) == s {
			return sev, nil
		}
	}
	return "", credit.InvalidInput("unknown severity %q", s)
}

func NewStressTestCmd(rc *config.RootConfig) *cobra.Command {
	var (
		scenarios   []string
		name        string
		multiplier  float64
		industry    string
		addOn       float64
		sensitivity string
	)

	cmd := &cobra.Command{
		Use:   "stress-test",
		Short: "Apply catalog or custom stress scenarios",
		Example: `  creditrisk stress-test
  creditrisk stress-test --scenario recession_severe --scenario industry_auto
  creditrisk stress-test --multiplier 2.2 --industry Automotive --name "auto shock"
  creditrisk stress-test --scenario recession_mild --sensitivity 1,1.5,2,3`,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := rc.OutputFormat()
			if err != nil {
				return err
			}
			st, snap, err := load(cmd.Context(), rc)
			if err != nil {
				return err
			}
			defer st.Close()

			eng := stress.New(rc.Cfg, rc.Log)
			out := cmd.OutOrStdout()

			if sensitivity != "" {
				key := "recession_mild"
				if len(scenarios) > 0 {
					key = scenarios[0]
				}
				base, err := rc.Cfg.Scenario(key)
				if err != nil {
					return fmt.Errorf("stress test: %w", err)
				}
				ms, err := parseFloats(sensitivity)
				if err != nil {
					return err
				}
				pts, err := eng.Sensitivity(snap, base, ms)
				if err != nil {
					return fmt.Errorf("stress test: %w", err)
				}
				report.PrintSensitivity(out, base.Name, pts)
				return nil
			}

			var results []*stress.Result
			switch {
			case cmd.Flags().Changed("multiplier"):
				if name == "" {
					name = "Custom"
				}
				s, err := stress.Custom(name, multiplier, industry, addOn)
				if err != nil {
					return fmt.Errorf("stress test: %w", err)
				}
				r, err := eng.Apply(snap, s)
				if err != nil {
					return fmt.Errorf("stress test: %w", err)
				}
				results = append(results, r)
			case len(scenarios) > 0:
				for _, key := range scenarios {
					r, err := eng.ApplyNamed(snap, key)
					if err != nil {
						return fmt.Errorf("stress test: %w", err)
					}
					results = append(results, r)
				}
			default:
				if results, err = eng.ApplyAll(snap); err != nil {
					return fmt.Errorf("stress test: %w", err)
				}
			}

			return report.Write(out, format, report.Full{AsOf: snap.TakenAt, Stress: results})
		},
	}

	cmd.Flags().StringSliceVar(&scenarios, "scenario", nil, "Catalog scenario key (repeatable; default all)")
	cmd.Flags().StringVar(&name, "name", "", "Name for a custom scenario")
	cmd.Flags().Float64Var(&multiplier, "multiplier", 0, "PD multiplier for a custom scenario")
	cmd.Flags().StringVar(&industry, "industry", "", "Restrict a custom scenario to one industry")
	cmd.Flags().Float64Var(&addOn, "add-on", 0, "Default-rate add-on for a custom scenario (0.03 = 3%)")
	cmd.Flags().StringVar(&sensitivity, "sensitivity", "", "Comma-separated PD multipliers to sweep")

	return cmd
}

func parseFloats(s string) ([]float64, error) {
	var out []float64
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, credit.InvalidInput("bad multiplier %q", p)
		}
		out = append(out, v)
	}
	return out, nil
}

func NewRegulatoryCmd(rc *config.RootConfig) *cobra.Command {
	var persist bool

	cmd := &cobra.Command{
		Use:   "regulatory",
		Short: "IFRS 9 provisions and Basel capital requirements",
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := rc.OutputFormat()
			if err != nil {
				return err
			}
			asOf, err := rc.AsOfDate()
			if err != nil {
				return err
			}
			st, err := rc.OpenStore()
			if err != nil {
				return err
			}
			defer st.Close()

			eng := regulatory.New(rc.Cfg, concentration.New(rc.Cfg, rc.Log), rc.Log)
			r, err := eng.Run(cmd.Context(), st, asOf, persist)
			if err != nil {
				return fmt.Errorf("regulatory: %w", err)
			}
			return report.Write(cmd.OutOrStdout(), format, report.Full{AsOf: asOf, Regulatory: r})
		},
	}

	cmd.Flags().BoolVar(&persist, "persist", false, "Append the computed provisions to the database")

	return cmd
}

func NewFullReportCmd(rc *config.RootConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "full-report",
		Short: "Run every engine against one snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := rc.OutputFormat()
			if err != nil {
				return err
			}
			asOf, err := rc.AsOfDate()
			if err != nil {
				return err
			}
			st, snap, err := load(cmd.Context(), rc)
			if err != nil {
				return err
			}
			defer st.Close()

			conc := concentration.New(rc.Cfg, rc.Log)
			f := report.Full{
				AsOf:          asOf,
				Summary:       analytics.New(rc.Cfg, rc.Log).Summarize(snap),
				Concentration: conc.Analyze(snap),
			}
			if f.Alerts, err = warning.New(rc.Cfg, rc.Log).Scan(snap, asOf); err != nil {
				return fmt.Errorf("early warning: %w", err)
			}
			if f.Stress, err = stress.New(rc.Cfg, rc.Log).ApplyAll(snap); err != nil {
				return fmt.Errorf("stress test: %w", err)
			}
			if f.Regulatory, err = regulatory.New(rc.Cfg, conc, rc.Log).Compute(snap, asOf); err != nil {
				return fmt.Errorf("regulatory: %w", err)
			}

			return report.Write(cmd.OutOrStdout(), format, f)
		},
	}

	return cmd
}

// load opens the store and reads one snapshot, dated --as-of when given.
// The caller closes the store.
func load(ctx context.Context, rc *config.RootConfig) (*store.SQLite, *credit.Snapshot, error) {
	st, err := rc.OpenStore()
	if err != nil {
		return nil, nil, err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	snap, err := st.Snapshot(ctx)
	if err != nil {
		_ = st.Close()
		return nil, nil, fmt.Errorf("load snapshot: %w", err)
	}
	if rc.AsOf != "" {
		asOf, err := rc.AsOfDate()
		if err == nil {
			err = credit.CheckAsOf(asOf, snap.TakenAt)
		}
		if err != nil {
			_ = st.Close()
			return nil, nil, err
		}
		snap.TakenAt = asOf
	}
	return st, snap, nil
}
