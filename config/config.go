package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rustyeddy/creditrisk/credit"
	"gopkg.in/yaml.v3"
)

// Config is the complete engine configuration. It is built once per process
// and handed to engine constructors; engines never modify it.
type Config struct {
	Data          DataConfig          `json:"data" yaml:"data"`
	Log           LogConfig           `json:"log" yaml:"log"`
	Ratings       RatingsConfig       `json:"ratings" yaml:"ratings"`
	Concentration ConcentrationConfig `json:"concentration" yaml:"concentration"`
	Limits        LimitsConfig        `json:"limits" yaml:"limits"`
	EarlyWarning  EarlyWarningConfig  `json:"early_warning" yaml:"early_warning"`
	IFRS9         IFRS9Config         `json:"ifrs9" yaml:"ifrs9"`
	Capital       CapitalConfig       `json:"capital" yaml:"capital"`
	Stress        StressConfig        `json:"stress" yaml:"stress"`
}

const (
	ModeDemo = "demo"
	ModeReal = "real"
)

// DataConfig selects the database. Path, when set, wins over the mode.
type DataConfig struct {
	Mode   string `json:"mode" yaml:"mode"`
	DemoDB string `json:"demo_db" yaml:"demo_db"`
	RealDB string `json:"real_db" yaml:"real_db"`
	Path   string `json:"path,omitempty" yaml:"path,omitempty"`
}

// DBPath resolves the database file for the configured mode.
func (d DataConfig) DBPath() string {
	if d.Path != "" {
		return d.Path
	}
	if d.Mode == ModeReal {
		return d.RealDB
	}
	return d.DemoDB
}

type LogConfig struct {
	Level  string `json:"level" yaml:"level"`
	Pretty bool   `json:"pretty" yaml:"pretty"`
}

// RatingsConfig maps grades to a static 12-month PD and a standardized risk weight.
type RatingsConfig struct {
	PD         map[credit.Grade]float64 `json:"pd" yaml:"pd"`
	RiskWeight map[credit.Grade]float64 `json:"risk_weight" yaml:"risk_weight"`
}

// ConcentrationConfig holds ceilings in percent of total active exposure.
type ConcentrationConfig struct {
	SingleCustomerMaxPct       float64 `json:"single_customer_max_pct" yaml:"single_customer_max_pct"`
	IndustryMaxPct             float64 `json:"industry_max_pct" yaml:"industry_max_pct"`
	RegionMaxPct               float64 `json:"region_max_pct" yaml:"region_max_pct"`
	ProductMaxPct              float64 `json:"product_max_pct" yaml:"product_max_pct"`
	TopN                       int     `json:"top_n" yaml:"top_n"`
	LargeExposureReportingPct  float64 `json:"large_exposure_reporting_pct" yaml:"large_exposure_reporting_pct"`
	LargeExposureRegulatoryPct float64 `json:"large_exposure_regulatory_pct" yaml:"large_exposure_regulatory_pct"`
}

// LimitsConfig is the fallback for limits that carry no thresholds of their own.
type LimitsConfig struct {
	WarningPct  float64 `json:"warning_pct" yaml:"warning_pct"`
	CriticalPct float64 `json:"critical_pct" yaml:"critical_pct"`
}

type EarlyWarningConfig struct {
	PaymentDelayDays    int `json:"payment_delay_days" yaml:"payment_delay_days"`
	CriticalDelayDays   int `json:"critical_delay_days" yaml:"critical_delay_days"`
	UrgentDelayDays     int `json:"urgent_delay_days" yaml:"urgent_delay_days"`
	DowngradeWindowDays int `json:"downgrade_window_days" yaml:"downgrade_window_days"`
	CompoundMinSignals  int `json:"compound_min_signals" yaml:"compound_min_signals"`

	// utilization as a fraction of the credit limit
	UtilizationThreshold float64 `json:"utilization_threshold" yaml:"utilization_threshold"`
	UtilizationWarning   float64 `json:"utilization_warning" yaml:"utilization_warning"`
	UtilizationCritical  float64 `json:"utilization_critical" yaml:"utilization_critical"`

	TrendMonths    int     `json:"trend_months" yaml:"trend_months"`
	TrendMinLate   int     `json:"trend_min_late" yaml:"trend_min_late"`
	TrendLateShare float64 `json:"trend_late_share" yaml:"trend_late_share"`

	ConcentrationWarnFraction float64 `json:"concentration_warn_fraction" yaml:"concentration_warn_fraction"`

	IndicatorWindowDays int     `json:"indicator_window_days" yaml:"indicator_window_days"`
	UnemploymentMax     float64 `json:"unemployment_max" yaml:"unemployment_max"`
	InsolvencyMax       float64 `json:"insolvency_max" yaml:"insolvency_max"`
	BusinessCycleMin    float64 `json:"business_cycle_min" yaml:"business_cycle_min"`
}

// IFRS9Config holds the days-past-due staging thresholds.
type IFRS9Config struct {
	Stage1MaxDPD int `json:"stage1_max_dpd" yaml:"stage1_max_dpd"`
	Stage2MaxDPD int `json:"stage2_max_dpd" yaml:"stage2_max_dpd"`
}

type CapitalConfig struct {
	CET1Ratio          float64 `json:"cet1_ratio" yaml:"cet1_ratio"`
	Tier1Ratio         float64 `json:"tier1_ratio" yaml:"tier1_ratio"`
	TotalRatio         float64 `json:"total_ratio" yaml:"total_ratio"`
	ConservationBuffer float64 `json:"conservation_buffer" yaml:"conservation_buffer"`
}

// Scenario is a PD shock, optionally limited to one industry.
type Scenario struct {
	Key              string  `json:"key" yaml:"key"`
	Name             string  `json:"name" yaml:"name"`
	PDMultiplier     float64 `json:"pd_multiplier" yaml:"pd_multiplier"`
	ScopeIndustry    string  `json:"scope_industry,omitempty" yaml:"scope_industry,omitempty"`
	DefaultRateAddOn float64 `json:"default_rate_add_on,omitempty" yaml:"default_rate_add_on,omitempty"`
}

type StressConfig struct {
	Scenarios []Scenario `json:"scenarios" yaml:"scenarios"`

	RWSensitivity   float64 `json:"rw_sensitivity" yaml:"rw_sensitivity"`
	RWMultiplierCap float64 `json:"rw_multiplier_cap" yaml:"rw_multiplier_cap"`
	Stage3PD        float64 `json:"stage3_pd" yaml:"stage3_pd"`
	Stage2PDFactor  float64 `json:"stage2_pd_factor" yaml:"stage2_pd_factor"`
	Stage2PDAddOn   float64 `json:"stage2_pd_add_on" yaml:"stage2_pd_add_on"`
}

// PDFor looks up the static PD for a grade.
func (c *Config) PDFor(g credit.Grade) (float64, error) {
	pd, ok := c.Ratings.PD[g]
	if !ok {
		return 0, fmt.Errorf("%w: no pd configured for %q", credit.ErrUnknownGrade, g)
	}
	return pd, nil
}

// RiskWeightFor looks up the standardized risk weight for a grade.
func (c *Config) RiskWeightFor(g credit.Grade) (float64, error) {
	rw, ok := c.Ratings.RiskWeight[g]
	if !ok {
		return 0, fmt.Errorf("%w: no risk weight configured for %q", credit.ErrUnknownGrade, g)
	}
	return rw, nil
}

// Scenario returns the catalog entry for key.
func (c *Config) Scenario(key string) (Scenario, error) {
	for _, s := range c.Stress.Scenarios {
		if s.Key == key {
			return s, nil
		}
	}
	return Scenario{}, fmt.Errorf("%w: %q", credit.ErrUnknownScenario, key)
}

// Load reads .env (if present), the optional config file, then applies
// CREDITRISK_* environment overrides and validates the result.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		var err error
		cfg, err = LoadFromFile(path)
		if err != nil {
			return nil, err
		}
	}

	cfg.Data.Mode = getEnv("CREDITRISK_MODE", cfg.Data.Mode)
	cfg.Data.Path = getEnv("CREDITRISK_DB", cfg.Data.Path)
	cfg.Log.Level = getEnv("CREDITRISK_LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Pretty = getEnvAsBool("CREDITRISK_LOG_PRETTY", cfg.Log.Pretty)
	cfg.Concentration.TopN = getEnvAsInt("CREDITRISK_TOP_N", cfg.Concentration.TopN)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile loads configuration from a file (YAML or JSON). Fields the
// file leaves out keep their defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()

	// Try YAML first, fall back to JSON
	if err := yaml.Unmarshal(data, cfg); err != nil {
		cfg = Default()
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return cfg, nil
}

// SaveToFile writes YAML for .yaml/.yml paths and indented JSON otherwise.
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", credit.ErrInvalidConfig, fmt.Sprintf(format, args...))
}

// Validate checks ranges and cross-field consistency.
func (c *Config) Validate() error {
	if c.Data.Mode != ModeDemo && c.Data.Mode != ModeReal {
		return invalid("data.mode must be 'demo' or 'real'")
	}
	if c.Data.DBPath() == "" {
		return invalid("data: no database path for mode %s", c.Data.Mode)
	}

	if len(c.Ratings.PD) == 0 {
		return invalid("ratings.pd is required")
	}
	for g, pd := range c.Ratings.PD {
		if !g.Valid() {
			return invalid("ratings.pd: unknown grade %q", g)
		}
		if pd < 0 || pd > 1 {
			return invalid("ratings.pd[%s] must be between 0 and 1", g)
		}
	}
	for g, rw := range c.Ratings.RiskWeight {
		if !g.Valid() {
			return invalid("ratings.risk_weight: unknown grade %q", g)
		}
		if rw < 0 {
			return invalid("ratings.risk_weight[%s] must not be negative", g)
		}
	}

	cc := c.Concentration
	for name, v := range map[string]float64{
		"single_customer_max_pct":       cc.SingleCustomerMaxPct,
		"industry_max_pct":              cc.IndustryMaxPct,
		"region_max_pct":                cc.RegionMaxPct,
		"product_max_pct":               cc.ProductMaxPct,
		"large_exposure_reporting_pct":  cc.LargeExposureReportingPct,
		"large_exposure_regulatory_pct": cc.LargeExposureRegulatoryPct,
	} {
		if v <= 0 || v > 100 {
			return invalid("concentration.%s must be in (0, 100]", name)
		}
	}
	if cc.TopN <= 0 {
		return invalid("concentration.top_n must be positive")
	}
	if cc.LargeExposureRegulatoryPct < cc.LargeExposureReportingPct {
		return invalid("concentration.large_exposure_regulatory_pct must be >= reporting pct")
	}

	if c.Limits.WarningPct <= 0 || c.Limits.CriticalPct < c.Limits.WarningPct {
		return invalid("limits: need 0 < warning_pct <= critical_pct")
	}

	ew := c.EarlyWarning
	if ew.PaymentDelayDays < 0 || ew.CriticalDelayDays < ew.PaymentDelayDays || ew.UrgentDelayDays < ew.CriticalDelayDays {
		return invalid("early_warning: delay days must be ordered payment <= critical <= urgent")
	}
	if ew.UtilizationThreshold <= 0 || ew.UtilizationWarning < ew.UtilizationThreshold || ew.UtilizationCritical < ew.UtilizationWarning {
		return invalid("early_warning: utilization thresholds must be ordered")
	}
	if ew.DowngradeWindowDays <= 0 || ew.IndicatorWindowDays <= 0 || ew.TrendMonths <= 0 {
		return invalid("early_warning: windows must be positive")
	}
	if ew.CompoundMinSignals < 2 {
		return invalid("early_warning.compound_min_signals must be at least 2")
	}
	if ew.ConcentrationWarnFraction <= 0 || ew.ConcentrationWarnFraction > 1 {
		return invalid("early_warning.concentration_warn_fraction must be in (0, 1]")
	}

	if c.IFRS9.Stage1MaxDPD < 0 || c.IFRS9.Stage2MaxDPD <= c.IFRS9.Stage1MaxDPD {
		return invalid("ifrs9: need 0 <= stage1_max_dpd < stage2_max_dpd")
	}

	cp := c.Capital
	if cp.CET1Ratio <= 0 || cp.Tier1Ratio < cp.CET1Ratio || cp.TotalRatio < cp.Tier1Ratio {
		return invalid("capital: ratios must be ordered cet1 <= tier1 <= total")
	}
	if cp.ConservationBuffer < 0 {
		return invalid("capital.conservation_buffer must not be negative")
	}

	seen := make(map[string]bool, len(c.Stress.Scenarios))
	for _, s := range c.Stress.Scenarios {
		if s.Key == "" {
			return invalid("stress.scenarios: key is required")
		}
		if seen[s.Key] {
			return invalid("stress.scenarios: duplicate key %q", s.Key)
		}
		seen[s.Key] = true
		if s.PDMultiplier <= 0 {
			return invalid("stress.scenarios[%s].pd_multiplier must be positive", s.Key)
		}
		if s.DefaultRateAddOn < 0 {
			return invalid("stress.scenarios[%s].default_rate_add_on must not be negative", s.Key)
		}
	}
	if c.Stress.RWMultiplierCap < 1 || c.Stress.RWSensitivity < 0 {
		return invalid("stress: rw_multiplier_cap must be >= 1 and rw_sensitivity >= 0")
	}
	if c.Stress.Stage3PD <= 0 || c.Stress.Stage3PD > 1 {
		return invalid("stress.stage3_pd must be in (0, 1]")
	}
	return nil
}

// Default returns the standard configuration.
func Default() *Config {
	return &Config{
		Data: DataConfig{
			Mode:   ModeDemo,
			DemoDB: "./data/demo.db",
			RealDB: "./data/credit.db",
		},
		Log: LogConfig{Level: "info", Pretty: true},
		Ratings: RatingsConfig{
			PD: map[credit.Grade]float64{
				credit.AAA: 0.0001,
				credit.AA:  0.0003,
				credit.A:   0.0012,
				credit.BBB: 0.0045,
				credit.BB:  0.02,
				credit.B:   0.09,
				credit.CCC: 0.28,
				credit.CC:  0.50,
				credit.C:   0.65,
				credit.D:   1.0,
			},
			RiskWeight: map[credit.Grade]float64{
				credit.AAA: 0.20,
				credit.AA:  0.20,
				credit.A:   0.50,
				credit.BBB: 1.00,
				credit.BB:  1.00,
				credit.B:   1.50,
				credit.CCC: 1.50,
				credit.CC:  1.50,
				credit.C:   1.50,
				credit.D:   1.50,
			},
		},
		Concentration: ConcentrationConfig{
			SingleCustomerMaxPct:       10,
			IndustryMaxPct:             30,
			RegionMaxPct:               40,
			ProductMaxPct:              50,
			TopN:                       10,
			LargeExposureReportingPct:  5,
			LargeExposureRegulatoryPct: 10,
		},
		Limits: LimitsConfig{
			WarningPct:  credit.DefaultWarningPct,
			CriticalPct: credit.DefaultCriticalPct,
		},
		EarlyWarning: EarlyWarningConfig{
			PaymentDelayDays:          30,
			CriticalDelayDays:         60,
			UrgentDelayDays:           90,
			DowngradeWindowDays:       90,
			CompoundMinSignals:        2,
			UtilizationThreshold:      0.80,
			UtilizationWarning:        0.95,
			UtilizationCritical:       1.00,
			TrendMonths:               6,
			TrendMinLate:              2,
			TrendLateShare:            0.30,
			ConcentrationWarnFraction: 0.80,
			IndicatorWindowDays:       90,
			UnemploymentMax:           7.0,
			InsolvencyMax:             0.015,
			BusinessCycleMin:          95,
		},
		IFRS9: IFRS9Config{Stage1MaxDPD: 30, Stage2MaxDPD: 90},
		Capital: CapitalConfig{
			CET1Ratio:          0.045,
			Tier1Ratio:         0.06,
			TotalRatio:         0.08,
			ConservationBuffer: 0.025,
		},
		Stress: StressConfig{
			Scenarios: []Scenario{
				{Key: "interest_rate_200bps", Name: "Interest rate +200bps", PDMultiplier: 1.3},
				{Key: "recession_mild", Name: "Mild recession", PDMultiplier: 1.5},
				{Key: "recession_severe", Name: "Severe recession", PDMultiplier: 2.5, DefaultRateAddOn: 0.03},
				{Key: "industry_auto", Name: "Auto industry crisis", PDMultiplier: 3.0, ScopeIndustry: "Automotive"},
				{Key: "industry_real_estate", Name: "Real estate crisis", PDMultiplier: 3.5, ScopeIndustry: "Real Estate"},
				{Key: "combined_severe", Name: "Combined stress", PDMultiplier: 3.0},
			},
			RWSensitivity:   0.3,
			RWMultiplierCap: 3,
			Stage3PD:        0.10,
			Stage2PDFactor:  2,
			Stage2PDAddOn:   0.02,
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
