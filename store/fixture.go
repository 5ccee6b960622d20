package store

import (
	"fmt"
	"os"

	"github.com/rustyeddy/creditrisk/credit"
	"gopkg.in/yaml.v3"
)

// Fixture is the on-disk form of a snapshot, used by `db seed`. JSON files
// load too since YAML is a superset.
type Fixture struct {
	Customers     []credit.Customer          `yaml:"customers"`
	Contracts     []credit.Contract          `yaml:"contracts"`
	Payments      []credit.Payment           `yaml:"payments"`
	Defaults      []credit.DefaultEvent      `yaml:"default_events"`
	Indicators    []credit.EconomicIndicator `yaml:"economic_indicators"`
	Limits        []credit.RiskLimit         `yaml:"risk_limits"`
	RatingChanges []credit.RatingChange      `yaml:"rating_changes"`
	Provisions    []credit.Provision         `yaml:"provisions"`
}

// LoadFixture reads a fixture file into a snapshot.
func LoadFixture(path string) (*credit.Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture: %w", err)
	}

	var f Fixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}

	return &credit.Snapshot{
		Customers:     f.Customers,
		Contracts:     f.Contracts,
		Payments:      f.Payments,
		Defaults:      f.Defaults,
		Indicators:    f.Indicators,
		Limits:        f.Limits,
		RatingChanges: f.RatingChanges,
		Provisions:    f.Provisions,
	}, nil
}
