package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// PortfolioConfig represents one portfolio entry in YAML.
type PortfolioConfig struct {
	ID                  string  `yaml:"id"`
	Name                string  `yaml:"name"`
	InitialCash         float64 `yaml:"initial_cash"`
	MaxPositions        int     `yaml:"max_positions"`
	MaxConcentrationPct float64 `yaml:"max_concentration_pct"`
	CashFraction        float64 `yaml:"cash_fraction"`
}

// PortfoliosFile represents the top-level YAML structure.
type PortfoliosFile struct {
	Portfolios []PortfolioConfig `yaml:"portfolios"`
}

// LoadPortfolios reads portfolio definitions from a YAML file.
func LoadPortfolios(path string) ([]PortfolioConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var file PortfoliosFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, err
	}

	for i, p := range file.Portfolios {
		if p.ID == "" {
			return nil, fmt.Errorf("portfolio %d: id is required", i)
		}
		if p.InitialCash <= 0 {
			return nil, fmt.Errorf("portfolio %s: initial_cash must be positive", p.ID)
		}
	}
	return file.Portfolios, nil
}

// DefaultPortfolios is used when no portfolios file exists.
func DefaultPortfolios() []PortfolioConfig {
	return []PortfolioConfig{{
		ID:                  "default",
		Name:                "Default Portfolio",
		InitialCash:         10000,
		MaxPositions:        100,
		MaxConcentrationPct: 0.20,
		CashFraction:        0.05,
	}}
}
