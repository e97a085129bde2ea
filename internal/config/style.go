package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Style holds the branding applied to every generated report. It is loaded
// once at startup and passed by value into each generator constructor, so
// there is no process-wide mutable styling state.
type Style struct {
	CompanyName  string `yaml:"company_name"`
	FooterNote   string `yaml:"footer_note"`
	HeaderColor  RGB    `yaml:"header_color"`
	AccentColor  RGB    `yaml:"accent_color"`
	StripeColor  RGB    `yaml:"stripe_color"`
	CurrencyCode string `yaml:"currency_code"`
}

type RGB struct {
	R int `yaml:"r"`
	G int `yaml:"g"`
	B int `yaml:"b"`
}

// Hex returns the color as an RRGGBB string for formats that want hex.
func (c RGB) Hex() string {
	return fmt.Sprintf("%02X%02X%02X", c.R, c.G, c.B)
}

// DefaultStyle is used when no style file is configured.
func DefaultStyle() Style {
	return Style{
		CompanyName:  "FarmLedger",
		FooterNote:   "Generated by FarmLedger",
		HeaderColor:  RGB{R: 46, G: 92, B: 57},
		AccentColor:  RGB{R: 240, G: 244, B: 240},
		StripeColor:  RGB{R: 247, G: 249, B: 247},
		CurrencyCode: "USD",
	}
}

// LoadStyle reads a YAML style file. An empty path returns the defaults;
// missing keys keep their default values.
func LoadStyle(path string) (Style, error) {
	style := DefaultStyle()
	if path == "" {
		return style, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return style, fmt.Errorf("read style file: %w", err)
	}
	if err := yaml.Unmarshal(data, &style); err != nil {
		return style, fmt.Errorf("parse style file: %w", err)
	}
	return style, nil
}
