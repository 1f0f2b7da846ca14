package parser

import (
	"testing"

	"github.com/aluiziolira/go-scrape-catalog/models"
)

func TestValidateRecord(t *testing.T) {
	tests := []struct {
		name    string
		record  *models.ProductRecord
		wantErr bool
	}{
		{
			name:    "valid record",
			record:  &models.ProductRecord{Name: "Gobelet carton", PricePerCarton: "12.50"},
			wantErr: false,
		},
		{
			name:    "nil record",
			record:  nil,
			wantErr: true,
		},
		{
			name:    "missing name",
			record:  &models.ProductRecord{Name: "  ", PricePerCarton: "12.50"},
			wantErr: true,
		},
		{
			name:    "price on request",
			record:  &models.ProductRecord{Name: "Gobelet carton", PricePerCarton: ""},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRecord(tt.record)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateRecord() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNormalizePrice(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "comma decimal with euro",
			input:    "12,50 €",
			expected: "12.50",
		},
		{
			name:     "missing price sentinel",
			input:    models.MissingPrice,
			expected: "0.00",
		},
		{
			name:     "non breaking space and tax label",
			input:    "  8,90 € HT",
			expected: "8.90",
		},
		{
			name:     "already clean",
			input:    "25.99",
			expected: "25.99",
		},
		{
			name:     "empty string",
			input:    "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := NormalizePrice(tt.input)
			if result != tt.expected {
				t.Errorf("NormalizePrice(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestParsePricePerUnit(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
		found    bool
	}{
		{name: "comma with euro", input: "0,12 € / pcs - 24 pcs / carton", expected: "0.12", found: true},
		{name: "dot without euro", input: "Soit 1.05/pcs", expected: "1.05", found: true},
		{name: "integer price is not matched", input: "2 € / pcs", found: false},
		{name: "no unit price", input: "24 pcs / carton", found: false},
		{name: "empty", input: "", found: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParsePricePerUnit(tt.input)
			if ok != tt.found || got != tt.expected {
				t.Errorf("ParsePricePerUnit(%q) = (%q, %v), want (%q, %v)", tt.input, got, ok, tt.expected, tt.found)
			}
		})
	}
}

func TestParsePackaging(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		units     string
		packaging string
		found     bool
	}{
		{name: "carton", input: "24 pcs / carton", units: "24", packaging: "carton", found: true},
		{name: "case insensitive", input: "0,10 € / pcs - 100 PCS/Boite", units: "100", packaging: "Boite", found: true},
		{name: "paquet", input: "50pcs / paquet de 50", units: "50", packaging: "paquet", found: true},
		{name: "unknown packaging", input: "24 pcs / sac", found: false},
		{name: "no match", input: "Gobelet en carton recyclable", found: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			units, packaging, ok := ParsePackaging(tt.input)
			if ok != tt.found || units != tt.units || packaging != tt.packaging {
				t.Errorf("ParsePackaging(%q) = (%q, %q, %v), want (%q, %q, %v)",
					tt.input, units, packaging, ok, tt.units, tt.packaging, tt.found)
			}
		})
	}
}
