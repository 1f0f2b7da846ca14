// Package models defines data structures for the harvester.
package models

import (
	"log/slog"
	"strings"
	"time"
)

// Defaults applied when a listing container lacks a field.
const (
	UnknownProductName = "Unknown Product"
	MissingPrice       = "0,00 €"
)

// Credential is the account used to log in to the storefront.
type Credential struct {
	Email    string
	Password string
}

// LogValue masks the credential so it never reaches logs in clear text.
func (c Credential) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("email", maskEmail(c.Email)),
		slog.String("password", "[redacted]"),
	)
}

func maskEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return "***"
	}
	return email[:1] + "***" + email[at:]
}

// LoginCandidate is a link suspected to lead to a login page.
type LoginCandidate struct {
	Text string
	URL  string
}

// InputField is one <input> of a form. Name and Type are nil when the
// attribute is absent.
type InputField struct {
	Name  *string
	Type  *string
	Value string
}

// NameValue returns the name attribute or "".
func (f InputField) NameValue() string {
	if f.Name == nil {
		return ""
	}
	return *f.Name
}

// TypeValue returns the type attribute or "".
func (f InputField) TypeValue() string {
	if f.Type == nil {
		return ""
	}
	return *f.Type
}

// FormDescriptor is the normalized shape of a <form>.
type FormDescriptor struct {
	Action string
	Method string // GET or POST
	Inputs []InputField
}

// ProductRecord is one product harvested from a listing page.
type ProductRecord struct {
	Name           string  `json:"name"`
	PricePerUnit   *string `json:"price_per_unit"`
	PricePerCarton string  `json:"price_per_carton"`
	UnitsPerCarton *string `json:"units_per_carton"`
	PackagingType  *string `json:"packaging_type"`
	DetailURL      *string `json:"detail_url"`
	Barcode        *string `json:"barcode"`
}

// Clone returns a deep copy of r.
func (r *ProductRecord) Clone() *ProductRecord {
	if r == nil {
		return nil
	}
	out := *r
	out.PricePerUnit = cloneString(r.PricePerUnit)
	out.UnitsPerCarton = cloneString(r.UnitsPerCarton)
	out.PackagingType = cloneString(r.PackagingType)
	out.DetailURL = cloneString(r.DetailURL)
	out.Barcode = cloneString(r.Barcode)
	return &out
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string {
	return &s
}

// Deref returns *s or "" when s is nil.
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// RunResult summarizes one pipeline run.
type RunResult struct {
	RunID                string
	StartTime            time.Time
	EndTime              time.Time
	LoginURL             string
	CatalogURL           string
	PageCount            int
	Products             []*ProductRecord
	BarcodesFound        int
	TranslationFallbacks int
	RequestCount         int
	ErrorCount           int
	ErrorsByType         map[string]int
	OutputFile           string
}
