// Package pipeline runs the translation stage, persists product records and
// drives a whole harvesting run.
package pipeline

import (
	"errors"
	"fmt"
	"sync"

	"github.com/aluiziolira/go-scrape-catalog/models"
)

// NamedWriter pairs a sink with the name used in its errors.
type NamedWriter struct {
	Name   string
	Writer OutputWriter
}

// MultiWriter fans every batch out to several sinks, e.g. a CSV file and the
// postgres table. Writes stop at the first failing sink; Close and Validate
// visit every sink and join their errors.
type MultiWriter struct {
	sinks []NamedWriter
	mu    sync.Mutex
}

// NewMultiWriter combines sinks in the order given.
func NewMultiWriter(sinks ...NamedWriter) (*MultiWriter, error) {
	if len(sinks) == 0 {
		return nil, errors.New("multi writer needs at least one sink")
	}
	for _, s := range sinks {
		if s.Writer == nil {
			return nil, fmt.Errorf("%s sink is nil", s.Name)
		}
	}
	return &MultiWriter{sinks: sinks}, nil
}

func (mw *MultiWriter) Write(records []*models.ProductRecord) error {
	mw.mu.Lock()
	defer mw.mu.Unlock()

	for _, s := range mw.sinks {
		if err := s.Writer.Write(records); err != nil {
			return fmt.Errorf("%s write failed: %w", s.Name, err)
		}
	}
	return nil
}

func (mw *MultiWriter) Close() error {
	mw.mu.Lock()
	defer mw.mu.Unlock()

	var errs []error
	for _, s := range mw.sinks {
		if err := s.Writer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s close failed: %w", s.Name, err))
		}
	}
	return errors.Join(errs...)
}

func (mw *MultiWriter) Validate() error {
	var errs []error
	for _, s := range mw.sinks {
		if err := s.Writer.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("%s validation failed: %w", s.Name, err))
		}
	}
	return errors.Join(errs...)
}

// Sinks returns the sink names in write order.
func (mw *MultiWriter) Sinks() []string {
	names := make([]string, len(mw.sinks))
	for i, s := range mw.sinks {
		names[i] = s.Name
	}
	return names
}
