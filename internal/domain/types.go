// Package domain contains the core entities of the pediatric febrile severity
// dashboard: patient inputs, prediction results, stored evaluations and the
// statistics derived from them.
package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Severity is the predicted outcome class of a febrile episode.
// The numeric value is the code exchanged with the model backend.
type Severity int

const (
	SeverityLeve     Severity = 0
	SeverityModerada Severity = 1
	SeveritySevera   Severity = 2
)

// SeverityAll is the wildcard label used by history filters.
const SeverityAll = "Todas"

var severityLabels = [...]string{"Leve", "Moderada", "Severa"}

// Common errors
var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidSeverity = errors.New("invalid severity")
)

// Severities returns the three classes in declared order.
func Severities() []Severity {
	return []Severity{SeverityLeve, SeverityModerada, SeveritySevera}
}

// IsValid reports whether the severity is one of the three known classes.
func (s Severity) IsValid() bool {
	return s >= SeverityLeve && s <= SeveritySevera
}

// Label returns the Spanish label shown to clinicians.
func (s Severity) Label() string {
	if !s.IsValid() {
		return fmt.Sprintf("Severity(%d)", int(s))
	}
	return severityLabels[s]
}

// Code returns the numeric code.
func (s Severity) Code() int {
	return int(s)
}

// String implements fmt.Stringer.
func (s Severity) String() string {
	return s.Label()
}

// Key returns the lowercase key used in probability maps.
func (s Severity) Key() string {
	return strings.ToLower(s.Label())
}

// ParseSeverity parses a label such as "Moderada". Matching is case-insensitive.
func ParseSeverity(label string) (Severity, error) {
	for i, l := range severityLabels {
		if strings.EqualFold(strings.TrimSpace(label), l) {
			return Severity(i), nil
		}
	}
	return SeverityLeve, fmt.Errorf("%w: %q", ErrInvalidSeverity, label)
}

// SeverityFromCode converts a backend code into a Severity.
func SeverityFromCode(code int) (Severity, error) {
	s := Severity(code)
	if !s.IsValid() {
		return SeverityLeve, fmt.Errorf("%w: code %d", ErrInvalidSeverity, code)
	}
	return s, nil
}
