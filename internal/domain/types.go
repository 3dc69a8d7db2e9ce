package domain

import (
	"fmt"
	"time"
)

// IntegrityReport is the outcome of a store's self check
type IntegrityReport struct {
	IsValid       bool      `json:"isValid"`
	Errors        []string  `json:"errors"`
	Warnings      []string  `json:"warnings"`
	ContractCount int       `json:"contractCount"`
	LastValidated time.Time `json:"lastValidated"`
}

// NewIntegrityReport creates an empty, valid report
func NewIntegrityReport(now time.Time) *IntegrityReport {
	return &IntegrityReport{
		IsValid:       true,
		Errors:        []string{},
		Warnings:      []string{},
		LastValidated: now,
	}
}

// AddError records an error and marks the report invalid
func (r *IntegrityReport) AddError(format string, args ...any) {
	r.Errors = append(r.Errors, sprintf(format, args...))
	r.IsValid = false
}

// AddWarning records a non-fatal finding
func (r *IntegrityReport) AddWarning(format string, args ...any) {
	r.Warnings = append(r.Warnings, sprintf(format, args...))
}

// Merge folds another report in, prefixing its findings
func (r *IntegrityReport) Merge(prefix string, other *IntegrityReport) {
	if other == nil {
		return
	}
	for _, e := range other.Errors {
		r.AddError("%s%s", prefix, e)
	}
	for _, w := range other.Warnings {
		r.AddWarning("%s%s", prefix, w)
	}
	r.ContractCount += other.ContractCount
}

// StoreMetrics is a point-in-time view of a store's performance. Latencies
// are mean milliseconds; CacheHitRate is nil for stores without a cache.
type StoreMetrics struct {
	ReadLatency  float64  `json:"readLatency"`
	WriteLatency float64  `json:"writeLatency"`
	QueryLatency float64  `json:"queryLatency"`
	ErrorRate    float64  `json:"errorRate"`
	CacheHitRate *float64 `json:"cacheHitRate,omitempty"`
}

func sprintf(format string, args ...any) string {
	if len(args) == 0 {
		return format
	}
	return fmt.Sprintf(format, args...)
}
