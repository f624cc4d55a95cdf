package policy

import (
	"context"
	"fmt"
	"time"

	"github.com/open-verix/timeproof/internal/evidence"
)

// Engine evaluates policies against evidence records.
type Engine struct {
	config *Config
	cel    *CELEvaluator
}

// NewEngine creates a new policy engine with the given configuration.
// CEL expressions are compiled up front when custom rules are enabled.
func NewEngine(config *Config) (*Engine, error) {
	if config == nil {
		config = DefaultConfig()
	}

	e := &Engine{config: config}
	if config.Custom != nil && config.Custom.CELEnabled {
		ev, err := NewCELEvaluator(config.Custom.CELExpressions)
		if err != nil {
			return nil, err
		}
		e.cel = ev
	}
	return e, nil
}

// Evaluate evaluates all policies against the provided record.
// A record that breaks policy is reported through Result, not as an error.
func (e *Engine) Evaluate(ctx context.Context, rec *evidence.Record) (*Result, error) {
	if rec == nil {
		return nil, fmt.Errorf("record is required for policy evaluation")
	}

	result := &Result{
		Passed:     true,
		Violations: []Violation{},
		Warnings:   []Warning{},
	}

	if e.config.Integrity != nil {
		violations, warnings := e.evaluateIntegrity(rec)
		result.add(violations, warnings)
	}

	if e.config.Time != nil {
		violations, warnings := e.evaluateTime(rec)
		result.add(violations, warnings)
	}

	if e.config.Quotes != nil {
		violations, warnings := e.evaluateQuotes(rec)
		result.add(violations, warnings)
	}

	if e.config.Publish != nil {
		violations, warnings := e.evaluatePublish(rec)
		result.add(violations, warnings)
	}

	if e.cel != nil {
		violations, err := e.evaluateCustom(ctx, rec)
		if err != nil {
			return nil, err
		}
		result.add(violations, nil)
	}

	// Set overall pass/fail
	if len(result.Violations) > 0 {
		result.Passed = false
	}

	return result, nil
}

func (e *Engine) evaluateIntegrity(rec *evidence.Record) ([]Violation, []Warning) {
	var violations []Violation

	if e.config.Integrity.RequireCopy && rec.CopiedPath == nil {
		violations = append(violations, Violation{
			Type:     ViolationTypeIntegrity,
			Severity: SeverityHigh,
			Message:  "Artifact was not copied into the package",
		})
	}

	if e.config.Integrity.RequireIntact && !rec.Verification.Intact() {
		msg := "Packaged copy does not match the original digest"
		if rec.Verification.Error != nil {
			msg = "Packaged copy could not be re-verified: " + *rec.Verification.Error
		}
		violations = append(violations, Violation{
			Type:     ViolationTypeIntegrity,
			Severity: SeverityHigh,
			Message:  msg,
			Details: map[string]any{
				"expected": rec.Verification.Expected,
			},
		})
	}

	return violations, nil
}

func (e *Engine) evaluateTime(rec *evidence.Record) ([]Violation, []Warning) {
	var violations []Violation
	var warnings []Warning

	if !rec.Time.OK() {
		if e.config.Time.Required {
			msg := "No network time attestation"
			if rec.Time.Error != nil {
				msg += ": " + *rec.Time.Error
			}
			violations = append(violations, Violation{
				Type:     ViolationTypeTime,
				Severity: SeverityHigh,
				Message:  msg,
			})
		}
		return violations, warnings
	}

	if e.config.Time.MaxSkew <= 0 {
		return violations, warnings
	}

	network, err := rec.Time.Time()
	if err != nil {
		warnings = append(warnings, Warning{
			Type:    WarningTypeTime,
			Message: fmt.Sprintf("Network instant is unparseable: %v", err),
		})
		return violations, warnings
	}

	skew := rec.CreatedAt.Sub(network)
	if skew < 0 {
		skew = -skew
	}
	if skew > e.config.Time.MaxSkew {
		warnings = append(warnings, Warning{
			Type:    WarningTypeTime,
			Message: fmt.Sprintf("Local clock differs from network time by %s (limit %s)", skew.Round(time.Second), e.config.Time.MaxSkew),
			Details: map[string]any{
				"skew_seconds": int64(skew / time.Second),
				"source":       deref(rec.Time.Source),
			},
		})
	}

	return violations, warnings
}

func (e *Engine) evaluateQuotes(rec *evidence.Record) ([]Violation, []Warning) {
	var violations []Violation
	var warnings []Warning

	ok := 0
	for _, q := range rec.Quotes {
		if q.OK() {
			ok++
			continue
		}
		warnings = append(warnings, Warning{
			Type:    WarningTypeQuote,
			Message: fmt.Sprintf("Quote unavailable for %s", q.Symbol),
			Subject: q.Symbol,
		})
	}

	if ok < e.config.Quotes.MinSuccessful {
		violations = append(violations, Violation{
			Type:     ViolationTypeQuote,
			Severity: SeverityMedium,
			Message:  fmt.Sprintf("Successful quotes below minimum: %d < %d", ok, e.config.Quotes.MinSuccessful),
			Details: map[string]any{
				"count": ok,
				"limit": e.config.Quotes.MinSuccessful,
			},
		})
	}

	return violations, warnings
}

func (e *Engine) evaluatePublish(rec *evidence.Record) ([]Violation, []Warning) {
	var violations []Violation
	var warnings []Warning

	ok := 0
	for _, c := range rec.PublishChecks {
		if c.OK() {
			ok++
			continue
		}
		if e.config.Publish.WarnOnFailure {
			warnings = append(warnings, Warning{
				Type:    WarningTypePublish,
				Message: fmt.Sprintf("Publication URL could not be probed: %s", deref(c.Error)),
				Subject: c.URL,
			})
		}
	}

	if ok < e.config.Publish.MinSuccessful {
		violations = append(violations, Violation{
			Type:     ViolationTypePublish,
			Severity: SeverityMedium,
			Message:  fmt.Sprintf("Answered publication URLs below minimum: %d < %d", ok, e.config.Publish.MinSuccessful),
			Details: map[string]any{
				"count": ok,
				"limit": e.config.Publish.MinSuccessful,
			},
		})
	}

	return violations, warnings
}

func (e *Engine) evaluateCustom(ctx context.Context, rec *evidence.Record) ([]Violation, error) {
	input, err := RecordInput(rec)
	if err != nil {
		return nil, err
	}

	results, err := e.cel.Evaluate(ctx, input)
	if err != nil {
		return nil, err
	}

	var violations []Violation
	for _, r := range results {
		if r.Passed {
			continue
		}
		msg := r.Message
		if msg == "" {
			msg = fmt.Sprintf("Custom rule '%s' failed", r.Name)
		}
		violations = append(violations, Violation{
			Type:     ViolationTypeCustom,
			Severity: SeverityMedium,
			Message:  msg,
			Subject:  r.Name,
		})
	}
	return violations, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Result represents the outcome of policy evaluation.
type Result struct {
	Passed     bool        `json:"passed"`
	Violations []Violation `json:"violations"`
	Warnings   []Warning   `json:"warnings"`
}

func (r *Result) add(violations []Violation, warnings []Warning) {
	r.Violations = append(r.Violations, violations...)
	r.Warnings = append(r.Warnings, warnings...)
}

// Violation represents a policy violation.
type Violation struct {
	Type     ViolationType  `json:"type"`
	Severity Severity       `json:"severity"`
	Message  string         `json:"message"`
	Subject  string         `json:"subject,omitempty"`
	Details  map[string]any `json:"details,omitempty"`
}

// Warning represents a policy warning (non-blocking).
type Warning struct {
	Type    WarningType    `json:"type"`
	Message string         `json:"message"`
	Subject string         `json:"subject,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// ViolationType represents the type of policy violation.
type ViolationType string

const (
	ViolationTypeIntegrity ViolationType = "integrity"
	ViolationTypeTime      ViolationType = "time"
	ViolationTypeQuote     ViolationType = "quote"
	ViolationTypePublish   ViolationType = "publish"
	ViolationTypeCustom    ViolationType = "custom"
)

// WarningType represents the type of policy warning.
type WarningType string

const (
	WarningTypeTime    WarningType = "time"
	WarningTypeQuote   WarningType = "quote"
	WarningTypePublish WarningType = "publish"
	WarningTypeCustom  WarningType = "custom"
)

// Severity represents the severity of a violation.
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)
