// Package security implements the content-safety gate that every element
// passes through before it is persisted locally or transmitted to the remote.
// The pipeline normalizes text, collects findings for suspicious-but-legal
// content, and hard-rejects only a small set of critical patterns.
package security

import (
	"fmt"

	"github.com/hpungsan/atelier/internal/errors"
)

// Severity ranks a finding.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Finding codes form a stable taxonomy; downstream reporting keys off these.
const (
	FindingUnicodeNormalized = "UNICODE_NORMALIZED"
	FindingBidiOverride      = "UNICODE_BIDI_OVERRIDE"
	FindingZeroWidth         = "UNICODE_ZERO_WIDTH"
	FindingMixedScript       = "UNICODE_MIXED_SCRIPT"
	FindingYAMLBomb          = "YAML_EXPANSION_BOMB"
	FindingShellInjection    = "SHELL_INJECTION"
	FindingShellCodeExample  = "SHELL_CODE_EXAMPLE"
)

// Finding is one flagged issue from the pipeline.
type Finding struct {
	Severity   Severity `json:"severity"`
	Code       string   `json:"code"`
	ElementRef string   `json:"element_ref,omitempty"`
	Detail     string   `json:"detail"`
}

// Context identifies what is being validated and why, for findings and the
// audit trail.
type Context struct {
	ElementRef string
	Operation  string
}

// Result is the outcome of a successful (non-rejected) validation pass.
type Result struct {
	NormalizedText string
	Findings       []Finding
}

// ShellPolicy controls how destructive shell patterns outside code fences are
// treated. The exact tolerance is a product knob, so it stays configurable.
type ShellPolicy string

const (
	ShellPolicyFlag   ShellPolicy = "flag"
	ShellPolicyReject ShellPolicy = "reject"
)

// Options configures a Pipeline.
type Options struct {
	// ExpansionLimit bounds YAML anchor/alias expansion as a multiple of the
	// raw byte size. Zero means DefaultExpansionLimit.
	ExpansionLimit int

	// ShellPolicy selects flag-vs-reject for destructive shell patterns.
	// Empty means ShellPolicyFlag.
	ShellPolicy ShellPolicy

	// Auditor receives one event per security-relevant decision. Nil disables
	// auditing (tests only; production always wires one).
	Auditor *Auditor
}

// DefaultExpansionLimit is the billion-laughs guard bound: content whose
// estimated expansion exceeds 1000x its raw size is rejected before parsing.
const DefaultExpansionLimit = 1000

// Pipeline screens element text. Safe for concurrent use.
type Pipeline struct {
	expansionLimit int
	shellPolicy    ShellPolicy
	auditor        *Auditor
}

// New creates a Pipeline with the given options.
func New(opts Options) *Pipeline {
	p := &Pipeline{
		expansionLimit: opts.ExpansionLimit,
		shellPolicy:    opts.ShellPolicy,
		auditor:        opts.Auditor,
	}
	if p.expansionLimit <= 0 {
		p.expansionLimit = DefaultExpansionLimit
	}
	if p.shellPolicy == "" {
		p.shellPolicy = ShellPolicyFlag
	}
	return p
}

// Validate normalizes text and screens it. Merely suspicious input produces
// findings, never an error. Only critical patterns (YAML expansion beyond
// the bound, or destructive shell execution under the reject policy) return
// a SECURITY_REJECTED error. A rejection is fatal for this element only;
// batch callers record it and continue.
func (p *Pipeline) Validate(text string, ctx Context) (*Result, error) {
	normalized, unicodeFindings := normalizeUnicode(text, ctx.ElementRef)

	findings := unicodeFindings
	for _, f := range findings {
		p.audit(ctx, f)
	}

	if ratio, exceeded := yamlExpansionRatio(normalized, p.expansionLimit); exceeded {
		f := Finding{
			Severity:   SeverityCritical,
			Code:       FindingYAMLBomb,
			ElementRef: ctx.ElementRef,
			Detail:     fmt.Sprintf("anchor/alias expansion ratio %d exceeds limit %d", ratio, p.expansionLimit),
		}
		p.audit(ctx, f)
		return nil, errors.NewSecurityRejected(ctx.ElementRef, f.Code, f.Detail)
	}

	shellFindings := scanShellPatterns(normalized, ctx.ElementRef)
	for _, f := range shellFindings {
		p.audit(ctx, f)
		if f.Severity == SeverityCritical && p.shellPolicy == ShellPolicyReject {
			return nil, errors.NewSecurityRejected(ctx.ElementRef, f.Code, f.Detail)
		}
	}
	findings = append(findings, shellFindings...)

	return &Result{NormalizedText: normalized, Findings: findings}, nil
}

// audit forwards a finding to the audit trail; auditing failure never blocks
// the primary operation.
func (p *Pipeline) audit(ctx Context, f Finding) {
	if p.auditor == nil {
		return
	}
	p.auditor.Record(Event{
		Severity:   string(f.Severity),
		Operation:  ctx.Operation,
		ElementRef: ctx.ElementRef,
		Code:       f.Code,
		Detail:     f.Detail,
	})
}
