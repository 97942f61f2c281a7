// Package confirm implements the human confirmation gate. It derives the
// confirmation requirement from the pipeline risk level, issues single-use
// unpredictable codes, and compares the human's answer byte for byte after
// trimming surrounding whitespace. The gate renders and asks; it never
// mutates the filesystem.
package confirm

import (
	"crypto/rand"
	"fmt"
	"strings"

	"github.com/lyndonlyu/sweep/internal/risk"
)

// Kind is the confirmation strength required for a run.
type Kind string

const (
	AutoApprove   Kind = "auto_approve"
	SimpleConfirm Kind = "simple_confirm"
	CodedConfirm  Kind = "coded_confirm"
	ManualReview  Kind = "manual_review"
)

// Decision is the gate outcome.
type Decision string

const (
	Approved       Decision = "approved"
	Denied         Decision = "denied"
	Stopped        Decision = "stopped"
	ReviewRequired Decision = "review_required"
)

// Options tunes code generation and LOW-risk behavior.
type Options struct {
	AutoApproveLow  bool // LOW proceeds without a prompt
	CodeLength      int  // MEDIUM code length
	HighCodeGroups  int  // groups in a HIGH composite code
	HighCodeGroupLn int
}

// DefaultOptions mirror the configuration defaults.
func DefaultOptions() Options {
	return Options{AutoApproveLow: true, CodeLength: 8, HighCodeGroups: 3, HighCodeGroupLn: 4}
}

// Requirement is what the human must supply before the run may proceed.
// Code is freshly generated per run and never reused.
type Requirement struct {
	Kind  Kind       `json:"kind"`
	Level risk.Level `json:"-"`
	Code  string     `json:"code,omitempty"`
}

// Expected returns the exact answer string that approves the run, or "" when
// no string can (auto-approve, manual review).
func (r Requirement) Expected() string {
	if r.Kind == CodedConfirm {
		return "CONFIRM: " + r.Code
	}
	return ""
}

// RequirementFor maps the pipeline risk level to a confirmation requirement.
// CRITICAL always yields ManualReview; no configuration reaches past it.
func RequirementFor(level risk.Level, opts Options) (Requirement, error) {
	switch level {
	case risk.LOW:
		if opts.AutoApproveLow {
			return Requirement{Kind: AutoApprove, Level: level}, nil
		}
		return Requirement{Kind: SimpleConfirm, Level: level}, nil
	case risk.MEDIUM:
		code, err := generateCode(opts.CodeLength)
		if err != nil {
			return Requirement{}, err
		}
		return Requirement{Kind: CodedConfirm, Level: level, Code: code}, nil
	case risk.HIGH:
		// HIGH codes are composite (XXXX-XXXX-XXXX) so a human cannot
		// mistake them for a MEDIUM code.
		code, err := generateGroupedCode(opts.HighCodeGroups, opts.HighCodeGroupLn)
		if err != nil {
			return Requirement{}, err
		}
		return Requirement{Kind: CodedConfirm, Level: level, Code: code}, nil
	default:
		return Requirement{Kind: ManualReview, Level: level}, nil
	}
}

// Request is what the gate sends over the human-response channel: the full
// rendered report plus the required answer format. No shared mutable state;
// the exchange is an explicit request/response pair.
type Request struct {
	Report string // rendered dependency + risk report
	Prompt string // e.g. `type "CONFIRM: A7K2M9QX" to proceed, anything else aborts`
}

// Response is the human's literal answer.
type Response struct {
	Answer string
}

// Responder is the synchronous human-response channel. Implementations block
// until an answer arrives; there is no timeout-based auto-proceed.
type Responder interface {
	Respond(req Request) (Response, error)
}

// Gate asks the responder and judges the answer.
type Gate struct {
	responder Responder
}

func NewGate(responder Responder) *Gate {
	return &Gate{responder: responder}
}

// Confirm blocks on the responder and returns the decision. Answers are
// judged per Judge: whitespace-trimmed, then byte-for-byte. Anything that does
// not match is Denied; the caller decides whether to re-invoke. The filesystem
// is untouched whatever the outcome.
func (g *Gate) Confirm(req Requirement, report string) (Decision, error) {
	switch req.Kind {
	case AutoApprove:
		return Approved, nil
	case ManualReview:
		return ReviewRequired, nil
	}

	resp, err := g.responder.Respond(Request{
		Report: report,
		Prompt: promptFor(req),
	})
	if err != nil {
		return Denied, fmt.Errorf("confirm: response channel: %w", err)
	}
	return Judge(req, resp.Answer), nil
}

// Judge compares the answer against the requirement. Leading and trailing
// whitespace is stripped first so a pasted code with a stray newline still
// counts; the remainder must match Expected byte for byte. Exported so the
// pipeline can audit the comparison outcome without re-asking.
func Judge(req Requirement, answer string) Decision {
	switch req.Kind {
	case SimpleConfirm:
		switch strings.ToLower(strings.TrimSpace(answer)) {
		case "y", "yes":
			return Approved
		case "stop":
			return Stopped
		default:
			return Denied
		}
	case CodedConfirm:
		trimmed := strings.TrimSpace(answer)
		if trimmed == req.Expected() {
			return Approved
		}
		if strings.EqualFold(trimmed, "stop") {
			return Stopped
		}
		return Denied
	default:
		return Denied
	}
}

func promptFor(req Requirement) string {
	if req.Kind == SimpleConfirm {
		return "Proceed? (y/n, or 'stop' to abort): "
	}
	return fmt.Sprintf("Type %q to proceed, anything else aborts: ", req.Expected())
}

// codeAlphabet avoids ambiguous characters (0/O, 1/I/L) so codes survive
// being read aloud or retyped.
const codeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

// generateCode returns n characters from a cryptographically unpredictable
// source. Unbiased: bytes outside the largest multiple of the alphabet size
// are rejected and redrawn.
func generateCode(n int) (string, error) {
	if n <= 0 {
		n = 8
	}
	limit := byte(256 - 256%len(codeAlphabet))
	out := make([]byte, 0, n)
	buf := make([]byte, n*2)
	for len(out) < n {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("confirm: generate code: %w", err)
		}
		for _, b := range buf {
			if b >= limit {
				continue
			}
			out = append(out, codeAlphabet[int(b)%len(codeAlphabet)])
			if len(out) == n {
				break
			}
		}
	}
	return string(out), nil
}

func generateGroupedCode(groups, groupLen int) (string, error) {
	if groups <= 0 {
		groups = 3
	}
	if groupLen <= 0 {
		groupLen = 4
	}
	parts := make([]string, groups)
	for i := range parts {
		g, err := generateCode(groupLen)
		if err != nil {
			return "", err
		}
		parts[i] = g
	}
	return strings.Join(parts, "-"), nil
}
