package rules

import (
	"errors"
	"regexp"
	"sort"
	"strings"
)

// ErrInstructionOverride is returned for descriptions that try to steer the
// model away from drafting rules
var ErrInstructionOverride = errors.New("description tries to override the assistant instructions")

// Finding is one suspicious or sensitive span of a description
type Finding struct {
	Kind  string
	Start int
	End   int
}

type pattern struct {
	kind string
	re   *regexp.Regexp
}

var overridePatterns = []pattern{
	{"instruction_override", regexp.MustCompile(`(?i)(ignore|disregard|forget|override)\s+(all\s+|any\s+)?(the\s+)?(previous|prior|above|system|earlier)\s+(instructions?|prompts?|rules\s+you\s+were\s+given)`)},
	{"prompt_leak", regexp.MustCompile(`(?i)(show|reveal|print|repeat|what\s+(is|are))\s+(me\s+)?(your|the)\s+(system|hidden|original|initial)\s+(prompt|instructions?)`)},
	{"role_manipulation", regexp.MustCompile(`(?i)(from\s+now\s+on,?\s+you\s+(are|will)|pretend\s+to\s+be|you\s+are\s+now\s+(a|an|in))`)},
	{"role_manipulation", regexp.MustCompile(`(?i)\b(DAN|developer|jailbreak|unrestricted|god)\s+mode\b`)},
	{"delimiter", regexp.MustCompile(`(?i)(\[/?(SYSTEM|ASSISTANT)\]|<\|(system|assistant|im_start|im_end)\|>|###\s*(SYSTEM|INSTRUCTION))`)},
}

var sensitivePatterns = []pattern{
	{"secret", regexp.MustCompile(`\beyJ[A-Za-z0-9_\-]+\.eyJ[A-Za-z0-9_\-]+\.[A-Za-z0-9_\-]+`)},
	{"secret", regexp.MustCompile(`\b(sk-[A-Za-z0-9_\-]{20,}|AKIA[0-9A-Z]{16}|AIza[0-9A-Za-z\-_]{35}|ghp_[A-Za-z0-9]{36,})\b`)},
	{"secret", regexp.MustCompile(`(?i)\b(password|passwd|api[_\-]?key|token)\s*[:=]\s*\S{8,}`)},
	{"email", regexp.MustCompile(`\b[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}\b`)},
	{"phone", regexp.MustCompile(`\+[1-9][0-9]{7,14}\b|(?:\([0-9]{3}\)\s?|\b[0-9]{3}[-.\s])[0-9]{3}[-.\s][0-9]{4}\b`)},
	{"card_number", regexp.MustCompile(`\b(?:[0-9][ -]?){12,18}[0-9]\b`)},
	{"ip_address", regexp.MustCompile(`\b(?:(?:25[0-5]|2[0-4][0-9]|1?[0-9]?[0-9])\.){3}(?:25[0-5]|2[0-4][0-9]|1?[0-9]?[0-9])\b`)},
}

// screenDescription rejects descriptions that try to redirect the model.
// Credentials, contact details and card numbers are replaced with
// placeholders so they never reach the provider.
func screenDescription(description string) (string, []Finding, error) {
	for _, p := range overridePatterns {
		if loc := p.re.FindStringIndex(description); loc != nil {
			return "", []Finding{{Kind: p.kind, Start: loc[0], End: loc[1]}}, ErrInstructionOverride
		}
	}

	var findings []Finding
	for _, p := range sensitivePatterns {
		for _, loc := range p.re.FindAllStringIndex(description, -1) {
			if p.kind == "card_number" && !luhnValid(description[loc[0]:loc[1]]) {
				continue
			}
			findings = append(findings, Finding{Kind: p.kind, Start: loc[0], End: loc[1]})
		}
	}
	if len(findings) == 0 {
		return description, nil, nil
	}

	return redact(description, findings), findings, nil
}

// redact replaces each finding with [KIND]. Overlapping findings merge into
// the label of the one starting first, covering the union of their spans.
func redact(s string, findings []Finding) string {
	sorted := append([]Finding(nil), findings...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Start != sorted[j].Start {
			return sorted[i].Start < sorted[j].Start
		}
		return sorted[i].End > sorted[j].End
	})

	var b strings.Builder
	pos := 0
	for _, f := range sorted {
		if f.Start < pos {
			pos = max(pos, f.End)
			continue
		}
		b.WriteString(s[pos:f.Start])
		b.WriteString("[" + strings.ToUpper(f.Kind) + "]")
		pos = f.End
	}
	b.WriteString(s[pos:])
	return b.String()
}

func luhnValid(s string) bool {
	var digits []int
	for _, r := range s {
		if r >= '0' && r <= '9' {
			digits = append(digits, int(r-'0'))
		}
	}
	if len(digits) < 13 || len(digits) > 19 {
		return false
	}

	sum := 0
	double := false
	for i := len(digits) - 1; i >= 0; i-- {
		d := digits[i]
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}
