// Package sanitize cleans inbound guest text before it reaches a language model.
package sanitize

import (
	"errors"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxRunes is the longest guest message accepted.
const MaxRunes = 4000

// ErrRejected is returned for input that must not be processed.
var ErrRejected = errors.New("sanitize: input rejected")

// ScanResult contains the result of a prompt injection scan.
type ScanResult struct {
	// Blocked is true if the message should NOT be sent to the model.
	Blocked bool
	// Score is a rough heuristic risk score (0.0 = safe, 1.0 = definitely injection).
	Score float64
	// Reasons lists the detection signals that fired.
	Reasons []string
}

type pattern struct {
	re     *regexp.Regexp
	reason string
	weight float64
}

// blockThreshold: messages scoring at or above this are rejected.
const blockThreshold = 0.7

var directInjectionPatterns = []pattern{
	{regexp.MustCompile(`(?i)ignore\s+(all\s+)?(previous|prior|above|earlier|your)\s+(instructions?|rules?|prompts?|guidelines?|directives?|programming)`), "direct_injection:ignore_instructions", 0.9},
	{regexp.MustCompile(`(?i)disregard\s+(all\s+)?(previous|prior|above|earlier|your)\s+(instructions?|rules?|prompts?|guidelines?|directives?)`), "direct_injection:disregard_instructions", 0.9},
	{regexp.MustCompile(`(?i)forget\s+(all\s+)?(previous|prior|above|earlier|your)\s+(instructions?|rules?|prompts?|guidelines?|directives?)`), "direct_injection:forget_instructions", 0.9},
	{regexp.MustCompile(`(?i)abaikan\s+(semua\s+)?(arahan|peraturan)`), "direct_injection:ignore_instructions_ms", 0.9},
	{regexp.MustCompile(`(?i)you\s+are\s+now\s+(a|an|my)\s+`), "direct_injection:role_reassignment", 0.7},
	{regexp.MustCompile(`(?i)new\s+role\s*:|new\s+instructions?\s*:|system\s*prompt\s*:|<<\s*sys(tem)?\s*>>`), "direct_injection:new_role", 0.9},
	{regexp.MustCompile(`(?i)override\s+(your\s+)?(system|instructions?|rules?|safety|guidelines?)`), "direct_injection:override", 0.8},
	{regexp.MustCompile(`(?i)act\s+as\s+(if\s+)?(you\s+are\s+|you're\s+)?(a\s+|an\s+)?(?:different|new|unrestricted|unfiltered|jailbroken)`), "direct_injection:act_as", 0.8},
	{regexp.MustCompile(`(?i)(pretend|imagine|suppose|assume)\s+(that\s+)?(you\s+)?(are|have|were|don'?t\s+have)\s+(no\s+)?(rules?|restrictions?|limits?|boundaries|guidelines?|filters?|safety)`), "direct_injection:pretend_no_rules", 0.9},
	{regexp.MustCompile(`(?i)bypass\s+(your\s+)?(safety|filters?|restrictions?|guidelines?|rules?|content\s+policy)`), "direct_injection:bypass", 0.8},
	{regexp.MustCompile(`(?i)jailbreak|DAN\s*mode|developer\s*mode|unrestricted\s*mode|god\s*mode`), "direct_injection:jailbreak_keyword", 0.9},
}

var exfiltrationPatterns = []pattern{
	{regexp.MustCompile(`(?i)(reveal|show|display|print|output|repeat|tell\s+me|what\s+(is|are))\s+(your\s+)?(system\s+prompt|instructions?|initial\s+prompt|hidden\s+prompt|system\s+message|original\s+prompt)`), "exfiltration:system_prompt", 0.8},
	{regexp.MustCompile(`(?i)(what|list|show|give|tell)\s+(me\s+)?(all\s+)?(the\s+)?other\s+guests?'?s?\s+(data|info|names?|numbers?|rooms?|details?|bookings?|reservations?)`), "exfiltration:guest_data", 0.7},
	{regexp.MustCompile(`(?i)(what|list|show|give|tell)\s+(me\s+)?(the\s+)?(all\s+)?(api|secret|token|password|credential|database|env|config)\b`), "exfiltration:credentials", 0.8},
	{regexp.MustCompile(`(?i)repeat\s+(everything|all|the\s+text)\s+(above|before|from\s+the\s+start|from\s+the\s+beginning)`), "exfiltration:repeat_above", 0.7},
}

var obfuscationPatterns = []pattern{
	{regexp.MustCompile(`(?i)base64\s*(encode|decode|:)|\\x[0-9a-fA-F]{2}`), "obfuscation:encoding", 0.5},
	{regexp.MustCompile(`!\[.*\]\(https?://`), "obfuscation:markdown_image", 0.4},
	{regexp.MustCompile(`(?i)<\s*(script|iframe|object|embed)\b`), "obfuscation:html_injection", 0.6},
}

var contextManipulationPatterns = []pattern{
	{regexp.MustCompile(`(?i)(end\s+of\s+)?(system|assistant)\s*(message|prompt|instructions?)\s*[\-=]{2,}`), "context_manipulation:fake_boundary", 0.8},
	{regexp.MustCompile(`(?i)\[/?INST\]|\[/?SYS\]|<\|im_start\|>|<\|im_end\|>|<\|system\|>|<\|user\|>|<\|assistant\|>`), "context_manipulation:special_tokens", 0.9},
	{regexp.MustCompile(`(?i)###\s*(system|instruction|human|assistant|user)\s*:`), "context_manipulation:role_markers", 0.7},
	{regexp.MustCompile(`(?i)</?\s*guest_message\s*>`), "context_manipulation:wrapper_tag", 0.7},
	{regexp.MustCompile(`(?i)the\s+real\s+(instructions?|task|prompt|conversation)\s+(is|starts?|begins?)`), "context_manipulation:real_instructions", 0.8},
}

var allPatterns []pattern

func init() {
	allPatterns = make([]pattern, 0, len(directInjectionPatterns)+len(exfiltrationPatterns)+len(obfuscationPatterns)+len(contextManipulationPatterns))
	allPatterns = append(allPatterns, directInjectionPatterns...)
	allPatterns = append(allPatterns, exfiltrationPatterns...)
	allPatterns = append(allPatterns, obfuscationPatterns...)
	allPatterns = append(allPatterns, contextManipulationPatterns...)
}

var (
	specialTokenRe = regexp.MustCompile(`(?i)\[/?INST\]|\[/?SYS\]|<\|im_start\|>|<\|im_end\|>|<\|system\|>|<\|user\|>|<\|assistant\|>`)
	roleMarkerRe   = regexp.MustCompile(`(?i)###\s*(system|instruction|human|assistant|user)\s*:`)
	wrapperTagRe   = regexp.MustCompile(`(?i)</?\s*guest_message\s*>`)
	htmlTagRe      = regexp.MustCompile(`(?i)<\s*/?\s*(script|img|iframe|object|embed|link|style|svg|form)\b[^>]*>`)
	mdImageRe      = regexp.MustCompile(`!\[.*?\]\(https?://[^)]+\)`)
)

// Scan analyzes guest text for prompt injection attempts.
func Scan(message string) ScanResult {
	if strings.TrimSpace(message) == "" {
		return ScanResult{}
	}

	var reasons []string
	maxWeight := 0.0
	for _, p := range allPatterns {
		if p.re.MatchString(message) {
			reasons = append(reasons, p.reason)
			if p.weight > maxWeight {
				maxWeight = p.weight
			}
		}
	}

	// Multiple signals compound: +0.1 per additional signal, capped at 1.0.
	score := maxWeight
	if len(reasons) > 1 {
		score = maxWeight + float64(len(reasons)-1)*0.1
		if score > 1.0 {
			score = 1.0
		}
	}

	return ScanResult{
		Blocked: score >= blockThreshold,
		Score:   score,
		Reasons: reasons,
	}
}

// Clean strips control characters, special-token and role markers, and
// injection-prone HTML from guest text. Newlines and tabs are kept.
func Clean(message string) string {
	cleaned := strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if r == '\r' {
			return -1
		}
		if unicode.IsControl(r) || r == utf8.RuneError {
			return -1
		}
		return r
	}, message)

	cleaned = specialTokenRe.ReplaceAllString(cleaned, "")
	cleaned = roleMarkerRe.ReplaceAllString(cleaned, "")
	cleaned = wrapperTagRe.ReplaceAllString(cleaned, "")
	cleaned = htmlTagRe.ReplaceAllString(cleaned, "")
	cleaned = mdImageRe.ReplaceAllString(cleaned, "")

	return strings.TrimSpace(cleaned)
}

// Guest validates and cleans a guest message. Empty, over-length and
// high-risk messages return an error wrapping ErrRejected.
func Guest(message string) (string, error) {
	if strings.TrimSpace(message) == "" {
		return "", errors.Join(ErrRejected, errors.New("empty message"))
	}
	if utf8.RuneCountInString(message) > MaxRunes {
		return "", errors.Join(ErrRejected, errors.New("message too long"))
	}
	if result := Scan(message); result.Blocked {
		return "", errors.Join(ErrRejected, errors.New("prompt injection: "+strings.Join(result.Reasons, ",")))
	}

	cleaned := Clean(message)
	if cleaned == "" {
		return "", errors.Join(ErrRejected, errors.New("empty after cleaning"))
	}
	return cleaned, nil
}
