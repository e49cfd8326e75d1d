package conversation

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed keywords.yaml
var defaultKeywordsYAML []byte

type languageKeywords struct {
	Handoff     []string `yaml:"handoff"`
	LeadCapture []string `yaml:"lead_capture"`
}

// IntentRules maps guest phrasing to conversation modes.
type IntentRules struct {
	handoff     []string
	leadCapture []string
}

// DefaultIntentRules returns the built-in English and Malay rules.
func DefaultIntentRules() *IntentRules {
	rules, err := ParseIntentRules(defaultKeywordsYAML)
	if err != nil {
		panic(fmt.Sprintf("conversation: embedded keywords invalid: %v", err))
	}
	return rules
}

// LoadIntentRules reads rules from a YAML file. An empty path yields the defaults.
func LoadIntentRules(path string) (*IntentRules, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultIntentRules(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("conversation: read keywords: %w", err)
	}
	return ParseIntentRules(data)
}

// ParseIntentRules parses a YAML document keyed by language code.
func ParseIntentRules(data []byte) (*IntentRules, error) {
	var byLang map[string]languageKeywords
	if err := yaml.Unmarshal(data, &byLang); err != nil {
		return nil, fmt.Errorf("conversation: parse keywords: %w", err)
	}
	if len(byLang) == 0 {
		return nil, fmt.Errorf("conversation: keywords file has no languages")
	}

	langs := make([]string, 0, len(byLang))
	for lang := range byLang {
		langs = append(langs, lang)
	}
	sort.Strings(langs)

	rules := &IntentRules{}
	for _, lang := range langs {
		kw := byLang[lang]
		rules.handoff = appendKeywords(rules.handoff, kw.Handoff)
		rules.leadCapture = appendKeywords(rules.leadCapture, kw.LeadCapture)
	}
	return rules, nil
}

func appendKeywords(dst, src []string) []string {
	for _, kw := range src {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" {
			dst = append(dst, kw)
		}
	}
	return dst
}

// DetectIntent returns the mode the text asks for. Handoff phrases take
// precedence over booking phrases.
func (r *IntentRules) DetectIntent(text string) (Mode, bool) {
	lower := strings.ToLower(text)
	if containsAny(lower, r.handoff) {
		return ModeHandoff, true
	}
	if containsAny(lower, r.leadCapture) {
		return ModeLeadCapture, true
	}
	return "", false
}

// ApplyIntent moves the conversation to the detected mode. Any match
// overwrites the current mode, so a booking phrase after a handoff returns
// the conversation to lead capture. Entering handoff also marks the
// conversation handed off.
func (r *IntentRules) ApplyIntent(conv *Conversation, text string) bool {
	mode, ok := r.DetectIntent(text)
	if !ok {
		return false
	}
	conv.Mode = mode
	if mode == ModeHandoff {
		conv.Status = StatusHandedOff
	}
	return true
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}
