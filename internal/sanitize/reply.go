package sanitize

import (
	"regexp"
	"strings"
)

// ReplyScan is the result of checking a generated reply before delivery.
type ReplyScan struct {
	// Leaked is true when any leak pattern fired.
	Leaked  bool
	Reasons []string
	// Cleaned is the deliverable reply, or empty when it must be replaced.
	Cleaned string
}

type leakPattern struct {
	re     *regexp.Regexp
	reason string
	block  bool
}

var replyLeakPatterns = []leakPattern{
	{regexp.MustCompile(`(?i)my (system\s+)?prompt\s+(is|says|tells|instructs)`), "leak:system_prompt_disclosure", true},
	{regexp.MustCompile(`(?i)my instructions?\s+(are|say|tell|include|require)`), "leak:instructions_disclosure", true},
	{regexp.MustCompile(`(?i)(here are|these are|the following are)\s+(my )?(system )?(instructions|rules|guidelines|prompts)`), "leak:rules_listing", true},
	{regexp.MustCompile(`(?i)(powered by|built on|running on)\s+(Claude|GPT|OpenAI|Anthropic|Gemini|Bedrock)`), "leak:tech_stack", false},

	{regexp.MustCompile(`(?i)(api[_\s]?key|secret[_\s]?key|access[_\s]?token|bearer\s+token)\s*[:=]\s*\S+`), "leak:credential", true},
	{regexp.MustCompile(`AKIA[A-Z0-9]{16}`), "leak:aws_key", true},
	{regexp.MustCompile(`(?i)(postgres|postgresql|redis)://\S+`), "leak:database_url", true},
	{regexp.MustCompile(`(?i)/admin/|/webhooks/`), "leak:internal_path", true},

	{regexp.MustCompile(`(?i)(another|other) guest'?s?\s+(name|phone|email|room|booking|reservation)`), "leak:other_guest_ref", true},
}

var techStackSentence = regexp.MustCompile(`(?i)[^.!?]*\b(powered by|built on|running on)\s+(Claude|GPT|OpenAI|Anthropic|Gemini|Bedrock)\b[^.!?]*[.!?]?\s*`)

// ScanReply checks a generated reply for prompt, credential and guest data
// leaks. Tech stack mentions are cut; every other hit blanks the reply.
func ScanReply(reply string) ReplyScan {
	if strings.TrimSpace(reply) == "" {
		return ReplyScan{Cleaned: reply}
	}

	var reasons []string
	block := false
	for _, p := range replyLeakPatterns {
		if p.re.MatchString(reply) {
			reasons = append(reasons, p.reason)
			block = block || p.block
		}
	}
	if len(reasons) == 0 {
		return ReplyScan{Cleaned: reply}
	}

	scan := ReplyScan{Leaked: true, Reasons: reasons}
	if !block {
		scan.Cleaned = strings.TrimSpace(techStackSentence.ReplaceAllString(reply, ""))
	}
	return scan
}

// Reply returns the deliverable form of reply, substituting fallback when
// the reply must not be sent.
func Reply(reply, fallback string) (string, []string) {
	scan := ScanReply(reply)
	if !scan.Leaked {
		return reply, nil
	}
	if scan.Cleaned == "" {
		return fallback, scan.Reasons
	}
	return scan.Cleaned, scan.Reasons
}
