package classify

import "strings"

// Signal identifies a known failure signature found in one output line.
type Signal string

const (
	// SignalNone indicates the line matched no known failure signature.
	SignalNone Signal = ""
	// SignalNoAssistantMessages indicates the agent run produced no assistant turns.
	SignalNoAssistantMessages Signal = "no_assistant_messages"
	// SignalProviderError indicates the model provider rejected or failed the request.
	SignalProviderError Signal = "provider_error"
)

const (
	noAssistantSignature   = "model returned no assistant messages"
	providerErrorSignature = "provider returned error"
)

// Classify matches one output line against the fixed failure signatures.
//
// Matching is case-sensitive substring matching. The check runs per line as
// output arrives so the supervisor can terminate the agent early instead of
// waiting for process exit. Non-UTF8 bytes never match and never fail.
func Classify(line string) Signal {
	if strings.Contains(line, noAssistantSignature) {
		return SignalNoAssistantMessages
	}
	if strings.Contains(line, providerErrorSignature) {
		return SignalProviderError
	}
	return SignalNone
}
