package interpreter

import (
	"regexp"

	"pingpay/internal/errs"
	"pingpay/internal/models"
)

// Parser converts free text into a strict payment command. Output is
// untrusted input: callers validate it like any API request.
type Parser interface {
	Parse(command string) (models.ParsedCommand, error)
}

// Patterns cover the common phrasings: "send 10 usdc to @alice",
// "pay bob 50", "@john needs 25 usdc", "25 usdc for @mike".
var patterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:send|pay|transfer|give)\s+(\d+(?:\.\d+)?)\s*(?:usdc|usd)?\s+to\s+@?(\w+)`),
	regexp.MustCompile(`(?i)(?:send|pay|transfer|give)\s+@?([a-zA-Z]\w*)\s+(\d+(?:\.\d+)?)\s*(?:usdc|usd)?`),
	regexp.MustCompile(`(?i)@(\w+)\s+.*?(\d+(?:\.\d+)?)\s*(?:usdc|usd)?`),
	regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(?:usdc|usd)?\s+.*?@(\w+)`),
}

// amountFirst marks which patterns capture the amount in group 1.
var amountFirst = []bool{true, false, false, true}

// RegexParser is the deterministic fallback interpreter.
type RegexParser struct{}

func NewRegexParser() *RegexParser {
	return &RegexParser{}
}

func (p *RegexParser) Parse(command string) (models.ParsedCommand, error) {
	for i, pattern := range patterns {
		match := pattern.FindStringSubmatch(command)
		if match == nil {
			continue
		}

		var amount, recipient string
		if amountFirst[i] {
			amount, recipient = match[1], match[2]
		} else {
			recipient, amount = match[1], match[2]
		}

		return models.ParsedCommand{
			Amount:    amount,
			Recipient: models.NormalizeHandle(recipient),
		}, nil
	}

	return models.ParsedCommand{}, errs.New(errs.Unparsable,
		`could not understand command, try something like "send 10 usdc to @username"`)
}
