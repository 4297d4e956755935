package interpreter

import (
	"testing"

	"pingpay/internal/errs"
)

func TestRegexParser(t *testing.T) {
	parser := NewRegexParser()

	tests := []struct {
		command   string
		amount    string
		recipient string
	}{
		{"send 10 usdc to @alice", "10", "alice"},
		{"pay bob 50", "50", "bob"},
		{"transfer 100 to alice", "100", "alice"},
		{"give @mike 5 usdc please", "5", "mike"},
		{"@john needs 25 usdc", "25", "john"},
		{"0.5 usdc for @carol", "0.5", "carol"},
		{"Send 10.25 USDC to @Alice", "10.25", "alice"},
	}

	for _, tt := range tests {
		got, err := parser.Parse(tt.command)
		if err != nil {
			t.Errorf("Parse(%q) unexpected error: %v", tt.command, err)
			continue
		}
		if got.Amount != tt.amount || got.Recipient != tt.recipient {
			t.Errorf("Parse(%q) = %+v, want amount=%q recipient=%q", tt.command, got, tt.amount, tt.recipient)
		}
	}
}

func TestRegexParserUnparsable(t *testing.T) {
	parser := NewRegexParser()

	for _, command := range []string{"hello", "I want to send some money", ""} {
		_, err := parser.Parse(command)
		if err == nil {
			t.Errorf("Parse(%q) expected error", command)
			continue
		}
		if !errs.IsKind(err, errs.Unparsable) {
			t.Errorf("Parse(%q) error kind = %q, want %q", command, errs.KindOf(err), errs.Unparsable)
		}
	}
}
