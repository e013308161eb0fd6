package agent

import (
	"encoding/json"
	"fmt"
	"strings"
)

// proposal is the action shape the model must answer with.
type proposal struct {
	Tool string          `json:"tool"`
	Args json.RawMessage `json:"args"`
}

// parseProposal extracts exactly one proposed action from completion text.
// The text may wrap the JSON object in prose or a markdown fence.
func parseProposal(text string) (proposal, error) {
	raw := extractObject(text)
	if raw == "" {
		return proposal{}, ErrMalformedResponse("no JSON object found in reply")
	}
	var p proposal
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return proposal{}, ErrMalformedResponse(fmt.Sprintf("reply is not valid JSON: %v", err))
	}
	if p.Tool == "" {
		return proposal{}, ErrMalformedResponse(`reply is missing the "tool" field`)
	}
	if len(p.Args) == 0 {
		p.Args = json.RawMessage("{}")
	}
	return p, nil
}

// extractObject returns the first balanced {...} in s, honoring JSON string
// escaping so braces inside string values do not end the scan early.
func extractObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

// decodeArgs unmarshals a proposal's argument object into the tool's
// argument struct.
func decodeArgs(tool string, raw json.RawMessage, into any) error {
	if err := json.Unmarshal(raw, into); err != nil {
		return ErrMalformedResponse(fmt.Sprintf("invalid args for %s: %v", tool, err))
	}
	return nil
}
