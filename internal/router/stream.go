package router

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"
)

// relaySSE copies upstream SSE frames to w, injecting the provider id into
// every JSON chunk. The [DONE] sentinel passes through unchanged. Returns
// whether at least one frame reached the client.
func relaySSE(w io.Writer, flush func(), src io.Reader, providerID string) (forwarded bool, err error) {
	br := bufio.NewReader(src)
	for {
		line, readErr := br.ReadString('\n')
		if len(line) > 0 {
			trimmed := strings.TrimRight(line, "\r\n")
			if payload, ok := strings.CutPrefix(trimmed, "data:"); ok {
				payload = strings.TrimSpace(payload)
				switch payload {
				case "":
					// keep-alive padding, drop
				case "[DONE]":
					if _, werr := io.WriteString(w, "data: [DONE]\n\n"); werr != nil {
						return forwarded, werr
					}
					flush()
					return true, nil
				default:
					if _, werr := io.WriteString(w, "data: "+injectProvider(payload, providerID)+"\n\n"); werr != nil {
						return forwarded, werr
					}
					flush()
					forwarded = true
				}
			}
			// other SSE fields (event:, id:, comments) are dropped
		}
		if readErr != nil {
			if readErr == io.EOF {
				return forwarded, nil
			}
			return forwarded, readErr
		}
	}
}

// injectProvider adds the provider id to one JSON frame. Frames that do not
// parse are forwarded untouched.
func injectProvider(payload, providerID string) string {
	var frame map[string]json.RawMessage
	if err := json.Unmarshal([]byte(payload), &frame); err != nil {
		return payload
	}
	quoted, err := json.Marshal(providerID)
	if err != nil {
		return payload
	}
	frame["provider"] = quoted
	out, err := json.Marshal(frame)
	if err != nil {
		return payload
	}
	return string(out)
}
