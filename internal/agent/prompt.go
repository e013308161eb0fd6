package agent

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"fleetd/pkg/types"
)

const promptHeader = `You are an autonomous engineering agent working inside a sandboxed
directory. Respond to every prompt with exactly one JSON object of the form
{"tool": "<name>", "args": {...}} and nothing else. All paths are relative
to the working directory and must stay inside it. Invoke task_complete with
a final_answer argument once the task is done.

Available tools:
`

// systemPrompt renders the instruction header plus the tool catalog.
func systemPrompt() string {
	var b strings.Builder
	b.WriteString(promptHeader)
	for _, t := range catalog {
		b.WriteString("- ")
		b.WriteString(t.Name)
		b.WriteByte('(')
		for i, a := range t.Args {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(a.Name)
			if !a.Required {
				b.WriteByte('?')
			}
		}
		b.WriteString("): ")
		b.WriteString(t.Description)
		b.WriteByte('\n')
	}
	return b.String()
}

// buildMessages assembles the conversation for the next completion: the tool
// contract, the task, every prior step as an assistant/user exchange, and
// any corrective notes for unusable replies.
func buildMessages(task, workDir string, steps []types.AgentStep, notes []string) []types.ChatMessage {
	msgs := make([]types.ChatMessage, 0, 2+2*len(steps)+len(notes))
	msgs = append(msgs,
		types.ChatMessage{Role: "system", Content: systemPrompt()},
		types.ChatMessage{Role: "user", Content: fmt.Sprintf("Task: %s\nWorking directory: %s", task, workDir)},
	)
	for _, st := range steps {
		action, err := json.Marshal(proposal{Tool: st.Tool, Args: st.Args})
		if err != nil {
			action = []byte(`{"tool":` + strconv.Quote(st.Tool) + `}`)
		}
		status := "ok"
		if !st.OK {
			status = "failed"
		}
		msgs = append(msgs,
			types.ChatMessage{Role: "assistant", Content: string(action)},
			types.ChatMessage{Role: "user", Content: fmt.Sprintf("Step %d %s:\n%s", st.StepNumber, status, st.Result)},
		)
	}
	for _, n := range notes {
		msgs = append(msgs, types.ChatMessage{
			Role:    "user",
			Content: "Your previous reply was not usable: " + n + "\nReply with exactly one JSON object.",
		})
	}
	return msgs
}
