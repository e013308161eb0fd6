package fleetctl

import (
	"fmt"
	"strings"
	"time"

	"fleetd/internal/runlog"
	"fleetd/pkg/types"
)

// Renderers return plain text so actions stay print-only and tests can
// assert on output without capturing stdout.

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

// firstLine truncates multi-line tool output to something that fits a
// step row.
func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 100 {
		s = s[:97] + "..."
	}
	return s
}

func fmtUnixAgo(unix int64) string {
	if unix <= 0 {
		return "never"
	}
	d := time.Since(time.Unix(unix, 0)).Round(time.Second)
	if d < 0 {
		d = 0
	}
	return d.String() + " ago"
}

func renderHealth(providers []types.ProviderHealth) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-20s %-10s %8s %6s %7s %4s\n", "PROVIDER", "STATUS", "RT_MS", "FAILS", "ACTIVE", "MAX")
	for _, p := range providers {
		fmt.Fprintf(&b, "%-20s %-10s %8d %6d %7d %4d\n",
			p.ProviderID, p.Status, p.ResponseTimeMs, p.ConsecutiveFailures, p.ActiveRequests, p.MaxConcurrent)
	}
	return b.String()
}

func renderStatus(st *types.StatusResponse) string {
	var b strings.Builder
	up := time.Duration(st.UptimeSeconds) * time.Second
	fmt.Fprintf(&b, "daemon up %s, gaming mode %s\n\n", up, onOff(st.GamingMode))
	b.WriteString(renderHealth(st.Providers))
	if len(st.Containers) > 0 {
		b.WriteString("\n")
		fmt.Fprintf(&b, "%-24s %-9s %-6s %-5s %6s  %s\n", "CONTAINER", "STATE", "KIND", "WARM", "PORT", "LAST USED")
		for _, c := range st.Containers {
			fmt.Fprintf(&b, "%-24s %-9s %-6s %-5s %6d  %s\n",
				c.ModelID, c.State, c.Kind, yesNo(c.KeepWarm), c.Port, fmtUnixAgo(c.LastUsedUnix))
		}
	}
	return b.String()
}

func renderModels(models []types.Model) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-24s %-16s %9s %9s  %s\n", "MODEL", "PROVIDER", "CONTEXT", "MAX_TOK", "TAGS")
	for _, m := range models {
		fmt.Fprintf(&b, "%-24s %-16s %9d %9d  %s\n",
			m.ID, m.ProviderID, m.ContextWindow, m.MaxTokens, strings.Join(m.Tags, ","))
	}
	return b.String()
}

func renderTools(tools []types.ToolSpec) string {
	var b strings.Builder
	for _, t := range tools {
		fmt.Fprintf(&b, "%s\n    %s\n", t.Name, t.Description)
		for _, a := range t.Args {
			req := "optional"
			if a.Required {
				req = "required"
			}
			fmt.Fprintf(&b, "    - %s (%s, %s): %s\n", a.Name, a.Type, req, a.Description)
		}
	}
	return b.String()
}

func renderAgentRun(run *types.AgentRunResponse) string {
	var b strings.Builder
	for _, s := range run.Steps {
		mark := "ok "
		if !s.OK {
			mark = "ERR"
		}
		fmt.Fprintf(&b, "[%2d] %s %-14s %s\n", s.StepNumber, mark, s.Tool, firstLine(s.Result))
	}
	fmt.Fprintf(&b, "run %s: %s after %d steps\n", run.ID, run.TerminatedReason, run.TotalSteps)
	if run.FinalAnswer != "" {
		fmt.Fprintf(&b, "%s\n", run.FinalAnswer)
	}
	return b.String()
}

func renderRuns(runs []runlog.Run) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-36s %-4s %5s  %-28s %-14s %s\n", "RUN", "OK", "STEPS", "REASON", "AGE", "TASK")
	for _, r := range runs {
		fmt.Fprintf(&b, "%-36s %-4s %5d  %-28s %-14s %s\n",
			r.ID, yesNo(r.Success), r.TotalSteps, r.TerminatedReason, fmtUnixAgo(r.CreatedAtUnix), firstLine(r.Task))
	}
	return b.String()
}
