package fleetctl

import (
	"fmt"

	"fleetd/pkg/types"
)

func runAgentTask(cfg *Config, task string) error {
	ctx, cancel := waitCtx(cfg)
	defer cancel()
	req := types.AgentRunRequest{
		Task:             task,
		WorkingDirectory: cfg.Dir,
		Model:            cfg.Model,
		MaxSteps:         cfg.MaxSteps,
	}
	info("starting agent run via %s", cfg.Addr)
	resp, err := NewClient(cfg.Addr).RunAgent(ctx, req)
	if err != nil {
		return err
	}
	fmt.Print(renderAgentRun(resp))
	if !resp.Success {
		return fmt.Errorf("run %s did not complete: %s", resp.ID, resp.TerminatedReason)
	}
	return nil
}

func showToolCatalog(cfg *Config) error {
	ctx, cancel := opCtx(cfg)
	defer cancel()
	tools, err := NewClient(cfg.Addr).Tools(ctx)
	if err != nil {
		return err
	}
	fmt.Print(renderTools(tools))
	return nil
}

func showRecentRuns(cfg *Config) error {
	ctx, cancel := opCtx(cfg)
	defer cancel()
	runs, err := NewClient(cfg.Addr).RecentRuns(ctx, cfg.Limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		info("no persisted runs")
		return nil
	}
	fmt.Print(renderRuns(runs))
	return nil
}
