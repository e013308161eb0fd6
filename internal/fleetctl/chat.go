package fleetctl

import (
	"fmt"

	"fleetd/pkg/types"
)

func chatOnce(cfg *Config, prompt string) error {
	ctx, cancel := waitCtx(cfg)
	defer cancel()
	req := types.ChatCompletionRequest{
		Model:    cfg.Model,
		Messages: []types.ChatMessage{{Role: "user", Content: prompt}},
		Force:    cfg.Force,
	}
	resp, err := NewClient(cfg.Addr).Chat(ctx, req)
	if err != nil {
		return err
	}
	if len(resp.Choices) == 0 {
		return fmt.Errorf("provider %s answered with no choices", resp.Provider)
	}
	fmt.Println(resp.Choices[0].Message.Content)
	debug("served by %s as %s, %d tokens total", resp.Provider, resp.Model, resp.Usage.TotalTokens)
	return nil
}
