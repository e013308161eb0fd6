package fleetctl

import (
	"fmt"
)

func showStatus(cfg *Config) error {
	ctx, cancel := opCtx(cfg)
	defer cancel()
	st, err := NewClient(cfg.Addr).Status(ctx)
	if err != nil {
		return err
	}
	fmt.Print(renderStatus(st))
	return nil
}

func showModels(cfg *Config) error {
	ctx, cancel := opCtx(cfg)
	defer cancel()
	models, err := NewClient(cfg.Addr).Models(ctx)
	if err != nil {
		return err
	}
	fmt.Print(renderModels(models))
	return nil
}

func showHealth(cfg *Config) error {
	ctx, cancel := opCtx(cfg)
	defer cancel()
	st, err := NewClient(cfg.Addr).Status(ctx)
	if err != nil {
		return err
	}
	fmt.Print(renderHealth(st.Providers))
	return nil
}

func setGamingMode(cfg *Config, enabled bool) error {
	ctx, cancel := opCtx(cfg)
	defer cancel()
	resp, err := NewClient(cfg.Addr).SetGamingMode(ctx, enabled)
	if err != nil {
		return err
	}
	for _, f := range resp.Failures {
		warn("%s", f)
	}
	info("gaming mode is now %s", onOff(resp.Enabled))
	return nil
}

func stopAllContainers(cfg *Config) error {
	ctx, cancel := opCtx(cfg)
	defer cancel()
	resp, err := NewClient(cfg.Addr).StopAll(ctx)
	if err != nil {
		return err
	}
	for _, f := range resp.Failures {
		warn("%s", f)
	}
	if !resp.Stopped {
		return fmt.Errorf("%d container(s) failed to stop", len(resp.Failures))
	}
	info("all managed containers stopped")
	return nil
}
