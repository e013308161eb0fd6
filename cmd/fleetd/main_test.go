package main

import "testing"

func TestServeCommandFlags(t *testing.T) {
	root := newRootCmd()
	serve, _, err := root.Find([]string{"serve"})
	if err != nil || serve.Name() != "serve" {
		t.Fatalf("serve command missing: %v", err)
	}
	for _, name := range []string{"config", "addr", "log-level", "log-pretty"} {
		if serve.Flags().Lookup(name) == nil {
			t.Fatalf("flag --%s not registered", name)
		}
	}
}

func TestConfigFlagEnvDefault(t *testing.T) {
	t.Setenv("FLEETD_CONFIG", "/etc/fleet/override.toml")
	root := newRootCmd()
	serve, _, err := root.Find([]string{"serve"})
	if err != nil {
		t.Fatalf("find serve: %v", err)
	}
	if got := serve.Flags().Lookup("config").DefValue; got != "/etc/fleet/override.toml" {
		t.Fatalf("config default = %q", got)
	}
}

func TestEnvOr(t *testing.T) {
	t.Setenv("FLEETD_TEST_KEY", "from-env")
	if got := envOr("FLEETD_TEST_KEY", "fallback"); got != "from-env" {
		t.Fatalf("envOr set = %q", got)
	}
	if got := envOr("FLEETD_TEST_KEY_MISSING", "fallback"); got != "fallback" {
		t.Fatalf("envOr unset = %q", got)
	}
}
