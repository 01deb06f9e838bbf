package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestRootCmdVersion(t *testing.T) {
	cmd := NewRootCmd()

	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"version"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if !strings.HasPrefix(out.String(), "csm ") {
		t.Errorf("output = %q, want csm version line", out.String())
	}
}

func TestRootCmdRegistersSubcommands(t *testing.T) {
	cmd := NewRootCmd()

	want := []string{"synth", "serve", "model", "doctor", "version"}
	for _, name := range want {
		found := false
		for _, sub := range cmd.Commands() {
			if sub.Name() == name {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("subcommand %q not registered", name)
		}
	}
}

func TestRootCmdFlagOverride(t *testing.T) {
	cmd := NewRootCmd()

	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"--log-level", "debug", "version"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	cfg, err := requireConfig()
	if err != nil {
		t.Fatalf("requireConfig: %v", err)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("log level = %q, want debug", cfg.LogLevel)
	}
}
