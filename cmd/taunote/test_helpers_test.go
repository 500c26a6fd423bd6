package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"taunote/internal/config"
	"taunote/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	baseDir    string
}

type envConfig struct {
	hfToken            string
	disableDiarization bool
	extra              []string
}

type envOption func(*envConfig)

// withConfigLines appends raw TOML after the generated sections.
func withConfigLines(lines ...string) envOption {
	return func(c *envConfig) {
		c.extra = append(c.extra, lines...)
	}
}

func withoutDiarization() envOption {
	return func(c *envConfig) {
		c.disableDiarization = true
	}
}

func withoutHFToken() envOption {
	return func(c *envConfig) {
		c.hfToken = ""
	}
}

func setupCLITestEnv(t *testing.T, opts ...envOption) *cliTestEnv {
	t.Helper()

	for _, key := range []string{"HUGGINGFACE_TOKEN", "HUGGING_FACE_HUB_TOKEN", "HF_TOKEN", "TAUNOTE_LLM_API_KEY", "OPENROUTER_API_KEY"} {
		t.Setenv(key, "")
	}

	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	base := testsupport.BaseDir(cfg)
	homeDir := filepath.Join(base, "home")
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", homeDir)

	settings := envConfig{hfToken: cfg.Diarization.HFToken}
	for _, opt := range opts {
		opt(&settings)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[paths]\nwork_dir = %q\ndata_dir = %q\nlog_dir = %q\nmodel_dir = %q\n\n",
		cfg.Paths.WorkDir, cfg.Paths.DataDir, cfg.Paths.LogDir, cfg.Paths.ModelDir)
	fmt.Fprintf(&b, "[diarization]\nenabled = %t\nhf_token = %q\nvalidate_token = false\n\n", !settings.disableDiarization, settings.hfToken)
	b.WriteString("[logging]\nlevel = \"error\"\n\n")
	for _, line := range settings.extra {
		b.WriteString(line)
		b.WriteByte('\n')
	}

	configPath := filepath.Join(base, "config.toml")
	if err := os.WriteFile(configPath, []byte(b.String()), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	return &cliTestEnv{cfg: cfg, configPath: configPath, baseDir: base}
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

// writeStub replaces a stubbed binary in the test PATH with script.
func writeStub(t *testing.T, env *cliTestEnv, name, script string) {
	t.Helper()
	path := filepath.Join(env.baseDir, "bin", name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755); err != nil {
		t.Fatalf("write stub %s: %v", name, err)
	}
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
