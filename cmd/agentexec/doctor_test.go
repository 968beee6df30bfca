package main

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/taskdeck/agentexec/internal/config"
	iexec "github.com/taskdeck/agentexec/internal/exec"
	"github.com/taskdeck/agentexec/internal/gate"
)

type fakeRunner struct {
	paths  map[string]string
	output string
	runErr error
}

func (f *fakeRunner) Run(ctx context.Context, workDir string, name string, args ...string) ([]byte, error) {
	if f.runErr != nil {
		return nil, f.runErr
	}
	return []byte(f.output), nil
}

func (f *fakeRunner) LookPath(name string) (string, error) {
	if path, ok := f.paths[name]; ok {
		return path, nil
	}
	return "", errors.New("executable file not found in $PATH")
}

var _ iexec.CommandRunner = (*fakeRunner)(nil)

func TestCheckWorkerRuntime(t *testing.T) {
	tests := []struct {
		name    string
		source  string
		paths   map[string]string
		want    string
		wantErr bool
	}{
		{
			name:   "not configured",
			source: "",
			want:   "not configured (each run names its own program)",
		},
		{
			name:   "found",
			source: "claude",
			paths:  map[string]string{"claude": "/usr/local/bin/claude"},
			want:   "/usr/local/bin/claude",
		},
		{
			name:    "missing",
			source:  "claude",
			paths:   map[string]string{},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.Config{}
			cfg.Worker.Source = tt.source
			got, err := checkWorkerRuntime(cfg, &fakeRunner{paths: tt.paths})
			if (err != nil) != tt.wantErr {
				t.Fatalf("checkWorkerRuntime() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				if !strings.Contains(err.Error(), tt.source) {
					t.Errorf("error %q does not name %q", err, tt.source)
				}
				return
			}
			if got != tt.want {
				t.Errorf("checkWorkerRuntime() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCheckGit(t *testing.T) {
	ctx := context.Background()

	t.Run("found with version", func(t *testing.T) {
		cfg := &config.Config{}
		cfg.SourceControl.Mode = string(gate.ModeRequired)
		runner := &fakeRunner{
			paths:  map[string]string{"git": "/usr/bin/git"},
			output: "git version 2.43.0\n",
		}
		got, err := checkGit(ctx, cfg, runner)
		if err != nil {
			t.Fatalf("checkGit() error = %v", err)
		}
		want := "/usr/bin/git (git version 2.43.0)"
		if got != want {
			t.Errorf("checkGit() = %q, want %q", got, want)
		}
	})

	t.Run("version probe failure keeps path", func(t *testing.T) {
		cfg := &config.Config{}
		cfg.SourceControl.Mode = string(gate.ModeRequired)
		runner := &fakeRunner{
			paths:  map[string]string{"git": "/usr/bin/git"},
			runErr: errors.New("exit status 1"),
		}
		got, err := checkGit(ctx, cfg, runner)
		if err != nil {
			t.Fatalf("checkGit() error = %v", err)
		}
		if got != "/usr/bin/git" {
			t.Errorf("checkGit() = %q, want %q", got, "/usr/bin/git")
		}
	})

	t.Run("missing with gating disabled", func(t *testing.T) {
		cfg := &config.Config{}
		cfg.SourceControl.Mode = string(gate.ModeDisabled)
		got, err := checkGit(ctx, cfg, &fakeRunner{})
		if err != nil {
			t.Fatalf("checkGit() error = %v", err)
		}
		if !strings.Contains(got, "disabled") {
			t.Errorf("checkGit() = %q, want mention of disabled gating", got)
		}
	})

	t.Run("missing with gating required", func(t *testing.T) {
		cfg := &config.Config{}
		cfg.SourceControl.Mode = string(gate.ModeRequired)
		_, err := checkGit(ctx, cfg, &fakeRunner{})
		if err == nil {
			t.Fatal("checkGit() error = nil, want error")
		}
		if !strings.Contains(err.Error(), "source_control.mode") {
			t.Errorf("error %q does not suggest source_control.mode", err)
		}
	})
}

func TestCheckGateMode(t *testing.T) {
	tests := []struct {
		mode    string
		wantErr bool
	}{
		{"disabled", false},
		{"unconfirmed", false},
		{"required", false},
		{"strict", true},
		{"", true},
	}

	for _, tt := range tests {
		t.Run("mode "+tt.mode, func(t *testing.T) {
			cfg := &config.Config{}
			cfg.SourceControl.Mode = tt.mode
			got, err := checkGateMode(cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("checkGateMode(%q) error = %v, wantErr %v", tt.mode, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.mode {
				t.Errorf("checkGateMode(%q) = %q, want %q", tt.mode, got, tt.mode)
			}
		})
	}
}
