package main

import (
	"context"
	"fmt"
	"io"
	"log"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/taskdeck/agentexec/internal/config"
	"github.com/taskdeck/agentexec/internal/orchestrator"
	"github.com/taskdeck/agentexec/internal/tui"
)

// runWithTUI supervises the task while the live monitor owns the terminal.
func runWithTUI(ctx context.Context, orch *orchestrator.Orchestrator, cfg *config.Config, spec taskSpec) (retErr error) {
	// Suppress log output while the TUI is active (it corrupts the display)
	originalOutput := log.Writer()
	log.SetOutput(io.Discard)
	defer log.SetOutput(originalOutput)

	// Recover from panics
	defer func() {
		if r := recover(); r != nil {
			retErr = fmt.Errorf("PANIC in runWithTUI: %v", r)
		}
	}()

	sub, unsub := orch.Subscribe(0)
	defer unsub()
	program := tea.NewProgram(tui.New(sub), tea.WithAltScreen())

	go func() {
		<-ctx.Done()
		program.Quit()
	}()

	taskDone := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				taskDone <- fmt.Errorf("PANIC supervising task: %v", r)
			}
		}()
		taskDone <- superviseTask(ctx, orch, cfg, spec, nil)
	}()

	tuiDone := make(chan error, 1)
	go func() {
		_, err := program.Run()
		tuiDone <- err
	}()

	select {
	case err := <-taskDone:
		// The task row shows the outcome; wait for the user to quit.
		<-tuiDone
		return err

	case err := <-tuiDone:
		// User quit while the task was still running. The deferred
		// shutdown kills the worker.
		return err
	}
}
