package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestTrainCommandWritesSession(t *testing.T) {
	session := filepath.Join(t.TempDir(), "session")
	args := []string{
		"train",
		"-channels", "2", "-vector", "3", "-memory", "4",
		"-optimizer", "adam", "-lr", "0.01",
		"-min-len", "2", "-max-len", "3", "-samples", "4",
		"-steps", "3", "-seed", "7",
		"-session", session,
	}

	var stdout, stderr bytes.Buffer
	if err := run(context.Background(), args, &stdout, &stderr); err != nil {
		t.Fatalf("train failed: %v\n%s", err, stderr.String())
	}
	for _, name := range []string{"model.pkl", "meta.pkl"} {
		if _, err := os.Stat(filepath.Join(session, name)); err != nil {
			t.Errorf("expected %s: %v", name, err)
		}
	}
	if !strings.Contains(stderr.String(), "Training finished") {
		t.Errorf("expected a completion log line, got %q", stderr.String())
	}

	// a second invocation resumes the saved session
	stderr.Reset()
	if err := run(context.Background(), args, &stdout, &stderr); err != nil {
		t.Fatalf("resumed train failed: %v", err)
	}
	if !strings.Contains(stderr.String(), "Resumed session") {
		t.Errorf("expected the session to be resumed, got %q", stderr.String())
	}
}

func TestTrainCommandBlueprint(t *testing.T) {
	args := []string{
		"train",
		"-channels", "1", "-vector", "3", "-memory", "4",
		"-blueprint", "[(2,4) (2,4) (2,3)]",
		"-min-len", "1", "-max-len", "2", "-samples", "2",
		"-session", "",
	}
	var stdout, stderr bytes.Buffer
	if err := run(context.Background(), args, &stdout, &stderr); err != nil {
		t.Fatalf("train failed: %v", err)
	}
	if !strings.Contains(stderr.String(), "(2,4)") {
		t.Errorf("expected the custom blueprint in the log, got %q", stderr.String())
	}

	args[8] = "[(2,4"
	if err := run(context.Background(), args, &stdout, &stderr); err == nil {
		t.Error("expected error for a malformed blueprint")
	}
}

func TestRunErrors(t *testing.T) {
	var stdout, stderr bytes.Buffer
	tests := [][]string{
		nil,
		{"bogus"},
		{"train", "-store", "redis", "-session", ""},
		{"train", "-min-len", "0", "-session", ""},
		{"runs", "-id", "missing"},
	}
	for _, args := range tests {
		if err := run(context.Background(), args, &stdout, &stderr); err == nil {
			t.Errorf("expected error for %v", args)
		}
	}
}

func TestRunsCommandEmptyStore(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if err := run(context.Background(), []string{"runs"}, &stdout, &stderr); err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(stdout.String()) != "no runs found" {
		t.Errorf("unexpected output %q", stdout.String())
	}
}
