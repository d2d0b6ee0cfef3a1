package main

import "testing"

func TestRunRequiresSubcommand(t *testing.T) {
	if code := run(nil); code != exitConfig {
		t.Fatalf("expected exitConfig, got %d", code)
	}
}

func TestRunRejectsUnknownSubcommand(t *testing.T) {
	if code := run([]string{"rabbitmq"}); code != exitConfig {
		t.Fatalf("expected exitConfig, got %d", code)
	}
}

func TestRunRequiresConfigFlag(t *testing.T) {
	if code := run([]string{"kafka"}); code != exitConfig {
		t.Fatalf("expected exitConfig, got %d", code)
	}
}

func TestRunRejectsMissingConfigFile(t *testing.T) {
	if code := run([]string{"kafka", "--config", "/nonexistent/path.yaml"}); code != exitConfig {
		t.Fatalf("expected exitConfig, got %d", code)
	}
}
