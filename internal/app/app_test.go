package app

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/deckhand-sh/deckhand/internal/config"
	"github.com/deckhand-sh/deckhand/internal/notify"
	"github.com/deckhand-sh/deckhand/internal/status"
	"github.com/rs/zerolog"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestBuildNotifierDefaultsToNoop(t *testing.T) {
	notifier, err := buildNotifier(zerolog.Nop(), config.Config{})
	if err != nil {
		t.Fatalf("buildNotifier error: %v", err)
	}
	if _, ok := notifier.(*notify.MultiNotifier); !ok {
		t.Fatalf("expected MultiNotifier, got %T", notifier)
	}
}

func TestBuildNotifierDryRunWraps(t *testing.T) {
	notifier, err := buildNotifier(zerolog.Nop(), config.Config{DryRun: true})
	if err != nil {
		t.Fatalf("buildNotifier error: %v", err)
	}
	if _, ok := notifier.(*notify.DryRunNotifier); !ok {
		t.Fatalf("expected DryRunNotifier, got %T", notifier)
	}
}

func TestBuildNotifierRejectsBadTemplate(t *testing.T) {
	_, err := buildNotifier(zerolog.Nop(), config.Config{
		WebhookURL:      "http://example.com/hook",
		WebhookTemplate: "{{",
	})
	if err == nil {
		t.Fatalf("expected template error")
	}
}

func TestLoadProjectsRegistersServices(t *testing.T) {
	dir := t.TempDir()
	composePath := filepath.Join(dir, "docker-compose.yaml")
	writeFile(t, composePath, `services:
  api:
    image: api:latest
  worker:
    image: worker:latest
`)
	projectsPath := filepath.Join(dir, "projects.yaml")
	writeFile(t, projectsPath, "projects:\n  - name: alpha\n    compose_file: "+composePath+"\n")

	a := &App{
		logger: zerolog.Nop(),
		cfg:    config.Config{ProjectsFile: projectsPath},
	}
	a.statuses = status.NewCache(zerolog.Nop())

	if err := a.loadProjects(t.Context()); err != nil {
		t.Fatalf("loadProjects error: %v", err)
	}

	projects := a.statuses.Projects()
	if len(projects) != 1 || projects[0] != "alpha" {
		t.Fatalf("unexpected projects: %v", projects)
	}
}
