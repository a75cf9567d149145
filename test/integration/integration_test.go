//go:build integration

package integration

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/deckhand-sh/deckhand/internal/compose"
	"github.com/deckhand-sh/deckhand/internal/dockerlogs"
)

// TestIntegrationDocker verifies Docker daemon access and compose parsing
// against a real environment.
//
// Prerequisites:
//   - Docker daemon reachable at TEST_DOCKER_HOST (default local socket)
//
// Run with: go test -tags=integration -v ./test/integration/...
func TestIntegrationDocker(t *testing.T) {
	dockerHost := getEnv("TEST_DOCKER_HOST", "unix:///var/run/docker.sock")

	client, err := dockerlogs.NewClient(dockerHost, dockerlogs.TLSOptions{}, 10*time.Second)
	if err != nil {
		t.Fatalf("create docker client: %v", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx); err != nil {
		t.Skipf("docker daemon not reachable: %v", err)
	}

	t.Run("ContainerLogs", func(t *testing.T) {
		containerID := os.Getenv("TEST_CONTAINER_ID")
		if containerID == "" {
			t.Skip("TEST_CONTAINER_ID not set")
		}

		lines, err := client.ReadLogs(context.Background(), containerID, 10, false)
		if err != nil {
			t.Fatalf("read logs: %v", err)
		}
		t.Logf("read %d log lines", len(lines))
	})

	t.Run("ComposeParse", func(t *testing.T) {
		path := os.Getenv("TEST_COMPOSE_FILE")
		if path == "" {
			t.Skip("TEST_COMPOSE_FILE not set")
		}

		project, err := compose.LoadProject(context.Background(), "integration", path)
		if err != nil {
			t.Fatalf("load project: %v", err)
		}
		if len(project.Services) == 0 {
			t.Fatal("expected at least one service in compose")
		}
		t.Logf("parsed %d services", len(project.Services))
	})
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
