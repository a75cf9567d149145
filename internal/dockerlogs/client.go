// Package dockerlogs reads container logs through the Docker API. It is
// the concrete implementation of the container log reader the streaming
// core consumes.
package dockerlogs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/tlsconfig"
)

const defaultAPITimeout = 30 * time.Second

// TLSOptions carries optional TLS material for a remote Docker API.
type TLSOptions struct {
	CAFile   string
	CertFile string
	KeyFile  string
}

func (o TLSOptions) enabled() bool {
	return o.CAFile != "" || o.CertFile != "" || o.KeyFile != ""
}

// dockerAPI is the subset of Docker client operations used here, split out
// so tests can inject a fake daemon.
type dockerAPI interface {
	ContainerLogs(ctx context.Context, containerID string, options container.LogsOptions) (io.ReadCloser, error)
	Ping(ctx context.Context) (dockerPing, error)
	Close() error
}

// dockerPing mirrors the Ping result without importing the full types
// package into the interface.
type dockerPing struct{}

type apiAdapter struct {
	client *client.Client
}

func (a *apiAdapter) ContainerLogs(ctx context.Context, containerID string, options container.LogsOptions) (io.ReadCloser, error) {
	return a.client.ContainerLogs(ctx, containerID, options)
}

func (a *apiAdapter) Ping(ctx context.Context) (dockerPing, error) {
	_, err := a.client.Ping(ctx)
	return dockerPing{}, err
}

func (a *apiAdapter) Close() error {
	return a.client.Close()
}

// Client reads container logs from a Docker daemon.
type Client struct {
	api     dockerAPI
	timeout time.Duration
}

// NewClient initializes a Docker API client for the given host. An empty
// host uses the environment defaults. TLS options apply when any file is
// set, for daemons behind a TLS proxy.
func NewClient(host string, tls TLSOptions, timeout time.Duration) (*Client, error) {
	if timeout <= 0 {
		timeout = defaultAPITimeout
	}

	opts := []client.Opt{
		client.WithAPIVersionNegotiation(),
	}
	if host != "" {
		opts = append(opts, client.WithHost(host))
	}

	if tls.enabled() {
		tlsConfig, err := tlsconfig.Client(tlsconfig.Options{
			CAFile:   tls.CAFile,
			CertFile: tls.CertFile,
			KeyFile:  tls.KeyFile,
		})
		if err != nil {
			return nil, fmt.Errorf("docker tls config: %w", err)
		}
		httpClient := &http.Client{
			Transport: &http.Transport{TLSClientConfig: tlsConfig},
			Timeout:   timeout,
		}
		opts = append(opts, client.WithHTTPClient(httpClient))
	}

	api, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, err
	}

	return &Client{
		api:     &apiAdapter{client: api},
		timeout: timeout,
	}, nil
}

// Ping validates connectivity to the Docker daemon.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.api == nil {
		return errors.New("docker client is not initialized")
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	_, err := c.api.Ping(ctx)
	return err
}

// ReadLogs fetches up to tailLines of a container's log output. The
// multiplexed stdout/stderr stream is demuxed and merged into one ordered
// line sequence.
func (c *Client) ReadLogs(ctx context.Context, containerID string, tailLines int, withTimestamps bool) ([]string, error) {
	if containerID == "" {
		return nil, errors.New("container id is required")
	}

	tail := "all"
	if tailLines > 0 {
		tail = strconv.Itoa(tailLines)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	reader, err := c.api.ContainerLogs(ctx, containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Timestamps: withTimestamps,
		Tail:       tail,
	})
	if err != nil {
		return nil, fmt.Errorf("container logs: %w", err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read container logs: %w", err)
	}

	// Containers started with a TTY produce a raw stream instead of the
	// multiplexed format; fall back to the raw bytes when demuxing fails.
	var buf bytes.Buffer
	if _, err := stdcopy.StdCopy(&buf, &buf, bytes.NewReader(raw)); err != nil {
		return splitLines(string(raw)), nil
	}

	return splitLines(buf.String()), nil
}

// Close releases resources associated with the client.
func (c *Client) Close() error {
	if c == nil || c.api == nil {
		return nil
	}
	return c.api.Close()
}

func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	result := make([]string, 0, len(lines))
	for _, line := range lines {
		result = append(result, strings.TrimRight(line, "\r"))
	}
	return result
}
