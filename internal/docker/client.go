// client.go wraps the Docker Engine SDK client: socket detection per
// platform, API version negotiation, and the daemon reachability check
// the runner performs before the first container-backed environment.
package docker

import (
	"context"
	"fmt"
	"net"
	"os"
	"runtime"
	"time"

	"github.com/docker/docker/client"

	"github.com/kasugano/envmatrix/internal/model"
)

// defaultPingTimeout caps how long a Ping waits for the Docker daemon.
// Five seconds covers a slow Docker Desktop wake-up without stalling a
// run whose daemon is simply absent.
const defaultPingTimeout = 5 * time.Second

// Client wraps the Docker Engine SDK client. It owns socket detection
// and daemon reachability checks; the SDK surface needed by listing and
// removal is reached through Inner.
//
// Usage:
//
//	c, err := docker.NewClient()
//	if err != nil { /* daemon unreachable */ }
//	defer c.Close()
//	if err := c.Ping(ctx); err != nil { /* daemon not responding */ }
type Client struct {
	// inner is the underlying Docker SDK client. Wrapping rather than
	// embedding keeps the exposed surface down to what envmatrix uses.
	inner *client.Client
}

// NewClient creates a Docker client with automatic socket detection.
//
// Detection priority:
//  1. DOCKER_HOST, used as-is when set.
//  2. Platform defaults:
//     Linux: /var/run/docker.sock
//     macOS: /var/run/docker.sock, then ~/.docker/run/docker.sock
//     Windows: the docker_engine named pipe.
//
// Returns a model.CLIError with ExitDockerUnavailable when no socket is
// found or the SDK client cannot be constructed.
func NewClient() (*Client, error) {
	// An explicit DOCKER_HOST wins unconditionally; the SDK parses the
	// connection string.
	if dockerHost := os.Getenv("DOCKER_HOST"); dockerHost != "" {
		return newClientWithHost(dockerHost)
	}

	host, err := detectDockerHost()
	if err != nil {
		return nil, model.WrapCLIError(
			model.ExitDockerUnavailable,
			"Docker socket not found",
			err,
		)
	}

	return newClientWithHost(host)
}

// newClientWithHost creates a Docker client for the given connection
// string (for example "unix:///var/run/docker.sock" or
// "npipe:////./pipe/docker_engine").
func newClientWithHost(host string) (*Client, error) {
	// API version negotiation keeps the client compatible with whatever
	// daemon version is installed, instead of pinning one API level.
	c, err := client.NewClientWithOpts(
		client.WithHost(host),
		client.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return nil, model.WrapCLIError(
			model.ExitDockerUnavailable,
			fmt.Sprintf("failed to create Docker client for host %q", host),
			err,
		)
	}

	return &Client{inner: c}, nil
}

// detectDockerHost determines the Docker socket for the current
// platform. Unix paths are probed with os.Stat; existence of the socket
// file does not guarantee a listening daemon, which is what Ping checks.
func detectDockerHost() (string, error) {
	switch runtime.GOOS {
	case "linux":
		return detectUnixSocket([]string{
			"/var/run/docker.sock",
		})

	case "darwin":
		// Docker Desktop symlinks /var/run/docker.sock when allowed;
		// newer versions only create the per-user socket.
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return detectUnixSocket([]string{
				"/var/run/docker.sock",
			})
		}
		return detectUnixSocket([]string{
			"/var/run/docker.sock",
			homeDir + "/.docker/run/docker.sock",
		})

	case "windows":
		// os.Stat does not work on Windows named pipes, so reachability
		// is probed with a short dial instead.
		pipePath := `//./pipe/docker_engine`
		conn, err := net.DialTimeout("pipe", pipePath, 1*time.Second)
		if err == nil {
			conn.Close()
			return "npipe://" + pipePath, nil
		}
		return "", fmt.Errorf("Docker named pipe not found at %s: %w", pipePath, err)

	default:
		return "", fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}
}

// detectUnixSocket returns the Docker host URI for the first socket
// path that exists, checked in the order given.
func detectUnixSocket(paths []string) (string, error) {
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			return "unix://" + path, nil
		}
	}
	return "", fmt.Errorf(
		"Docker socket not found at any of: %v (is Docker running?)",
		paths,
	)
}

// Ping verifies that the Docker daemon is reachable and responsive,
// waiting at most defaultPingTimeout.
//
// Returns a model.CLIError with ExitDockerUnavailable when the daemon
// does not answer. Container-backed environments cannot run in that
// state; whether that skips them or fails the run is the caller's call.
func (c *Client) Ping(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()

	_, err := c.inner.Ping(pingCtx)
	if err != nil {
		return model.WrapCLIError(
			model.ExitDockerUnavailable,
			"Docker daemon is not responding (is Docker running?)",
			err,
		)
	}
	return nil
}

// Close releases the resources held by the SDK client. Safe to call
// multiple times.
func (c *Client) Close() error {
	if c.inner != nil {
		return c.inner.Close()
	}
	return nil
}

// Inner exposes the underlying SDK client for the container list,
// remove, and image inspection calls this package builds on it.
func (c *Client) Inner() *client.Client {
	return c.inner
}
