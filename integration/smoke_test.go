//go:build smoke

package integration

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/docker/docker/api/types/container"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const smokeScenario = `heartbeat_ms: 200
tick_ms: 20
duration_ms: 2000
nodes:
  - id: a
    prefixes: [10.0.0.0/24]
  - id: b
  - id: c
mesh:
  - "a, b"
  - "b, c"
events:
  - {at_ms: 1000, kind: trace, from: a, to: 10.0.0.1}
  - {at_ms: 1000, kind: trace, from: c, to: a}
`

// requires the binary to be built first: go build -o lsr .
func createContainer(ctx context.Context, t *testing.T, command []string, waitFor string) (testcontainers.Container, error) {
	t.Helper()
	lsrPath, err := filepath.Abs(filepath.Join("../", "lsr"))
	require.NoError(t, err)
	r, err := os.Open(lsrPath)
	require.NoError(t, err)

	scenarioPath := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(scenarioPath, []byte(smokeScenario), 0600))
	r2, err := os.Open(scenarioPath)
	require.NoError(t, err)

	return testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image: "busybox:1.37-glibc",
			HostConfigModifier: func(config *container.HostConfig) {
				config.NetworkMode = "none"
			},
			Files: []testcontainers.ContainerFile{
				{
					Reader:            r,
					HostFilePath:      lsrPath, // will be discarded internally
					ContainerFilePath: "/lsr",
					FileMode:          0o700,
				},
				{
					Reader:            r2,
					HostFilePath:      scenarioPath, // will be discarded internally
					ContainerFilePath: "/scenario.yaml",
					FileMode:          0o600,
				},
			},
			Cmd:        command,
			WaitingFor: wait.ForLog(waitFor),
		},
		Started: true,
	})
}

func TestLsrExecutes(t *testing.T) {
	ctx := context.Background()
	c, err := createContainer(ctx, t, []string{"/lsr"}, "lsr runs a flooding link-state routing protocol")
	require.NoError(t, err)
	testcontainers.CleanupContainer(t, c)
}

func TestLsrSimulates(t *testing.T) {
	ctx := context.Background()
	c, err := createContainer(ctx, t, []string{"/lsr", "-c", "/scenario.yaml", "sim"}, "simulation complete")
	require.NoError(t, err)
	testcontainers.CleanupContainer(t, c)
}

func TestLsrRuns(t *testing.T) {
	ctx := context.Background()
	c, err := createContainer(ctx, t, []string{"/lsr", "-c", "/scenario.yaml", "run"}, "lsr is running")
	require.NoError(t, err)
	testcontainers.CleanupContainer(t, c)
}
