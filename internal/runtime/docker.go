package runtime

import (
	"context"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
)

// DockerDriver drives containers through the local Docker daemon. Refs are
// container names or ids.
type DockerDriver struct {
	cli            *client.Client
	stopTimeoutSec int
}

// NewDockerDriver connects to the Docker daemon via DOCKER_HOST or the
// default socket and verifies the connection with a ping.
func NewDockerDriver(ctx context.Context) (*DockerDriver, error) {
	cli, err := client.NewClientWithOpts(
		client.FromEnv,
		client.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return nil, err
	}
	if _, err := cli.Ping(ctx); err != nil {
		return nil, err
	}
	return &DockerDriver{cli: cli, stopTimeoutSec: 10}, nil
}

func (d *DockerDriver) Start(ctx context.Context, ref string) error {
	return d.cli.ContainerStart(ctx, ref, container.StartOptions{})
}

func (d *DockerDriver) Stop(ctx context.Context, ref string) error {
	timeout := d.stopTimeoutSec
	return d.cli.ContainerStop(ctx, ref, container.StopOptions{Timeout: &timeout})
}

func (d *DockerDriver) IsRunning(ctx context.Context, ref string) (bool, error) {
	info, err := d.cli.ContainerInspect(ctx, ref)
	if err != nil {
		if client.IsErrNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return info.State != nil && info.State.Running, nil
}
