// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nova Criatura Contributors

package storetest

import (
	"context"
	"time"

	"github.com/samber/oops"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// Redis is a running Redis container.
type Redis struct {
	URL string

	container testcontainers.Container
}

// StartRedis starts a disposable Redis server.
func StartRedis(ctx context.Context) (*Redis, error) {
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor: wait.ForLog("Ready to accept connections").
				WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		return nil, oops.With("operation", "start redis container").Wrap(err)
	}

	endpoint, err := container.Endpoint(ctx, "")
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, oops.With("operation", "get redis endpoint").Wrap(err)
	}
	return &Redis{URL: "redis://" + endpoint + "/0", container: container}, nil
}

// Close terminates the container.
func (r *Redis) Close(ctx context.Context) {
	if r.container != nil {
		_ = r.container.Terminate(ctx)
	}
}
