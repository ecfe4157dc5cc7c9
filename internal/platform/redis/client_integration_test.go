//go:build integration

package redis

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kycflow/internal/platform/config"
	"kycflow/pkg/testutil/containers"
)

func TestClientAgainstContainer(t *testing.T) {
	rc := containers.Redis(t)
	reg := prometheus.NewRegistry()

	client, err := New(context.Background(), config.RedisConfig{URL: rc.URL, PoolSize: 4}, reg)
	require.NoError(t, err)
	require.NotNil(t, client)
	defer client.Close() //nolint:errcheck

	require.NoError(t, client.Health(context.Background()))
	client.RecordPoolStats()

	assert.GreaterOrEqual(t, testutil.ToFloat64(client.metrics.totalConns), float64(1))
}
