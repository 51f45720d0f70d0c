package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patentsearch/evidence-engine/internal/infrastructure/monitoring/logging"
)

func TestNewClient_Success(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client, err := NewClient(mr.Addr(), logging.NewNopLogger())
	require.NoError(t, err)
	require.NotNil(t, client)

	assert.NoError(t, client.Ping(context.Background()))
	client.Close()
}

func TestNewClient_ConnectionFailed(t *testing.T) {
	client, err := NewClient("localhost:1", logging.NewNopLogger())
	assert.Error(t, err)
	assert.Nil(t, client)
}

func TestClient_Close(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client, err := NewClient(mr.Addr(), logging.NewNopLogger())
	require.NoError(t, err)

	require.NoError(t, client.Close())

	err = client.Ping(context.Background())
	assert.Equal(t, ErrClientClosed, err)

	// Double close is a no-op.
	assert.NoError(t, client.Close())
}
