package cmd_test

import (
	"context"
	"testing"

	"github.com/dripline/dripline/pkg/cmd"
	"github.com/dripline/dripline/pkg/models"
	"github.com/dripline/dripline/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPersistence(t *testing.T) {
	ctx := context.Background()

	p, err := cmd.NewPersistence(ctx, testutil.Logger(), "memory://")
	require.NoError(t, err)
	require.NoError(t, p.HealthCheck(ctx))
	require.NoError(t, p.Close(ctx))

	_, err = cmd.NewPersistence(ctx, testutil.Logger(), "file:///tmp/data")
	assert.ErrorIs(t, err, cmd.ErrUnsupportedPersistence)
}

func TestNewEventBus(t *testing.T) {
	bus, err := cmd.NewEventBus("gochannel", nil, testutil.Logger())
	require.NoError(t, err)
	require.NoError(t, bus.Close())

	_, err = cmd.NewEventBus("nats", nil, testutil.Logger())
	assert.ErrorIs(t, err, cmd.ErrUnsupportedEventBus)

	_, err = cmd.NewEventBus("kafka", nil, testutil.Logger())
	assert.Error(t, err)
}

func TestRegisterNodes(t *testing.T) {
	p, err := cmd.NewPersistence(context.Background(), testutil.Logger(), "memory://")
	require.NoError(t, err)

	reg := cmd.NewRegistry(testutil.Logger())
	cmd.RegisterNodes(reg, testutil.Logger(), cmd.NodeDeps{Persistence: p})

	assert.ElementsMatch(t, []models.NodeType{
		models.NodeTypeEmail,
		models.NodeTypeDelay,
		models.NodeTypeCondition,
		models.NodeTypeEnd,
	}, reg.Types())
}
