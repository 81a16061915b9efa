package memory_test

import (
	"context"
	"testing"

	"github.com/dripline/dripline/pkg/persistence"
	"github.com/dripline/dripline/pkg/persistence/memory"
	"github.com/dripline/dripline/pkg/testutil"
	"github.com/stretchr/testify/require"
)

func TestMemoryPersistence(t *testing.T) {
	testutil.RunPersistenceSuite(t, func(t *testing.T) (persistence.Persistence, context.Context) {
		t.Helper()

		p, err := memory.NewPersistence(testutil.Logger())
		require.NoError(t, err)

		return p, context.Background()
	})
}
