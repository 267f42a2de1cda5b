package ports

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/revisit/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunModelStoreContract runs a suite of tests to verify that a ModelStore implementation
// adheres to the defined interface contract. Notifications may be asynchronous.
func RunModelStoreContract(t *testing.T, store ModelStore) {
	ctx := context.Background()

	t.Run("Get Unwritten", func(t *testing.T) {
		_, err := store.Get(ctx, FieldExportJSON)
		assert.ErrorIs(t, err, domain.ErrFieldNotFound)
	})

	t.Run("Set and Get", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, FieldSequence, json.RawMessage(`[["A","B"]]`)))

		got, err := store.Get(ctx, FieldSequence)
		require.NoError(t, err)
		assert.JSONEq(t, `[["A","B"]]`, string(got))
	})

	t.Run("Last Write Wins", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, FieldExportTidy, json.RawMessage(`{"header":["a"],"rows":[[1]]}`)))
		require.NoError(t, store.Set(ctx, FieldExportTidy, json.RawMessage(`{"header":["b"],"rows":[]}`)))

		got, err := store.Get(ctx, FieldExportTidy)
		require.NoError(t, err)
		assert.JSONEq(t, `{"header":["b"],"rows":[]}`, string(got))
	})

	t.Run("Subscribe and Unsubscribe", func(t *testing.T) {
		var mu sync.Mutex
		var seen []string

		unsubscribe, err := store.Subscribe(ctx, FieldConfig, func(value json.RawMessage) {
			mu.Lock()
			defer mu.Unlock()
			seen = append(seen, string(value))
		})
		require.NoError(t, err)

		require.NoError(t, store.Set(ctx, FieldConfig, json.RawMessage(`{"v":1}`)))
		// Writes to other fields are not delivered.
		require.NoError(t, store.Set(ctx, FieldSequence, json.RawMessage(`[]`)))

		assert.Eventually(t, func() bool {
			mu.Lock()
			defer mu.Unlock()
			return len(seen) == 1
		}, 2*time.Second, 10*time.Millisecond)

		unsubscribe()
		require.NoError(t, store.Set(ctx, FieldConfig, json.RawMessage(`{"v":2}`)))
		time.Sleep(50 * time.Millisecond)

		mu.Lock()
		defer mu.Unlock()
		require.Len(t, seen, 1)
		assert.JSONEq(t, `{"v":1}`, seen[0])
	})
}
