package memory_test

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/aretw0/revisit/pkg/adapters/memory"
	"github.com/aretw0/revisit/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_Contract(t *testing.T) {
	store := memory.NewStore()
	ports.RunModelStoreContract(t, store)
}

func TestMemoryStore_NotifiesSynchronously(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()

	var got string
	_, err := store.Subscribe(ctx, ports.FieldSequence, func(v json.RawMessage) { got = string(v) })
	require.NoError(t, err)

	require.NoError(t, store.Set(ctx, ports.FieldSequence, json.RawMessage(`[["A"]]`)))
	assert.Equal(t, `[["A"]]`, got)
}

func TestMemoryStore_CopyOnRead(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, ports.FieldConfig, json.RawMessage(`{"a":1}`)))

	v, err := store.Get(ctx, ports.FieldConfig)
	require.NoError(t, err)
	v[0] = 'X'

	again, err := store.Get(ctx, ports.FieldConfig)
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(again))
	assert.Len(t, store.Snapshot(), 1)
}

func TestMemoryStore_SubscriberMayWrite(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()

	_, err := store.Subscribe(ctx, ports.FieldSequence, func(v json.RawMessage) {
		require.NoError(t, store.Set(ctx, ports.FieldExportJSON, v))
	})
	require.NoError(t, err)
	require.NoError(t, store.Set(ctx, ports.FieldSequence, json.RawMessage(`[]`)))

	v, err := store.Get(ctx, ports.FieldExportJSON)
	require.NoError(t, err)
	assert.Equal(t, `[]`, string(v))
}

func TestMemoryStore_ConcurrentWritesNotifyLatest(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()

	var mu sync.Mutex
	var last string
	_, err := store.Subscribe(ctx, ports.FieldSequence, func(v json.RawMessage) {
		mu.Lock()
		defer mu.Unlock()
		last = string(v)
	})
	require.NoError(t, err)

	for round := 0; round < 200; round++ {
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				assert.NoError(t, store.Set(ctx, ports.FieldSequence, json.RawMessage(fmt.Sprintf(`[["S%d"]]`, i))))
			}(i)
		}
		wg.Wait()

		stored, err := store.Get(ctx, ports.FieldSequence)
		require.NoError(t, err)
		mu.Lock()
		require.Equal(t, string(stored), last, "round %d", round)
		mu.Unlock()
	}
}

func TestMemoryStore_SubscriberMayRewriteField(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()

	var seen []string
	_, err := store.Subscribe(ctx, ports.FieldConfig, func(v json.RawMessage) {
		seen = append(seen, string(v))
		if string(v) == `{"v":1}` {
			require.NoError(t, store.Set(ctx, ports.FieldConfig, json.RawMessage(`{"v":2}`)))
		}
	})
	require.NoError(t, err)

	require.NoError(t, store.Set(ctx, ports.FieldConfig, json.RawMessage(`{"v":1}`)))
	assert.Equal(t, []string{`{"v":1}`, `{"v":2}`}, seen)
}

func TestMemoryStore_PanickingSubscriberDoesNotStall(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()

	var got string
	_, err := store.Subscribe(ctx, ports.FieldSequence, func(v json.RawMessage) {
		if string(v) == `"boom"` {
			panic("subscriber failed")
		}
		got = string(v)
	})
	require.NoError(t, err)

	assert.Panics(t, func() {
		_ = store.Set(ctx, ports.FieldSequence, json.RawMessage(`"boom"`))
	})
	require.NoError(t, store.Set(ctx, ports.FieldSequence, json.RawMessage(`[]`)))
	assert.Equal(t, `[]`, got)
}
