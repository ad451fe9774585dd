package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/tokenmint/internal/tokens/store"
	"github.com/aussiebroadwan/tokenmint/internal/tokens/store/storetest"
)

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		return NewStore()
	})
}

func TestConcurrentDeleteConsumesOnce(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := NewStore().AuthorizationCodes()

	rec := storetest.Record("web-app", "https://app.example/callback", "alice", time.Minute)
	require.NoError(t, repo.Insert(ctx, rec))

	const consumers = 32
	var wins int64
	var mu sync.Mutex
	var wg sync.WaitGroup

	for range consumers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			deleted, err := repo.Delete(ctx, rec)
			require.NoError(t, err)
			if deleted {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.EqualValues(t, 1, wins, "exactly one consumer may observe the record")
}
