// internal/services/run_store_test.go
package services

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Corphon/PolyglotRunner/internal/errors"
	"github.com/Corphon/PolyglotRunner/internal/models"
)

func TestRunStoreSaveGetList(t *testing.T) {
	store := newTestStore(t)
	started := time.Now().Add(-time.Second).Truncate(time.Millisecond)

	for i := 0; i < 3; i++ {
		record := &models.RunRecord{
			ID:         uuid.NewString(),
			Document:   "::py\nprint(1)\n::/py",
			Mode:       models.ModeSequential,
			Lines:      []string{"1"},
			Outcome:    models.RunCompleted,
			BlockCount: 1,
			StartedAt:  started,
			FinishedAt: started.Add(time.Duration(i) * time.Millisecond),
		}
		require.NoError(t, store.Save(record))

		loaded, err := store.Get(record.ID)
		require.NoError(t, err)
		assert.Equal(t, record.Document, loaded.Document)
		assert.Equal(t, record.Lines, loaded.Lines)
		assert.True(t, record.StartedAt.Equal(loaded.StartedAt))
	}

	all, err := store.List(0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
	assert.Equal(t, 1, all[0].LineCount)

	limited, err := store.List(2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestRunStoreRejectsInvalidIDs(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Get("../../etc/passwd")
	assert.True(t, apperrors.IsValidationError(err))

	err = store.Save(&models.RunRecord{ID: "not-a-uuid"})
	assert.True(t, apperrors.IsValidationError(err))

	_, err = store.Get(uuid.NewString())
	assert.True(t, apperrors.IsNotFoundError(err), "不存在的记录返回 NotFound")
}
