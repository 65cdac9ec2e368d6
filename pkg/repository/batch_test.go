package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glossforge/glossforge/pkg/database"
	"github.com/glossforge/glossforge/pkg/models"
)

func TestBatchInsertChunksLargeBatches(t *testing.T) {
	db := openProjectDB(t)
	ctx := context.Background()

	// 900 rows at 2 columns exceeds the per-statement variable budget, so
	// the helper must split into multiple statements.
	terms := make([]models.ExtractedTerm, 900)
	for i := range terms {
		terms[i] = models.ExtractedTerm{TermText: fmt.Sprintf("term-%03d", i), Category: models.CategoryTechnical}
	}

	err := db.Handle().InTx(ctx, func(h *database.Handle) error {
		return InsertExtractedTerms(ctx, h, terms)
	})
	require.NoError(t, err)

	stored, err := ListExtractedTerms(ctx, db.Handle())
	require.NoError(t, err)
	assert.Len(t, stored, 900)
	assert.Equal(t, "term-000", stored[0].TermText)
	assert.Equal(t, "term-899", stored[899].TermText)
}

func TestBatchInsertRollsBackAtomically(t *testing.T) {
	db := openProjectDB(t)
	ctx := context.Background()

	terms := make([]models.ExtractedTerm, 900)
	for i := range terms {
		terms[i] = models.ExtractedTerm{TermText: fmt.Sprintf("term-%03d", i)}
	}

	boom := errors.New("post-insert failure")
	err := db.Handle().InTx(ctx, func(h *database.Handle) error {
		if err := InsertExtractedTerms(ctx, h, terms); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	// All chunks share the surrounding transaction, so nothing is visible.
	stored, err := ListExtractedTerms(ctx, db.Handle())
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestBatchInsertEmptyIsNoOp(t *testing.T) {
	db := openProjectDB(t)
	require.NoError(t, InsertExtractedTerms(context.Background(), db.Handle(), nil))
}
