package local

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resume-pipeline/internal/shared/storage/object"
)

func TestPutThenOpen(t *testing.T) {
	store := New(t.TempDir())
	ctx := context.Background()

	n, err := store.Put(ctx, "cand/app-1/vpr.en.md", "text/markdown", strings.NewReader("# VPR"))
	require.NoError(t, err)
	assert.EqualValues(t, 5, n)

	rc, err := store.Open(ctx, "cand/app-1/vpr.en.md")
	require.NoError(t, err)
	defer rc.Close()
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "# VPR", string(body))
}

func TestPutRejectsTraversal(t *testing.T) {
	store := New(t.TempDir())
	_, err := store.Put(context.Background(), "../escape.md", "text/markdown", strings.NewReader("x"))
	assert.ErrorIs(t, err, object.ErrInvalidKey)
}
