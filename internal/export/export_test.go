package export

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resume-pipeline/internal/shared/storage/object/local"
)

func TestKey(t *testing.T) {
	key, err := Key(Document{CandidateID: "cand-1", ApplicationID: "app-1", Type: "cover_letter", Language: "de"})
	require.NoError(t, err)
	parts := strings.Split(key, "/")
	require.Len(t, parts, 3)
	assert.Len(t, parts[0], 16)
	assert.Equal(t, "app-1", parts[1])
	assert.Equal(t, "cover_letter.de.md", parts[2])

	_, err = Key(Document{ApplicationID: "app-1", Type: "vpr"})
	require.Error(t, err)
	_, err = Key(Document{CandidateID: "c", ApplicationID: "../etc", Type: "vpr"})
	require.Error(t, err)
}

func TestObjectStoreSinkWritesMarkdown(t *testing.T) {
	store := local.New(t.TempDir())
	sink := NewObjectStoreSink(store)

	doc := Document{CandidateID: "cand-1", ApplicationID: "app-1", Type: "vpr", Language: "en", Status: "NEEDS_MANUAL_REVIEW", Content: "# VPR"}
	key, err := sink.Emit(context.Background(), doc)
	require.NoError(t, err)

	rc, err := store.Open(context.Background(), key)
	require.NoError(t, err)
	defer rc.Close()
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "<!-- status: NEEDS_MANUAL_REVIEW -->\n# VPR", string(body))
}
