package activity

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/cdesk/internal/models"
)

func TestRecordToolUse_WriteToolAttributesAssistant(t *testing.T) {
	c := New()

	e := c.RecordToolUse("s1", "write_file", json.RawMessage(`{"file_path":"/a/b.ts"}`))
	require.NotNil(t, e)
	assert.Equal(t, models.SourceAssistant, e.Source)
	assert.Equal(t, "/a/b.ts", e.Path)

	feed := c.Filtered("s1", FilterAll)
	require.Len(t, feed, 1)
	assert.Equal(t, models.SourceAssistant, feed[0].Source)
}

func TestRecordToolUse_IgnoresNonWriteTools(t *testing.T) {
	c := New()

	assert.Nil(t, c.RecordToolUse("s1", "read_file", json.RawMessage(`{"file_path":"/a/b.ts"}`)))
	assert.Nil(t, c.RecordToolUse("s1", "Bash", json.RawMessage(`{"command":"ls"}`)))
	assert.Empty(t, c.Filtered("s1", FilterAll))
}

func TestRecordToolUse_PathKeyPrecedence(t *testing.T) {
	c := New()

	e := c.RecordToolUse("s1", "Edit", json.RawMessage(`{"path":"/fallback","file_path":"/preferred"}`))
	require.NotNil(t, e)
	assert.Equal(t, "/preferred", e.Path)

	e = c.RecordToolUse("s1", "Edit", json.RawMessage(`{"filename":"notes.md"}`))
	require.NotNil(t, e)
	assert.Equal(t, "notes.md", e.Path)

	assert.Nil(t, c.RecordToolUse("s1", "Edit", json.RawMessage(`{"content":"no path here"}`)))
}

func TestRecordFileChange_DeduplicatesRecentAssistantWrite(t *testing.T) {
	c := New()

	c.RecordToolUse("s1", "Write", json.RawMessage(`{"file_path":"/a/b.ts"}`))

	// The watcher notification for the same path arrives within the window:
	// it is still recorded, but attributed to the assistant.
	e := c.RecordFileChange("s1", "/a/b.ts", models.OpModified, models.SourceExternal, time.Time{})
	require.NotNil(t, e)
	assert.Equal(t, models.SourceAssistant, e.Source)

	// An unrelated path stays external.
	e = c.RecordFileChange("s1", "/other.go", models.OpModified, models.SourceExternal, time.Time{})
	assert.Equal(t, models.SourceExternal, e.Source)
}

func TestRecordFileChange_AttributionExpires(t *testing.T) {
	c := New()
	current := time.Now()
	c.now = func() time.Time { return current }

	c.RecordToolUse("s1", "Write", json.RawMessage(`{"file_path":"/a/b.ts"}`))

	current = current.Add(attributionWindow + time.Millisecond)
	e := c.RecordFileChange("s1", "/a/b.ts", models.OpModified, models.SourceExternal, time.Time{})
	assert.Equal(t, models.SourceExternal, e.Source)
}

func TestFeedIsNewestFirstAndCapped(t *testing.T) {
	c := New()

	for i := 0; i < maxEntries+20; i++ {
		c.RecordFileChange("s1", fmt.Sprintf("/f/%d.go", i), models.OpCreated, models.SourceExternal, time.Time{})
	}

	feed := c.Filtered("s1", FilterAll)
	require.Len(t, feed, maxEntries)
	assert.Equal(t, fmt.Sprintf("/f/%d.go", maxEntries+19), feed[0].Path, "newest entry first")
}

func TestFiltered(t *testing.T) {
	c := New()
	c.RecordFileChange("s1", "/a.go", models.OpCreated, models.SourceExternal, time.Time{})
	c.RecordFileChange("s1", "/b.go", models.OpModified, models.SourceExternal, time.Time{})
	c.RecordFileChange("s1", "/c.go", models.OpDeleted, models.SourceExternal, time.Time{})
	c.RecordFileChange("s2", "/d.go", models.OpCreated, models.SourceExternal, time.Time{})

	assert.Len(t, c.Filtered("s1", FilterAll), 3)
	assert.Len(t, c.Filtered("s1", FilterCreated), 1)
	assert.Len(t, c.Filtered("s1", FilterModified), 1)
	assert.Len(t, c.Filtered("s1", FilterDeleted), 1)
	assert.Len(t, c.Filtered("s2", FilterAll), 1)
	assert.Empty(t, c.Filtered("s3", FilterAll))
}

func TestClear(t *testing.T) {
	c := New()
	c.RecordToolUse("s1", "Write", json.RawMessage(`{"file_path":"/a.go"}`))

	c.Clear("s1")

	assert.Empty(t, c.Filtered("s1", FilterAll))
	// Attribution state is gone too
	e := c.RecordFileChange("s1", "/a.go", models.OpModified, models.SourceExternal, time.Time{})
	assert.Equal(t, models.SourceExternal, e.Source)
}
