package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryObjectStorage(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryObjectStorage()

	_, err := s.ObjectExists(ctx, "")
	require.Error(t, err)
	require.Error(t, s.Upload(ctx, "", []byte("x"), "text/plain"))

	data := []byte(`{"scope":"reconciliation"}` + "\n")
	require.NoError(t, s.Upload(ctx, "t1/feedback.ndjson", data, "application/x-ndjson"))
	data[0] = 'X'

	got, contentType, ok := s.Object("t1/feedback.ndjson")
	require.True(t, ok)
	assert.Equal(t, byte('{'), got[0], "stored bytes are a copy")
	assert.Equal(t, "application/x-ndjson", contentType)

	exists, err := s.ObjectExists(ctx, "t1/feedback.ndjson")
	require.NoError(t, err)
	assert.True(t, exists)

	url, expiresAt, err := s.GenerateDownloadURL(ctx, "t1/feedback.ndjson", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "memory://feedback/t1/feedback.ndjson", url)
	assert.True(t, expiresAt.After(time.Now()))

	assert.Equal(t, []string{"t1/feedback.ndjson"}, s.Keys())
}
