package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecord_Clone_IsDeep(t *testing.T) {
	rid := int64(7)
	deleted := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	orig := &Record{
		ID:        "a1",
		RemoteID:  &rid,
		DeletedAt: &deleted,
		Data:      []byte(`{"v":1}`),
	}

	c := orig.Clone()
	*c.RemoteID = 8
	*c.DeletedAt = deleted.Add(time.Hour)
	c.Data[len(c.Data)-2] = '2'

	assert.Equal(t, int64(7), *orig.RemoteID)
	assert.True(t, orig.DeletedAt.Equal(deleted))
	assert.Equal(t, `{"v":1}`, string(orig.Data))
}

func TestRecord_Deleted(t *testing.T) {
	r := &Record{}
	require.False(t, r.Deleted())
	now := time.Now()
	r.DeletedAt = &now
	require.True(t, r.Deleted())
}
