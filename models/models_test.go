package models

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRequestRecord(t *testing.T) {
	record := NewRequestRecord("req-1", "auto")

	assert.NotEqual(t, record.ID.String(), "00000000-0000-0000-0000-000000000000")
	assert.Equal(t, "req-1", record.RequestID)
	assert.Equal(t, "auto", record.RequestedModel)
	assert.False(t, record.CreatedAt.IsZero())
}

func TestRequestRecord_MarkCompleted(t *testing.T) {
	record := NewRequestRecord("req-1", "auto")
	record.MarkCompleted("gemini", "gemini-2.0-flash", 2)
	record.SetUsage(10, 5, 15)

	assert.Equal(t, RequestStatusCompleted, record.Status)
	assert.Equal(t, "gemini", record.Provider)
	assert.Equal(t, "gemini-2.0-flash", record.Model)
	assert.Equal(t, 2, record.Attempts)
	assert.Equal(t, 15, record.TotalTokens)
	assert.Nil(t, record.ErrorMessage)
}

func TestRequestRecord_MarkFailed(t *testing.T) {
	record := NewRequestRecord("req-1", "gpt-4o")
	record.MarkFailed(3, errors.New("all models failed"))

	assert.Equal(t, RequestStatusFailed, record.Status)
	assert.Equal(t, 3, record.Attempts)
	require.NotNil(t, record.ErrorMessage)
	assert.Equal(t, "all models failed", *record.ErrorMessage)
}

func TestRequestRecord_MarkRejected(t *testing.T) {
	record := NewRequestRecord("req-1", "llama-70b")
	record.MarkRejected(errors.New("model not in fallback chain"))

	assert.Equal(t, RequestStatusRejected, record.Status)
	assert.Equal(t, 0, record.Attempts)
	require.NotNil(t, record.ErrorMessage)
}
