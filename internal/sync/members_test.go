package sync

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSearchKey(t *testing.T) {
	tests := []struct {
		handle string
		want   string
	}{
		{"jane.doe", "doe"},
		{"jane_doe", "doe"},
		{"jane-doe", "doe"},
		{"a.b.c", "c"},
		{"jdoe", "doe"},
		{"abc", "abc"},
		{"jd", "jd"},
	}
	for _, tt := range tests {
		t.Run(tt.handle, func(t *testing.T) {
			assert.Equal(t, tt.want, searchKey(tt.handle))
		})
	}
}

func TestSyntheticBotHandle(t *testing.T) {
	assert.True(t, syntheticBotHandle.MatchString("project_123_bot"))
	assert.True(t, syntheticBotHandle.MatchString("group_7_bot_abcd"))
	assert.False(t, syntheticBotHandle.MatchString("jane.doe"))
	assert.False(t, syntheticBotHandle.MatchString("robot_builder"))
}
