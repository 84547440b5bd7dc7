package sync

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeDescription(t *testing.T) {
	tests := []struct {
		name string
		desc string
		url  string
		want string
	}{
		{
			name: "no existing source line",
			desc: "Body text here.",
			url:  "https://gitlab.example.com/team/repo/-/issues/5",
			want: "Source: https://gitlab.example.com/team/repo/-/issues/5\n\nBody text here.",
		},
		{
			name: "replaces existing source line case-insensitively",
			desc: "source: https://old.example.com/x\n\nBody text here.",
			url:  "https://gitlab.example.com/team/repo/-/issues/5",
			want: "Source: https://gitlab.example.com/team/repo/-/issues/5\n\nBody text here.",
		},
		{
			name: "empty body after stripping",
			desc: "Source: https://old.example.com/x",
			url:  "https://gitlab.example.com/team/repo/-/issues/5",
			want: "Source: https://gitlab.example.com/team/repo/-/issues/5",
		},
		{
			name: "empty description",
			desc: "",
			url:  "https://gitlab.example.com/team/repo/-/issues/5",
			want: "Source: https://gitlab.example.com/team/repo/-/issues/5",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeDescription(tt.desc, tt.url))
		})
	}
}

func TestNormalizeDescriptionIsIdempotent(t *testing.T) {
	url := "https://gitlab.example.com/team/repo/-/issues/5"
	once := NormalizeDescription("Body text here.", url)
	twice := NormalizeDescription(once, url)
	assert.Equal(t, once, twice)
}
