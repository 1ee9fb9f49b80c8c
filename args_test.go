package validatecache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	vcerrors "github.com/jacoelho/validatecache/errors"
)

func TestResolveArgs(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want Config
	}{
		{
			name: "cache and document",
			args: []string{"schema.cache", "doc.xml"},
			want: Config{CachePath: "schema.cache", DocumentPath: "doc.xml", Save: true},
		},
		{
			name: "explicit save",
			args: []string{"-save", "schema.cache", "doc.xml"},
			want: Config{CachePath: "schema.cache", DocumentPath: "doc.xml", Save: true},
		},
		{
			name: "save without cache",
			args: []string{"-save", "doc.xml"},
			want: Config{DocumentPath: "doc.xml"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveArgs(tt.args)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveArgsUsageErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{name: "none", args: nil},
		{name: "document only", args: []string{"doc.xml"}},
		{name: "save only", args: []string{"-save"}},
		{name: "too many", args: []string{"a", "b", "c"}},
		{name: "too many after save", args: []string{"-save", "a", "b", "c"}},
		{name: "save not first", args: []string{"schema.cache", "-save", "doc.xml"}},
		{name: "save twice", args: []string{"-save", "-save", "doc.xml"}},
		{name: "blank path", args: []string{"schema.cache", " "}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ResolveArgs(tt.args)
			require.Error(t, err)
			assert.True(t, vcerrors.IsCode(err, vcerrors.CodeUsage))
		})
	}
}
