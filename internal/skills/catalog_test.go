package skills

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSkill(t *testing.T, dir, id, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, id), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, id, fileName), []byte(content), 0o644))
}

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantName string
		wantDesc string
		wantBody string
	}{
		{
			name:     "frontmatter",
			input:    "---\nname: Weather\ndescription: Look up a forecast\n---\n\n# Weather\nCall the script.",
			wantName: "Weather",
			wantDesc: "Look up a forecast",
			wantBody: "# Weather\nCall the script.",
		},
		{
			name:     "folded description",
			input:    "---\nname: notes\ndescription: >\n  Keep notes\n  in the workspace.\n---\nbody",
			wantName: "notes",
			wantDesc: "Keep notes in the workspace.",
			wantBody: "body",
		},
		{
			name:     "no frontmatter",
			input:    "\n# Budget helper\nTrack expenses.",
			wantName: "budget",
			wantDesc: "Budget helper",
			wantBody: "# Budget helper\nTrack expenses.",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse("budget", []byte(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, got.Name)
			assert.Equal(t, tt.wantDesc, got.Description)
			assert.Equal(t, tt.wantBody, got.Body)
		})
	}

	_, err := Parse("x", []byte("---\nname: broken\n"))
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	writeSkill(t, dir, "zeta", "---\nname: Zeta\ndescription: last\n---\nz body")
	writeSkill(t, dir, "alpha", "---\ndescription: first\n---\na body")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "empty"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("ignored"), 0o644))

	c, err := Load(dir)
	require.NoError(t, err)
	require.Equal(t, 2, c.Len())

	list := c.List()
	assert.Equal(t, "alpha", list[0].ID)
	assert.Equal(t, "alpha", list[0].Name)
	assert.Equal(t, "zeta", list[1].ID)

	s, err := c.Get("zeta")
	require.NoError(t, err)
	assert.Equal(t, "z body", s.Body)

	_, err = c.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLoadMissingDir(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)
	assert.Zero(t, c.Len())
	assert.Empty(t, c.List())
}
