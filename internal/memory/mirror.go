package memory

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rcliao/recall/internal/model"
)

const mirrorHeader = "# Memories\n\n<!-- Generated from the memory store. Edits will be overwritten. -->\n\n"

// WriteMirror regenerates the mirror file from the full active set.
func (m *Manager) WriteMirror(ctx context.Context) error {
	if m.mirror == "" {
		return nil
	}
	mems, err := m.store.GetActiveMemories(ctx)
	if err != nil {
		return fmt.Errorf("load active memories: %w", err)
	}
	return writeFileAtomic(m.mirror, []byte(RenderMirror(mems)))
}

// RenderMirror formats memories as a flat Markdown list.
func RenderMirror(mems []model.Memory) string {
	var b strings.Builder
	b.WriteString(mirrorHeader)
	for _, mem := range mems {
		b.WriteString("- ")
		b.WriteString(strings.ReplaceAll(mem.Fact, "\n", " "))
		b.WriteString("\n")
	}
	return b.String()
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".mirror-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
