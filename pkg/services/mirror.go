package services

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// mirror maintains the on-disk copy of attachments under
// <root>/<section>[/<category>]/<name>. The store's in-memory file map is
// the authority; the mirror is derived and best-effort, so every failure
// is logged and swallowed.
type mirror struct {
	root   string
	logger *slog.Logger
}

// dir maps a key to its directory, or "" when the key or a file name
// would escape the root.
func (m *mirror) dir(key string) string {
	clean := filepath.Clean(filepath.FromSlash(key))
	if clean == "." || strings.Contains(clean, "..") || filepath.IsAbs(clean) {
		return ""
	}
	return filepath.Join(m.root, clean)
}

func (m *mirror) write(key, name string, data []byte) {
	dir := m.dir(key)
	if dir == "" || name != filepath.Base(name) {
		m.logger.Warn("mirror: refusing unsafe path", "key", key, "file", name)
		return
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		m.logger.Error("mirror: create directory", "dir", dir, "error", err)
		return
	}
	if err := os.WriteFile(filepath.Join(dir, name), data, 0644); err != nil {
		m.logger.Error("mirror: write file", "key", key, "file", name, "error", err)
	}
}

// removeKey drops a key's whole directory, including anything a collaborator
// left behind in it.
func (m *mirror) removeKey(key string) {
	dir := m.dir(key)
	if dir == "" {
		return
	}
	if err := os.RemoveAll(dir); err != nil {
		m.logger.Error("mirror: remove directory", "dir", dir, "error", err)
	}
}

// path returns where the on-disk copy of an attachment lives (what a UI
// collaborator opens or serves). It does not check existence.
func (m *mirror) path(key, name string) string {
	dir := m.dir(key)
	if dir == "" || name != filepath.Base(name) {
		return ""
	}
	return filepath.Join(dir, name)
}
