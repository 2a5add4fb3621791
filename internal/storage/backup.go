package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// backupTimeLayout orders backup filenames lexicographically by creation
// time, so the newest backup is the last name in sorted order.
const backupTimeLayout = "20060102-150405.000000000"

// Backup copies the current cache file into the backup directory under a
// timestamped name. Called before every destructive cache write; a missing
// cache file means there is nothing to protect and is not an error.
func (m *fileCacheManager) Backup() error {
	data, err := os.ReadFile(m.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("backing up cache: %w", err)
	}

	if err := os.MkdirAll(m.backupDir, 0o750); err != nil {
		return fmt.Errorf("backing up cache: creating backup directory: %w", err)
	}

	name := fmt.Sprintf("active_task-%s.json", time.Now().UTC().Format(backupTimeLayout))
	if err := os.WriteFile(filepath.Join(m.backupDir, name), data, 0o600); err != nil {
		return fmt.Errorf("backing up cache: writing %s: %w", name, err)
	}
	return nil
}

// HasBackup reports whether at least one backup exists.
func (m *fileCacheManager) HasBackup() bool {
	return m.latestBackup() != ""
}

// RollbackFromBackup restores the most recent backup over the cache file.
// Used when the cache is found corrupted or a write partially failed and
// the queue cannot supply the data.
func (m *fileCacheManager) RollbackFromBackup() error {
	latest := m.latestBackup()
	if latest == "" {
		return fmt.Errorf("rolling back cache: no backup available")
	}

	data, err := os.ReadFile(latest)
	if err != nil {
		return fmt.Errorf("rolling back cache: reading %s: %w", latest, err)
	}
	if err := os.MkdirAll(m.basePath, 0o750); err != nil {
		return fmt.Errorf("rolling back cache: creating directory: %w", err)
	}
	if err := os.WriteFile(m.Path(), data, 0o600); err != nil {
		return fmt.Errorf("rolling back cache: writing cache: %w", err)
	}
	return nil
}

// latestBackup returns the path of the newest backup file, or "".
func (m *fileCacheManager) latestBackup() string {
	entries, err := os.ReadDir(m.backupDir)
	if err != nil {
		return ""
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, "active_task-") && strings.HasSuffix(name, ".json") {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return ""
	}
	sort.Strings(names)
	return filepath.Join(m.backupDir, names[len(names)-1])
}
