package mounts

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/shirou/gopsutil/v4/disk"
	"golang.org/x/sys/unix"
)

// Entry is one mounted filesystem as seen at refresh time.
type Entry struct {
	Device     uint64
	MountPoint string
	FSType     string
	Source     string
}

// Manager holds an immutable snapshot of the mount table. Refresh swaps
// the snapshot wholesale; lookups never see a half-updated table.
type Manager struct {
	mu   sync.RWMutex
	list func() ([]Entry, error)
	snap []Entry
}

func NewManager() *Manager {
	return &Manager{list: listSystemMounts}
}

// NewManagerWithLister substitutes the mount enumeration, for tests.
func NewManagerWithLister(list func() ([]Entry, error)) *Manager {
	if list == nil {
		list = listSystemMounts
	}
	return &Manager{list: list}
}

// Refresh re-enumerates mounts and replaces the snapshot. On error the
// previous snapshot stays in place.
func (m *Manager) Refresh() error {
	if m == nil {
		return fmt.Errorf("manager is nil")
	}
	entries, err := m.list()
	if err != nil {
		return err
	}

	// Longest mount point first, so a linear scan finds the deepest match.
	sort.Slice(entries, func(i, j int) bool {
		return len(entries[i].MountPoint) > len(entries[j].MountPoint)
	})

	m.mu.Lock()
	m.snap = entries
	m.mu.Unlock()
	return nil
}

func (m *Manager) snapshot() []Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snap
}

// PathMatchesType reports whether the deepest mount containing path has
// the given filesystem type. An unresolvable path matches nothing.
func (m *Manager) PathMatchesType(path string, fstype string) bool {
	if m == nil {
		return false
	}
	e, ok := m.mountFor(path)
	if !ok {
		return false
	}
	return e.FSType == fstype
}

// EntryForDevice returns the mount whose filesystem has the given
// device id.
func (m *Manager) EntryForDevice(dev uint64) (Entry, bool) {
	if m == nil {
		return Entry{}, false
	}
	for _, e := range m.snapshot() {
		if e.Device == dev {
			return e, true
		}
	}
	return Entry{}, false
}

// MountPointFor returns the mount point of the filesystem with the
// given device id.
func (m *Manager) MountPointFor(dev uint64) (string, bool) {
	e, ok := m.EntryForDevice(dev)
	if !ok {
		return "", false
	}
	return e.MountPoint, true
}

// ContainsDevice reports whether any mounted filesystem has the given
// device id.
func (m *Manager) ContainsDevice(dev uint64) bool {
	_, ok := m.EntryForDevice(dev)
	return ok
}

func (m *Manager) Len() int {
	return len(m.snapshot())
}

func (m *Manager) mountFor(path string) (Entry, bool) {
	path = filepath.Clean(strings.TrimSpace(path))
	if path == "" || !filepath.IsAbs(path) {
		return Entry{}, false
	}
	for _, e := range m.snapshot() {
		if underMount(path, e.MountPoint) {
			return e, true
		}
	}
	return Entry{}, false
}

func underMount(path string, mountPoint string) bool {
	if mountPoint == "" {
		return false
	}
	if mountPoint == "/" {
		return true
	}
	if path == mountPoint {
		return true
	}
	return strings.HasPrefix(path, mountPoint+"/")
}

func listSystemMounts() ([]Entry, error) {
	parts, err := disk.Partitions(true)
	if err != nil {
		return nil, fmt.Errorf("enumerate partitions: %w", err)
	}

	entries := make([]Entry, 0, len(parts))
	for _, p := range parts {
		var st unix.Stat_t
		if err := unix.Stat(p.Mountpoint, &st); err != nil {
			// Unreachable mount point (stale NFS, restricted autofs).
			continue
		}
		entries = append(entries, Entry{
			Device:     uint64(st.Dev),
			MountPoint: p.Mountpoint,
			FSType:     p.Fstype,
			Source:     p.Device,
		})
	}
	return entries, nil
}
