package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrNetworkFilesystem is returned when the state database would live on a
// network mount, where SQLite's file locks do not hold across hosts.
var ErrNetworkFilesystem = errors.New("state database on network filesystem")

// errDetectUnsupported means this platform cannot name filesystem types.
var errDetectUnsupported = errors.New("filesystem detection unsupported")

var networkFilesystems = map[string]bool{
	"9p":         true,
	"afpfs":      true,
	"ceph":       true,
	"cifs":       true,
	"fuse.sshfs": true,
	"nfs":        true,
	"smb2":       true,
	"smbfs":      true,
	"webdav":     true,
}

// Placement describes where a state database file would be created.
type Placement struct {
	Path       string // database path as configured
	Inspected  string // nearest existing ancestor that was examined
	Filesystem string // filesystem type, empty if the platform cannot tell
}

// Network reports whether the database would sit on a network mount.
func (p Placement) Network() bool {
	return networkFilesystems[strings.ToLower(strings.TrimSpace(p.Filesystem))]
}

func (p Placement) String() string {
	fs := p.Filesystem
	if fs == "" {
		fs = "unknown"
	}
	return fmt.Sprintf("%s (filesystem %s at %s)", p.Path, fs, p.Inspected)
}

// InspectPlacement examines the filesystem that would hold the database at
// path. The file itself need not exist yet.
func InspectPlacement(path string) (Placement, error) {
	return inspectPlacement(path, detectFilesystemType)
}

func inspectPlacement(path string, detect func(string) (string, error)) (Placement, error) {
	p := Placement{Path: path}
	if path == "" {
		return p, fmt.Errorf("state database path is empty")
	}

	inspect, err := nearestExistingPath(path)
	if err != nil {
		return p, fmt.Errorf("resolve state database path %q: %w", path, err)
	}
	p.Inspected = inspect

	fsType, err := detect(inspect)
	if errors.Is(err, errDetectUnsupported) {
		return p, nil
	}
	if err != nil {
		return p, fmt.Errorf("detect filesystem for state database %q: %w", path, err)
	}
	p.Filesystem = fsType
	return p, nil
}

// checkPlacement rejects state databases on network mounts. The reply cache
// and message log both depend on SQLite locking.
func checkPlacement(path string, detect func(string) (string, error)) error {
	p, err := inspectPlacement(path, detect)
	if err != nil {
		return err
	}
	if p.Network() {
		return fmt.Errorf("%w: %s; reply_cache and message_log need a local file, set state.path accordingly",
			ErrNetworkFilesystem, p)
	}
	return nil
}

func nearestExistingPath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("absolute path: %w", err)
	}

	for candidate := abs; ; {
		_, err := os.Stat(candidate)
		if err == nil {
			return candidate, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("stat %q: %w", candidate, err)
		}
		parent := filepath.Dir(candidate)
		if parent == candidate {
			return "", fmt.Errorf("no existing parent for %q", abs)
		}
		candidate = parent
	}
}
