package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"syscall"
	"time"
)

// DiscoveryInfo is the JSON document a running engine writes so local
// clients can find it without being told a port in advance. It must
// never carry the auth token.
type DiscoveryInfo struct {
	SessionID       string `json:"session_id"`
	Port            int    `json:"port"`
	PID             int    `json:"pid"`
	WorkbookPath    string `json:"workbook_path,omitempty"`
	WorkbookTitle   string `json:"workbook_title,omitempty"`
	CreatedAt       string `json:"created_at"`
	ProtocolVersion int    `json:"protocol_version"`
}

// DiscoveryDir returns the platform-specific directory discovery files
// live in, creating it if absent. appName names the subdirectory (the
// "app" of each platform's convention).
func DiscoveryDir(appName string) (string, error) {
	var base string
	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, "Library", "Application Support", appName, "sessions")
	case "windows":
		local := os.Getenv("LOCALAPPDATA")
		if local == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			local = home
		}
		base = filepath.Join(local, appName, "sessions")
	default:
		state := os.Getenv("XDG_STATE_HOME")
		if state == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			state = filepath.Join(home, ".local", "state")
		}
		base = filepath.Join(state, appName, "sessions")
	}
	if err := os.MkdirAll(base, 0o755); err != nil {
		return "", fmt.Errorf("discovery: mkdir %s: %w", base, err)
	}
	return base, nil
}

// Write atomically publishes info's discovery file: write to a temp
// file in the same directory, then rename into place, so a reader
// never observes a partially written file.
func Write(dir string, info DiscoveryInfo) (string, error) {
	path := filepath.Join(dir, info.SessionID+".json")
	tmp, err := os.CreateTemp(dir, info.SessionID+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("discovery: create temp: %w", err)
	}
	tmpPath := tmp.Name()
	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(info); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("discovery: encode: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("discovery: close temp: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("discovery: rename: %w", err)
	}
	return path, nil
}

// Remove deletes a session's discovery file on shutdown. A missing
// file is not an error.
func Remove(dir, sessionID string) error {
	err := os.Remove(filepath.Join(dir, sessionID+".json"))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// NewSessionID returns a time-seeded identifier suitable as a
// discovery file name; callers that need RFC 4122 uniqueness should
// supply their own UUID source, but the core has no dependency on one.
func NewSessionID() string {
	return strconv.FormatInt(time.Now().UnixNano(), 36)
}

// SweepStale removes every discovery file in dir whose pid does not
// correspond to a live process, per the original's stale-file cleanup
// behavior. It is meant to run once at server startup.
func SweepStale(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, ent := range entries {
		if ent.IsDir() || filepath.Ext(ent.Name()) != ".json" {
			continue
		}
		path := filepath.Join(dir, ent.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var info DiscoveryInfo
		if err := json.Unmarshal(data, &info); err != nil {
			continue
		}
		if !pidAlive(info.PID) {
			os.Remove(path)
		}
	}
	return nil
}

// pidAlive reports whether pid names a live process, using the
// standard "send signal 0" liveness probe.
func pidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}
