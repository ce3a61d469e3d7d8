package mcp

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/tailscale/hujson"
)

// FormatVersion is the on-disk format version of the server list file.
const FormatVersion = 1

// Sentinel errors for store operations.
var (
	// ErrServerNotFound indicates the requested server id is not in the store.
	ErrServerNotFound = errors.New("server not found")

	// ErrUnsupportedVersion indicates the file was written by a newer format.
	ErrUnsupportedVersion = errors.New("unsupported server list version")

	// ErrInvalidConfig indicates a configuration whose transport kind or
	// required transport field would never produce a usable transport.
	ErrInvalidConfig = errors.New("invalid server configuration")
)

// storeFile is the persisted shape: an ordered list of configurations plus a
// format-version integer.
type storeFile struct {
	Version int            `json:"version"`
	Servers []ServerConfig `json:"servers"`
}

// ExportedServer is a ServerConfig minus identity and timestamps. Both are
// regenerated on import.
type ExportedServer struct {
	Name      string        `json:"name"`
	Transport TransportKind `json:"transportType"`
	Stdio     *StdioConfig  `json:"stdioConfig,omitempty"`
	HTTP      *HTTPConfig   `json:"httpConfig,omitempty"`
	Enabled   bool          `json:"enabled"`
}

// Export is the portable form of a server list.
type Export struct {
	Version int              `json:"version"`
	Servers []ExportedServer `json:"servers"`
}

// Store persists MCP server configurations to a single JSON file. The file
// may contain comments and trailing commas (JWCC); writes emit plain JSON.
// Read-modify-write cycles are serialized across processes with an advisory
// file lock.
type Store struct {
	path   string
	lock   *flock.Flock
	logger *slog.Logger
}

// NewStore creates a Store backed by the file at path. The file need not
// exist yet; a missing file reads as an empty list.
func NewStore(path string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		path:   path,
		lock:   flock.New(path + ".lock"),
		logger: logger,
	}
}

// List returns all configured servers in stored order.
func (s *Store) List() ([]ServerConfig, error) {
	if err := s.lock.Lock(); err != nil {
		return nil, fmt.Errorf("locking server list: %w", err)
	}
	defer s.unlock()

	file, err := s.read()
	if err != nil {
		return nil, err
	}
	return file.Servers, nil
}

// Get returns the configuration for id, or ErrServerNotFound.
func (s *Store) Get(id string) (ServerConfig, error) {
	servers, err := s.List()
	if err != nil {
		return ServerConfig{}, err
	}
	for _, cfg := range servers {
		if cfg.ID == id {
			return cfg, nil
		}
	}
	return ServerConfig{}, fmt.Errorf("server %q: %w", id, ErrServerNotFound)
}

// Add appends a new server configuration. The id and timestamps in cfg are
// ignored and generated fresh.
func (s *Store) Add(cfg ServerConfig) (ServerConfig, error) {
	if err := cfg.validate(); err != nil {
		return ServerConfig{}, err
	}
	if err := s.lock.Lock(); err != nil {
		return ServerConfig{}, fmt.Errorf("locking server list: %w", err)
	}
	defer s.unlock()

	file, err := s.read()
	if err != nil {
		return ServerConfig{}, err
	}

	now := time.Now().UTC()
	cfg.ID = uuid.NewString()
	cfg.CreatedAt = now
	cfg.UpdatedAt = now
	file.Servers = append(file.Servers, cfg)

	if err := s.write(file); err != nil {
		return ServerConfig{}, err
	}
	s.logger.Debug("added MCP server config", "server_id", cfg.ID, "name", cfg.Name)
	return cfg, nil
}

// Update replaces the stored configuration for cfg.ID, preserving its
// creation timestamp and refreshing updated_at.
func (s *Store) Update(cfg ServerConfig) (ServerConfig, error) {
	if err := cfg.validate(); err != nil {
		return ServerConfig{}, err
	}
	if err := s.lock.Lock(); err != nil {
		return ServerConfig{}, fmt.Errorf("locking server list: %w", err)
	}
	defer s.unlock()

	file, err := s.read()
	if err != nil {
		return ServerConfig{}, err
	}

	for i, existing := range file.Servers {
		if existing.ID != cfg.ID {
			continue
		}
		cfg.CreatedAt = existing.CreatedAt
		cfg.UpdatedAt = time.Now().UTC()
		file.Servers[i] = cfg
		if err := s.write(file); err != nil {
			return ServerConfig{}, err
		}
		return cfg, nil
	}
	return ServerConfig{}, fmt.Errorf("server %q: %w", cfg.ID, ErrServerNotFound)
}

// Remove deletes the configuration for id.
func (s *Store) Remove(id string) error {
	if err := s.lock.Lock(); err != nil {
		return fmt.Errorf("locking server list: %w", err)
	}
	defer s.unlock()

	file, err := s.read()
	if err != nil {
		return err
	}

	for i, cfg := range file.Servers {
		if cfg.ID == id {
			file.Servers = append(file.Servers[:i], file.Servers[i+1:]...)
			return s.write(file)
		}
	}
	return fmt.Errorf("server %q: %w", id, ErrServerNotFound)
}

// ExportAll returns the stored list in portable form, stripped of ids and
// timestamps.
func (s *Store) ExportAll() (Export, error) {
	servers, err := s.List()
	if err != nil {
		return Export{}, err
	}

	out := Export{Version: FormatVersion, Servers: make([]ExportedServer, 0, len(servers))}
	for _, cfg := range servers {
		out.Servers = append(out.Servers, ExportedServer{
			Name:      cfg.Name,
			Transport: cfg.Transport,
			Stdio:     cfg.Stdio,
			HTTP:      cfg.HTTP,
			Enabled:   cfg.Enabled,
		})
	}
	return out, nil
}

// Import installs an exported server list. Every imported entry receives a
// freshly generated id and timestamps. With merge=true the entries are
// appended to the existing set; otherwise they replace it.
func (s *Store) Import(in Export, merge bool) ([]ServerConfig, error) {
	if in.Version > FormatVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, in.Version)
	}

	if err := s.lock.Lock(); err != nil {
		return nil, fmt.Errorf("locking server list: %w", err)
	}
	defer s.unlock()

	file, err := s.read()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	imported := make([]ServerConfig, 0, len(in.Servers))
	for _, entry := range in.Servers {
		cfg := ServerConfig{
			ID:        uuid.NewString(),
			Name:      entry.Name,
			Transport: entry.Transport,
			Stdio:     entry.Stdio,
			HTTP:      entry.HTTP,
			Enabled:   entry.Enabled,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := cfg.validate(); err != nil {
			return nil, fmt.Errorf("entry %q: %w", entry.Name, err)
		}
		imported = append(imported, cfg)
	}

	if merge {
		file.Servers = append(file.Servers, imported...)
	} else {
		file.Servers = imported
	}

	if err := s.write(file); err != nil {
		return nil, err
	}
	s.logger.Info("imported MCP server configs", "count", len(imported), "merge", merge)
	return imported, nil
}

func (s *Store) unlock() {
	if err := s.lock.Unlock(); err != nil {
		s.logger.Warn("unlocking server list", "error", err)
	}
}

// read loads and parses the server list file. A missing file is an empty
// list at the current format version.
func (s *Store) read() (*storeFile, error) {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return &storeFile{Version: FormatVersion}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading server list: %w", err)
	}

	std, err := hujson.Standardize(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing server list: %w", err)
	}

	var file storeFile
	if err := json.Unmarshal(std, &file); err != nil {
		return nil, fmt.Errorf("parsing server list: %w", err)
	}
	if file.Version > FormatVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, file.Version)
	}
	return &file, nil
}

// write persists the server list atomically (temp file + rename).
func (s *Store) write(file *storeFile) error {
	file.Version = FormatVersion
	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding server list: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".servers-*.json")
	if err != nil {
		return fmt.Errorf("writing server list: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("writing server list: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("writing server list: %w", err)
	}
	if err := os.Chmod(tmpName, 0600); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("writing server list: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("writing server list: %w", err)
	}
	return nil
}
