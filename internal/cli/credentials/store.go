// Package credentials stores the servers and tokens used by resolvd client
// commands.
package credentials

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

const (
	// DefaultConfigDir is the directory under the user config home.
	DefaultConfigDir = "resolvd"
	// ConfigFileName is the name of the client contexts file.
	ConfigFileName = "contexts.json"
	// FilePermissions for the contexts file (read/write for owner only).
	FilePermissions = 0600
	// DirPermissions for the config directory.
	DirPermissions = 0700
)

var (
	// ErrNoCurrentContext indicates no context is currently set.
	ErrNoCurrentContext = errors.New("no current context set")
	// ErrContextNotFound indicates the requested context doesn't exist.
	ErrContextNotFound = errors.New("context not found")
)

// Context is a named resolvd server as seen by client commands.
type Context struct {
	// RPCAddr is the gRPC target, e.g. localhost:7060.
	RPCAddr string `json:"rpc_addr"`
	// AdminURL is the admin HTTP base URL, e.g. http://localhost:7061.
	AdminURL string `json:"admin_url,omitempty"`
	// Token is a bearer token for the RPC service.
	Token     string    `json:"token,omitempty"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// IsExpired returns true if the token has expired or expires within a
// minute. Contexts without a token never expire.
func (c *Context) IsExpired() bool {
	if c.Token == "" || c.ExpiresAt.IsZero() {
		return false
	}
	return time.Now().Add(60 * time.Second).After(c.ExpiresAt)
}

// Config is the contents of the contexts file.
type Config struct {
	CurrentContext string              `json:"current_context"`
	Contexts       map[string]*Context `json:"contexts"`
}

// Store reads and writes the contexts file.
type Store struct {
	configPath string
	config     *Config
}

// NewStore opens the store under $XDG_CONFIG_HOME/resolvd, falling back to
// ~/.config/resolvd. A missing file yields an empty store.
func NewStore() (*Store, error) {
	configPath, err := getConfigPath()
	if err != nil {
		return nil, err
	}
	return OpenStore(configPath)
}

// OpenStore opens the store at an explicit path.
func OpenStore(configPath string) (*Store, error) {
	store := &Store{configPath: configPath}
	if err := store.load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read %s: %w", configPath, err)
		}
		store.config = &Config{Contexts: make(map[string]*Context)}
	}
	return store, nil
}

func getConfigPath() (string, error) {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot determine home directory: %w", err)
		}
		configHome = filepath.Join(home, ".config")
	}
	return filepath.Join(configHome, DefaultConfigDir, ConfigFileName), nil
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.configPath)
	if err != nil {
		return err
	}

	s.config = &Config{}
	if err := json.Unmarshal(data, s.config); err != nil {
		return err
	}
	if s.config.Contexts == nil {
		s.config.Contexts = make(map[string]*Context)
	}
	return nil
}

func (s *Store) save() error {
	if err := os.MkdirAll(filepath.Dir(s.configPath), DirPermissions); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := json.MarshalIndent(s.config, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.configPath, data, FilePermissions)
}

// GetCurrentContext returns the current context.
func (s *Store) GetCurrentContext() (*Context, error) {
	if s.config.CurrentContext == "" {
		return nil, ErrNoCurrentContext
	}
	return s.GetContext(s.config.CurrentContext)
}

// GetCurrentContextName returns the name of the current context.
func (s *Store) GetCurrentContextName() string {
	return s.config.CurrentContext
}

// GetContext returns a context by name.
func (s *Store) GetContext(name string) (*Context, error) {
	ctx, ok := s.config.Contexts[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrContextNotFound, name)
	}
	return ctx, nil
}

// ListContexts returns all context names, sorted.
func (s *Store) ListContexts() []string {
	names := make([]string, 0, len(s.config.Contexts))
	for name := range s.config.Contexts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SetContext creates or updates a context. The first context becomes
// current.
func (s *Store) SetContext(name string, ctx *Context) error {
	s.config.Contexts[name] = ctx
	if s.config.CurrentContext == "" {
		s.config.CurrentContext = name
	}
	return s.save()
}

// UseContext switches to a different context.
func (s *Store) UseContext(name string) error {
	if _, err := s.GetContext(name); err != nil {
		return err
	}
	s.config.CurrentContext = name
	return s.save()
}

// DeleteContext removes a context.
func (s *Store) DeleteContext(name string) error {
	if _, err := s.GetContext(name); err != nil {
		return err
	}

	delete(s.config.Contexts, name)
	if s.config.CurrentContext == name {
		s.config.CurrentContext = ""
	}
	return s.save()
}

// UpdateToken stores a token on the current context.
func (s *Store) UpdateToken(token string, expiresAt time.Time) error {
	ctx, err := s.GetCurrentContext()
	if err != nil {
		return err
	}
	ctx.Token = token
	ctx.ExpiresAt = expiresAt
	return s.save()
}

// ConfigPath returns the path to the contexts file.
func (s *Store) ConfigPath() string {
	return s.configPath
}
