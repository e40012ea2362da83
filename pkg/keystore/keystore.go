// Package keystore persists the agent's registration state between
// runs: auth token, server URL and device identity.
package keystore

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
	"github.com/screenport/agent/pkg/api"
	oss "github.com/screenport/agent/pkg/os"
)

const fileName = "agent.json"

type record struct {
	Token     string `json:"token,omitempty"`
	ServerURL string `json:"serverUrl,omitempty"`
	DeviceID  string `json:"deviceId,omitempty"`
}

// Store is a flat JSON file guarded by an OS file lock, so concurrent
// agent processes can't clobber each other's registration.
type Store struct {
	path string
	lock *flock.Flock

	mu   sync.Mutex
	data record
}

func Open(dir string) (*Store, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	if err := oss.CheckCreateDir(dir); err != nil {
		return nil, err
	}
	s := &Store{
		path: filepath.Join(dir, fileName),
		lock: flock.New(filepath.Join(dir, fileName+".lock")),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	if err := s.lock.Lock(); err != nil {
		return err
	}
	defer func() { _ = s.lock.Unlock() }()

	raw, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	return api.Unmarshal(raw, &s.data)
}

func (s *Store) flush() error {
	raw, err := api.Marshal(s.data)
	if err != nil {
		return err
	}
	if err = s.lock.Lock(); err != nil {
		return err
	}
	defer func() { _ = s.lock.Unlock() }()
	return os.WriteFile(s.path, raw, 0o600)
}

// Token reports the stored auth token, false when the agent has never
// registered.
func (s *Store) Token() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.Token, s.data.Token != ""
}

func (s *Store) SetToken(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.Token = token
	return s.flush()
}

func (s *Store) ServerURL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.ServerURL
}

func (s *Store) SetServerURL(url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.ServerURL = url
	return s.flush()
}

func (s *Store) DeviceID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.DeviceID
}

func (s *Store) SetDeviceID(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.DeviceID = id
	return s.flush()
}

// Clear wipes the stored registration on deregister.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = record{}
	return s.flush()
}
