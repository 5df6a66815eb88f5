package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/jonboulle/clockwork"
)

// Store persists the device id. Load returns "" when nothing is stored.
type Store interface {
	Name() string
	Load(ctx context.Context) (string, error)
	Save(ctx context.Context, deviceID string) error
	Clear(ctx context.Context) error
}

type fileRecord struct {
	DeviceID string    `json:"deviceId"`
	SavedAt  time.Time `json:"savedAt"`
}

// FileStore keeps the id in a JSON file.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// DefaultFileStore places the file under the user config directory.
func DefaultFileStore() (*FileStore, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to locate config directory: %w", err)
	}
	return NewFileStore(filepath.Join(dir, "devicegate", "device.json")), nil
}

func (s *FileStore) Name() string { return "file" }

func (s *FileStore) Load(ctx context.Context) (string, error) {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", s.path, err)
	}
	var rec fileRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return "", fmt.Errorf("failed to decode %s: %w", s.path, err)
	}
	return rec.DeviceID, nil
}

func (s *FileStore) Save(ctx context.Context, deviceID string) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	raw, err := json.Marshal(fileRecord{DeviceID: deviceID, SavedAt: time.Now().UTC()})
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", tmp, err)
	}
	return os.Rename(tmp, s.path)
}

func (s *FileStore) Clear(ctx context.Context) error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

const (
	CookieName       = "device_id"
	DefaultCookieTTL = 30 * 24 * time.Hour
)

// CookieStore keeps the id as the device_id cookie for the server URL.
type CookieStore struct {
	jar   http.CookieJar
	url   *url.URL
	ttl   time.Duration
	clock clockwork.Clock
}

func NewCookieStore(jar http.CookieJar, serverURL *url.URL, ttl time.Duration, clock clockwork.Clock) *CookieStore {
	if ttl <= 0 {
		ttl = DefaultCookieTTL
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &CookieStore{jar: jar, url: serverURL, ttl: ttl, clock: clock}
}

func (s *CookieStore) Name() string { return "cookie" }

func (s *CookieStore) Load(ctx context.Context) (string, error) {
	for _, c := range s.jar.Cookies(s.url) {
		if c.Name == CookieName {
			return c.Value, nil
		}
	}
	return "", nil
}

func (s *CookieStore) Save(ctx context.Context, deviceID string) error {
	s.jar.SetCookies(s.url, []*http.Cookie{{
		Name:     CookieName,
		Value:    deviceID,
		Path:     "/",
		Expires:  s.clock.Now().Add(s.ttl),
		SameSite: http.SameSiteLaxMode,
	}})
	return nil
}

func (s *CookieStore) Clear(ctx context.Context) error {
	s.jar.SetCookies(s.url, []*http.Cookie{{
		Name:   CookieName,
		Path:   "/",
		MaxAge: -1,
	}})
	return nil
}
