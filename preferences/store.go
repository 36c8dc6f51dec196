package preferences

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Store persists the currency preference
type Store interface {
	Currency() (Currency, error)
	SetCurrency(c Currency) error
}

// FileStore keeps preferences in a JSON key-value file. The server reads it
// for the default currency of browsers that have not chosen one.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore creates a FileStore backed by path. The file is created on first write.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Currency returns the stored currency, or DefaultCurrency when the file or
// key is missing or holds an unsupported value.
func (s *FileStore) Currency() (Currency, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := s.read()
	if err != nil {
		return DefaultCurrency, err
	}
	return CurrencyOrDefault(values[CurrencyKey]), nil
}

// SetCurrency stores c. Invalid currencies are rejected and nothing is written.
func (s *FileStore) SetCurrency(c Currency) error {
	if !c.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidCurrency, string(c))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := s.read()
	if err != nil {
		return err
	}
	values[CurrencyKey] = string(c)
	return s.write(values)
}

func (s *FileStore) read() (map[string]string, error) {
	values := make(map[string]string)

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return values, nil
		}
		return nil, fmt.Errorf("failed to read preferences: %w", err)
	}
	if len(data) == 0 {
		return values, nil
	}
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("failed to decode preferences: %w", err)
	}
	return values, nil
}

// write replaces the file atomically
func (s *FileStore) write(values map[string]string) error {
	data, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode preferences: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create preferences dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".preferences-*")
	if err != nil {
		return fmt.Errorf("failed to write preferences: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write preferences: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write preferences: %w", err)
	}
	return os.Rename(tmp.Name(), s.path)
}

// CookieMaxAge is how long the currency cookie is kept by browsers
const CookieMaxAge = 365 * 24 * time.Hour

// CookieStore reads and writes the currency preference as a browser cookie.
// It is scoped to a single request/response pair.
type CookieStore struct {
	r      *http.Request
	w      http.ResponseWriter
	secure bool
}

// NewCookieStore creates a CookieStore for one request
func NewCookieStore(w http.ResponseWriter, r *http.Request, secure bool) *CookieStore {
	return &CookieStore{r: r, w: w, secure: secure}
}

// Currency returns the currency held in the request cookie, or DefaultCurrency
func (s *CookieStore) Currency() (Currency, error) {
	if c, ok := s.Lookup(); ok {
		return c, nil
	}
	return DefaultCurrency, nil
}

// Lookup returns the cookie currency and whether the request carried a valid one
func (s *CookieStore) Lookup() (Currency, bool) {
	cookie, err := s.r.Cookie(CurrencyKey)
	if err != nil {
		return "", false
	}
	c, err := ParseCurrency(cookie.Value)
	if err != nil {
		return "", false
	}
	return c, true
}

// SetCurrency sets the currency cookie on the response
func (s *CookieStore) SetCurrency(c Currency) error {
	if !c.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidCurrency, string(c))
	}
	http.SetCookie(s.w, &http.Cookie{
		Name:     CurrencyKey,
		Value:    string(c),
		Path:     "/",
		MaxAge:   int(CookieMaxAge / time.Second),
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}
