package scene

import (
	"strings"
	"sync"

	"building-studio/internal/studio/models"

	"github.com/google/uuid"
)

const objectURLScheme = "blob:"

// ObjectURLStore hands out temporary URLs for files that have not been
// uploaded yet, so the loader can read them like any other resource.
type ObjectURLStore struct {
	mu    sync.Mutex
	files map[string]*models.File
}

func NewObjectURLStore() *ObjectURLStore {
	return &ObjectURLStore{files: make(map[string]*models.File)}
}

func (s *ObjectURLStore) Create(f *models.File) string {
	url := objectURLScheme + uuid.NewString()
	s.mu.Lock()
	s.files[url] = f
	s.mu.Unlock()
	return url
}

func (s *ObjectURLStore) Resolve(url string) (*models.File, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[url]
	return f, ok
}

func (s *ObjectURLStore) Revoke(url string) {
	s.mu.Lock()
	delete(s.files, url)
	s.mu.Unlock()
}

// Len reports how many URLs are still live.
func (s *ObjectURLStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.files)
}

func IsObjectURL(url string) bool {
	return strings.HasPrefix(url, objectURLScheme)
}
