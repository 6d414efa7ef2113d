package payload

import (
	"fmt"
	"path/filepath"
	"strings"

	"building-studio/internal/studio/models"
)

// Limits bound model uploads. Enforced is a hard ceiling; Advertised is the
// size shown to operators, exceeding it only produces a warning.
type Limits struct {
	Enforced   int64
	Advertised int64
}

var DefaultLimits = Limits{Enforced: 50 << 20, Advertised: 10 << 20}

var modelExtensions = map[string]bool{".glb": true, ".gltf": true}

// CheckModelFile gates a model upload by extension and size.
func CheckModelFile(name string, size int64, limits Limits) (warning string, err error) {
	ext := strings.ToLower(filepath.Ext(name))
	if !modelExtensions[ext] {
		return "", &models.ValidationError{Field: "file", Message: "only .glb or .gltf files are accepted"}
	}
	if limits.Enforced > 0 && size >= limits.Enforced {
		return "", &models.ValidationError{
			Field:   "file",
			Message: fmt.Sprintf("file must be smaller than %dMB", limits.Enforced>>20),
		}
	}
	if limits.Advertised > 0 && size > limits.Advertised {
		return fmt.Sprintf("file is larger than the advertised %dMB limit", limits.Advertised>>20), nil
	}
	return "", nil
}
