package scene

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/qmuntal/gltf"
)

// Model is a decoded mesh resource, reduced to what the preview needs.
type Model struct {
	Meshes int
	Min    mgl64.Vec3
	Max    mgl64.Vec3
}

// AssetLoader fetches and decodes a mesh resource.
type AssetLoader interface {
	Load(ctx context.Context, url string) (*Model, error)
}

var ErrNoPositions = errors.New("model has no POSITION accessor bounds")

// ============================================================
// Loader
// ============================================================

// GLTFLoader reads .glb and .gltf resources from object URLs or HTTP.
type GLTFLoader struct {
	urls     *ObjectURLStore
	client   *http.Client
	maxBytes int64
}

func NewGLTFLoader(urls *ObjectURLStore, client *http.Client, maxBytes int64) *GLTFLoader {
	if client == nil {
		client = http.DefaultClient
	}
	return &GLTFLoader{urls: urls, client: client, maxBytes: maxBytes}
}

func (l *GLTFLoader) Load(ctx context.Context, url string) (*Model, error) {
	data, err := l.fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	return ParseModel(data)
}

func (l *GLTFLoader) fetch(ctx context.Context, url string) ([]byte, error) {
	if IsObjectURL(url) {
		if l.urls == nil {
			return nil, fmt.Errorf("object url %s: no store", url)
		}
		f, ok := l.urls.Resolve(url)
		if !ok {
			return nil, fmt.Errorf("object url %s revoked", url)
		}
		return f.Data, nil
	}

	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return nil, fmt.Errorf("unsupported url %q", url)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}

	var body io.Reader = resp.Body
	if l.maxBytes > 0 {
		body = io.LimitReader(resp.Body, l.maxBytes+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", url, err)
	}
	if l.maxBytes > 0 && int64(len(data)) > l.maxBytes {
		return nil, fmt.Errorf("fetch %s: larger than %d bytes", url, l.maxBytes)
	}
	return data, nil
}

// ============================================================
// Parsing
// ============================================================

// ParseModel decodes a binary .glb container or a .gltf JSON document and
// returns the union of its POSITION accessor bounds. Node transforms are
// not applied.
func ParseModel(data []byte) (*Model, error) {
	var doc gltf.Document
	if err := gltf.NewDecoder(bytes.NewReader(data)).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode gltf: %w", err)
	}
	if doc.Asset.Version == "" {
		return nil, errors.New("missing asset.version")
	}

	b := emptyBounds()
	for _, mesh := range doc.Meshes {
		for _, prim := range mesh.Primitives {
			idx, ok := prim.Attributes["POSITION"]
			if !ok || int(idx) < 0 || int(idx) >= len(doc.Accessors) {
				continue
			}
			acc := doc.Accessors[idx]
			if acc == nil || len(acc.Min) < 3 || len(acc.Max) < 3 {
				continue
			}
			b.extend(
				mgl64.Vec3{float64(acc.Min[0]), float64(acc.Min[1]), float64(acc.Min[2])},
				mgl64.Vec3{float64(acc.Max[0]), float64(acc.Max[1]), float64(acc.Max[2])},
			)
		}
	}
	if b.empty() {
		return nil, ErrNoPositions
	}
	return &Model{Meshes: len(doc.Meshes), Min: b.min, Max: b.max}, nil
}
