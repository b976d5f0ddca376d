package layer

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/go-spatial/geom"

	"github.com/pdok/selfoverlap/geometry"
)

// MemoryFeature is a Feature held in memory.
type MemoryFeature struct {
	FID  int64
	Geom geom.Geometry
}

func (f MemoryFeature) ID() int64 {
	return f.FID
}

func (f MemoryFeature) Geometry() geom.Geometry {
	return f.Geom
}

// Memory is a Source of in-memory layers. Features are never modified once added.
type Memory struct {
	mu     sync.RWMutex
	layers map[string]memoryLayerData
}

type memoryLayerData struct {
	kind     geometry.Kind
	features []MemoryFeature
}

func NewMemory() *Memory {
	return &Memory{layers: make(map[string]memoryLayerData)}
}

// AddLayer registers (or replaces) a layer.
func (m *Memory) AddLayer(name string, kind geometry.Kind, features []MemoryFeature) {
	copied := make([]MemoryFeature, len(features))
	copy(copied, features)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.layers[name] = memoryLayerData{kind: kind, features: copied}
}

func (m *Memory) OpenLayer(ctx context.Context, name string, filter *geom.Extent) (Layer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	data, ok := m.layers[name]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrLayerNotFound, name)
	}
	l := &memoryLayer{data: data}
	if filter != nil {
		f := *filter
		l.filter = &f
	}
	return l, nil
}

type memoryLayer struct {
	data   memoryLayerData
	filter *geom.Extent
	pos    int
}

func (l *memoryLayer) NextFeature() (Feature, error) {
	for l.pos < len(l.data.features) {
		f := l.data.features[l.pos]
		l.pos++
		if l.filter != nil {
			ext, ok := geometry.ExtentOf(f.Geom)
			if !ok || !geometry.ExtentsIntersect(ext, *l.filter) {
				continue
			}
		}
		return f, nil
	}
	return nil, io.EOF
}

func (l *memoryLayer) FeatureCount() (int, error) {
	return len(l.data.features), nil
}

func (l *memoryLayer) Extent() (geom.Extent, error) {
	var (
		ext   geom.Extent
		found bool
	)
	for _, f := range l.data.features {
		e, ok := geometry.ExtentOf(f.Geom)
		if !ok {
			continue
		}
		if !found {
			ext, found = e, true
			continue
		}
		ext.Add(&e)
	}
	return ext, nil
}

func (l *memoryLayer) GeometryKind() geometry.Kind {
	return l.data.kind
}

func (l *memoryLayer) Close() error {
	return nil
}
