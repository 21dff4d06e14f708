package target

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
)

type memoryObject struct {
	data        []byte
	contentType string
	metadata    map[string]string
	version     int64
}

// MemoryTarget keeps objects in process memory. It backs the `memory` target
// type used by tests.
type MemoryTarget struct {
	name    string
	mu      sync.RWMutex
	objects map[string]*memoryObject
	version int64
}

// NewMemoryTarget returns an empty MemoryTarget.
func NewMemoryTarget(name string) *MemoryTarget {
	return &MemoryTarget{name: name, objects: make(map[string]*memoryObject)}
}

// sharedMemory holds the memory targets created from provider configuration.
// The acceptance test framework rebuilds the provider between steps, so
// targets are shared by name for the life of the process.
var sharedMemory struct {
	sync.Mutex
	byName map[string]*MemoryTarget
}

// GetOrCreateMemoryTarget returns the shared MemoryTarget called name.
func GetOrCreateMemoryTarget(name string) *MemoryTarget {
	sharedMemory.Lock()
	defer sharedMemory.Unlock()

	if sharedMemory.byName == nil {
		sharedMemory.byName = make(map[string]*MemoryTarget)
	}
	t, ok := sharedMemory.byName[name]
	if !ok {
		t = NewMemoryTarget(name)
		sharedMemory.byName[name] = t
	}
	return t
}

// ResetMemoryTargets drops every shared MemoryTarget.
func ResetMemoryTargets() {
	sharedMemory.Lock()
	sharedMemory.byName = nil
	sharedMemory.Unlock()
}

func (m *MemoryTarget) Name() string { return m.name }

func (m *MemoryTarget) Put(_ context.Context, key string, body io.Reader, opts PutOptions) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return fmt.Errorf("memory put %q: %w", key, err)
	}
	meta := make(map[string]string, len(opts.Metadata))
	for k, v := range opts.Metadata {
		meta[k] = v
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.version++
	m.objects[key] = &memoryObject{
		data:        data,
		contentType: opts.ContentType,
		metadata:    meta,
		version:     m.version,
	}
	return nil
}

func (m *MemoryTarget) Get(_ context.Context, key string) (io.ReadCloser, ObjectMeta, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	obj, ok := m.objects[key]
	if !ok {
		return nil, ObjectMeta{}, ErrNotFound
	}
	data := bytes.Clone(obj.data)
	return io.NopCloser(bytes.NewReader(data)), obj.meta(), nil
}

func (m *MemoryTarget) Head(_ context.Context, key string) (ObjectMeta, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	obj, ok := m.objects[key]
	if !ok {
		return ObjectMeta{}, ErrNotFound
	}
	return obj.meta(), nil
}

func (m *MemoryTarget) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *MemoryTarget) List(_ context.Context, prefix string) ([]ObjectInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []ObjectInfo
	for k, obj := range m.objects {
		if strings.HasPrefix(k, prefix) {
			out = append(out, ObjectInfo{Key: k, Size: int64(len(obj.data)), ETag: obj.etag()})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Keys returns every stored key in sorted order.
func (m *MemoryTarget) Keys() []string {
	items, _ := m.List(context.Background(), "")
	keys := make([]string, len(items))
	for i, it := range items {
		keys[i] = it.Key
	}
	return keys
}

func (o *memoryObject) etag() string {
	return fmt.Sprintf(`"%d"`, o.version)
}

func (o *memoryObject) meta() ObjectMeta {
	return ObjectMeta{ETag: o.etag(), Size: int64(len(o.data)), ContentType: o.contentType}
}
