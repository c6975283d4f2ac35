// Package registry holds the in-memory model of devices, collections, tag
// definitions and tag values owned by one gateway instance.
package registry

import (
	"sync"

	"github.com/ghalamif/AegisGate/internal/domain"
)

// Snapshot is a point-in-time copy of the registry in insertion order.
type Snapshot struct {
	Devices     []domain.Device
	Collections []domain.Collection
	Tags        []domain.TagDefinition
}

// Ingestion reports which entities a call to Ingest inserted.
type Ingestion struct {
	NewDevice     bool
	NewCollection bool
}

// Registry stores devices and collections first-write-wins and tag definitions
// last-write-wins. Iteration order is insertion order; overwriting a tag keeps
// its position.
type Registry struct {
	mu sync.RWMutex

	devices     []domain.Device
	deviceIdx   map[string]int
	collections []domain.Collection
	collIdx     map[string]int
	tags        []domain.TagDefinition
	tagIdx      map[string]int
}

func New() *Registry {
	return &Registry{
		deviceIdx: make(map[string]int),
		collIdx:   make(map[string]int),
		tagIdx:    make(map[string]int),
	}
}

// UpsertDeviceIfAbsent stores d under id unless id is already known. It reports
// whether d was stored.
func (r *Registry) UpsertDeviceIfAbsent(id string, d domain.Device) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.putDeviceLocked(id, d)
}

// UpsertCollectionIfAbsent stores c under id unless id is already known.
func (r *Registry) UpsertCollectionIfAbsent(id string, c domain.Collection) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.putCollectionLocked(id, c)
}

// PutTagDefinition stores def under id, replacing any previous definition.
func (r *Registry) PutTagDefinition(id string, def domain.TagDefinition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.putTagLocked(id, def)
}

// Ingest applies a tag definition together with its device and collection in
// one critical section, so readers never see the tag without its parents.
// device and collection may be nil when the caller knows they are registered.
func (r *Registry) Ingest(def domain.TagDefinition, device *domain.Device, collection *domain.Collection) Ingestion {
	r.mu.Lock()
	defer r.mu.Unlock()

	var res Ingestion
	if device != nil {
		res.NewDevice = r.putDeviceLocked(def.DeviceID, *device)
	}
	if collection != nil {
		res.NewCollection = r.putCollectionLocked(def.CollectionID, *collection)
	}
	r.putTagLocked(def.ID, def)
	return res
}

func (r *Registry) HasDevice(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.deviceIdx[id]
	return ok
}

func (r *Registry) HasCollection(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.collIdx[id]
	return ok
}

// Device returns the stored device for id.
func (r *Registry) Device(id string) (domain.Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.deviceIdx[id]
	if !ok {
		return domain.Device{}, false
	}
	return r.devices[i], true
}

// Collection returns the stored collection for id.
func (r *Registry) Collection(id string) (domain.Collection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.collIdx[id]
	if !ok {
		return domain.Collection{}, false
	}
	return r.collections[i], true
}

// TagDefinition returns the stored definition for id.
func (r *Registry) TagDefinition(id string) (domain.TagDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.tagIdx[id]
	if !ok {
		return domain.TagDefinition{}, false
	}
	return r.tags[i], true
}

// Snapshot copies the current contents. The returned slices are not shared
// with the registry.
func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Snapshot{
		Devices:     append([]domain.Device(nil), r.devices...),
		Collections: append([]domain.Collection(nil), r.collections...),
		Tags:        append([]domain.TagDefinition(nil), r.tags...),
	}
}

// Counts returns the number of devices, collections and tag definitions.
func (r *Registry) Counts() (devices, collections, tags int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.devices), len(r.collections), len(r.tags)
}

func (r *Registry) putDeviceLocked(id string, d domain.Device) bool {
	if _, ok := r.deviceIdx[id]; ok {
		return false
	}
	d.NodeID = id
	r.deviceIdx[id] = len(r.devices)
	r.devices = append(r.devices, d)
	return true
}

func (r *Registry) putCollectionLocked(id string, c domain.Collection) bool {
	if _, ok := r.collIdx[id]; ok {
		return false
	}
	c.NodeID = id
	r.collIdx[id] = len(r.collections)
	r.collections = append(r.collections, c)
	return true
}

func (r *Registry) putTagLocked(id string, def domain.TagDefinition) {
	def.ID = id
	if i, ok := r.tagIdx[id]; ok {
		r.tags[i] = def
		return
	}
	r.tagIdx[id] = len(r.tags)
	r.tags = append(r.tags, def)
}
