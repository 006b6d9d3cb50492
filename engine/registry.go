package engine

import (
	"sort"
	"sync"
	"time"

	"github.com/fr13n8/centaurus/protocol"
)

type socketEntry struct {
	ref     *protocol.SocketRef
	created time.Time
}

type streamEntry struct {
	ref     *protocol.StreamRef
	created time.Time
}

// Registry tracks the live tasks of a runtime.
type Registry struct {
	sockets map[string]socketEntry
	streams map[string]streamEntry
	mu      sync.Mutex
}

func NewRegistry() *Registry {
	return &Registry{
		sockets: make(map[string]socketEntry),
		streams: make(map[string]streamEntry),
	}
}

func (r *Registry) AddSocket(ref *protocol.SocketRef) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sockets[ref.ID] = socketEntry{ref: ref, created: time.Now()}
}

func (r *Registry) RemoveSocket(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sockets, id)
}

func (r *Registry) GetSocket(id string) *protocol.SocketRef {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.sockets[id].ref
}

// Sockets returns the live sockets, oldest first.
func (r *Registry) Sockets() []*protocol.SocketRef {
	r.mu.Lock()
	entries := make([]socketEntry, 0, len(r.sockets))
	for _, e := range r.sockets {
		entries = append(entries, e)
	}
	r.mu.Unlock()

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].created.Before(entries[j].created)
	})
	refs := make([]*protocol.SocketRef, len(entries))
	for i, e := range entries {
		refs[i] = e.ref
	}
	return refs
}

func (r *Registry) AddStream(ref *protocol.StreamRef) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.streams[ref.ID] = streamEntry{ref: ref, created: time.Now()}
}

func (r *Registry) RemoveStream(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.streams, id)
}

// Streams returns the live streams of a socket, oldest first.
func (r *Registry) Streams(socketID string) []*protocol.StreamRef {
	r.mu.Lock()
	var entries []streamEntry
	for _, e := range r.streams {
		if e.ref.SocketID == socketID {
			entries = append(entries, e)
		}
	}
	r.mu.Unlock()

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].created.Before(entries[j].created)
	})
	refs := make([]*protocol.StreamRef, len(entries))
	for i, e := range entries {
		refs[i] = e.ref
	}
	return refs
}
