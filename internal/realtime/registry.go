package realtime

import (
	"sort"
	"sync"
)

// Registry tracks which rooms each session belongs to. Both directions are
// kept so publish lookups and disconnect cleanup are map hits.
type Registry struct {
	mu        sync.RWMutex
	byRoom    map[string]map[string]struct{}
	bySession map[string]map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		byRoom:    make(map[string]map[string]struct{}),
		bySession: make(map[string]map[string]struct{}),
	}
}

// Join adds sessionID to room. It reports false when already a member.
func (r *Registry) Join(sessionID, room string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byRoom[room][sessionID]; ok {
		return false
	}
	if r.byRoom[room] == nil {
		r.byRoom[room] = make(map[string]struct{})
	}
	if r.bySession[sessionID] == nil {
		r.bySession[sessionID] = make(map[string]struct{})
	}
	r.byRoom[room][sessionID] = struct{}{}
	r.bySession[sessionID][room] = struct{}{}
	return true
}

// Leave removes sessionID from room. Unknown pairs are ignored.
func (r *Registry) Leave(sessionID, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leave(sessionID, room)
}

func (r *Registry) leave(sessionID, room string) {
	if members := r.byRoom[room]; members != nil {
		delete(members, sessionID)
		if len(members) == 0 {
			delete(r.byRoom, room)
		}
	}
	if rooms := r.bySession[sessionID]; rooms != nil {
		delete(rooms, room)
		if len(rooms) == 0 {
			delete(r.bySession, sessionID)
		}
	}
}

// LeaveAll drops every membership of sessionID and returns the rooms it left.
func (r *Registry) LeaveAll(sessionID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	rooms := keys(r.bySession[sessionID])
	for _, room := range rooms {
		r.leave(sessionID, room)
	}
	return rooms
}

// MembersOf returns the session ids in room. Empty for unknown rooms.
func (r *Registry) MembersOf(room string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return keys(r.byRoom[room])
}

// RoomsOf returns the rooms sessionID belongs to.
func (r *Registry) RoomsOf(sessionID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return keys(r.bySession[sessionID])
}

// IsMember reports whether sessionID is in room.
func (r *Registry) IsMember(sessionID, room string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byRoom[room][sessionID]
	return ok
}

// RoomSizes returns member counts per non-empty room.
func (r *Registry) RoomSizes() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]int, len(r.byRoom))
	for room, members := range r.byRoom {
		out[room] = len(members)
	}
	return out
}

func keys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
