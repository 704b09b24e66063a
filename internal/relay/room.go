package relay

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultRoomIDLength is the length the legacy generator always produced.
	DefaultRoomIDLength = 6

	// DefaultRoomTTL is how long a created room may stay empty before it is swept.
	DefaultRoomTTL = 10 * time.Minute

	// Unlimited marks a room without a capacity bound.
	Unlimited = 0
)

var (
	ErrRoomFull        = errors.New("room full")
	ErrRoomNotFound    = errors.New("room not found")
	ErrInvalidCapacity = errors.New("room capacity must be a positive integer")
)

// Member is one session as seen by other members of a room.
type Member struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Room represents a capacity-bounded group of sessions eligible to signal each other.
type Room struct {
	// ID is the unique identifier for the room.
	ID string

	// Capacity is the maximum number of members; Unlimited for implicit rooms.
	Capacity int

	// Members maps session IDs to members.
	Members map[string]Member

	// CreatedAt is used to sweep rooms nobody ever joined.
	CreatedAt time.Time

	joined bool
}

func (r *Room) full() bool {
	return r.Capacity != Unlimited && len(r.Members) >= r.Capacity
}

func (r *Room) snapshot(exclude string) []Member {
	members := make([]Member, 0, len(r.Members))
	for id, m := range r.Members {
		if id == exclude {
			continue
		}
		members = append(members, m)
	}
	sort.Slice(members, func(i, j int) bool { return members[i].Name < members[j].Name })
	return members
}

// Departure describes a member leaving a room.
type Departure struct {
	RoomID    string
	Member    Member
	Remaining []Member
}

// JoinResult is returned by a successful Join.
type JoinResult struct {
	RoomID string

	// Members is the full member list, joiner included.
	Members []Member

	// Notify lists the members that must learn about the joiner. It is empty
	// when the joiner was already in the room.
	Notify []Member

	// Left is set when joining moved the member out of another room.
	Left *Departure
}

// RegistryOptions tunes room creation and lookup.
type RegistryOptions struct {
	// StrictRooms rejects unknown room IDs instead of creating an implicit
	// unlimited room.
	StrictRooms bool

	// MinIDLength and MaxIDLength bound the generated room ID length.
	MinIDLength int
	MaxIDLength int

	// RoomTTL is how long a created room survives without ever being joined.
	RoomTTL time.Duration
}

// Registry tracks rooms and their membership. A single mutex guards all state,
// so capacity checks and inserts are atomic with respect to each other.
type Registry struct {
	mu          sync.Mutex
	rooms       map[string]*Room
	memberRooms map[string]string
	opts        RegistryOptions

	now  func() time.Time
	intn func(n int) int
}

// NewRegistry creates an empty registry.
func NewRegistry(opts RegistryOptions) *Registry {
	if opts.MinIDLength <= 0 {
		opts.MinIDLength = DefaultRoomIDLength
	}
	if opts.MaxIDLength < opts.MinIDLength {
		opts.MaxIDLength = opts.MinIDLength
	}
	if opts.RoomTTL <= 0 {
		opts.RoomTTL = DefaultRoomTTL
	}
	return &Registry{
		rooms:       make(map[string]*Room),
		memberRooms: make(map[string]string),
		opts:        opts,
		now:         time.Now,
		intn:        randomIndex,
	}
}

// CreateRoom reserves a new room ID with the given capacity. No member is added.
func (r *Registry) CreateRoom(capacity int) (string, error) {
	if capacity <= 0 {
		return "", ErrInvalidCapacity
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.generateRoomID()
	r.rooms[id] = &Room{
		ID:        id,
		Capacity:  capacity,
		Members:   make(map[string]Member),
		CreatedAt: r.now(),
	}
	return id, nil
}

// generateRoomID draws IDs from the restricted alphabet until one is unused.
// Must be called with r.mu held.
func (r *Registry) generateRoomID() string {
	span := r.opts.MaxIDLength - r.opts.MinIDLength + 1
	for {
		length := r.opts.MinIDLength + r.intn(span)

		var b strings.Builder
		b.Grow(length)
		for i := 0; i < length; i++ {
			b.WriteByte(roomIDAlphabet[r.intn(len(roomIDAlphabet))])
		}

		id := b.String()
		if _, ok := r.rooms[id]; !ok {
			return id
		}
	}
}

// Join adds member to the room. A member can be in at most one room; joining
// another room removes it from the previous one first.
func (r *Registry) Join(member Member, roomID string) (JoinResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomID]
	if !ok {
		if r.opts.StrictRooms {
			return JoinResult{}, ErrRoomNotFound
		}
		room = &Room{
			ID:        roomID,
			Capacity:  Unlimited,
			Members:   make(map[string]Member),
			CreatedAt: r.now(),
		}
		r.rooms[roomID] = room
	}

	if _, already := room.Members[member.ID]; already {
		return JoinResult{RoomID: roomID, Members: room.snapshot("")}, nil
	}

	if room.full() {
		return JoinResult{}, ErrRoomFull
	}

	var left *Departure
	if previous, ok := r.memberRooms[member.ID]; ok && previous != roomID {
		if d, ok := r.leaveLocked(member.ID, previous); ok {
			left = &d
		}
	}

	notify := room.snapshot("")
	room.Members[member.ID] = member
	room.joined = true
	r.memberRooms[member.ID] = roomID

	return JoinResult{
		RoomID:  roomID,
		Members: room.snapshot(""),
		Notify:  notify,
		Left:    left,
	}, nil
}

// Leave removes the member from the room. It reports false if the member was
// not in it.
func (r *Registry) Leave(memberID, roomID string) (Departure, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.leaveLocked(memberID, roomID)
}

func (r *Registry) leaveLocked(memberID, roomID string) (Departure, bool) {
	room, ok := r.rooms[roomID]
	if !ok {
		return Departure{}, false
	}
	member, ok := room.Members[memberID]
	if !ok {
		return Departure{}, false
	}

	delete(room.Members, memberID)
	if r.memberRooms[memberID] == roomID {
		delete(r.memberRooms, memberID)
	}
	if len(room.Members) == 0 {
		delete(r.rooms, roomID)
	}

	return Departure{
		RoomID:    roomID,
		Member:    member,
		Remaining: room.snapshot(""),
	}, true
}

// RemoveMember drops the member from every room it belongs to.
func (r *Registry) RemoveMember(memberID string) []Departure {
	r.mu.Lock()
	defer r.mu.Unlock()

	var departures []Departure
	for roomID, room := range r.rooms {
		if _, ok := room.Members[memberID]; !ok {
			continue
		}
		if d, ok := r.leaveLocked(memberID, roomID); ok {
			departures = append(departures, d)
		}
	}
	return departures
}

// RoomOf returns the room the member is currently in.
func (r *Registry) RoomOf(memberID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.memberRooms[memberID]
	return id, ok
}

// Members returns a snapshot of the room's members sorted by name.
func (r *Registry) Members(roomID string) []Member {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[roomID]
	if !ok {
		return nil
	}
	return room.snapshot("")
}

// Capacity returns the room's capacity, or false if the room does not exist.
func (r *Registry) Capacity(roomID string) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[roomID]
	if !ok {
		return 0, false
	}
	return room.Capacity, true
}

// Sweep deletes rooms that were created but never joined within the TTL.
// It returns the number of rooms removed.
func (r *Registry) Sweep(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, room := range r.rooms {
		if room.joined || len(room.Members) > 0 {
			continue
		}
		if now.Sub(room.CreatedAt) >= r.opts.RoomTTL {
			delete(r.rooms, id)
			removed++
		}
	}
	return removed
}

// Stats reports the number of active rooms and members.
type Stats struct {
	Rooms   int `json:"rooms"`
	Members int `json:"members"`
}

// Stats returns current registry counts.
func (r *Registry) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Stats{Rooms: len(r.rooms), Members: len(r.memberRooms)}
}
