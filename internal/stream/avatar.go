package stream

import (
	"context"
	"fmt"
	"sync"
)

// Avatar describes the persona a session speaks as. VoiceRef points at the
// reference audio the synthesis backend clones; PromptTemplate optionally
// overrides the default persona prompt.
type Avatar struct {
	ID             string
	Name           string
	RoleTitle      string
	Description    string
	VoiceRef       string
	Language       string
	PromptTemplate string
}

// AvatarDirectory resolves an avatar ID to its persona. Backed by a real
// avatar service in deployment; the in-memory directory covers tests and
// single-avatar setups.
type AvatarDirectory interface {
	Avatar(ctx context.Context, id string) (Avatar, error)
}

// StaticDirectory is a fixed in-memory AvatarDirectory. An entry with a
// matching ID wins; otherwise the fallback avatar is returned for any ID.
type StaticDirectory struct {
	mu       sync.RWMutex
	avatars  map[string]Avatar
	fallback Avatar
}

func NewStaticDirectory(fallback Avatar, avatars ...Avatar) *StaticDirectory {
	d := &StaticDirectory{
		avatars:  make(map[string]Avatar, len(avatars)),
		fallback: fallback,
	}
	for _, a := range avatars {
		d.avatars[a.ID] = a
	}
	return d
}

func (d *StaticDirectory) Avatar(_ context.Context, id string) (Avatar, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if a, ok := d.avatars[id]; ok {
		return a, nil
	}
	if d.fallback.Name == "" {
		return Avatar{}, fmt.Errorf("unknown avatar %q", id)
	}
	a := d.fallback
	if a.ID == "" {
		a.ID = id
	}
	return a, nil
}

// Add registers or replaces an avatar.
func (d *StaticDirectory) Add(a Avatar) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.avatars[a.ID] = a
}
