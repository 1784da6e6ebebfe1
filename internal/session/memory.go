package session

import "sync"

// MemoryProvider holds session state in memory. It backs tests and any host
// that manages sign-in itself and just pushes the result into the engine.
type MemoryProvider struct {
	mu        sync.Mutex
	user      *User
	listeners map[int]func(*User)
	nextID    int
}

func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{listeners: map[int]func(*User){}}
}

func (p *MemoryProvider) Current() *User {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.user == nil {
		return nil
	}
	u := *p.user
	return &u
}

func (p *MemoryProvider) OnChange(fn func(*User)) func() {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.listeners[id] = fn
	p.mu.Unlock()
	return func() {
		p.mu.Lock()
		delete(p.listeners, id)
		p.mu.Unlock()
	}
}

// SignIn installs u as the current user and notifies listeners.
func (p *MemoryProvider) SignIn(u User) {
	p.mu.Lock()
	p.user = &u
	fns := p.snapshotLocked()
	p.mu.Unlock()
	for _, fn := range fns {
		cp := u
		fn(&cp)
	}
}

// SignOut clears the current user and notifies listeners with nil.
func (p *MemoryProvider) SignOut() {
	p.mu.Lock()
	p.user = nil
	fns := p.snapshotLocked()
	p.mu.Unlock()
	for _, fn := range fns {
		fn(nil)
	}
}

func (p *MemoryProvider) snapshotLocked() []func(*User) {
	fns := make([]func(*User), 0, len(p.listeners))
	for _, fn := range p.listeners {
		fns = append(fns, fn)
	}
	return fns
}
