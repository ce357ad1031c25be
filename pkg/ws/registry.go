package ws

import (
	"fmt"
	"sync"
)

// Socket - транспортный дескриптор сессии, с которым работает ядро.
type Socket interface {
	Key() string
	IsOpen() bool
	Send(frame Frame) error
	Close() error
}

// Registry хранит активные сессии по ключу.
// Мьютекс удерживается только на время изменения карты или снятия снимка, но не во время отправки.
type Registry struct {
	mu      sync.Mutex
	sockets map[string]Socket
	metrics *Metrics
}

func NewRegistry(metrics *Metrics) *Registry {
	return &Registry{
		sockets: make(map[string]Socket),
		metrics: metrics,
	}
}

func (r *Registry) Insert(s Socket) error {
	key := s.Key()

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sockets[key]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateKey, key)
	}

	r.sockets[key] = s
	r.metrics.sessionRegistered()

	return nil
}

// Remove удаляет запись и сообщает, была ли она. Повторный вызов ничего не делает.
func (r *Registry) Remove(key string) bool {
	return r.remove(key, nil)
}

// remove с ненулевым s удаляет запись, только если она принадлежит именно s:
// запоздалое уведомление старой сессии не должно выбросить новую с тем же ключом.
func (r *Registry) remove(key string, s Socket) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.sockets[key]
	if !ok || (s != nil && cur != s) {
		return false
	}

	delete(r.sockets, key)
	r.metrics.sessionRemoved()

	return true
}

// ForEach обходит снимок, снятый в момент вызова; visit может менять реестр.
func (r *Registry) ForEach(visit func(key string, s Socket)) {
	for _, e := range r.snapshot() {
		visit(e.key, e.socket)
	}
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sockets)
}

type registryEntry struct {
	key    string
	socket Socket
}

func (r *Registry) snapshot() []registryEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := make([]registryEntry, 0, len(r.sockets))
	for key, s := range r.sockets {
		entries = append(entries, registryEntry{key: key, socket: s})
	}

	return entries
}
