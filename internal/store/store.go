// Package store — единственный источник истины о каналах, сообщениях, тредах,
// аннотациях, фильтрах и присутствии, как их видит клиент.
// Изменения возможны только через Dispatch с действием из закрытого набора.
package store

import (
	"sync"

	"github.com/collab/internal/logger"
	"github.com/collab/internal/metrics"
)

// Listener вызывается после каждого действия, изменившего или не изменившего состояние.
// Вызывается вне блокировки; из слушателя можно вызывать Dispatch.
type Listener func(a Action, s State)

// Store сериализует вызовы Dispatch: переходы выполняются строго по одному.
type Store struct {
	mu    sync.Mutex
	state State

	lmu       sync.RWMutex
	listeners map[int]Listener
	nextID    int
}

// New создаёт хранилище с пустым состоянием для пользователя userID.
func New(userID string) *Store {
	return NewWithState(NewState(userID))
}

// NewWithState создаёт хранилище с заданным начальным состоянием (удобно в тестах).
func NewWithState(s State) *Store {
	return &Store{state: s, listeners: make(map[int]Listener)}
}

// Dispatch применяет действие и возвращает новый снимок.
func (st *Store) Dispatch(a Action) State {
	if a == nil {
		return st.Snapshot()
	}
	st.mu.Lock()
	next := Reduce(st.state, a)
	st.state = next
	st.mu.Unlock()

	metrics.StoreDispatch.WithLabelValues(a.Kind()).Inc()
	logger.Debugf("store: %s", a.Kind())

	st.lmu.RLock()
	ls := make([]Listener, 0, len(st.listeners))
	for _, l := range st.listeners {
		ls = append(ls, l)
	}
	st.lmu.RUnlock()
	for _, l := range ls {
		l(a, next)
	}
	return next
}

// Snapshot возвращает текущее состояние. Снимок неизменяем и безопасен для чтения из любой горутины.
func (st *Store) Snapshot() State {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.state
}

// Subscribe регистрирует слушателя и возвращает функцию отписки.
func (st *Store) Subscribe(l Listener) func() {
	st.lmu.Lock()
	id := st.nextID
	st.nextID++
	st.listeners[id] = l
	st.lmu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			st.lmu.Lock()
			delete(st.listeners, id)
			st.lmu.Unlock()
		})
	}
}
