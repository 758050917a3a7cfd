package flow

import "sync"

// keyedMutex serializes concurrent inputs for the same chat, so a double-tap
// cannot advance a session twice. Different chats never contend.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

func (k *keyedMutex) lock(chatID int64) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[int64]*sync.Mutex)
	}
	m, ok := k.locks[chatID]
	if !ok {
		m = &sync.Mutex{}
		k.locks[chatID] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}
