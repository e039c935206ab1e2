package auth

import "sync/atomic"

type storeHolder struct{ store CredentialStore }

var registeredStore atomic.Pointer[storeHolder]

// RegisterCredentialStore sets the process-wide store that NewManager falls back
// to when it is given none. Passing nil clears it.
func RegisterCredentialStore(store CredentialStore) {
	if store == nil {
		registeredStore.Store(nil)
		return
	}
	registeredStore.Store(&storeHolder{store: store})
}

// GetCredentialStore returns the registered store. When nothing was registered a
// MemoryStore is installed on first use so every caller sees the same instance.
func GetCredentialStore() CredentialStore {
	if h := registeredStore.Load(); h != nil {
		return h.store
	}
	registeredStore.CompareAndSwap(nil, &storeHolder{store: NewMemoryStore()})
	return registeredStore.Load().store
}
