package contracts

import (
	"context"
	"strings"
	"sync"
)

// ABIStore persists registered contract ABIs keyed by contract address.
// Addresses are normalized to lowercase hex before lookup.
type ABIStore interface {
	// LoadABI reads the ABI JSON registered for a contract.
	// Returns found=false when no ABI is registered.
	LoadABI(ctx context.Context, address string) (string, bool, error)

	// SaveABI registers or replaces the ABI JSON for a contract.
	SaveABI(ctx context.Context, address, name, abiJSON string) error

	// LoadName reads the human label saved alongside the ABI.
	LoadName(ctx context.Context, address string) (string, error)

	// Close releases resources.
	Close() error
}

func normalizeKey(address string) string {
	return strings.ToLower(address)
}

type memoryEntry struct {
	name    string
	abiJSON string
}

// MemoryABIStore is an in-memory implementation. Registrations are lost on
// restart, which suits single-process and test use.
type MemoryABIStore struct {
	data map[string]memoryEntry
	mu   sync.RWMutex
}

// NewMemoryABIStore initializes an empty in-memory ABI store.
func NewMemoryABIStore() *MemoryABIStore {
	return &MemoryABIStore{data: make(map[string]memoryEntry)}
}

func (m *MemoryABIStore) LoadABI(_ context.Context, address string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.data[normalizeKey(address)]
	return entry.abiJSON, ok, nil
}

func (m *MemoryABIStore) SaveABI(_ context.Context, address, name, abiJSON string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[normalizeKey(address)] = memoryEntry{name: name, abiJSON: abiJSON}
	return nil
}

func (m *MemoryABIStore) LoadName(_ context.Context, address string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data[normalizeKey(address)].name, nil
}

// Close implements the ABIStore interface.
func (m *MemoryABIStore) Close() error {
	return nil
}
