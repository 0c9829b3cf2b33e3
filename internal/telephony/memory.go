package telephony

import (
	"context"
	"sync"
)

// MemoryControlPlane is an in-memory ControlPlane for tests and local runs.
type MemoryControlPlane struct {
	mu       sync.Mutex
	bindings map[string]Binding
	writes   []Write
	failSet  map[string]error
	failGet  map[string]error
}

// Write records one SetAssistant call.
type Write struct {
	ProviderNumberID string
	AssistantID      string
	IdempotencyKey   string
}

func NewMemoryControlPlane() *MemoryControlPlane {
	return &MemoryControlPlane{
		bindings: map[string]Binding{},
		failSet:  map[string]error{},
		failGet:  map[string]error{},
	}
}

func (m *MemoryControlPlane) Put(b Binding) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bindings[b.ProviderNumberID] = b
}

// FailSet makes SetAssistant on providerNumberID return err; nil clears it.
func (m *MemoryControlPlane) FailSet(providerNumberID string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failSet, providerNumberID)
		return
	}
	m.failSet[providerNumberID] = err
}

// FailGet makes GetPhoneNumber on providerNumberID return err; nil clears it.
func (m *MemoryControlPlane) FailGet(providerNumberID string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failGet, providerNumberID)
		return
	}
	m.failGet[providerNumberID] = err
}

func (m *MemoryControlPlane) GetPhoneNumber(ctx context.Context, providerNumberID string) (Binding, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failGet[providerNumberID]; err != nil {
		return Binding{}, err
	}
	b, ok := m.bindings[providerNumberID]
	if !ok {
		return Binding{}, ErrNotFound
	}
	return b, nil
}

func (m *MemoryControlPlane) SetAssistant(ctx context.Context, providerNumberID, assistantID, idempotencyKey string) (Binding, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failSet[providerNumberID]; err != nil {
		return Binding{}, err
	}
	b, ok := m.bindings[providerNumberID]
	if !ok {
		return Binding{}, ErrNotFound
	}
	b.AssistantID = assistantID
	m.bindings[providerNumberID] = b
	m.writes = append(m.writes, Write{ProviderNumberID: providerNumberID, AssistantID: assistantID, IdempotencyKey: idempotencyKey})
	return b, nil
}

// Writes returns every SetAssistant call in order.
func (m *MemoryControlPlane) Writes() []Write {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Write, len(m.writes))
	copy(out, m.writes)
	return out
}
