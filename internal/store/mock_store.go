// ABOUTME: Mock Store implementation for testing
// ABOUTME: In-memory backend with per-operation failure injection and a call journal

package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Operation names recorded in the MockStore journal and accepted by FailOn.
const (
	OpCreateIdentity   = "CreateIdentity"
	OpGetIdentity      = "GetIdentity"
	OpGetIdentityEmail = "GetIdentityByEmail"
	OpDeleteIdentity   = "DeleteIdentity"
	OpUpsertProfile    = "UpsertProfile"
	OpGetProfile       = "GetProfile"
	OpDeleteProfile    = "DeleteProfile"
	OpHasRole          = "HasRole"
	OpInsertRoleGrant  = "InsertRoleGrant"
	OpDeleteRoleGrants = "DeleteRoleGrants"
	OpListRoleHolders  = "ListRoleHolders"
	OpAppendAuditLog   = "AppendAuditLog"
	OpListAuditLog     = "ListAuditLog"
	OpPing             = "Ping"
)

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu         sync.RWMutex
	identities map[string]*Identity // keyed by ID
	byEmail    map[string]string    // normalized email -> ID
	profiles   map[string]*Profile  // keyed by ID
	grants     []RoleGrant
	audit      []AuditEntry
	failures   map[string]error
	calls      []string
}

// Ensure MockStore implements Store.
var _ Store = (*MockStore)(nil)

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		identities: make(map[string]*Identity),
		byEmail:    make(map[string]string),
		profiles:   make(map[string]*Profile),
		failures:   make(map[string]error),
	}
}

// FailOn makes every subsequent call to op return err. A nil err clears it.
func (m *MockStore) FailOn(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failures, op)
		return
	}
	m.failures[op] = err
}

// Calls returns the operations invoked so far, in order.
func (m *MockStore) Calls() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, len(m.calls))
	copy(out, m.calls)
	return out
}

// ResetCalls clears the call journal.
func (m *MockStore) ResetCalls() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

// record appends op to the journal and returns its injected failure, if any.
// Caller must hold m.mu for writing.
func (m *MockStore) record(op string) error {
	m.calls = append(m.calls, op)
	return m.failures[op]
}

// CreateIdentity stores a new identity.
func (m *MockStore) CreateIdentity(ctx context.Context, identity *Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record(OpCreateIdentity); err != nil {
		return err
	}

	identity.Email = NormalizeEmail(identity.Email)
	if _, exists := m.byEmail[identity.Email]; exists {
		return ErrEmailExists
	}

	id := *identity
	m.identities[id.ID] = &id
	m.byEmail[id.Email] = id.ID
	return nil
}

// GetIdentity retrieves an identity by ID.
func (m *MockStore) GetIdentity(ctx context.Context, id string) (*Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record(OpGetIdentity); err != nil {
		return nil, err
	}

	identity, ok := m.identities[id]
	if !ok {
		return nil, ErrNotFound
	}
	result := *identity
	return &result, nil
}

// GetIdentityByEmail retrieves an identity by case-insensitive email.
func (m *MockStore) GetIdentityByEmail(ctx context.Context, email string) (*Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record(OpGetIdentityEmail); err != nil {
		return nil, err
	}

	id, ok := m.byEmail[NormalizeEmail(email)]
	if !ok {
		return nil, ErrNotFound
	}
	result := *m.identities[id]
	return &result, nil
}

// DeleteIdentity removes an identity along with its profile and grants.
func (m *MockStore) DeleteIdentity(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record(OpDeleteIdentity); err != nil {
		return err
	}

	if identity, ok := m.identities[id]; ok {
		delete(m.byEmail, identity.Email)
		delete(m.identities, id)
	}
	delete(m.profiles, id)

	kept := m.grants[:0]
	for _, g := range m.grants {
		if g.UserID != id {
			kept = append(kept, g)
		}
	}
	m.grants = kept
	return nil
}

// UpsertProfile inserts or overwrites a profile.
func (m *MockStore) UpsertProfile(ctx context.Context, profile *Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record(OpUpsertProfile); err != nil {
		return err
	}

	now := time.Now().UTC()
	if existing, ok := m.profiles[profile.ID]; ok && profile.CreatedAt.IsZero() {
		profile.CreatedAt = existing.CreatedAt
	}
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = now
	}
	profile.UpdatedAt = now

	p := *profile
	m.profiles[p.ID] = &p
	return nil
}

// GetProfile retrieves a profile by ID.
func (m *MockStore) GetProfile(ctx context.Context, id string) (*Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record(OpGetProfile); err != nil {
		return nil, err
	}

	p, ok := m.profiles[id]
	if !ok {
		return nil, ErrNotFound
	}
	result := *p
	return &result, nil
}

// DeleteProfile removes a profile.
func (m *MockStore) DeleteProfile(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record(OpDeleteProfile); err != nil {
		return err
	}
	delete(m.profiles, id)
	return nil
}

// HasRole checks whether userID holds role.
func (m *MockStore) HasRole(ctx context.Context, userID string, role RoleName) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record(OpHasRole); err != nil {
		return false, err
	}

	for _, g := range m.grants {
		if g.UserID == userID && g.Role == role {
			return true, nil
		}
	}
	return false, nil
}

// InsertRoleGrant appends a grant. Duplicates are kept.
func (m *MockStore) InsertRoleGrant(ctx context.Context, grant *RoleGrant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record(OpInsertRoleGrant); err != nil {
		return err
	}
	m.grants = append(m.grants, *grant)
	return nil
}

// DeleteRoleGrants removes every grant of role for userID.
func (m *MockStore) DeleteRoleGrants(ctx context.Context, userID string, role RoleName) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record(OpDeleteRoleGrants); err != nil {
		return 0, err
	}

	var removed int64
	kept := m.grants[:0]
	for _, g := range m.grants {
		if g.UserID == userID && g.Role == role {
			removed++
			continue
		}
		kept = append(kept, g)
	}
	m.grants = kept
	return removed, nil
}

// ListRoleHolders returns the distinct holders of role, ordered by email.
func (m *MockStore) ListRoleHolders(ctx context.Context, role RoleName) ([]RoleHolder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record(OpListRoleHolders); err != nil {
		return nil, err
	}

	byUser := make(map[string]*RoleHolder)
	for _, g := range m.grants {
		if g.Role != role {
			continue
		}
		if h, ok := byUser[g.UserID]; ok {
			if g.CreatedAt.Before(h.GrantedAt) {
				h.GrantedAt = g.CreatedAt
			}
			continue
		}
		h := &RoleHolder{UserID: g.UserID, Role: role, GrantedAt: g.CreatedAt}
		if p, ok := m.profiles[g.UserID]; ok {
			h.Email = p.Email
			h.FullName = p.FullName
		}
		byUser[g.UserID] = h
	}

	holders := make([]RoleHolder, 0, len(byUser))
	for _, h := range byUser {
		holders = append(holders, *h)
	}
	sortRoleHolders(holders)
	return holders, nil
}

// AppendAuditLog appends an audit entry.
func (m *MockStore) AppendAuditLog(ctx context.Context, e *AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record(OpAppendAuditLog); err != nil {
		return err
	}
	prepareAuditEntry(e)
	m.audit = append(m.audit, *e)
	return nil
}

// ListAuditLog returns audit entries, newest first.
func (m *MockStore) ListAuditLog(ctx context.Context, limit int) ([]AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record(OpListAuditLog); err != nil {
		return nil, err
	}

	limit = normalizeAuditLimit(limit)
	var out []AuditEntry
	for i := len(m.audit) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.audit[i])
	}
	return out, nil
}

// Ping reports the injected failure for OpPing, if any.
func (m *MockStore) Ping(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.record(OpPing)
}

// Close is a no-op for the mock store.
func (m *MockStore) Close() error {
	return nil
}

// sortRoleHolders orders holders by email, then user ID.
func sortRoleHolders(holders []RoleHolder) {
	sort.Slice(holders, func(i, j int) bool {
		if holders[i].Email != holders[j].Email {
			return holders[i].Email < holders[j].Email
		}
		return holders[i].UserID < holders[j].UserID
	})
}
