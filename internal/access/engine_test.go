// Insiderwatch - Insider Threat Detection and Access Control
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/insiderwatch

package access

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/tomtom215/insiderwatch/internal/models"
)

// =====================================================
// Mock Store
// =====================================================

type mockStore struct {
	mu        sync.Mutex
	subjects  map[string]*models.Subject
	resources map[string]*models.Resource
	grants    map[string]models.AccessLevel
	failOn    string
}

func newMockStore() *mockStore {
	return &mockStore{
		subjects:  make(map[string]*models.Subject),
		resources: make(map[string]*models.Resource),
		grants:    make(map[string]models.AccessLevel),
	}
}

func grantKey(kind models.GrantKind, principal, resourceID string) string {
	return string(kind) + "|" + principal + "|" + resourceID
}

func (m *mockStore) addSubject(s *models.Subject) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subjects[s.ID] = s
}

func (m *mockStore) addResource(r *models.Resource) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resources[r.ID] = r
}

func (m *mockStore) grant(kind models.GrantKind, principal, resourceID string, level models.AccessLevel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.grants[grantKey(kind, principal, resourceID)] = level
}

func (m *mockStore) revoke(kind models.GrantKind, principal, resourceID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.grants, grantKey(kind, principal, resourceID))
}

func (m *mockStore) GetSubject(_ context.Context, id string) (*models.Subject, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.subjects[id]
	if !ok {
		return nil, fmt.Errorf("subject %q: %w", id, models.ErrNotFound)
	}
	return s, nil
}

func (m *mockStore) GetResource(_ context.Context, id string) (*models.Resource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.resources[id]
	if !ok {
		return nil, fmt.Errorf("resource %q: %w", id, models.ErrNotFound)
	}
	return r, nil
}

func (m *mockStore) UserGrant(_ context.Context, subjectID, resourceID string) (models.AccessLevel, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failOn == "user" {
		return models.AccessNone, false, errors.New("store offline")
	}
	level, ok := m.grants[grantKey(models.GrantUser, subjectID, resourceID)]
	return level, ok, nil
}

func (m *mockStore) RoleGrant(_ context.Context, role, resourceID string) (models.AccessLevel, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	level, ok := m.grants[grantKey(models.GrantRole, role, resourceID)]
	return level, ok, nil
}

func (m *mockStore) GroupGrants(_ context.Context, groups []string, resourceID string) ([]models.AccessLevel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var levels []models.AccessLevel
	for _, g := range groups {
		if level, ok := m.grants[grantKey(models.GrantGroup, g, resourceID)]; ok {
			levels = append(levels, level)
		}
	}
	return levels, nil
}

// =====================================================
// Test Helpers
// =====================================================

func setupEngine(t *testing.T) (*Engine, *mockStore) {
	t.Helper()
	policy, err := NewPolicy(3)
	if err != nil {
		t.Fatalf("NewPolicy() error = %v", err)
	}
	store := newMockStore()
	return NewEngine(store, policy), store
}

func dept(name string) *string { return models.StringPtr(name) }

// =====================================================
// Resolve
// =====================================================

func TestResolve_Priority(t *testing.T) {
	engine, store := setupEngine(t)
	ctx := context.Background()

	store.addSubject(&models.Subject{ID: "root", IsSuperuser: true})
	store.addSubject(&models.Subject{ID: "owner"})
	store.addSubject(&models.Subject{
		ID:         "alice",
		Department: dept("finance"),
		Role:       &models.Role{Name: "analyst", Tier: 1},
		Groups:     []string{"auditors", "staff"},
	})
	store.addSubject(&models.Subject{ID: "bob", Department: dept("finance")})
	store.addSubject(&models.Subject{ID: "carol", Department: dept("hr")})
	store.addResource(&models.Resource{ID: "ledger", Department: dept("finance"), OwnerID: models.StringPtr("owner")})

	tests := []struct {
		name    string
		subject string
		setup   func()
		want    Decision
	}{
		{"superuser", "root", nil, Decision{models.AccessFullControl, SourceSuperuser}},
		{"owner", "owner", nil, Decision{models.AccessFullControl, SourceOwner}},
		{"department fallback", "bob", nil, Decision{models.AccessRead, SourceDepartment}},
		{"other department", "carol", nil, Decision{models.AccessNone, SourceNone}},
		{"user grant", "alice", func() {
			store.grant(models.GrantUser, "alice", "ledger", models.AccessDownload)
		}, Decision{models.AccessDownload, SourceUser}},
		{"role grant wins when higher", "alice", func() {
			store.grant(models.GrantRole, "analyst", "ledger", models.AccessWrite)
		}, Decision{models.AccessWrite, SourceRole}},
		{"group max wins when higher", "alice", func() {
			store.grant(models.GrantGroup, "auditors", "ledger", models.AccessUpload)
			store.grant(models.GrantGroup, "staff", "ledger", models.AccessDelete)
		}, Decision{models.AccessDelete, SourceGroup}},
		{"tie keeps user", "alice", func() {
			store.grant(models.GrantUser, "alice", "ledger", models.AccessDelete)
		}, Decision{models.AccessDelete, SourceUser}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.setup != nil {
				tt.setup()
			}
			got, err := engine.Resolve(ctx, tt.subject, "ledger")
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Resolve() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestResolve_ExplicitGrantReplacesFallback(t *testing.T) {
	engine, store := setupEngine(t)
	ctx := context.Background()

	store.addSubject(&models.Subject{ID: "bob", Department: dept("ops"), Groups: []string{"oncall"}})
	store.addResource(&models.Resource{ID: "runbook", Department: dept("ops")})
	store.grant(models.GrantGroup, "oncall", "runbook", models.AccessUpload)

	got, err := engine.Resolve(ctx, "bob", "runbook")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got.Source != SourceGroup || got.Level != models.AccessUpload {
		t.Errorf("Resolve() = %+v, want group upload", got)
	}
}

func TestResolve_NoneGrantDoesNotLowerFallback(t *testing.T) {
	engine, store := setupEngine(t)
	ctx := context.Background()

	store.addSubject(&models.Subject{ID: "bob", Department: dept("ops")})
	store.addResource(&models.Resource{ID: "runbook", Department: dept("ops")})
	store.grant(models.GrantUser, "bob", "runbook", models.AccessNone)

	got, err := engine.Resolve(ctx, "bob", "runbook")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got.Level != models.AccessRead {
		t.Errorf("Resolve() level = %s, want read", got.Level)
	}
}

func TestResolve_Monotone(t *testing.T) {
	engine, store := setupEngine(t)
	ctx := context.Background()

	store.addSubject(&models.Subject{
		ID:         "dave",
		Department: dept("eng"),
		Role:       &models.Role{Name: "dev", Tier: 2},
		Groups:     []string{"g1", "g2"},
	})
	store.addResource(&models.Resource{ID: "repo", Department: dept("eng")})

	type grantSpec struct {
		kind      models.GrantKind
		principal string
	}
	sources := []grantSpec{
		{models.GrantUser, "dave"},
		{models.GrantRole, "dev"},
		{models.GrantGroup, "g1"},
		{models.GrantGroup, "g2"},
	}

	// Add grants one by one at every level; the resolved level never drops.
	prev := models.AccessNone
	for _, src := range sources {
		for _, level := range models.AccessLevels() {
			store.grant(src.kind, src.principal, "repo", level)
			got, err := engine.Resolve(ctx, "dave", "repo")
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if got.Level < prev {
				t.Fatalf("adding %s grant %s lowered level from %s to %s", src.kind, level, prev, got.Level)
			}
			prev = got.Level
		}
	}

	// Removing grants never raises it.
	for _, src := range sources {
		store.revoke(src.kind, src.principal, "repo")
		got, err := engine.Resolve(ctx, "dave", "repo")
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
		if got.Level > prev {
			t.Fatalf("revoking %s grant raised level from %s to %s", src.kind, prev, got.Level)
		}
		prev = got.Level
	}
	if prev != models.AccessRead {
		t.Errorf("with no grants level = %s, want department read", prev)
	}
}

func TestResolve_NotFound(t *testing.T) {
	engine, store := setupEngine(t)
	ctx := context.Background()
	store.addSubject(&models.Subject{ID: "alice"})

	if _, err := engine.Resolve(ctx, "ghost", "doc"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("unknown subject: expected ErrNotFound, got %v", err)
	}
	if _, err := engine.Resolve(ctx, "alice", "ghost"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("unknown resource: expected ErrNotFound, got %v", err)
	}
}

func TestResolve_StoreError(t *testing.T) {
	engine, store := setupEngine(t)
	store.addSubject(&models.Subject{ID: "alice"})
	store.addResource(&models.Resource{ID: "doc"})
	store.failOn = "user"

	if _, err := engine.Resolve(context.Background(), "alice", "doc"); err == nil {
		t.Fatal("expected store error")
	}
}

// =====================================================
// Authorize
// =====================================================

func TestAuthorize(t *testing.T) {
	engine, store := setupEngine(t)
	ctx := context.Background()

	store.addSubject(&models.Subject{ID: "owner"})
	store.addSubject(&models.Subject{ID: "staff", Department: dept("legal"), Role: &models.Role{Name: "clerk", Tier: 1}})
	store.addSubject(&models.Subject{ID: "manager", Department: dept("legal"), Role: &models.Role{Name: "lead", Tier: 3}})
	store.addSubject(&models.Subject{ID: "writer"})
	store.addSubject(&models.Subject{ID: "outsider", Department: dept("sales")})
	store.addResource(&models.Resource{ID: "contract", Department: dept("legal"), OwnerID: models.StringPtr("owner")})
	store.grant(models.GrantUser, "writer", "contract", models.AccessWrite)

	tests := []struct {
		subject string
		action  string
		want    bool
	}{
		{"owner", "DELETE", true},
		{"owner", "share", true},
		{"staff", "GET", true},
		{"staff", "view", true},
		{"staff", "download", false},
		{"staff", "PUT", false},
		{"staff", "delete", false},
		{"manager", "write", true},
		{"manager", "DELETE", true},
		{"manager", "upload", true},
		{"manager", "full_control", false},
		{"writer", "PATCH", true},
		{"writer", "download", true},
		{"writer", "delete", false},
		{"outsider", "read", false},
	}

	for _, tt := range tests {
		t.Run(tt.subject+"_"+tt.action, func(t *testing.T) {
			got, err := engine.Authorize(ctx, tt.subject, "contract", tt.action)
			if err != nil {
				t.Fatalf("Authorize() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Authorize(%s, %s) = %v, want %v", tt.subject, tt.action, got, tt.want)
			}
		})
	}
}

func TestAuthorize_ExplicitGrantKeepsManagerFallback(t *testing.T) {
	engine, store := setupEngine(t)
	ctx := context.Background()

	store.addSubject(&models.Subject{ID: "manager", Department: dept("legal"), Role: &models.Role{Name: "lead", Tier: 3}})
	store.addResource(&models.Resource{ID: "contract", Department: dept("legal")})

	before, err := engine.Authorize(ctx, "manager", "contract", "write")
	if err != nil || !before {
		t.Fatalf("write before grant = %v, %v", before, err)
	}

	store.grant(models.GrantUser, "manager", "contract", models.AccessRead)
	after, err := engine.Authorize(ctx, "manager", "contract", "write")
	if err != nil {
		t.Fatalf("Authorize() error = %v", err)
	}
	if !after {
		t.Error("adding a read grant removed write")
	}
}

func TestAuthorize_MonotoneInGrants(t *testing.T) {
	engine, store := setupEngine(t)
	ctx := context.Background()

	subjects := []*models.Subject{
		{ID: "manager", Department: dept("legal"), Role: &models.Role{Name: "lead", Tier: 3}, Groups: []string{"g1"}},
		{ID: "staff", Department: dept("legal"), Role: &models.Role{Name: "clerk", Tier: 1}, Groups: []string{"g1"}},
		{ID: "outsider", Department: dept("sales"), Role: &models.Role{Name: "rep", Tier: 4}, Groups: []string{"g1"}},
	}
	for _, s := range subjects {
		store.addSubject(s)
	}
	store.addResource(&models.Resource{ID: "contract", Department: dept("legal")})
	actions := engine.Policy().Actions()

	allowedSet := func(subject string) map[string]bool {
		t.Helper()
		out := make(map[string]bool)
		for _, a := range actions {
			ok, err := engine.Authorize(ctx, subject, "contract", a)
			if err != nil {
				t.Fatalf("Authorize(%s, %s) error = %v", subject, a, err)
			}
			out[a] = ok
		}
		return out
	}

	for _, s := range subjects {
		prev := allowedSet(s.ID)
		for _, level := range models.AccessLevels() {
			store.grant(models.GrantGroup, "g1", "contract", level)
			store.grant(models.GrantUser, s.ID, "contract", level)
			cur := allowedSet(s.ID)
			for _, a := range actions {
				if prev[a] && !cur[a] {
					t.Errorf("%s lost %s after %s grants", s.ID, a, level)
				}
			}
			prev = cur
		}
		store.revoke(models.GrantGroup, "g1", "contract")
		store.revoke(models.GrantUser, s.ID, "contract")
	}
}

func TestAuthorize_OwnerPassesRegardlessOfGrants(t *testing.T) {
	engine, store := setupEngine(t)
	ctx := context.Background()

	store.addSubject(&models.Subject{ID: "owner", Department: dept("a")})
	store.addResource(&models.Resource{ID: "doc", Department: dept("b"), OwnerID: models.StringPtr("owner")})
	store.grant(models.GrantUser, "owner", "doc", models.AccessNone)

	for _, action := range engine.Policy().Actions() {
		allowed, err := engine.Authorize(ctx, "owner", "doc", action)
		if err != nil {
			t.Fatalf("Authorize(%s) error = %v", action, err)
		}
		if !allowed {
			t.Errorf("owner denied %s", action)
		}
	}
}

func TestAuthorize_UnknownAction(t *testing.T) {
	engine, store := setupEngine(t)
	store.addSubject(&models.Subject{ID: "alice"})
	store.addResource(&models.Resource{ID: "doc"})

	_, err := engine.Authorize(context.Background(), "alice", "doc", "teleport")
	if !errors.Is(err, models.ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
}

func TestRequire(t *testing.T) {
	engine, store := setupEngine(t)
	ctx := context.Background()
	store.addSubject(&models.Subject{ID: "alice", Department: dept("x")})
	store.addResource(&models.Resource{ID: "doc", Department: dept("x")})

	if err := engine.Require(ctx, "alice", "doc", "read"); err != nil {
		t.Errorf("Require(read) error = %v", err)
	}
	err := engine.Require(ctx, "alice", "doc", "write")
	if !errors.Is(err, models.ErrPermissionDenied) {
		t.Errorf("Require(write) expected ErrPermissionDenied, got %v", err)
	}
}

func TestAuthorize_ReadsGrantsFresh(t *testing.T) {
	engine, store := setupEngine(t)
	ctx := context.Background()
	store.addSubject(&models.Subject{ID: "alice"})
	store.addResource(&models.Resource{ID: "doc"})

	check := func(want bool) {
		t.Helper()
		got, err := engine.Authorize(ctx, "alice", "doc", "write")
		if err != nil {
			t.Fatalf("Authorize() error = %v", err)
		}
		if got != want {
			t.Errorf("Authorize() = %v, want %v", got, want)
		}
	}

	check(false)
	store.grant(models.GrantUser, "alice", "doc", models.AccessWrite)
	check(true)
	store.revoke(models.GrantUser, "alice", "doc")
	check(false)
}

func TestAuthorize_Concurrent(t *testing.T) {
	engine, store := setupEngine(t)
	ctx := context.Background()
	store.addSubject(&models.Subject{ID: "alice", Department: dept("x")})
	store.addResource(&models.Resource{ID: "doc", Department: dept("x")})

	var wg sync.WaitGroup
	errCh := make(chan error, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			allowed, err := engine.Authorize(ctx, "alice", "doc", "read")
			if err != nil {
				errCh <- err
				return
			}
			if !allowed {
				errCh <- errors.New("read denied")
			}
		}()
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Error(err)
	}
}
