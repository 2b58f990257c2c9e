// Package storetest runs a behavioral test suite against sessions.Store
// implementations.
package storetest

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/ggoodman/authgate/auth"
	"github.com/ggoodman/authgate/sessions"
)

// StoreFactory creates a new Store scoped to environment.
type StoreFactory func(t *testing.T, environment string) sessions.Store

// RunStoreTests runs the complete Store test suite against the provided factory.
func RunStoreTests(t *testing.T, factory StoreFactory) {
	t.Run("Get_MissingIsNotFound", func(t *testing.T) { testGetMissing(t, factory) })
	t.Run("SetThenGet_RoundTripsRecord", func(t *testing.T) { testRoundTrip(t, factory) })
	t.Run("Set_OverwritesRecord", func(t *testing.T) { testOverwrite(t, factory) })
	t.Run("Environments_AreIsolated", func(t *testing.T) { testEnvironmentIsolation(t, factory) })
	t.Run("Set_NilRecordFails", func(t *testing.T) { testNilRecord(t, factory) })
}

func ctx(t *testing.T) context.Context {
	t.Helper()
	c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return c
}

func testGetMissing(t *testing.T, factory StoreFactory) {
	s := factory(t, "test")
	if rec, ok := s.Get(ctx(t), "nobody"); ok || rec != nil {
		t.Fatalf("Get(nobody) = %+v, %v; want nil, false", rec, ok)
	}
}

func testRoundTrip(t *testing.T, factory StoreFactory) {
	s := factory(t, "test")
	want := &sessions.Record{
		UserID:      "u1",
		UserType:    auth.UserTypeRetailer,
		IsActive:    sessions.Bool(true),
		RetailerID:  "r1",
		Permissions: []string{"read", "write"},
		StoreIDs:    []string{"s1", "s2"},
	}
	if err := s.Set(ctx(t), "abc123", want); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, ok := s.Get(ctx(t), "abc123")
	if !ok {
		t.Fatal("Get after Set: not found")
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Get = %+v, want %+v", got, want)
	}
}

func testOverwrite(t *testing.T, factory StoreFactory) {
	s := factory(t, "test")
	if err := s.Set(ctx(t), "abc123", &sessions.Record{UserID: "u1", IsActive: sessions.Bool(true)}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Set(ctx(t), "abc123", &sessions.Record{UserID: "u1", IsActive: sessions.Bool(false)}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, ok := s.Get(ctx(t), "abc123")
	if !ok {
		t.Fatal("Get: not found")
	}
	if got.Active() {
		t.Fatal("expected overwritten record to be inactive")
	}
}

func testEnvironmentIsolation(t *testing.T, factory StoreFactory) {
	prod := factory(t, "production")
	if err := prod.Set(ctx(t), "abc123", &sessions.Record{UserID: "u1"}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	staging := factory(t, "staging")
	if _, ok := staging.Get(ctx(t), "abc123"); ok {
		t.Fatal("record leaked across environments")
	}
}

func testNilRecord(t *testing.T, factory StoreFactory) {
	s := factory(t, "test")
	err := s.Set(ctx(t), "abc123", nil)
	if !errors.Is(err, sessions.ErrWriteFailed) {
		t.Fatalf("Set(nil) err = %v, want ErrWriteFailed", err)
	}
}
