package accountholder

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/RamXX/tminus/internal/store"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "tminus.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	env, err := NewEnvelope(testMasterKey(t))
	if err != nil {
		t.Fatalf("new envelope: %v", err)
	}
	return NewRegistry(store.New(db), env, &fakeRefresher{}, 10, 10, zerolog.Nop())
}

func TestRegistryStartAccountIsIdempotent(t *testing.T) {
	reg := newTestRegistry(t)
	t.Cleanup(reg.StopAll)

	a1, err := reg.StartAccount(context.Background(), "acc_1")
	if err != nil {
		t.Fatalf("start account: %v", err)
	}
	a2, err := reg.StartAccount(context.Background(), "acc_1")
	if err != nil {
		t.Fatalf("start account again: %v", err)
	}
	if a1 != a2 {
		t.Fatal("expected the same actor instance on repeated StartAccount")
	}
}

func TestRegistryHolderUnknownAccountErrors(t *testing.T) {
	reg := newTestRegistry(t)
	t.Cleanup(reg.StopAll)

	if _, err := reg.Holder("acc_missing"); err == nil {
		t.Fatal("expected an error for an account with no running actor")
	}
}

func TestRegistryHolderReturnsStartedActor(t *testing.T) {
	reg := newTestRegistry(t)
	t.Cleanup(reg.StopAll)

	started, err := reg.StartAccount(context.Background(), "acc_1")
	if err != nil {
		t.Fatalf("start account: %v", err)
	}
	holder, err := reg.Holder("acc_1")
	if err != nil {
		t.Fatalf("holder: %v", err)
	}
	if holder != started {
		t.Fatal("expected Holder to return the started actor")
	}
}
