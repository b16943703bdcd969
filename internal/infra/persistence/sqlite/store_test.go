package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"datamarket/pkg/domain"
)

func seed(t *testing.T, store *Store) {
	t.Helper()
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		if _, err := tx.CreatePlatformConfig(domain.PlatformConfig{Admin: "root", Treasury: "vault", FeeBps: 500}); err != nil {
			return err
		}
		if _, err := tx.CreateDataset(domain.Dataset{Base: domain.Base{ID: "ds"}, Owner: "alice", Key: "k1", Price: domain.MinPrice}); err != nil {
			return err
		}
		if _, err := tx.Transfer(domain.ExternalAccount, "bob", 1_000_000, domain.LedgerDeposit, ""); err != nil {
			return err
		}
		_, err := tx.AppendEvent(domain.Event{Type: domain.EventDatasetRegistered, RecordID: "ds"})
		return err
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func TestSQLiteStorePersistAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.db")
	store, err := NewStore(path, domain.NewRulesEngine())
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	seed(t, store)
	if store.Path() != path || store.DB() == nil {
		t.Fatalf("unexpected store accessors")
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reloaded, err := NewStore(path, domain.NewRulesEngine())
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	t.Cleanup(func() { _ = reloaded.Close() })
	err = reloaded.View(context.Background(), func(v domain.TransactionView) error {
		cfg, ok := v.PlatformConfig()
		if !ok || cfg.Treasury != "vault" {
			return errors.New("expected config after reload")
		}
		if _, ok := v.FindDataset("ds"); !ok {
			return errors.New("expected dataset after reload")
		}
		if v.Balance("bob") != 1_000_000 || len(v.ListEvents(0, 0)) != 1 {
			return errors.New("expected balances and events after reload")
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestSQLiteStoreSkipsPersistOnFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	store, err := NewStore(path, nil)
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	boom := errors.New("boom")
	if _, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, _ = tx.CreateDataset(domain.Dataset{Base: domain.Base{ID: "ds"}})
		return boom
	}); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	var rows int
	if err := store.DB().QueryRow(`SELECT COUNT(*) FROM state`).Scan(&rows); err != nil {
		t.Fatalf("count: %v", err)
	}
	if rows != 0 {
		t.Fatalf("expected no snapshot rows after failed transaction, got %d", rows)
	}
}

func TestSQLiteStoreWriteFailureKeepsMemoryState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	store, err := NewStore(path, nil)
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	seed(t, store)
	if err := store.DB().Close(); err != nil {
		t.Fatalf("close db: %v", err)
	}
	_, err = store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.Transfer(domain.ExternalAccount, "carol", 5, domain.LedgerDeposit, "")
		return err
	})
	if !domain.IsCode(err, domain.CodePersistenceFailed) {
		t.Fatalf("expected persistence failure, got %v", err)
	}
	state := store.ExportState()
	if state.Balances["carol"] != 0 || len(state.Ledger) != 1 {
		t.Fatalf("failed write leaked into memory: balances=%v ledger=%d", state.Balances, len(state.Ledger))
	}
}

func TestSQLiteStoreRejectsCorruptSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	store, err := NewStore(path, nil)
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	if _, err := store.DB().Exec(`INSERT INTO state(bucket,payload) VALUES('datasets', '{')`); err != nil {
		t.Fatalf("insert corrupt row: %v", err)
	}
	_ = store.Close()
	if _, err := NewStore(path, nil); err == nil {
		t.Fatalf("expected corrupt snapshot to fail load")
	}
}
