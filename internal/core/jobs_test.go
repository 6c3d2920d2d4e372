package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/JonMunkholm/dealerprice/internal/catalog"
	"github.com/JonMunkholm/dealerprice/internal/mapping"
)

func asyncRequest(t *testing.T) ImportRequest {
	return ImportRequest{
		DealerID: 1,
		Path:     writeTemp(t, "prices.csv", widgetCSV),
		Mapping:  widgetMapping(t, mapping.ColumnOption{}),
	}
}

func waitResult(t *testing.T, svc *Service, id string) *ImportResult {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res, err := svc.GetImportResult(ctx, id)
	if err != nil {
		t.Fatalf("GetImportResult() error = %v", err)
	}
	return res
}

func TestStartImport_Completes(t *testing.T) {
	store := newMemStore()
	store.addDealer(catalog.Dealer{ID: 1})
	svc := newTestService(store, Options{})

	id, err := svc.StartImport(context.Background(), asyncRequest(t))
	if err != nil {
		t.Fatalf("StartImport() error = %v", err)
	}

	res := waitResult(t, svc, id)
	if res.Status != PhaseComplete || res.Inserted != 2 {
		t.Errorf("result = %+v", res)
	}

	progress, err := svc.GetImportProgress(id)
	if err != nil {
		t.Fatalf("GetImportProgress() error = %v", err)
	}
	if progress.Phase != PhaseComplete || progress.Percent() != 100 {
		t.Errorf("progress = %+v", progress)
	}
}

func TestStartImport_DealerLocked(t *testing.T) {
	store := newMemStore()
	store.addDealer(catalog.Dealer{ID: 1})
	store.gate = make(chan struct{})
	svc := newTestService(store, Options{})

	id, err := svc.StartImport(context.Background(), asyncRequest(t))
	if err != nil {
		t.Fatalf("StartImport() error = %v", err)
	}
	if holder, ok := svc.ActiveImport(1); !ok || holder != id {
		t.Errorf("ActiveImport(1) = %q, %v; want %q", holder, ok, id)
	}

	_, err = svc.StartImport(context.Background(), asyncRequest(t))
	if !errors.Is(err, ErrImportInProgress) {
		t.Fatalf("second StartImport() error = %v, want ErrImportInProgress", err)
	}

	close(store.gate)
	if res := waitResult(t, svc, id); res.Status != PhaseComplete {
		t.Fatalf("Status = %s, want complete", res.Status)
	}

	next, err := svc.StartImport(context.Background(), asyncRequest(t))
	if err != nil {
		t.Fatalf("StartImport() after completion error = %v", err)
	}
	waitResult(t, svc, next)
}

func TestCancelImport_BeforeReplace(t *testing.T) {
	store := newMemStore()
	store.addDealer(catalog.Dealer{ID: 1})
	store.products[1] = []catalog.ProductRecord{{DealerID: 1, Name: "keep"}}
	store.gate = make(chan struct{})
	svc := newTestService(store, Options{})

	id, err := svc.StartImport(context.Background(), asyncRequest(t))
	if err != nil {
		t.Fatalf("StartImport() error = %v", err)
	}
	if err := svc.CancelImport(id); err != nil {
		t.Fatalf("CancelImport() error = %v", err)
	}

	res := waitResult(t, svc, id)
	if res.Status != PhaseCancelled || res.ErrorCode != "IMP005" {
		t.Errorf("Status = %s, ErrorCode = %s; want cancelled, IMP005", res.Status, res.ErrorCode)
	}
	if store.deletes != 0 || len(store.productsOf(1)) != 1 {
		t.Error("a cancelled import must leave the dealer's products untouched")
	}
	if store.lastRun().Status != "cancelled" {
		t.Errorf("run status = %q, want cancelled", store.lastRun().Status)
	}
}

func TestSubscribeProgress(t *testing.T) {
	store := newMemStore()
	store.addDealer(catalog.Dealer{ID: 1})
	store.gate = make(chan struct{})
	svc := newTestService(store, Options{})

	id, err := svc.StartImport(context.Background(), asyncRequest(t))
	if err != nil {
		t.Fatalf("StartImport() error = %v", err)
	}
	ch, err := svc.SubscribeProgress(id)
	if err != nil {
		t.Fatalf("SubscribeProgress() error = %v", err)
	}
	close(store.gate)

	timeout := time.After(5 * time.Second)
	updates := 0
	for done := false; !done; {
		select {
		case _, ok := <-ch:
			if !ok {
				done = true
				break
			}
			updates++
		case <-timeout:
			t.Fatal("progress channel was not closed")
		}
	}
	if updates == 0 {
		t.Error("expected at least the current state")
	}

	late, err := svc.SubscribeProgress(id)
	if err != nil {
		t.Fatalf("SubscribeProgress() after completion error = %v", err)
	}
	p, ok := <-late
	if !ok || p.Phase != PhaseComplete {
		t.Errorf("late subscriber got %+v, %v; want complete state", p, ok)
	}
	if _, ok := <-late; ok {
		t.Error("late subscriber channel should be closed")
	}
}

func TestImportLookup_Unknown(t *testing.T) {
	svc := newTestService(newMemStore(), Options{})

	if _, err := svc.GetImportProgress("missing"); !errors.Is(err, ErrImportNotFound) {
		t.Errorf("GetImportProgress() error = %v, want ErrImportNotFound", err)
	}
	if err := svc.CancelImport("missing"); !errors.Is(err, ErrImportNotFound) {
		t.Errorf("CancelImport() error = %v, want ErrImportNotFound", err)
	}
}

func TestStartImport_NoMapping(t *testing.T) {
	store := newMemStore()
	store.addDealer(catalog.Dealer{ID: 1})
	svc := newTestService(store, Options{})

	_, err := svc.StartImport(context.Background(), ImportRequest{DealerID: 1, Path: "x.csv"})
	if !errors.Is(err, ErrNoMapping) {
		t.Errorf("StartImport() error = %v, want ErrNoMapping", err)
	}
	if _, held := svc.ActiveImport(1); held {
		t.Error("no lock should be taken")
	}
}
