package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"presupuesto/internal/amqp"
	"presupuesto/internal/core"
	"presupuesto/internal/storage"
)

type fakePublisher struct {
	mu   sync.Mutex
	msgs []*amqp.SnapshotSavedMessage
}

func (f *fakePublisher) PublishSnapshotSaved(_ context.Context, msg *amqp.SnapshotSavedMessage) error {
	f.mu.Lock()
	f.msgs = append(f.msgs, msg)
	f.mu.Unlock()
	return nil
}

func (f *fakePublisher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.msgs)
}

func testScope() storage.Scope {
	return storage.Scope{UserID: "u1", ProjectID: "corto-2026", ModuleKey: "presupuesto"}
}

func validRaw(concept string) core.RawItem {
	return core.RawItem{
		Stage:     "PRODUCCIÓN",
		Concept:   concept,
		Account:   "LOCACIONES",
		UnitCents: 100000,
		Quantity:  1,
	}
}

func TestCreateItemPersistsAndPublishes(t *testing.T) {
	ctx := context.Background()
	repo := storage.NewMemoryRepository()
	pub := &fakePublisher{}
	svc := NewBudgetService(repo, pub)
	scope := testScope()

	item, err := svc.CreateItem(ctx, scope, validRaw("Locación bosque"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if item.UID == "" || item.TotalCents != 100000 {
		t.Fatalf("item = %+v", item)
	}

	if err := svc.Flush(ctx, scope); err != nil {
		t.Fatalf("flush: %v", err)
	}

	blob, err := repo.LoadState(ctx, scope)
	if err != nil || blob == nil {
		t.Fatalf("snapshot not persisted (err=%v)", err)
	}
	var state core.State
	if err := json.Unmarshal(blob, &state); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if len(state.Items) != 1 || state.Seq != 1 || state.Version != core.CurrentVersion {
		t.Fatalf("persisted state = %+v", state)
	}
	if pub.count() == 0 {
		t.Fatal("expected a snapshot saved message")
	}
}

func TestCreateItemValidation(t *testing.T) {
	svc := NewBudgetService(storage.NewMemoryRepository(), nil)
	ctx := context.Background()

	cases := []struct {
		name string
		mod  func(*core.RawItem)
		want string
	}{
		{"empty concept", func(r *core.RawItem) { r.Concept = " " }, "CONCEPTO"},
		{"unknown account", func(r *core.RawItem) { r.Account = "DRONES" }, "CUENTA"},
		{"bad stage", func(r *core.RawItem) { r.Stage = "RODAJE" }, "ETAPA"},
		{"zero amount", func(r *core.RawItem) { r.UnitCents = 0 }, "MONTO"},
	}
	for _, tc := range cases {
		raw := validRaw("x")
		tc.mod(&raw)
		_, err := svc.CreateItem(ctx, testScope(), raw)
		if !errors.Is(err, ErrValidation) {
			t.Fatalf("%s: err = %v, expected ErrValidation", tc.name, err)
		}
		if !strings.Contains(err.Error(), tc.want) {
			t.Fatalf("%s: %v should mention %s", tc.name, err, tc.want)
		}
	}
}

func TestUpdateAndDelete(t *testing.T) {
	ctx := context.Background()
	svc := NewBudgetService(storage.NewMemoryRepository(), nil)
	scope := testScope()

	item, err := svc.CreateItem(ctx, scope, validRaw("a"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	edit := validRaw("a editada")
	edit.UnitCents = 200000
	updated, err := svc.UpdateItem(ctx, scope, item.UID, edit)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.UID != item.UID || updated.TotalCents != 200000 {
		t.Fatalf("updated = %+v", updated)
	}

	if _, err := svc.UpdateItem(ctx, scope, "missing", edit); !errors.Is(err, core.ErrItemNotFound) {
		t.Fatalf("update missing: %v", err)
	}

	if err := svc.DeleteItems(ctx, scope, item.UID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	state, err := svc.State(ctx, scope)
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if len(state.Items) != 0 {
		t.Fatalf("items = %d after delete", len(state.Items))
	}
}

func TestBulkCommitPartial(t *testing.T) {
	ctx := context.Background()
	svc := NewBudgetService(storage.NewMemoryRepository(), nil)
	scope := testScope()

	text := "ETAPA,CONCEPTO,CUENTA,ENTIDAD,PAYMENT_METHOD,FACTURADO,MONTO,CANTIDAD,IVA_TIPO\n" +
		"PRODUCCIÓN,Catering,ALIMENTACIÓN,,efectivo,NO,2500,3,\n" +
		"PRODUCCIÓN,Mala,NO EXISTE,,efectivo,NO,100,1,\n"
	added, rowErrs, err := svc.BulkCommit(ctx, scope, text)
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if len(added) != 1 || len(rowErrs) != 1 {
		t.Fatalf("added=%d errors=%v", len(added), rowErrs)
	}
	if !strings.Contains(rowErrs[0], "Fila 3") {
		t.Fatalf("row error should be 1-indexed over the file: %q", rowErrs[0])
	}

	state, err := svc.State(ctx, scope)
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if state.Seq != 1 || len(state.Items) != 1 {
		t.Fatalf("state after bulk: seq=%d items=%d", state.Seq, len(state.Items))
	}
}

func TestBootMigratesLegacySnapshot(t *testing.T) {
	ctx := context.Background()
	repo := storage.NewMemoryRepository()
	scope := testScope()

	legacy := []byte(`{
		"version": "v1",
		"items": [{
			"uid": "a1", "etapa": "PRODUCCIÓN", "concepto": "Luz",
			"cuenta": "EQUIPO DE CÁMARA", "entidad": "Rentadora",
			"formaPago": "TRANSFERENCIA", "monto": 800, "plazo": 2, "cantidad": 1
		}]
	}`)
	if err := repo.SaveState(ctx, storage.StateRecord{Scope: scope, Snapshot: legacy, Version: "v1"}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	svc := NewBudgetService(repo, nil)
	state, err := svc.State(ctx, scope)
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if state.Version != core.CurrentVersion {
		t.Fatalf("version = %q", state.Version)
	}
	if state.Items[0].TotalCents != 160000 {
		t.Fatalf("migrated total = %d, expected 160000", state.Items[0].TotalCents)
	}

	// The migrated snapshot is persisted right away.
	if err := svc.Flush(ctx, scope); err != nil {
		t.Fatalf("flush: %v", err)
	}
	blob, err := repo.LoadState(ctx, scope)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	var persisted core.State
	if err := json.Unmarshal(blob, &persisted); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if persisted.Version != core.CurrentVersion {
		t.Fatalf("persisted version = %q", persisted.Version)
	}
}

func TestVarianceUsesLedger(t *testing.T) {
	ctx := context.Background()
	repo := storage.NewMemoryRepository()
	svc := NewBudgetService(repo, nil)
	scope := testScope()

	if _, err := svc.CreateItem(ctx, scope, validRaw("Locación")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.AddExpense(ctx, scope, storage.Expense{
		Date: "2026-06-01", Account: "locaciones", Concept: "Anticipo", AmountCents: 95000,
	}); err != nil {
		t.Fatalf("expense: %v", err)
	}
	// Spend with no budget line at all.
	if _, err := svc.AddExpense(ctx, scope, storage.Expense{
		Date: "2026-06-02", Account: "HOSPEDAJE", Concept: "Hotel", AmountCents: 4000,
	}); err != nil {
		t.Fatalf("expense: %v", err)
	}

	rep, err := svc.Variance(ctx, scope)
	if err != nil {
		t.Fatalf("variance: %v", err)
	}
	if len(rep.Rows) != 1 || rep.Rows[0].Account != "LOCACIONES" {
		t.Fatalf("rows = %+v", rep.Rows)
	}
	if rep.Rows[0].Status != core.StatusCritical {
		t.Fatalf("95%% executed should be CRÍTICO, got %q", rep.Rows[0].Status)
	}
	if len(rep.Unbudgeted) != 1 || rep.Unbudgeted[0].Account != "HOSPEDAJE" {
		t.Fatalf("unbudgeted = %+v", rep.Unbudgeted)
	}
}

func TestAddExpenseValidation(t *testing.T) {
	svc := NewBudgetService(storage.NewMemoryRepository(), nil)
	_, err := svc.AddExpense(context.Background(), testScope(), storage.Expense{
		Account: "INVENTADA", AmountCents: -5,
	})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("err = %v", err)
	}
	for _, want := range []string{"FECHA", "CONCEPTO", "CUENTA", "MONTO"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("%v should mention %s", err, want)
		}
	}
}

func TestConcurrentEditsCoalesceSaves(t *testing.T) {
	ctx := context.Background()
	repo := storage.NewMemoryRepository()
	svc := NewBudgetService(repo, nil)
	scope := testScope()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.CreateItem(ctx, scope, validRaw("concurrente")); err != nil {
				t.Errorf("create: %v", err)
			}
		}()
	}
	wg.Wait()
	if err := svc.Flush(ctx, scope); err != nil {
		t.Fatalf("flush: %v", err)
	}

	blob, err := repo.LoadState(ctx, scope)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	var state core.State
	if err := json.Unmarshal(blob, &state); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(state.Items) != 20 || state.Seq != 20 {
		t.Fatalf("persisted %d items seq %d, expected 20/20", len(state.Items), state.Seq)
	}
}

func TestCreateItemCanonicalizesAccountCasing(t *testing.T) {
	ctx := context.Background()
	repo := storage.NewMemoryRepository()
	svc := NewBudgetService(repo, nil)
	scope := testScope()

	raw := validRaw("Renta locación")
	raw.Account = "  locaciones "
	item, err := svc.CreateItem(ctx, scope, raw)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if item.Account != "LOCACIONES" {
		t.Fatalf("item account = %q, want LOCACIONES", item.Account)
	}

	if _, err := svc.AddExpense(ctx, scope, storage.Expense{
		Date:        "2026-08-01",
		Concept:     "Anticipo locación",
		Account:     "LOCACIONES",
		AmountCents: 40000,
	}); err != nil {
		t.Fatalf("add expense: %v", err)
	}

	rep, err := svc.Variance(ctx, scope)
	if err != nil {
		t.Fatalf("variance: %v", err)
	}
	if len(rep.Unbudgeted) != 0 {
		t.Fatalf("unbudgeted = %+v, want none", rep.Unbudgeted)
	}
	if len(rep.Rows) != 1 {
		t.Fatalf("rows = %+v, want one LOCACIONES row", rep.Rows)
	}
	row := rep.Rows[0]
	if row.Account != "LOCACIONES" || row.ApprovedCents != 100000 || row.ExecutedCents != 40000 {
		t.Fatalf("row = %+v", row)
	}
	if row.Percent != 40 || row.Status != core.StatusOK {
		t.Fatalf("row percent/status = %v/%v, want 40/OK", row.Percent, row.Status)
	}
}

func TestUpdateItemCanonicalizesAccountCasing(t *testing.T) {
	ctx := context.Background()
	repo := storage.NewMemoryRepository()
	svc := NewBudgetService(repo, nil)
	scope := testScope()

	item, err := svc.CreateItem(ctx, scope, validRaw("Catering"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	raw := item.Raw()
	raw.Account = "alimentación"
	updated, err := svc.UpdateItem(ctx, scope, item.UID, raw)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Account != "ALIMENTACIÓN" {
		t.Fatalf("updated account = %q, want ALIMENTACIÓN", updated.Account)
	}
}
