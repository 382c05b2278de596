package docstore

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/immerse-zhaw/asset-hub/internal/storage/blob"
)

func newTestStore(t *testing.T) blob.Store {
	t.Helper()
	s, err := blob.NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("ошибка создания LocalStore: %v", err)
	}
	return s
}

// TestRead_MissingReturnsFallback проверяет, что отсутствующий документ — пустая коллекция.
func TestRead_MissingReturnsFallback(t *testing.T) {
	st := newTestStore(t)

	doc, err := Read(context.Background(), st, "assets/index.json", map[string]string{})
	if err != nil {
		t.Fatalf("ошибка Read: %v", err)
	}
	if len(doc) != 0 {
		t.Errorf("ожидался пустой fallback, получено %d записей", len(doc))
	}
}

// TestRead_CorruptReturnsFallback проверяет деградацию повреждённого документа.
func TestRead_CorruptReturnsFallback(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	if _, err := st.Put(ctx, "jobs/index.json", "application/json", strings.NewReader("{не json")); err != nil {
		t.Fatalf("ошибка Put: %v", err)
	}

	doc, err := Read(ctx, st, "jobs/index.json", []int{1, 2, 3})
	if err != nil {
		t.Fatalf("повреждённый документ не должен быть ошибкой: %v", err)
	}
	if len(doc) != 3 {
		t.Error("при повреждённом документе должен вернуться fallback")
	}
}

// TestWriteRead_RoundTrip проверяет запись и чтение документа.
func TestWriteRead_RoundTrip(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	type entry struct {
		ID   string `json:"id"`
		Size int64  `json:"size"`
	}
	want := map[string]entry{"a1": {ID: "a1", Size: 42}}

	if err := Write(ctx, st, "assets/index.json", want); err != nil {
		t.Fatalf("ошибка Write: %v", err)
	}

	got, err := Read(ctx, st, "assets/index.json", map[string]entry{})
	if err != nil {
		t.Fatalf("ошибка Read: %v", err)
	}
	if got["a1"] != want["a1"] {
		t.Errorf("ожидалось %+v, получено %+v", want["a1"], got["a1"])
	}
}

// TestUpdate_Serialized проверяет, что конкурентные мутации не теряют обновлений.
func TestUpdate_Serialized(t *testing.T) {
	st := newTestStore(t)
	m := NewMutator(st)
	ctx := context.Background()

	const goroutines = 20
	var wg sync.WaitGroup
	wg.Add(goroutines)

	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			_, err := Update(ctx, m, "counter.json", 0, func(n int) (int, error) {
				return n + 1, nil
			})
			if err != nil {
				t.Errorf("ошибка Update: %v", err)
			}
		}()
	}
	wg.Wait()

	got, err := Read(ctx, st, "counter.json", 0)
	if err != nil {
		t.Fatalf("ошибка Read: %v", err)
	}
	if got != goroutines {
		t.Errorf("lost update: ожидалось %d, получено %d", goroutines, got)
	}
}

// TestUpdate_FnErrorAbortsWrite проверяет, что ошибка fn отменяет запись.
func TestUpdate_FnErrorAbortsWrite(t *testing.T) {
	st := newTestStore(t)
	m := NewMutator(st)
	ctx := context.Background()

	if err := Write(ctx, st, "doc.json", "original"); err != nil {
		t.Fatalf("ошибка Write: %v", err)
	}

	_, err := Update(ctx, m, "doc.json", "", func(s string) (string, error) {
		return "clobbered", bytes.ErrTooLarge
	})
	if err == nil {
		t.Fatal("ошибка fn должна вернуться вызывающему")
	}

	got, err := Read(ctx, st, "doc.json", "")
	if err != nil {
		t.Fatalf("ошибка Read: %v", err)
	}
	if got != "original" {
		t.Errorf("документ не должен быть изменён: %q", got)
	}
}
