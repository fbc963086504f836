package registry_test

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"telegram-sessionbot/internal/domain/registry"
)

// writeSessionFile кладёт фиктивный сессионный артефакт на место, ожидаемое каталогом.
func writeSessionFile(t *testing.T, reg *registry.Registry, id string) {
	t.Helper()
	if err := os.WriteFile(reg.SessionPath(id), []byte("session-blob-"+id), 0o600); err != nil {
		t.Fatalf("write session file: %v", err)
	}
}

func testRecord(id, phone string, at time.Time) registry.Record {
	return registry.Record{
		AccountID:   id,
		Phone:       phone,
		Username:    "none",
		FirstName:   "Test",
		ValidatedAt: at,
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	at := time.Date(2025, 11, 3, 12, 0, 0, 0, time.UTC)

	reg := registry.New(dir)
	// Нарочно вразнобой: List обязан сортировать по числовому id.
	for _, id := range []string{"111", "5", "20"} {
		writeSessionFile(t, reg, id)
		reg.Upsert(testRecord(id, "+"+id, at))
	}
	if err := reg.Save(); err != nil {
		t.Fatalf("Save() = %v", err)
	}

	fresh := registry.New(dir)
	if err := fresh.Load(); err != nil {
		t.Fatalf("Load() = %v", err)
	}

	want := []registry.Record{
		testRecord("5", "+5", at),
		testRecord("20", "+20", at),
		testRecord("111", "+111", at),
	}
	if got := fresh.List(); !reflect.DeepEqual(got, want) {
		t.Fatalf("List() = %#v, want %#v", got, want)
	}
}

func TestLoadDropsRecordsWithMissingSessionFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	at := time.Date(2025, 11, 3, 12, 0, 0, 0, time.UTC)

	reg := registry.New(dir)
	writeSessionFile(t, reg, "100")
	writeSessionFile(t, reg, "200")
	reg.Upsert(testRecord("100", "+100", at))
	reg.Upsert(testRecord("200", "+200", at))
	if err := reg.Save(); err != nil {
		t.Fatalf("Save() = %v", err)
	}

	// Артефакт второго аккаунта пропадает между рестартами.
	if err := os.Remove(reg.SessionPath("200")); err != nil {
		t.Fatalf("remove session file: %v", err)
	}

	fresh := registry.New(dir)
	if err := fresh.Load(); err != nil {
		t.Fatalf("Load() = %v", err)
	}
	if fresh.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", fresh.Len())
	}
	if _, ok := fresh.Get("200"); ok {
		t.Fatal("record 200 must be dropped: session file is missing")
	}
	if _, ok := fresh.Get("100"); !ok {
		t.Fatal("record 100 must survive the load")
	}
}

func TestLoadCorruptStore(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "accounts.json"), []byte("{not json"), 0o600); err != nil {
		t.Fatalf("write store: %v", err)
	}

	reg := registry.New(dir)
	if err := reg.Load(); !errors.Is(err, registry.ErrCorrupt) {
		t.Fatalf("Load() = %v, want ErrCorrupt", err)
	}
}

func TestLoadQuarantinesIncompleteRecords(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	// Записи без validated_at и без phone должны уйти в карантин, а не валить
	// загрузку.
	raw := `{
  "300": {"phone": "+300", "username": "none", "first_name": "", "last_name": ""},
  "350": {"phone": "", "username": "none", "first_name": "", "last_name": "", "validated_at": "2025-11-03T12:00:00Z"},
  "400": {"phone": "+400", "username": "none", "first_name": "", "last_name": "", "validated_at": "2025-11-03T12:00:00Z"}
}`
	if err := os.WriteFile(filepath.Join(dir, "accounts.json"), []byte(raw), 0o600); err != nil {
		t.Fatalf("write store: %v", err)
	}

	reg := registry.New(dir)
	writeSessionFile(t, reg, "300")
	writeSessionFile(t, reg, "350")
	writeSessionFile(t, reg, "400")

	if err := reg.Load(); err != nil {
		t.Fatalf("Load() = %v", err)
	}
	if _, ok := reg.Get("300"); ok {
		t.Fatal("record 300 without validated_at must be quarantined")
	}
	if _, ok := reg.Get("350"); ok {
		t.Fatal("record 350 without phone must be quarantined")
	}
	if _, ok := reg.Get("400"); !ok {
		t.Fatal("record 400 must be loaded")
	}
}

func TestUpsertOverwritesByAccountID(t *testing.T) {
	t.Parallel()

	reg := registry.New(t.TempDir())
	first := testRecord("111", "+1000", time.Date(2025, 11, 1, 0, 0, 0, 0, time.UTC))
	second := testRecord("111", "+2000", time.Date(2025, 11, 3, 0, 0, 0, 0, time.UTC))

	reg.Upsert(first)
	reg.Upsert(second)

	if reg.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", reg.Len())
	}
	got, ok := reg.Get("111")
	if !ok {
		t.Fatal("record 111 must exist")
	}
	if !reflect.DeepEqual(got, second) {
		t.Fatalf("Get() = %#v, want %#v", got, second)
	}
}

func TestAdoptMovesCredentialIntoStore(t *testing.T) {
	t.Parallel()

	scratch := t.TempDir()
	reg := registry.New(t.TempDir())

	src := filepath.Join(scratch, "candidate.session")
	if err := os.WriteFile(src, []byte("blob"), 0o600); err != nil {
		t.Fatalf("write candidate: %v", err)
	}

	if err := reg.Adopt("555", src); err != nil {
		t.Fatalf("Adopt() = %v", err)
	}

	data, err := os.ReadFile(reg.SessionPath("555"))
	if err != nil {
		t.Fatalf("read adopted file: %v", err)
	}
	if string(data) != "blob" {
		t.Fatalf("adopted content = %q, want %q", data, "blob")
	}
	// Источник обязан исчезнуть: в scratch-зоне не должно остаться второй копии.
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Fatalf("source must be removed after adoption, stat err = %v", err)
	}
}
