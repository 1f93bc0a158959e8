package jsonbackend

import (
	"context"
	"reflect"
	"strings"
	"testing"

	"github.com/FranksOps/prospector/internal/storage"
	"github.com/spf13/afero"
)

func TestJSONBackend(t *testing.T) {
	ctx := context.Background()
	fsys := afero.NewMemMapFs()
	b, err := New(fsys, "results.ndjson")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer b.Close()

	target := storage.MustParseRange("A2")
	if err := b.Append(ctx, target, [][]string{{"Site", "DR"}, {"a.com", "41"}}); err != nil {
		t.Fatal(err)
	}
	if err := b.Append(ctx, storage.MustParseRange("Black list!A2"), [][]string{{"spam.com"}}); err != nil {
		t.Fatal(err)
	}
	if err := b.Append(ctx, target, [][]string{{"b.com", "70"}}); err != nil {
		t.Fatal(err)
	}

	raw, _ := afero.ReadFile(fsys, "results.ndjson")
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	if len(lines) != 4 {
		t.Fatalf("wrote %d lines, want 4:\n%s", len(lines), raw)
	}
	if lines[3] != `{"sheet":"Sheet1","row":4,"cells":["b.com","70"]}` {
		t.Errorf("last line = %s", lines[3])
	}

	got, err := b.Read(ctx, storage.MustParseRange("A2:A"))
	if err != nil {
		t.Fatal(err)
	}
	if want := [][]string{{"Site"}, {"a.com"}, {"b.com"}}; !reflect.DeepEqual(got, want) {
		t.Errorf("Read(A2:A) = %v, want %v", got, want)
	}
	got, _ = b.Read(ctx, storage.MustParseRange("Black list!A2:A"))
	if want := [][]string{{"spam.com"}}; !reflect.DeepEqual(got, want) {
		t.Errorf("Read(Black list) = %v, want %v", got, want)
	}
}

func TestJSONBackend_CorruptLine(t *testing.T) {
	fsys := afero.NewMemMapFs()
	_ = afero.WriteFile(fsys, "bad.ndjson", []byte("{\"sheet\":\"Sheet1\",\"row\":2,\"cells\":[\"a.com\"]}\nnot json\n"), 0o644)
	b, _ := New(fsys, "bad.ndjson")
	if _, err := b.Read(context.Background(), storage.MustParseRange("A2:A")); err == nil {
		t.Error("expected an error for a corrupt line")
	}
}
