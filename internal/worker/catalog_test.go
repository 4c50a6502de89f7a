package worker

import (
	"errors"
	"testing"
	"time"

	"echo/internal/spec"
)

func TestCatalogListSortedAndRemove(t *testing.T) {
	catalog := NewCatalog()
	now := time.Now()
	catalog.record("/b.yaml", &spec.Document{Path: "/b.yaml"}, nil, now, "h1")
	catalog.record("/a.yaml", nil, errors.New("boom"), now, "h2")

	list := catalog.List()
	if len(list) != 2 || list[0].Path != "/a.yaml" || list[1].Path != "/b.yaml" {
		t.Fatalf("unexpected list %+v", list)
	}
	if list[0].Valid() || list[0].Error != "boom" {
		t.Fatalf("expected failed entry, got %+v", list[0])
	}
	if !catalog.Remove("/a.yaml") || catalog.Remove("/a.yaml") {
		t.Fatal("expected remove to succeed once")
	}
	if catalog.Len() != 1 {
		t.Fatalf("expected 1 entry, got %d", catalog.Len())
	}
}

func TestNilCatalog(t *testing.T) {
	var catalog *Catalog
	if _, ok := catalog.Get("/x"); ok {
		t.Fatal("expected miss")
	}
	if catalog.List() != nil || catalog.Len() != 0 || catalog.Remove("/x") {
		t.Fatal("expected nil catalog to be empty")
	}
}
