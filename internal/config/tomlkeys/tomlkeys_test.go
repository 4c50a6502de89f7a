package tomlkeys

import "testing"

func TestTableAndDottedKeysAreEquivalent(t *testing.T) {
	cases := []string{
		`[watch]
log-capacity = 50
`,
		`watch.log-capacity = 50
`,
	}
	for _, input := range cases {
		store, err := Decode([]byte(input))
		if err != nil {
			t.Fatalf("decode toml: %v", err)
		}
		value, ok := store.GetInt("watch.log-capacity")
		if !ok {
			t.Fatalf("expected watch.log-capacity value")
		}
		if value != 50 {
			t.Fatalf("expected 50, got %d", value)
		}
	}
}

func TestNormalizationHandlesUnderscoresAndCase(t *testing.T) {
	input := `[Watch]
LOG_CAPACITY = 123
`
	store, err := Decode([]byte(input))
	if err != nil {
		t.Fatalf("decode toml: %v", err)
	}
	value, ok := store.GetInt("watch.log_capacity")
	if !ok {
		t.Fatalf("expected normalized key to resolve")
	}
	if value != 123 {
		t.Fatalf("expected 123, got %d", value)
	}
	if !store.Has("WATCH.log-capacity") {
		t.Fatal("expected Has to normalize its key")
	}
}

func TestTypePreservation(t *testing.T) {
	input := `flag = true
count = 7
name = "hello"
`
	store, err := Decode([]byte(input))
	if err != nil {
		t.Fatalf("decode toml: %v", err)
	}
	flag, ok := store.GetBool("flag")
	if !ok || !flag {
		t.Fatalf("expected flag true")
	}
	count, ok := store.GetInt("count")
	if !ok || count != 7 {
		t.Fatalf("expected count 7, got %d", count)
	}
	name, ok := store.GetString("name")
	if !ok || name != "hello" {
		t.Fatalf("expected name hello, got %q", name)
	}
	if _, ok := store.GetString("count"); ok {
		t.Fatalf("expected count to not be a string")
	}
}

func TestStringArrays(t *testing.T) {
	store, err := Decode([]byte("[watch]\npaths = [\"echoes\", \"specs\"]\nmixed = [\"a\", 1]\n"))
	if err != nil {
		t.Fatalf("decode toml: %v", err)
	}
	paths, ok := store.GetStrings("watch.paths")
	if !ok || len(paths) != 2 || paths[0] != "echoes" || paths[1] != "specs" {
		t.Fatalf("unexpected paths %v", paths)
	}
	if _, ok := store.GetStrings("watch.mixed"); ok {
		t.Fatal("expected mixed array to be rejected")
	}
}

func TestArrayOfTables(t *testing.T) {
	input := `[[watchers]]
name = "specs"
watch_path = "/srv/specs"

[[watchers]]
name = "drafts"
watch_path = "/srv/drafts"
`
	store, err := Decode([]byte(input))
	if err != nil {
		t.Fatalf("decode toml: %v", err)
	}
	tables, ok := store.GetTables("watchers")
	if !ok {
		t.Fatalf("expected watchers tables, got %T", store.flat["watchers"])
	}
	if len(tables) != 2 || tables[1]["watch_path"] != "/srv/drafts" {
		t.Fatalf("unexpected tables %v", tables)
	}
}
