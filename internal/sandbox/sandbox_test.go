package sandbox

import "testing"

func TestResolveRejectsEscape(t *testing.T) {
	root := t.TempDir()
	sb, err := New(root)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := sb.Resolve("../outside.txt"); err == nil {
		t.Fatal("expected escape to be rejected")
	}
	if _, err := sb.Resolve("../../etc/passwd"); err == nil {
		t.Fatal("expected nested escape to be rejected")
	}
}

func TestResolveAllowsNested(t *testing.T) {
	root := t.TempDir()
	sb, err := New(root)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got, err := sb.Resolve("src/main.py")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	rel, err := sb.Relative(got)
	if err != nil {
		t.Fatalf("Relative: %v", err)
	}
	if rel != "src/main.py" {
		t.Fatalf("expected src/main.py, got %s", rel)
	}
}

func TestResolveEmptyPath(t *testing.T) {
	root := t.TempDir()
	sb, _ := New(root)
	if _, err := sb.Resolve(""); err == nil {
		t.Fatal("expected empty path to be rejected")
	}
}
