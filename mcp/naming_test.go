package mcp

import "testing"

func TestNamespacedNameRoundTrip(t *testing.T) {
	name := NamespacedName("GitHub", "search_issues")
	if name != "github.search_issues" {
		t.Fatalf("got %q", name)
	}
	server, tool, ok := ParseNamespacedName(name)
	if !ok || server != "github" || tool != "search_issues" {
		t.Fatalf("ParseNamespacedName(%q) = %q, %q, %v", name, server, tool, ok)
	}
}

func TestParseNamespacedNameRejectsUnqualified(t *testing.T) {
	if _, _, ok := ParseNamespacedName("read_file"); ok {
		t.Fatal("expected unqualified name to fail to parse")
	}
}
