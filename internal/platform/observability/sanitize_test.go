package observability

import (
	"strings"
	"testing"
)

func TestSanitizeString(t *testing.T) {
	if got := SanitizeRoute(""); got != "/" {
		t.Fatalf("expected root route, got %q", got)
	}
	if got := SanitizeMethod("PO\nST"); got != "POST" {
		t.Fatalf("expected control characters removed, got %q", got)
	}
	long := strings.Repeat("u", 100)
	if got := SanitizeUserID(long); len(got) != 64 {
		t.Fatalf("expected 64 chars, got %d", len(got))
	}
	if got := SanitizeRoute("/api/v1/spaces/{spaceId}/quote"); got != "/api/v1/spaces/{spaceId}/quote" {
		t.Fatalf("unexpected route %q", got)
	}
}
