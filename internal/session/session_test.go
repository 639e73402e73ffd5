package session

import (
	"sync"
	"testing"

	"github.com/fin360/financial-analyzer/internal/domain"
)

func TestCacheSetGetDelete(t *testing.T) {
	c := NewCache()
	fp := domain.FingerprintBytes([]byte("doc"))

	if _, ok := c.Get(fp); ok {
		t.Fatal("unexpected entry in fresh cache")
	}

	c.Set(fp, Entry{FileName: "report.pdf", ExtractedText: "text"})
	e, ok := c.Get(fp)
	if !ok || e.FileName != "report.pdf" {
		t.Fatalf("entry = %+v ok=%v", e, ok)
	}

	c.Delete(fp)
	if _, ok := c.Get(fp); ok {
		t.Fatal("entry should be gone after delete")
	}
}

func TestLedgerAppendOrder(t *testing.T) {
	l := NewHistoryLedger()
	fp := domain.FingerprintBytes([]byte("doc"))

	l.Append(fp, domain.RoleUser, "what is revenue?", nil)
	l.Append(fp, domain.RoleAssistant, "Revenue was 100.", nil)
	l.Append(fp, domain.RoleUser, "and costs?", nil)
	l.Append(fp, domain.RoleAssistant, "Costs were 80.", nil)

	turns := l.History(fp)
	if len(turns) != 4 {
		t.Fatalf("turns = %d, want 4", len(turns))
	}

	wantRoles := []domain.Role{domain.RoleUser, domain.RoleAssistant, domain.RoleUser, domain.RoleAssistant}
	for i, role := range wantRoles {
		if turns[i].Role != role {
			t.Fatalf("turn %d role = %v, want %v", i, turns[i].Role, role)
		}
		if turns[i].ID == "" {
			t.Fatalf("turn %d missing ID", i)
		}
	}
	if turns[1].Content != "Revenue was 100." {
		t.Fatalf("turn 1 content = %q", turns[1].Content)
	}
}

func TestLedgerIsolatedPerFingerprint(t *testing.T) {
	l := NewHistoryLedger()
	a := domain.FingerprintBytes([]byte("a"))
	b := domain.FingerprintBytes([]byte("b"))

	l.Append(a, domain.RoleUser, "question for a", nil)
	l.Append(b, domain.RoleUser, "question for b", nil)

	if got := l.History(a); len(got) != 1 || got[0].Content != "question for a" {
		t.Fatalf("history a = %+v", got)
	}

	l.Clear(a)
	if got := l.History(a); len(got) != 0 {
		t.Fatalf("history a after clear = %d turns", len(got))
	}
	if got := l.History(b); len(got) != 1 {
		t.Fatalf("history b should be untouched, got %d turns", len(got))
	}
}

func TestLedgerHistoryReturnsCopy(t *testing.T) {
	l := NewHistoryLedger()
	fp := domain.FingerprintBytes([]byte("doc"))

	l.Append(fp, domain.RoleUser, "original", nil)
	turns := l.History(fp)
	turns[0].Content = "mutated"

	if got := l.History(fp); got[0].Content != "original" {
		t.Fatal("History must return a copy")
	}
}

func TestLedgerConcurrentAppend(t *testing.T) {
	l := NewHistoryLedger()
	fp := domain.FingerprintBytes([]byte("doc"))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Append(fp, domain.RoleUser, "q", nil)
		}()
	}
	wg.Wait()

	if got := len(l.History(fp)); got != 50 {
		t.Fatalf("turns = %d, want 50", got)
	}
}
