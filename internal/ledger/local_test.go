package ledger

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/repledger/backend/internal/models"
	"go.uber.org/zap"
)

const testOrganizer = "0:BBBB"

func newTestLocal(t *testing.T) *Local {
	t.Helper()
	return NewLocal([]string{testOrganizer}, zap.NewNop())
}

func TestLocal_SubmitAndQuery(t *testing.T) {
	ctx := context.Background()
	l := newTestLocal(t)

	p := samplePayload()
	sub, err := l.Submit(ctx, p)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if sub.TransactionRef == "" {
		t.Fatal("empty transaction ref")
	}

	receipt, err := l.AwaitConfirmation(ctx, sub)
	if err != nil {
		t.Fatalf("AwaitConfirmation: %v", err)
	}
	if receipt.TransactionRef != sub.TransactionRef || receipt.Ref != p.Ref {
		t.Errorf("receipt = %+v, submission = %+v", receipt, sub)
	}

	records, err := l.QueryEvents(ctx, Filter{UserWallet: "0:AAAA"})
	if err != nil {
		t.Fatalf("QueryEvents: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	if records[0].OrganizerWallet != "0:bbbb" {
		t.Errorf("organizer = %q, want normalized 0:bbbb", records[0].OrganizerWallet)
	}

	byRef, _ := l.QueryEvents(ctx, Filter{Ref: p.Ref})
	if len(byRef) != 1 {
		t.Errorf("QueryEvents by ref = %d records, want 1", len(byRef))
	}
	none, _ := l.QueryEvents(ctx, Filter{Ref: "missing"})
	if len(none) != 0 {
		t.Errorf("QueryEvents(missing) = %d records, want 0", len(none))
	}
}

func TestLocal_SubmitSameRefIsIdempotent(t *testing.T) {
	ctx := context.Background()
	l := newTestLocal(t)

	first, err := l.Submit(ctx, samplePayload())
	if err != nil {
		t.Fatal(err)
	}
	second, err := l.Submit(ctx, samplePayload())
	if err != nil {
		t.Fatal(err)
	}
	if first.TransactionRef != second.TransactionRef {
		t.Errorf("second submit wrote a new entry: %s != %s", second.TransactionRef, first.TransactionRef)
	}
	if l.Len() != 1 {
		t.Errorf("Len() = %d, want 1", l.Len())
	}
}

func TestLocal_RejectsNonOrganizer(t *testing.T) {
	l := newTestLocal(t)
	p := samplePayload()
	p.OrganizerWallet = "0:cccc"

	if _, err := l.Submit(context.Background(), p); !errors.Is(err, ErrRejected) {
		t.Errorf("Submit() error = %v, want ErrRejected", err)
	}
	if l.Len() != 0 {
		t.Errorf("rejected write reached the ledger")
	}
}

func TestLocal_Reputation(t *testing.T) {
	ctx := context.Background()
	l := newTestLocal(t)

	a := samplePayload()
	b := samplePayload()
	b.Ref = "second"
	b.BasePoints, b.BonusPoints = 10, 0
	for _, p := range []models.AwardPayload{a, b} {
		if _, err := l.Submit(ctx, p); err != nil {
			t.Fatal(err)
		}
	}

	score, err := l.GetReputation(ctx, "0:aaaa")
	if err != nil {
		t.Fatal(err)
	}
	if score != 35 {
		t.Errorf("GetReputation() = %d, want 35", score)
	}

	ok, _ := l.IsOrganizer(ctx, "0:bbbb")
	if !ok {
		t.Error("IsOrganizer(0:bbbb) = false, want true")
	}
	ok, _ = l.IsOrganizer(ctx, "0:aaaa")
	if ok {
		t.Error("IsOrganizer(0:aaaa) = true, want false")
	}
}

func TestLocal_PersistAndVerify(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "ledger")

	l, err := OpenLocal(dir, []string{testOrganizer}, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	a := samplePayload()
	b := samplePayload()
	b.Ref = "second"
	if _, err := l.Submit(ctx, a); err != nil {
		t.Fatal(err)
	}
	if _, err := l.Submit(ctx, b); err != nil {
		t.Fatal(err)
	}
	l.Close()

	reopened, err := OpenLocal(dir, []string{testOrganizer}, zap.NewNop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if reopened.Len() != 2 {
		t.Errorf("reopened Len() = %d, want 2", reopened.Len())
	}
	if err := reopened.Verify(); err != nil {
		t.Errorf("Verify: %v", err)
	}
	reopened.Close()

	// Rewrite the points of the first award: the chain must no longer verify.
	path := filepath.Join(dir, localLedgerFile)
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	tampered := strings.Replace(string(raw), `"bonus_points":5`, `"bonus_points":50`, 1)
	if err := os.WriteFile(path, []byte(tampered), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := OpenLocal(dir, []string{testOrganizer}, zap.NewNop()); err == nil {
		t.Error("OpenLocal accepted a tampered ledger")
	}
}

func TestLocal_SeesAppendsFromAnotherHandle(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	writer, err := OpenLocal(dir, []string{testOrganizer}, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	defer writer.Close()
	reader, err := OpenLocal(dir, []string{testOrganizer}, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	defer reader.Close()

	p := samplePayload()
	if _, err := writer.Submit(ctx, p); err != nil {
		t.Fatal(err)
	}

	got, err := reader.QueryEvents(ctx, Filter{Ref: p.Ref})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].TotalPoints != 25 {
		t.Fatalf("reader QueryEvents() = %+v, want the award written by the other handle", got)
	}

	second := samplePayload()
	second.Ref = "second"
	if _, err := writer.Submit(ctx, second); err != nil {
		t.Fatal(err)
	}
	score, err := reader.GetReputation(ctx, p.UserWallet)
	if err != nil {
		t.Fatal(err)
	}
	if score != 50 {
		t.Errorf("reader GetReputation() = %d, want 50", score)
	}
	if err := reader.Verify(); err != nil {
		t.Errorf("Verify: %v", err)
	}
}

func TestLocal_NormalizeWallet(t *testing.T) {
	l := newTestLocal(t)
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"0xAbCd", "0xabcd", false},
		{" 0:ABCD ", "0:abcd", false},
		{"EQCabc", "EQCabc", false},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := l.NormalizeWallet(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NormalizeWallet(%q) error = %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("NormalizeWallet(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
