package ledger

import (
	"errors"
	"strings"
	"testing"

	"github.com/repledger/backend/internal/models"
)

func samplePayload() models.AwardPayload {
	return models.AwardPayload{
		Ref:             "5b1e1c0e-7d55-4a77-9a8f-3f1f4f1b2c10",
		UserWallet:      "0:aaaa",
		CommunityID:     "default",
		SchemaID:        "v1",
		ActionID:        "volunteered",
		BasePoints:      20,
		BonusPoints:     5,
		TotalPoints:     25,
		OrganizerWallet: "0:bbbb",
	}
}

func TestEncodeDecodeComment(t *testing.T) {
	p := samplePayload()

	comment, err := EncodeComment(p)
	if err != nil {
		t.Fatalf("EncodeComment: %v", err)
	}
	if !strings.HasPrefix(comment, "rep1|") {
		t.Errorf("comment %q missing prefix", comment)
	}

	rec, err := DecodeComment(comment)
	if err != nil {
		t.Fatalf("DecodeComment(%q): %v", comment, err)
	}
	if rec.Ref != p.Ref || rec.UserWallet != p.UserWallet || rec.ActionID != p.ActionID {
		t.Errorf("decoded %+v, want fields of %+v", rec, p)
	}
	if rec.TotalPoints != 25 {
		t.Errorf("TotalPoints = %d, want 25", rec.TotalPoints)
	}
}

func TestEncodeCommentRejectsBadFields(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(p *models.AwardPayload)
	}{
		{"separator in field", func(p *models.AwardPayload) { p.CommunityID = "a|b" }},
		{"empty ref", func(p *models.AwardPayload) { p.Ref = "" }},
		{"empty organizer", func(p *models.AwardPayload) { p.OrganizerWallet = "" }},
		{"negative bonus", func(p *models.AwardPayload) { p.BonusPoints = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := samplePayload()
			tt.mutate(&p)
			if _, err := EncodeComment(p); !errors.Is(err, ErrRejected) {
				t.Errorf("EncodeComment() error = %v, want ErrRejected", err)
			}
		})
	}
}

func TestDecodeCommentRejectsForeign(t *testing.T) {
	tests := []string{
		"",
		"hello",
		"deal-123",
		"rep2|a|b|c|d|e|1|2|f",
		"rep1|a|b|c|d|e|1|2",
		"rep1|a|b|c|d|e|x|2|f",
		"rep1|a|b|c|d|e|1|-2|f",
		"rep1|a||c|d|e|1|2|f",
	}

	for _, s := range tests {
		t.Run(s, func(t *testing.T) {
			if rec, err := DecodeComment(s); err == nil {
				t.Errorf("DecodeComment(%q) = %+v, want error", s, rec)
			}
		})
	}
}
