package services

import (
	"testing"
	"time"

	"github.com/google/uuid"

	types "github.com/papervault/papervault-backend/internal/domain"
	"github.com/papervault/papervault-backend/internal/data/repos/testutil"
	"github.com/papervault/papervault-backend/internal/platform/dbctx"
)

func TestNormalizeMerchantName(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"WALMART", "walmart"},
		{"  Trader   Joe's  ", "trader joes"},
		{"REWE-Markt GmbH & Co.", "rewemarkt gmbh co"},
		{"7-Eleven #1234", "7eleven 1234"},
		{"***", ""},
	}
	for _, tc := range cases {
		if got := NormalizeMerchantName(tc.in); got != tc.want {
			t.Errorf("NormalizeMerchantName(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

type fakeMerchantRepo struct {
	rows    []*types.Merchant
	matched []uuid.UUID
}

func (f *fakeMerchantRepo) Create(dbc dbctx.Context, m *types.Merchant) (*types.Merchant, error) {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	f.rows = append(f.rows, m)
	return m, nil
}

func (f *fakeMerchantRepo) ListByOwner(dbc dbctx.Context, ownerUserID uuid.UUID) ([]*types.Merchant, error) {
	out := make([]*types.Merchant, 0, len(f.rows))
	for _, m := range f.rows {
		if m.OwnerUserID == ownerUserID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeMerchantRepo) RecordMatch(dbc dbctx.Context, id uuid.UUID) error {
	f.matched = append(f.matched, id)
	return nil
}

func TestMatchFuzzyHit(t *testing.T) {
	owner := uuid.New()
	now := time.Now()
	repo := &fakeMerchantRepo{rows: []*types.Merchant{{
		ID:             uuid.New(),
		OwnerUserID:    owner,
		Name:           "Walmart Supercenter",
		NormalizedName: "walmart supercenter",
		MatchCount:     3,
		LastMatchedAt:  &now,
	}}}
	m := NewMerchantMatcher(nil, testutil.Logger(t), repo)

	// OCR noise on casing and punctuation should still resolve.
	got, existed, err := m.Match(dbctx.Context{}, owner, "WALMART SUPERCENTER.")
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if !existed {
		t.Fatalf("expected an existing merchant, got a new one")
	}
	if got.ID != repo.rows[0].ID {
		t.Errorf("matched wrong merchant: %s", got.ID)
	}
	if len(repo.matched) != 1 || repo.matched[0] != got.ID {
		t.Errorf("expected RecordMatch for %s, got %v", got.ID, repo.matched)
	}
}

func TestMatchCreatesWhenNothingClose(t *testing.T) {
	owner := uuid.New()
	repo := &fakeMerchantRepo{rows: []*types.Merchant{{
		ID:             uuid.New(),
		OwnerUserID:    owner,
		Name:           "Walmart Supercenter",
		NormalizedName: "walmart supercenter",
	}}}
	m := NewMerchantMatcher(nil, testutil.Logger(t), repo)

	got, existed, err := m.Match(dbctx.Context{}, owner, "Aldi Süd")
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if existed {
		t.Fatalf("expected a new merchant for an unrelated name")
	}
	if got.NormalizedName != "aldi süd" {
		t.Errorf("normalized name = %q", got.NormalizedName)
	}
	if got.MatchCount != 1 {
		t.Errorf("new merchant match_count = %d, want 1", got.MatchCount)
	}
	if len(repo.rows) != 2 {
		t.Errorf("expected merchant to be persisted")
	}
}

func TestMatchScopesToOwner(t *testing.T) {
	owner := uuid.New()
	other := uuid.New()
	repo := &fakeMerchantRepo{rows: []*types.Merchant{{
		ID:             uuid.New(),
		OwnerUserID:    other,
		Name:           "Walmart",
		NormalizedName: "walmart",
	}}}
	m := NewMerchantMatcher(nil, testutil.Logger(t), repo)

	_, existed, err := m.Match(dbctx.Context{}, owner, "Walmart")
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if existed {
		t.Fatalf("must not match another owner's merchant")
	}
}
