package services

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/agext/levenshtein"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/papervault/papervault-backend/internal/data/repos/merchants"
	types "github.com/papervault/papervault-backend/internal/domain"
	"github.com/papervault/papervault-backend/internal/platform/dbctx"
	"github.com/papervault/papervault-backend/internal/platform/envutil"
	"github.com/papervault/papervault-backend/internal/platform/logger"
)

const defaultMatchThreshold = 0.82

// MerchantMatcher resolves an extracted merchant name against the owner's
// merchant aggregate: fuzzy match on normalized names, or create a new
// merchant when nothing is close enough.
type MerchantMatcher interface {
	Match(dbc dbctx.Context, ownerUserID uuid.UUID, rawName string) (*types.Merchant, bool, error)
}

type merchantMatcher struct {
	db        *gorm.DB
	log       *logger.Logger
	repo      merchants.MerchantRepo
	threshold float64
}

func NewMerchantMatcher(db *gorm.DB, baseLog *logger.Logger, repo merchants.MerchantRepo) MerchantMatcher {
	threshold := defaultMatchThreshold
	if v := envutil.Int("MERCHANT_MATCH_THRESHOLD_PCT", 0); v > 0 && v <= 100 {
		threshold = float64(v) / 100
	}
	return &merchantMatcher{
		db:        db,
		log:       baseLog.With("service", "MerchantMatcher"),
		repo:      repo,
		threshold: threshold,
	}
}

// Match returns the matched or created merchant and whether it already
// existed. A match bumps the merchant's stats via RecordMatch.
func (m *merchantMatcher) Match(dbc dbctx.Context, ownerUserID uuid.UUID, rawName string) (*types.Merchant, bool, error) {
	name := strings.TrimSpace(rawName)
	if ownerUserID == uuid.Nil || name == "" {
		return nil, false, fmt.Errorf("missing owner or merchant name")
	}
	normalized := NormalizeMerchantName(name)

	existing, err := m.repo.ListByOwner(dbc, ownerUserID)
	if err != nil {
		return nil, false, fmt.Errorf("list merchants: %w", err)
	}

	var best *types.Merchant
	bestScore := 0.0
	for _, cand := range existing {
		score := levenshtein.Similarity(normalized, cand.NormalizedName, nil)
		if score > bestScore {
			bestScore = score
			best = cand
		}
	}
	if best != nil && bestScore >= m.threshold {
		if err := m.repo.RecordMatch(dbc, best.ID); err != nil {
			return nil, false, fmt.Errorf("record match: %w", err)
		}
		m.log.Debug("Merchant matched", "merchant_id", best.ID, "score", bestScore, "name", name)
		return best, true, nil
	}

	now := time.Now()
	created, err := m.repo.Create(dbc, &types.Merchant{
		OwnerUserID:    ownerUserID,
		Name:           name,
		NormalizedName: normalized,
		MatchCount:     1,
		LastMatchedAt:  &now,
	})
	if err != nil {
		return nil, false, fmt.Errorf("create merchant: %w", err)
	}
	m.log.Debug("Merchant created", "merchant_id", created.ID, "name", name)
	return created, false, nil
}

// NormalizeMerchantName lowercases, strips everything that is not a letter,
// digit or space, and collapses whitespace. Receipt OCR tends to mangle
// punctuation and casing far more than the letters themselves.
func NormalizeMerchantName(name string) string {
	var sb strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			sb.WriteRune(r)
		case unicode.IsSpace(r):
			sb.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(sb.String()), " ")
}
