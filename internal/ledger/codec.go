package ledger

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/repledger/backend/internal/models"
)

// Award comments are plain TON text comments so that explorers show them as-is:
//
//	rep1|<ref>|<user>|<community>|<schema>|<action>|<base>|<bonus>|<organizer>
const (
	commentPrefix = "rep1"
	commentSep    = "|"
	commentFields = 9
)

var errNotAward = errors.New("not an award comment")

func EncodeComment(p models.AwardPayload) (string, error) {
	fields := []string{p.Ref, p.UserWallet, p.CommunityID, p.SchemaID, p.ActionID, p.OrganizerWallet}
	for _, f := range fields {
		if f == "" {
			return "", fmt.Errorf("%w: empty award field", ErrRejected)
		}
		if strings.Contains(f, commentSep) {
			return "", fmt.Errorf("%w: field %q contains %q", ErrRejected, f, commentSep)
		}
	}
	if p.BasePoints < 0 || p.BonusPoints < 0 {
		return "", fmt.Errorf("%w: negative points", ErrRejected)
	}

	return strings.Join([]string{
		commentPrefix,
		p.Ref,
		p.UserWallet,
		p.CommunityID,
		p.SchemaID,
		p.ActionID,
		strconv.FormatInt(p.BasePoints, 10),
		strconv.FormatInt(p.BonusPoints, 10),
		p.OrganizerWallet,
	}, commentSep), nil
}

// DecodeComment parses an award comment. Timestamp and TransactionRef are left
// for the caller, who knows the carrying transaction.
func DecodeComment(s string) (*models.LedgerRecord, error) {
	parts := strings.Split(strings.TrimSpace(s), commentSep)
	if len(parts) != commentFields || parts[0] != commentPrefix {
		return nil, errNotAward
	}
	for _, p := range parts[1:] {
		if p == "" {
			return nil, errNotAward
		}
	}

	base, err := strconv.ParseInt(parts[6], 10, 64)
	if err != nil || base < 0 {
		return nil, fmt.Errorf("%w: base points %q", errNotAward, parts[6])
	}
	bonus, err := strconv.ParseInt(parts[7], 10, 64)
	if err != nil || bonus < 0 {
		return nil, fmt.Errorf("%w: bonus points %q", errNotAward, parts[7])
	}

	return &models.LedgerRecord{
		Ref:             parts[1],
		UserWallet:      parts[2],
		CommunityID:     parts[3],
		SchemaID:        parts[4],
		ActionID:        parts[5],
		BasePoints:      base,
		BonusPoints:     bonus,
		TotalPoints:     base + bonus,
		OrganizerWallet: parts[8],
	}, nil
}
