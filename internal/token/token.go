// Package token encodes the correlation identifiers carried by serve links,
// open pixels and form callbacks.
//
// Shapes, distinguished only by segment count:
//
//	handle                       bare phishlet access (preview)
//	handle*campaign_id*target_id tracked phishlet access
//	campaign_id*target_id        recipient token (pixel, submit)
package token

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	appErrors "github.com/unclebandit/phishsim-backend/internal/errors"
)

// Delimiter separates token segments. Handles are validated to never
// contain it.
const Delimiter = "*"

// Token is the decoded form of a serve token. CampaignID and TargetID are
// zero for bare tokens.
type Token struct {
	Handle     string
	CampaignID int
	TargetID   int
}

// Tracked reports whether the token carries a (campaign, target) pair.
func (t Token) Tracked() bool {
	return t.CampaignID > 0 && t.TargetID > 0
}

// Recipient returns the recipient part of a tracked token.
func (t Token) Recipient() Recipient {
	return Recipient{CampaignID: t.CampaignID, TargetID: t.TargetID}
}

// Recipient identifies one CampaignResult row.
type Recipient struct {
	CampaignID int
	TargetID   int
}

func (r Recipient) String() string {
	return strconv.Itoa(r.CampaignID) + Delimiter + strconv.Itoa(r.TargetID)
}

// ErrMalformedToken is wrapped by every decode and encode failure.
var ErrMalformedToken = errors.New("malformed token")

func malformed(format string, args ...any) error {
	return appErrors.WrapInvalid(ErrMalformedToken, "malformed token: "+format, args...)
}

// ValidHandle rejects handles that could not round-trip through a token.
func ValidHandle(handle string) error {
	if handle == "" {
		return malformed("empty handle")
	}
	if strings.Contains(handle, Delimiter) {
		return malformed("handle contains %q", Delimiter)
	}
	if strings.ContainsAny(handle, "/?#") {
		return malformed("handle contains a URL separator")
	}
	return nil
}

// Encode returns the bare token for handle.
func Encode(handle string) (string, error) {
	if err := ValidHandle(handle); err != nil {
		return "", err
	}
	return handle, nil
}

// EncodeTracked returns handle*campaignID*targetID.
func EncodeTracked(handle string, campaignID, targetID int) (string, error) {
	if err := ValidHandle(handle); err != nil {
		return "", err
	}
	if campaignID <= 0 || targetID <= 0 {
		return "", malformed("ids must be positive, got %d and %d", campaignID, targetID)
	}
	return handle + Delimiter + strconv.Itoa(campaignID) + Delimiter + strconv.Itoa(targetID), nil
}

// EncodeRecipient returns campaignID*targetID.
func EncodeRecipient(campaignID, targetID int) (string, error) {
	if campaignID <= 0 || targetID <= 0 {
		return "", malformed("ids must be positive, got %d and %d", campaignID, targetID)
	}
	return Recipient{CampaignID: campaignID, TargetID: targetID}.String(), nil
}

// Decode classifies a serve token as bare (1 segment) or tracked (3).
func Decode(raw string) (Token, error) {
	if raw == "" {
		return Token{}, malformed("empty token")
	}
	parts := strings.Split(raw, Delimiter)
	switch len(parts) {
	case 1:
		if err := ValidHandle(parts[0]); err != nil {
			return Token{}, err
		}
		return Token{Handle: parts[0]}, nil
	case 3:
		if err := ValidHandle(parts[0]); err != nil {
			return Token{}, err
		}
		r, err := parseIDs(parts[1], parts[2])
		if err != nil {
			return Token{}, err
		}
		return Token{Handle: parts[0], CampaignID: r.CampaignID, TargetID: r.TargetID}, nil
	default:
		return Token{}, malformed("expected 1 or 3 segments, got %d", len(parts))
	}
}

// DecodeRecipient parses the two-segment token used by the tracking
// endpoints.
func DecodeRecipient(raw string) (Recipient, error) {
	if raw == "" {
		return Recipient{}, malformed("empty token")
	}
	parts := strings.Split(raw, Delimiter)
	if len(parts) != 2 {
		return Recipient{}, malformed("expected <campaign_id>%s<target_id>", Delimiter)
	}
	return parseIDs(parts[0], parts[1])
}

func parseIDs(campaign, target string) (Recipient, error) {
	c, err := parseID(campaign)
	if err != nil {
		return Recipient{}, malformed("campaign id: %v", err)
	}
	t, err := parseID(target)
	if err != nil {
		return Recipient{}, malformed("target id: %v", err)
	}
	return Recipient{CampaignID: c, TargetID: t}, nil
}

func parseID(s string) (int, error) {
	// strconv.Atoi accepts a leading sign; ids are plain digits only.
	if s == "" || strings.TrimLeft(s, "0123456789") != "" {
		return 0, fmt.Errorf("%q is not a number", s)
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, fmt.Errorf("%d is not positive", n)
	}
	return n, nil
}
