package businessflow

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/CHINMAYKUDALKAR/LINE-sub002/models"
	"github.com/CHINMAYKUDALKAR/LINE-sub002/repository"
	"github.com/CHINMAYKUDALKAR/LINE-sub002/utils"
)

var (
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phonePattern = regexp.MustCompile(`^\+?[1-9]\d{6,14}$`)
)

// Recipient is a resolved logical recipient with whatever addresses it has
type Recipient struct {
	Type  models.RecipientType
	ID    string
	Name  string
	Email *string
	Phone *string
	// Vars is exposed to templates under the recipient type's key (candidate, user)
	Vars map[string]any
}

// AddressFor returns the recipient's address on channel, or ErrRecipientAddressMissing
func (r *Recipient) AddressFor(channel models.MessageChannel) (string, error) {
	var addr string
	if channel.RequiresPhone() {
		addr = utils.Deref(r.Phone)
	} else {
		addr = utils.Deref(r.Email)
	}
	if addr == "" {
		return "", fmt.Errorf("%w %s", ErrRecipientAddressMissing, channel)
	}
	return addr, nil
}

// RecipientResolver maps (type, id) onto a concrete recipient inside a tenant
type RecipientResolver interface {
	Resolve(ctx context.Context, tenantID uint, recipientType models.RecipientType, recipientID string) (*Recipient, error)
}

// RecipientResolverImpl implements RecipientResolver over the directory repositories
type RecipientResolverImpl struct {
	candidateRepo repository.CandidateRepository
	userRepo      repository.UserRepository
}

func NewRecipientResolver(candidateRepo repository.CandidateRepository, userRepo repository.UserRepository) RecipientResolver {
	return &RecipientResolverImpl{candidateRepo: candidateRepo, userRepo: userRepo}
}

// Resolve looks up candidates (soft-deleted ones excluded), active users and
// interviewers, or parses an external id as an email or E.164-like phone number
func (r *RecipientResolverImpl) Resolve(ctx context.Context, tenantID uint, recipientType models.RecipientType, recipientID string) (*Recipient, error) {
	recipientID = strings.TrimSpace(recipientID)
	if recipientID == "" {
		return nil, NewBusinessError("INVALID_RECIPIENT", "Recipient id is required", ErrInvalidRecipient)
	}

	switch recipientType {
	case models.RecipientTypeCandidate:
		c, err := r.candidateRepo.ByTenantAndRef(ctx, tenantID, recipientID)
		if err != nil {
			return nil, NewBusinessError("RECIPIENT_LOOKUP_FAILED", "Failed to load candidate", err)
		}
		if c == nil {
			return nil, NewBusinessError("CANDIDATE_NOT_FOUND", "Candidate not found", ErrCandidateNotFound)
		}
		return CandidateRecipient(c, recipientID), nil

	case models.RecipientTypeUser, models.RecipientTypeInterviewer:
		u, err := r.userRepo.ByTenantAndRef(ctx, tenantID, recipientID)
		if err != nil {
			return nil, NewBusinessError("RECIPIENT_LOOKUP_FAILED", "Failed to load user", err)
		}
		if u == nil {
			return nil, NewBusinessError("USER_NOT_FOUND", "User not found", ErrUserNotFound)
		}
		if !u.IsActive() {
			return nil, NewBusinessError("RECIPIENT_INACTIVE", "User is not active", ErrRecipientInactive)
		}
		return UserRecipient(u, recipientType, recipientID), nil

	case models.RecipientTypeExternal:
		return ExternalRecipient(recipientID)

	default:
		return nil, NewBusinessErrorf("INVALID_RECIPIENT_TYPE", "Unsupported recipient type %q", ErrInvalidRecipientType, recipientType)
	}
}

// CandidateRecipient wraps a loaded candidate; id is the reference the caller used
func CandidateRecipient(c *models.Candidate, id string) *Recipient {
	return &Recipient{
		Type:  models.RecipientTypeCandidate,
		ID:    id,
		Name:  c.FullName(),
		Email: utils.NonEmptyPtr(utils.Deref(c.Email)),
		Phone: utils.NonEmptyPtr(utils.Deref(c.Phone)),
		Vars: map[string]any{
			"id":        c.ID,
			"name":      c.FullName(),
			"firstName": c.FirstName,
			"lastName":  c.LastName,
			"email":     utils.Deref(c.Email),
			"phone":     utils.Deref(c.Phone),
			"position":  utils.Deref(c.Position),
			"stage":     c.Stage,
		},
	}
}

// UserRecipient wraps a loaded tenant member
func UserRecipient(u *models.User, t models.RecipientType, id string) *Recipient {
	return &Recipient{
		Type:  t,
		ID:    id,
		Name:  u.Name,
		Email: utils.NonEmptyPtr(u.Email),
		Phone: utils.NonEmptyPtr(utils.Deref(u.Phone)),
		Vars: map[string]any{
			"id":    u.ID,
			"name":  u.Name,
			"email": u.Email,
			"phone": utils.Deref(u.Phone),
			"role":  string(u.Role),
		},
	}
}

// ExternalRecipient accepts an email address or a phone number. Spaces, dashes,
// dots and parentheses are stripped from phone numbers before validation.
func ExternalRecipient(id string) (*Recipient, error) {
	if emailPattern.MatchString(id) {
		return &Recipient{Type: models.RecipientTypeExternal, ID: id, Email: &id, Vars: map[string]any{"email": id}}, nil
	}
	phone := normalizePhone(id)
	if phonePattern.MatchString(phone) {
		return &Recipient{Type: models.RecipientTypeExternal, ID: id, Phone: &phone, Vars: map[string]any{"phone": phone}}, nil
	}
	return nil, NewBusinessErrorf("INVALID_RECIPIENT", "External recipient %q is not a valid email or phone number", ErrInvalidRecipient, id)
}

func normalizePhone(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '.', '(', ')':
			return -1
		}
		return r
	}, s)
}

func recipientVarKey(t models.RecipientType) string {
	switch t {
	case models.RecipientTypeCandidate:
		return "candidate"
	case models.RecipientTypeInterviewer:
		return "interviewer"
	case models.RecipientTypeUser:
		return "user"
	default:
		return "recipient"
	}
}
