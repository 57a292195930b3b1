// Package domain defines the preapproval verifier contract. The verifier is
// the only component allowed to decide what a checkout reference means: it
// fetches the processor's own record and corroborates every claim against it
// before any state is touched.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/wearly/wearly/internal/config"
)

// PreapprovalStatus is the normalized state of a recurring-billing agreement.
type PreapprovalStatus string

const (
	PreapprovalStatusAuthorized PreapprovalStatus = "authorized"
	PreapprovalStatusCancelled  PreapprovalStatus = "cancelled"
	PreapprovalStatusPaused     PreapprovalStatus = "paused"
	PreapprovalStatusOther      PreapprovalStatus = "other"
)

// Preapproval is the processor-side agreement as fetched from its API.
type Preapproval struct {
	ID                string
	PayerID           string
	ExternalReference string
	Status            string
	NextPaymentDate   *time.Time
	CurrencyID        string
	TransactionAmount float64
	RawStatus         string
}

// Verification is the normalized output handed to the state machine.
type Verification struct {
	Status            PreapprovalStatus
	Tier              config.Tier
	PreapprovalID     string
	PayerID           string
	NextPaymentDate   *time.Time
	Amount            float64
	Currency          string
	ExternalReference string
}

type VerifyRequest struct {
	// UserID is the authenticated caller. The reference must encode it.
	UserID            snowflake.ID
	ExternalReference string
}

// Fetcher retrieves the authoritative agreement from the processor.
type Fetcher interface {
	FindByExternalReference(ctx context.Context, externalReference string) (*Preapproval, error)
}

type Service interface {
	Verify(ctx context.Context, req VerifyRequest) (Verification, error)
}

var (
	// ErrInvalidReference covers malformed references and unknown tiers.
	ErrInvalidReference = errors.New("invalid_reference")
	// ErrIdentityRequired means no authenticated caller was supplied at all.
	ErrIdentityRequired = errors.New("identity_required")
	// ErrReferenceForbidden means the reference encodes a different user
	// than the authenticated caller.
	ErrReferenceForbidden = errors.New("reference_forbidden")
	// ErrReferenceMismatch means the processor's record carries a different
	// external reference than the one supplied.
	ErrReferenceMismatch = errors.New("reference_mismatch")
	ErrCurrencyMismatch  = errors.New("currency_mismatch")
	ErrAmountMismatch    = errors.New("amount_mismatch")
	// ErrPreapprovalNotFound means the processor has no agreement for the
	// reference; transient from the caller's point of view (checkout may
	// not have settled yet).
	ErrPreapprovalNotFound = errors.New("preapproval_not_found")
	// ErrProcessorUnavailable covers timeouts and non-success processor
	// responses; safe to retry, no state was changed.
	ErrProcessorUnavailable = errors.New("processor_unavailable")
)
