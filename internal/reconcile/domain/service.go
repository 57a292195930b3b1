// Package domain defines the reconciliation pipeline contract. Every billing
// signal, whether a processor webhook or the user landing back from
// checkout, funnels through the same idempotent pipeline.
package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/wearly/wearly/internal/config"
	subscriptiondomain "github.com/wearly/wearly/internal/subscription/domain"
	transactiondomain "github.com/wearly/wearly/internal/transaction/domain"
)

// Source identifies which entry point triggered a reconciliation. Both
// receive identical treatment; the source is recorded for audit only.
type Source string

const (
	SourceWebhook Source = "webhook"
	SourceReturn  Source = "return"
)

type Request struct {
	// UserID is the authenticated caller (return path) or the user encoded
	// in the notification reference (webhook path, resolved upstream).
	UserID            snowflake.ID
	ExternalReference string
	Source            Source
}

type Result struct {
	// Idempotent is true when a prior run already completed this billing
	// event and nothing was changed.
	Idempotent bool
	Status     transactiondomain.TransactionStatus
	Outcome    subscriptiondomain.ApplyOutcome
	Tier       config.Tier
}

type Service interface {
	Reconcile(ctx context.Context, req Request) (Result, error)
}

// ErrReconcileBusy means another reconciliation currently holds the lock on
// this reference. Transient; the caller retries or waits for the other run.
var ErrReconcileBusy = errors.New("reconcile_busy")
