// Package quota enforces subscription resource limits on chatbot creation,
// document creation, and chatbot sharing. Checks run against live counts
// inside the caller's transaction; nothing is cached.
package quota

import (
	"context"
	"errors"
	"fmt"

	"github.com/chatdocs/chatdocs/internal/store"
	"github.com/chatdocs/chatdocs/internal/tokens"
)

// ErrNoSubscription denies a request from a user without an active
// subscription.
var ErrNoSubscription = errors.New("quota: no active subscription")

// ErrNoQuota denies a request when the subscription has no quota snapshot.
// This is a configuration fault on our side, surfaced as a denial so the
// user contacts support instead of creating unmetered resources.
var ErrNoQuota = errors.New("quota: subscription has no quota snapshot")

// ErrQuotaExceeded is the sentinel wrapped by every LimitError, so callers
// can classify denials with errors.Is.
var ErrQuotaExceeded = errors.New("quota: limit exceeded")

// ErrEmptyDocument rejects a document creation request carrying no chunk
// content at all. This is invalid input, not a quota violation.
var ErrEmptyDocument = errors.New("quota: document has no chunk content")

// wordTolerance is the fixed allowance over the nominal per-document word
// limit. It absorbs boundary and tokenization disputes; it is not a loophole.
const wordTolerance = 1.05

// LimitError is a quota denial naming the specific limit and current usage.
type LimitError struct {
	// Resource is what was being created ("chatbot", "document", "share").
	Resource string
	// Limit is the quota's nominal limit.
	Limit int
	// Current is the usage counted at check time.
	Current int
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("quota: %s limit reached: %d of %d in use", e.Resource, e.Current, e.Limit)
}

// Unwrap makes every LimitError match ErrQuotaExceeded.
func (e *LimitError) Unwrap() error { return ErrQuotaExceeded }

// resolveQuota loads the user's active subscription and its quota snapshot.
func resolveQuota(ctx context.Context, st *store.Store, userID string) (store.UsageQuota, error) {
	sub, err := st.ActiveSubscriptionByUser(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return store.UsageQuota{}, ErrNoSubscription
	}
	if err != nil {
		return store.UsageQuota{}, err
	}
	q, err := st.QuotaBySubscription(ctx, sub.ID)
	if errors.Is(err, store.ErrNotFound) {
		return store.UsageQuota{}, ErrNoQuota
	}
	if err != nil {
		return store.UsageQuota{}, err
	}
	return q, nil
}

// CheckChatbot admits one chatbot creation for the user. The owned-chatbot
// count must be strictly below the limit. Run it on a transaction-bound
// store together with the creation write so concurrent requests at limit−1
// cannot both commit.
func CheckChatbot(ctx context.Context, st *store.Store, userID string) error {
	q, err := resolveQuota(ctx, st, userID)
	if err != nil {
		return err
	}
	n, err := st.CountChatbotsByUser(ctx, userID)
	if err != nil {
		return err
	}
	if n >= q.MaxChatbotCount {
		return &LimitError{Resource: "chatbot", Limit: q.MaxChatbotCount, Current: n}
	}
	return nil
}

// CheckDocument admits one document creation. The owned-document count must
// be strictly below the limit, and the request's total word count across all
// chunk contents must be within the per-document word limit plus the fixed
// tolerance. A request with no chunk content at all is invalid input,
// distinct from a quota denial.
func CheckDocument(ctx context.Context, st *store.Store, userID string, chunkContents []string) error {
	words := 0
	for _, c := range chunkContents {
		words += tokens.Words(c)
	}
	if words == 0 {
		return ErrEmptyDocument
	}

	q, err := resolveQuota(ctx, st, userID)
	if err != nil {
		return err
	}
	n, err := st.CountDocumentsByUser(ctx, userID)
	if err != nil {
		return err
	}
	if n >= q.MaxDocumentCount {
		return &LimitError{Resource: "document", Limit: q.MaxDocumentCount, Current: n}
	}
	if float64(words) > float64(q.MaxWordCountPerDocument)*wordTolerance {
		return &LimitError{Resource: "document word count", Limit: q.MaxWordCountPerDocument, Current: words}
	}
	return nil
}

// CheckShare admits sharing a chatbot with the given recipients. The user's
// aggregate shared seats across every chatbot they own, plus the new
// distinct recipients in this request, must not exceed the share limit.
func CheckShare(ctx context.Context, st *store.Store, userID, chatbotID string, recipients []string) error {
	q, err := resolveQuota(ctx, st, userID)
	if err != nil {
		return err
	}
	current, err := st.CountSharesByOwner(ctx, userID)
	if err != nil {
		return err
	}

	distinct := dedupe(recipients)
	existing, err := st.CountExistingRecipients(ctx, chatbotID, distinct)
	if err != nil {
		return err
	}
	requested := len(distinct) - existing

	if current+requested > q.MaxShareCount {
		return &LimitError{Resource: "share", Limit: q.MaxShareCount, Current: current}
	}
	return nil
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	var out []string
	for _, v := range in {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
