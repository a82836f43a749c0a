// Package sentryhelper provides utilities for Sentry transaction and scope management.
// Background snapshot fetches run outside any HTTP request, so each one gets its
// own cloned hub and transaction.
package sentryhelper

import (
	"context"
	"fmt"

	sentry "github.com/getsentry/sentry-go"
)

// contextKey is used to store the cloned hub in context
type contextKey string

const hubContextKey contextKey = "sentry_hub"

// StartFetchTransaction creates a transaction with a cloned hub for one page fetch.
// The cloned hub keeps breadcrumbs and tags isolated to that fetch.
func StartFetchTransaction(ctx context.Context, board, category, date string) (context.Context, *sentry.Span) {
	hub := sentry.CurrentHub().Clone()
	ctx = context.WithValue(ctx, hubContextKey, hub)

	transaction := sentry.StartTransaction(ctx, fmt.Sprintf("page.fetch.%s", board),
		sentry.WithOpName("page.fetch"),
		sentry.WithTransactionSource(sentry.SourceTask),
	)
	transaction.SetTag("board", board)
	transaction.SetTag("category", category)
	transaction.SetTag("date", date)

	hub.Scope().SetSpan(transaction)

	return transaction.Context(), transaction
}

// HubFromContext retrieves the cloned hub from context.
// Falls back to CurrentHub if no cloned hub is found.
func HubFromContext(ctx context.Context) *sentry.Hub {
	if ctx == nil {
		return sentry.CurrentHub()
	}
	if hub, ok := ctx.Value(hubContextKey).(*sentry.Hub); ok && hub != nil {
		return hub
	}
	if hub := sentry.GetHubFromContext(ctx); hub != nil {
		return hub
	}
	return sentry.CurrentHub()
}

func AddBreadcrumb(ctx context.Context, breadcrumb *sentry.Breadcrumb) {
	HubFromContext(ctx).AddBreadcrumb(breadcrumb, nil)
}

func CaptureException(ctx context.Context, err error) *sentry.EventID {
	return HubFromContext(ctx).CaptureException(err)
}
