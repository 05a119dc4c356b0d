package server

import (
	"context"

	"github.com/lumenfeed/ingest/internal/models"
)

type contextKey string

const publisherContextKey contextKey = "publisher"

// withPublisher stores the authenticated publisher on the request context.
func withPublisher(ctx context.Context, p *models.Publisher) context.Context {
	return context.WithValue(ctx, publisherContextKey, p)
}

// publisherFromContext retrieves the publisher stored by publisherAuthMiddleware.
// Only call from handlers registered under that middleware.
func publisherFromContext(ctx context.Context) *models.Publisher {
	p, _ := ctx.Value(publisherContextKey).(*models.Publisher)
	return p
}
