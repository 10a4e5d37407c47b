package shared

import (
	"context"

	"github.com/relay4ai/mcp/shared/mcp/2025/schema"
)

type relatedRequestIDKey struct{}

// WithRelatedRequestID marks ctx as belonging to the handling of the given
// incoming request. Messages sent with this context are attributed to that
// request, so the transport can deliver them on the same HTTP response stream.
func WithRelatedRequestID(ctx context.Context, id *schema.RequestID) context.Context {
	if id == nil || id.IsEmpty() {
		return ctx
	}
	return context.WithValue(ctx, relatedRequestIDKey{}, id)
}

// RelatedRequestID returns the incoming request id ctx is attributed to, or
// nil when the context does not belong to a request.
func RelatedRequestID(ctx context.Context) *schema.RequestID {
	if ctx == nil {
		return nil
	}
	id, _ := ctx.Value(relatedRequestIDKey{}).(*schema.RequestID)
	return id
}
