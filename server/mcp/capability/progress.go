package capability

import (
	"context"
	"encoding/json"

	"github.com/relay4ai/mcp/shared"
	"github.com/relay4ai/mcp/shared/mcp/2025/schema"
)

// ProgressReporter pushes notifications/progress for one request. Handlers of
// long operations obtain it from the incoming message and call Report as work
// advances.
type ProgressReporter struct {
	session shared.ISession
	token   schema.ProgressToken
	last    float64
}

// ProgressFor extracts the progress token a caller attached under
// params._meta.progressToken. Returns nil when the caller did not ask for
// progress; reporting on a nil reporter is a no-op.
func ProgressFor(msg *shared.Message) *ProgressReporter {
	if msg == nil || msg.Params == nil {
		return nil
	}
	var probe struct {
		Meta *struct {
			ProgressToken schema.ProgressToken `json:"progressToken"`
		} `json:"_meta"`
	}
	if err := json.Unmarshal(*msg.Params, &probe); err != nil {
		return nil
	}
	if probe.Meta == nil || probe.Meta.ProgressToken == nil {
		return nil
	}
	return &ProgressReporter{session: msg.Session, token: probe.Meta.ProgressToken}
}

// Report pushes one progress update. Progress should increase between calls;
// total may be zero when unknown. The notification is attributed to the
// handled request through ctx so it rides the request's stream.
func (p *ProgressReporter) Report(ctx context.Context, progress float64, total float64, message string) {
	if p == nil {
		return
	}
	if progress < p.last {
		progress = p.last
	}
	p.last = progress

	params := schema.ProgressNotificationParams{
		ProgressToken: p.token,
		Progress:      progress,
	}
	if total > 0 {
		params.Total = &total
	}
	if message != "" {
		params.Message = &message
	}
	p.session.SendNotification(ctx, "notifications/progress", params)
}
