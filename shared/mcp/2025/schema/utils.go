package schema

// ProgressNotification provides updates for long-running requests.
// An out-of-band notification used to inform the receiver of a progress update.
type ProgressNotification struct {
	Method string                     `json:"method"` // const: "notifications/progress"
	Params ProgressNotificationParams `json:"params"`
}

// ProgressNotificationParams contains progress information.
type ProgressNotificationParams struct {
	// The progress token associated with the original request.
	ProgressToken ProgressToken `json:"progressToken"` // string or integer
	// The progress thus far. Should increase over time.
	Progress float64 `json:"progress"`
	// Total progress required, if known.
	Total *float64 `json:"total,omitempty"`
	// An optional message describing the current progress.
	Message *string `json:"message,omitempty"`
}

// CancelledNotification indicates cancellation of a previously-issued request.
// This notification can be sent by either side.
type CancelledNotification struct {
	Method string                      `json:"method"` // const: "notifications/cancelled"
	Params CancelledNotificationParams `json:"params"`
}

// CancelledNotificationParams contains parameters for cancellation notifications.
type CancelledNotificationParams struct {
	Reason    string    `json:"reason,omitempty"` // Optional reason for cancellation
	RequestID RequestID `json:"requestId"`        // The ID of the request to cancel
}

// PingRequest checks if the other party is alive.
// A ping, issued by either the server or the client.
type PingRequest struct {
	Method string                 `json:"method"`           // const: "ping"
	Params map[string]interface{} `json:"params,omitempty"` // Allows for _meta field
}
