package schema

// LoggingLevel represents the severity of a log message (syslog levels).
type LoggingLevel string

// Logging level constants
const (
	LoggingLevelEmergency LoggingLevel = "emergency"
	LoggingLevelAlert     LoggingLevel = "alert"
	LoggingLevelCritical  LoggingLevel = "critical"
	LoggingLevelError     LoggingLevel = "error"
	LoggingLevelWarning   LoggingLevel = "warning"
	LoggingLevelNotice    LoggingLevel = "notice"
	LoggingLevelInfo      LoggingLevel = "info"
	LoggingLevelDebug     LoggingLevel = "debug"
)

// severity follows RFC 5424: lower numbers are more severe.
var loggingSeverity = map[LoggingLevel]int{
	LoggingLevelEmergency: 0,
	LoggingLevelAlert:     1,
	LoggingLevelCritical:  2,
	LoggingLevelError:     3,
	LoggingLevelWarning:   4,
	LoggingLevelNotice:    5,
	LoggingLevelInfo:      6,
	LoggingLevelDebug:     7,
}

// IsValid reports whether the level is one of the eight syslog levels.
func (l LoggingLevel) IsValid() bool {
	_, ok := loggingSeverity[l]
	return ok
}

// Includes reports whether a message at the given level passes a minimum
// level filter set to l.
func (l LoggingLevel) Includes(msg LoggingLevel) bool {
	min, ok := loggingSeverity[l]
	if !ok {
		return false
	}
	sev, ok := loggingSeverity[msg]
	if !ok {
		return false
	}
	return sev <= min
}

// SetLevelRequest adjusts logging level.
// A request from the client to the server, to enable or adjust logging.
type SetLevelRequest struct {
	Method string                `json:"method"` // const: "logging/setLevel"
	Params SetLevelRequestParams `json:"params"`
}

// SetLevelRequestParams contains parameters for log level setting.
type SetLevelRequestParams struct {
	Level LoggingLevel `json:"level"` // Desired logging level
}

// LoggingMessageNotification carries log messages from server to client.
type LoggingMessageNotification struct {
	Method string                           `json:"method"` // const: "notifications/message"
	Params LoggingMessageNotificationParams `json:"params"`
}

// LoggingMessageNotificationParams contains logging message parameters.
type LoggingMessageNotificationParams struct {
	Data   interface{}  `json:"data"`             // The data to be logged
	Level  LoggingLevel `json:"level"`            // Message severity
	Logger string       `json:"logger,omitempty"` // Optional logger name
}
