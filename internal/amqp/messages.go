package amqp

import (
	"encoding/json"
	"time"

	"rekord/internal/core"
)

// EventReportQueried is the AMQP message type of ReportQueriedMessage.
const EventReportQueried = "report.queried"

// ReportQueriedMessage describes one successful report query.
type ReportQueriedMessage struct {
	Years           []int     `json:"years"`
	OrderCategories []string  `json:"order_categories,omitempty"`
	ObjectSymbols   []string  `json:"object_symbols,omitempty"`
	Rows            int       `json:"rows"`
	DurationMs      int64     `json:"duration_ms"`
	Timestamp       time.Time `json:"timestamp"`
}

// NewReportQueriedMessage builds an event for filter f.
func NewReportQueriedMessage(f core.Filter, rows int, took time.Duration) *ReportQueriedMessage {
	return &ReportQueriedMessage{
		Years:           f.Years,
		OrderCategories: f.OrderCategories,
		ObjectSymbols:   f.ObjectSymbols,
		Rows:            rows,
		DurationMs:      took.Milliseconds(),
		Timestamp:       time.Now().UTC(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *ReportQueriedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ReportQueriedMessageFromJSON decodes a message body.
func ReportQueriedMessageFromJSON(data []byte) (*ReportQueriedMessage, error) {
	var msg ReportQueriedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
