package events

import "time"

const (
	// Exchange is the durable topic exchange shared by every publisher and
	// every independent consumer of click events.
	Exchange = "url.shortener.exchange"

	// RoutingKey is the fixed routing key for click events. Each consumer
	// binds its own durable queue to it, so all of them see every event.
	RoutingKey = "click.event"
)

// ClickEvent represents a single resolved redirect. Published by the
// redirect service, consumed by the ws-relay and the analytics service.
type ClickEvent struct {
	ShortCode string `json:"shortCode"`
	Timestamp string `json:"timestamp"`
	IPAddress string `json:"ipAddress"`
	UserAgent string `json:"userAgent"`
	Referrer  string `json:"referrer"`
	Country   string `json:"country,omitempty"`
}

// NewClickEvent stamps the event with the current UTC time in RFC 3339
// format, which is what the wire contract calls ISO-8601.
func NewClickEvent(shortCode, ip, userAgent, referrer string) ClickEvent {
	return ClickEvent{
		ShortCode: shortCode,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		IPAddress: ip,
		UserAgent: userAgent,
		Referrer:  referrer,
	}
}
