package model

import "time"

// TransportType identifies one of the three ways the relay can reach new
// orders. Priority is strict: Database > API > ExternalPlatform.
type TransportType string

const (
	TransportNone     TransportType = "NONE"
	TransportDatabase TransportType = "DATABASE"
	TransportAPI      TransportType = "API"
	TransportExternal TransportType = "EXTERNAL_PLATFORM"
)

// transportPriority ranks transports; lower is preferred.
var transportPriority = map[TransportType]int{
	TransportDatabase: 0,
	TransportAPI:      1,
	TransportExternal: 2,
}

// Priority returns the transport's rank in the failover order. Unknown
// transports (including TransportNone) rank last.
func (t TransportType) Priority() int {
	if p, ok := transportPriority[t]; ok {
		return p
	}
	return len(transportPriority)
}

// TransportsByPriority lists the real transports in strict failover order.
func TransportsByPriority() []TransportType {
	return []TransportType{TransportDatabase, TransportAPI, TransportExternal}
}

// ConnectionHealth is the rolling health snapshot kept per transport type.
type ConnectionHealth struct {
	ID           int64         `json:"-"`
	Transport    TransportType `json:"transport"`
	IsHealthy    bool          `json:"is_healthy"`
	FailureCount int           `json:"failure_count"`
	SuccessCount int           `json:"success_count"`
	AvgLatencyMs float64       `json:"avg_latency_ms"`
	LastCheck    time.Time     `json:"last_check"`
}

// RecordSuccess folds a successful probe into the snapshot. A success resets
// the failure streak and updates the rolling latency average.
func (h *ConnectionHealth) RecordSuccess(latency time.Duration, at time.Time) {
	h.SuccessCount++
	h.FailureCount = 0
	h.IsHealthy = true
	h.LastCheck = at

	ms := float64(latency.Milliseconds())
	if h.AvgLatencyMs == 0 {
		h.AvgLatencyMs = ms
	} else {
		h.AvgLatencyMs = (h.AvgLatencyMs*0.8 + ms*0.2)
	}
}

// RecordFailure folds a failed probe into the snapshot.
func (h *ConnectionHealth) RecordFailure(at time.Time) {
	h.FailureCount++
	h.IsHealthy = false
	h.LastCheck = at
}
