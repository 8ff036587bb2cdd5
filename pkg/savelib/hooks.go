package savelib

type (
	// ProgressFunc receives a sampled progress update for an item.
	ProgressFunc func(id int64, percent int, currentSpeed, averageSpeed float64)
	// StateChangeFunc receives a lifecycle state transition for an item.
	StateChangeFunc func(id int64, status Status)
	// LogFunc receives a per-item log line.
	LogFunc func(id int64, line string)
)

// EventHooks is the fire-and-forget event sink for transfers. Delivery
// is best effort; a hook must never fail the transfer that invoked it.
// Nil fields are replaced with no-ops.
type EventHooks struct {
	OnProgress    ProgressFunc
	OnStateChange StateChangeFunc
	OnLog         LogFunc
}

func (h *EventHooks) setDefault() {
	if h.OnProgress == nil {
		h.OnProgress = func(int64, int, float64, float64) {}
	}
	if h.OnStateChange == nil {
		h.OnStateChange = func(int64, Status) {}
	}
	if h.OnLog == nil {
		h.OnLog = func(int64, string) {}
	}
}
