package monitor

import "time"

// Overall health states reported by Status.State.
const (
	StateOK       = "ok"
	StateDegraded = "degraded"
	StateDown     = "down"
)

type Status struct {
	PostgreSQL bool      `json:"postgresql"`
	Redis      bool      `json:"redis"`
	Buffer     bool      `json:"buffer"`
	BufferSize int       `json:"buffer_size"`
	LastCheck  time.Time `json:"last_check"`
}

// State summarizes the snapshot. Sessions keep working without Redis, so only a
// Postgres outage is reported as down.
func (s Status) State() string {
	switch {
	case !s.PostgreSQL:
		return StateDown
	case !s.Redis:
		return StateDegraded
	default:
		return StateOK
	}
}
