package handlers

import (
	"net/http"

	"github.com/baechuer/seatwatch/internal/application/tracking"
	"github.com/baechuer/seatwatch/internal/transport/http/dto"
	"github.com/baechuer/seatwatch/internal/transport/http/response"
)

type SweepReporter interface {
	LastReport() tracking.SweepReport
}

// StatusHandler reports registry stats, the last sweep and breaker states.
// breakers maps a fetcher name to a function returning its breaker state.
type StatusHandler struct {
	reg      Registry
	sweeper  SweepReporter
	breakers map[string]func() string
}

func NewStatusHandler(reg Registry, sweeper SweepReporter, breakers map[string]func() string) *StatusHandler {
	return &StatusHandler{reg: reg, sweeper: sweeper, breakers: breakers}
}

// Status: GET /status
func (h *StatusHandler) Status(w http.ResponseWriter, r *http.Request) {
	out := dto.StatusResp{Stats: dto.ToStatsResp(h.reg.Stats(r.Context()))}
	if h.sweeper != nil {
		out.LastSweep = dto.ToSweepResp(h.sweeper.LastReport())
	}
	if len(h.breakers) > 0 {
		out.Breakers = make(map[string]string, len(h.breakers))
		for name, state := range h.breakers {
			out.Breakers[name] = state()
		}
	}
	response.Data(w, http.StatusOK, out)
}
