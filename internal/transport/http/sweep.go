package http

import (
	"context"
	"net/http"

	"github.com/cimillas/ultimate-ticket/holds/internal/app"
)

// SweepTrigger runs one sweep now, sharing the single-flight slot with the
// background runner.
type SweepTrigger interface {
	TryRun(ctx context.Context) (app.SweepResult, error)
}

type sweepResponse struct {
	Expired     int `json:"expired"`
	Promoted    int `json:"promoted"`
	Changed     int `json:"changed"`
	FailedZones int `json:"failed_zones"`
}

func HandleSweep(trigger SweepTrigger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := trigger.TryRun(r.Context())
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, sweepResponse{
			Expired:     res.Expired,
			Promoted:    res.Promoted,
			Changed:     res.Changed(),
			FailedZones: res.FailedZones,
		})
	}
}
