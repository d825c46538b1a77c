package controllers

import (
	"context"
	"net/http"

	"github.com/novamart/novamart-backend/api/responses"
	pkgerrors "github.com/novamart/novamart-backend/pkg/errors"
	"github.com/novamart/novamart-backend/pkg/logger"
)

type timeoutSweeper interface {
	Sweep(ctx context.Context) (int, error)
}

type reconciler interface {
	Reconcile(ctx context.Context) (int, error)
}

// RunOrderTimeoutSweep triggers one timeout sweep on demand. Operational
// escape hatch; the cron worker runs the same sweep on a schedule.
func RunOrderTimeoutSweep(job timeoutSweeper, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if job == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "timeout job unavailable"))
			return
		}
		closed, err := job.Sweep(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"ok": true, "closed": closed})
	}
}

// RunReconciliation triggers one reconciliation pass on demand.
func RunReconciliation(job reconciler, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if job == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reconciliation job unavailable"))
			return
		}
		reconciled, err := job.Reconcile(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"ok": true, "reconciled": reconciled})
	}
}
