// Package jobsfeature exposes the background task runner to operators.
//
//   - GET  /api/admin/jobs             - every job with its run history
//   - POST /api/admin/jobs/{name}/run  - run a job now, outside its schedule
package jobsfeature

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	errorsfeature "github.com/dalemusser/stratapage/internal/app/features/errors"
	"github.com/dalemusser/stratapage/internal/app/system/apperr"
	"github.com/dalemusser/stratapage/internal/app/system/jsonutil"
	"github.com/dalemusser/stratapage/internal/app/system/tasks"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Runner is the task runner as the handler sees it.
type Runner interface {
	Status() []tasks.JobStatus
	RunOnce(ctx context.Context, name string) error
}

// Handler serves job status and manual runs.
type Handler struct {
	runner Runner
	errs   *errorsfeature.Handler
	logger *zap.Logger
}

// NewHandler creates a jobs handler.
func NewHandler(runner Runner, errs *errorsfeature.Handler, logger *zap.Logger) *Handler {
	return &Handler{runner: runner, errs: errs, logger: logger}
}

// Routes returns the jobs router. Authentication is applied by the caller.
func Routes(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Get("/", h.List)
	r.Post("/{name}/run", h.Run)
	return r
}

// List handles GET /.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	jsonutil.OK(w, map[string]any{"jobs": h.runner.Status()})
}

// Run handles POST /{name}/run. The job runs on the request context, so
// the request timeout bounds it too.
func (h *Handler) Run(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	err := h.runner.RunOnce(r.Context(), name)
	switch {
	case errors.Is(err, tasks.ErrUnknownJob):
		h.errs.Fail(w, r, "run job", fmt.Errorf("%w: %w", err, apperr.ErrNotFound))
		return
	case err != nil:
		// The job ran and failed; that is a result, not a request error.
		h.logger.Warn("manual job run failed", zap.String("job", name), zap.Error(err))
		jsonutil.JSON(w, http.StatusOK, jsonutil.Notice{OK: false, Message: "Job failed", Data: status(h.runner, name)})
		return
	}
	h.logger.Info("manual job run", zap.String("job", name))
	jsonutil.Success(w, http.StatusOK, "Job completed", status(h.runner, name))
}

func status(r Runner, name string) tasks.JobStatus {
	for _, st := range r.Status() {
		if st.Name == name {
			return st
		}
	}
	return tasks.JobStatus{Name: name}
}
