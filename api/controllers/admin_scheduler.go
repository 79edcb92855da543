package controllers

import (
	"context"
	"net/http"

	"github.com/angelmondragon/credstock/api/responses"
	"github.com/angelmondragon/credstock/internal/lifecycle"
	pkgerrors "github.com/angelmondragon/credstock/pkg/errors"
	"github.com/angelmondragon/credstock/pkg/logger"
)

// SchedulerControl is the operator view of the lifecycle scheduler.
type SchedulerControl interface {
	Status() lifecycle.Status
	Start(ctx context.Context) bool
	Stop(ctx context.Context) error
	Restart(ctx context.Context) error
	RunNow(ctx context.Context) (bool, error)
}

type schedulerActionResponse struct {
	Success bool             `json:"success"`
	Message string           `json:"message"`
	Status  lifecycle.Status `json:"status"`
}

func AdminSchedulerStatus(s SchedulerControl) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteSuccess(w, s.Status())
	}
}

// AdminSchedulerAction handles start, stop, restart and run.
func AdminSchedulerAction(s SchedulerControl, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		action := chiParam(r, "action")

		var (
			out schedulerActionResponse
			err error
		)
		switch action {
		case "start":
			started := s.Start(ctx)
			out = schedulerActionResponse{Success: started, Message: "Scheduler started"}
			if !started {
				out.Message = "Scheduler already running"
			}
		case "stop":
			err = s.Stop(ctx)
			out = schedulerActionResponse{Success: err == nil, Message: "Scheduler stopped"}
		case "restart":
			err = s.Restart(ctx)
			out = schedulerActionResponse{Success: err == nil, Message: "Scheduler restarted"}
		case "run":
			var ran bool
			ran, err = s.RunNow(ctx)
			out = schedulerActionResponse{Success: ran, Message: "Cycle completed"}
			if !ran {
				out.Message = "A cycle is already running"
			} else if err != nil {
				out.Message = "Cycle completed with errors: " + err.Error()
				err = nil
			}
		default:
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Invalid action"))
			return
		}
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "scheduler "+action+" failed"))
			return
		}
		if logg != nil {
			logg.Info(logg.WithField(ctx, "action", action), "scheduler action")
		}
		out.Status = s.Status()
		responses.WriteSuccess(w, out)
	}
}
