package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/labstock-backend/api/middleware"
	"github.com/angelmondragon/labstock-backend/api/responses"
	"github.com/angelmondragon/labstock-backend/api/validators"
	"github.com/angelmondragon/labstock-backend/internal/ledger"
	pkgerrors "github.com/angelmondragon/labstock-backend/pkg/errors"
	"github.com/angelmondragon/labstock-backend/pkg/logger"
)

func ListComponents(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger service unavailable"))
			return
		}

		components, err := svc.ListComponents(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toComponentList(components))
	}
}

// RestockComponent creates a component or adds units to an existing one
// with the same name. New components answer 201.
func RestockComponent(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r, svc, logg)
		if !ok {
			return
		}

		var req restockRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Restock(r.Context(), ledger.RestockInput{
			Name:     req.Name,
			Quantity: req.Quantity,
			Photo1:   req.Photo1,
			Photo2:   req.Photo2,
			ActorID:  actor,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		status := http.StatusOK
		if result.Created {
			status = http.StatusCreated
		}
		responses.WriteSuccessStatus(w, status, restockResponse{
			Component: toComponentResponse(*result.Component),
			Created:   result.Created,
		})
	}
}

func ResizeComponent(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r, svc, logg)
		if !ok {
			return
		}

		id, err := validators.PathUUID(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req resizeRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		component, err := svc.Resize(r.Context(), ledger.ResizeInput{
			ComponentID:      id,
			NewTotalQuantity: *req.NewTotalQuantity,
			ActorID:          actor,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toComponentResponse(*component))
	}
}

func RenameComponent(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r, svc, logg)
		if !ok {
			return
		}

		id, err := validators.PathUUID(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req renameRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		component, err := svc.RenameComponent(r.Context(), ledger.RenameInput{
			ComponentID: id,
			NewName:     req.NewName,
			ActorID:     actor,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toComponentResponse(*component))
	}
}

func DeleteComponent(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r, svc, logg)
		if !ok {
			return
		}

		id, err := validators.PathUUID(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.DeleteComponent(r.Context(), ledger.DeleteInput{ComponentID: id, ActorID: actor}); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteNoContent(w)
	}
}

func ComponentMovements(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger service unavailable"))
			return
		}

		id, err := validators.PathUUID(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", 50, 1, 500)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		movements, err := svc.ListMovements(r.Context(), id, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toMovementList(movements))
	}
}

// requireActor resolves the authenticated admin for mutating routes.
func requireActor(w http.ResponseWriter, r *http.Request, svc ledger.Service, logg *logger.Logger) (uuid.UUID, bool) {
	if svc == nil {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger service unavailable"))
		return uuid.Nil, false
	}
	adminID, ok := middleware.AdminIDFromContext(r.Context())
	if !ok {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "admin context missing"))
		return uuid.Nil, false
	}
	return adminID, true
}
