package controllers

import (
	"net/http"

	"github.com/angelmondragon/labstock-backend/api/responses"
	"github.com/angelmondragon/labstock-backend/api/validators"
	"github.com/angelmondragon/labstock-backend/internal/ledger"
	"github.com/angelmondragon/labstock-backend/pkg/logger"
)

func CreateIssue(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r, svc, logg)
		if !ok {
			return
		}

		var req createIssueRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.CreateIssue(r.Context(), req.toInput(actor))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, toIssueResponse(result))
	}
}

func ReturnIssueItem(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r, svc, logg)
		if !ok {
			return
		}

		itemID, err := validators.PathUUID(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req returnItemRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.ReturnItem(r.Context(), ledger.ReturnItemInput{
			IssueItemID:    itemID,
			ReturnQuantity: req.ReturnQuantity,
			ComponentID:    req.ComponentID,
			ActorID:        actor,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		resp := returnItemResponse{Item: toIssueItemResponse(*result.Item)}
		if result.Component != nil {
			c := toComponentResponse(*result.Component)
			resp.Component = &c
		}
		responses.WriteSuccess(w, resp)
	}
}

// ReturnAllItems settles every outstanding line of an issue. Repeating
// the call is a no-op that reports zero units.
func ReturnAllItems(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r, svc, logg)
		if !ok {
			return
		}

		issueID, err := validators.PathUUID(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.ReturnAll(r.Context(), ledger.ReturnAllInput{IssueID: issueID, ActorID: actor})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, returnAllResponse{
			IssueID:       result.IssueID,
			SettledItems:  result.SettledItems,
			UnitsReturned: result.UnitsReturned,
			Items:         toIssueItems(result.Items),
		})
	}
}
