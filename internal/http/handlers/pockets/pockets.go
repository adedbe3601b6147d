package pockets

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/pulseout/pulse-service/internal/http/middleware"
	"github.com/pulseout/pulse-service/internal/session"
	"github.com/pulseout/pulse-service/internal/storage"
	"github.com/pulseout/pulse-service/internal/types"
	"github.com/pulseout/pulse-service/internal/utils/response"
)

// List returns the pockets directory
// @Summary Get pockets
// @Description Get all pockets with the viewer's membership state
// @Tags pockets
// @Produce json
// @Success 200 {object} response.Response "Pockets fetched successfully"
// @Failure 401 {object} response.Response "Unauthorized"
// @Failure 500 {object} response.Response "Internal server error"
// @Security BearerAuth
// @Router /pockets [get]
func List(sessions *session.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := middleware.GetUserIDFromContext(r.Context())
		if !ok {
			response.WriteJSON(w, http.StatusUnauthorized, response.GeneralError(errors.New("user not authenticated")))
			return
		}

		sess, err := sessions.GetOrInit(userID)
		if err != nil {
			response.WriteJSON(w, http.StatusInternalServerError, response.GeneralError(err))
			return
		}

		response.WriteJSON(w, http.StatusOK, response.RequestOK("Pockets fetched successfully", sess.Pockets()))
	}
}

// Create handles creating a pocket
// @Summary Create a pocket
// @Description Create a pocket; the creator joins automatically as admin
// @Tags pockets
// @Accept json
// @Produce json
// @Param pocket body types.PocketCreateRequest true "Pocket details"
// @Success 201 {object} map[string]string "Pocket created successfully"
// @Failure 400 {object} response.Response "Bad request"
// @Failure 401 {object} response.Response "Unauthorized"
// @Failure 500 {object} response.Response "Internal server error"
// @Security BearerAuth
// @Router /pockets [post]
func Create(store storage.Store, sessions *session.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := middleware.GetUserIDFromContext(r.Context())
		if !ok {
			response.WriteJSON(w, http.StatusUnauthorized, response.GeneralError(errors.New("user not authenticated")))
			return
		}

		var req types.PocketCreateRequest

		err := json.NewDecoder(r.Body).Decode(&req)
		if errors.Is(err, io.EOF) {
			response.WriteJSON(w, http.StatusBadRequest, response.GeneralError(errors.New("request body cannot be empty")))
			return
		} else if err != nil {
			response.WriteJSON(w, http.StatusBadRequest, response.GeneralError(err))
			return
		}

		// Validate request
		validate := validator.New()
		err = validate.Struct(req)
		if err != nil {
			if ve, ok := err.(validator.ValidationErrors); ok {
				response.WriteJSON(w, http.StatusBadRequest, response.ValidationError(ve))
				return
			}
			response.WriteJSON(w, http.StatusBadRequest, response.GeneralError(err))
			return
		}

		pocketID, err := store.CreatePocket(userID, req)
		if err != nil {
			response.WriteJSON(w, http.StatusInternalServerError, response.GeneralError(err))
			return
		}

		// The creator is the first member and administers the pocket.
		if err := store.JoinPocket(pocketID, userID, "admin"); err != nil {
			slog.Error("Failed to join creator to pocket", slog.String("error", err.Error()), slog.String("pocket_id", pocketID))
		}
		slog.Info("Pocket created", slog.String("pocket_id", pocketID), slog.String("creator_id", userID))

		if err := sessions.RefreshPockets(userID); err != nil {
			slog.Error("Failed to refresh pockets after create", slog.String("error", err.Error()))
		}

		response.WriteJSON(w, http.StatusCreated, map[string]string{"id": pocketID})
	}
}

// Join handles joining a pocket
// @Summary Join a pocket
// @Description Join a pocket as a member; pockets with application questions require three answers
// @Tags pockets
// @Accept json
// @Produce json
// @Param id path string true "Pocket ID"
// @Param application body types.PocketApplication false "Application answers"
// @Success 200 {object} response.Response "Joined pocket"
// @Failure 400 {object} response.Response "Bad request"
// @Failure 401 {object} response.Response "Unauthorized"
// @Failure 404 {object} response.Response "Pocket not found"
// @Failure 409 {object} response.Response "Already a member or pocket full"
// @Security BearerAuth
// @Router /pockets/{id}/join [post]
func Join(store storage.Store, sessions *session.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := middleware.GetUserIDFromContext(r.Context())
		if !ok {
			response.WriteJSON(w, http.StatusUnauthorized, response.GeneralError(errors.New("user not authenticated")))
			return
		}

		pocketID := r.PathValue("id")
		if pocketID == "" {
			response.WriteJSON(w, http.StatusBadRequest, response.GeneralError(errors.New("pocket ID is required")))
			return
		}

		// Pockets with application questions require a filled application.
		var needsApplication bool
		if sess, ok := sessions.Get(userID); ok {
			for _, p := range sess.Pockets() {
				if p.ID == pocketID && len(p.ApplicationQuestions) > 0 {
					needsApplication = true
					break
				}
			}
		}

		if needsApplication {
			var application types.PocketApplication

			err := json.NewDecoder(r.Body).Decode(&application)
			if err != nil {
				response.WriteJSON(w, http.StatusBadRequest, response.GeneralError(errors.New("this pocket requires an application")))
				return
			}

			validate := validator.New()
			if err := validate.Struct(application); err != nil {
				if ve, ok := err.(validator.ValidationErrors); ok {
					response.WriteJSON(w, http.StatusBadRequest, response.ValidationError(ve))
					return
				}
				response.WriteJSON(w, http.StatusBadRequest, response.GeneralError(err))
				return
			}
		}

		err := store.JoinPocket(pocketID, userID, "member")
		if err != nil {
			switch {
			case errors.Is(err, storage.ErrNotFound):
				response.WriteJSON(w, http.StatusNotFound, response.GeneralError(errors.New("pocket not found")))
			case errors.Is(err, storage.ErrDuplicate):
				response.WriteJSON(w, http.StatusConflict, response.GeneralError(errors.New("already a member of this pocket")))
			case errors.Is(err, storage.ErrPocketFull):
				response.WriteJSON(w, http.StatusConflict, response.GeneralError(errors.New("pocket is at capacity")))
			default:
				slog.Error("Failed to join pocket", slog.String("error", err.Error()), slog.String("pocket_id", pocketID))
				response.WriteJSON(w, http.StatusInternalServerError, response.GeneralError(err))
			}
			return
		}

		if err := sessions.RefreshPockets(userID); err != nil {
			slog.Error("Failed to refresh pockets after join", slog.String("error", err.Error()))
		}

		response.WriteJSON(w, http.StatusOK, response.RequestOK("Joined pocket", nil))
	}
}

// Delete handles deleting a pocket
// @Summary Delete a pocket
// @Description Delete a pocket; only its creator may delete it
// @Tags pockets
// @Param id path string true "Pocket ID"
// @Success 200 {object} response.Response "Pocket deleted successfully"
// @Failure 400 {object} response.Response "Bad request"
// @Failure 401 {object} response.Response "Unauthorized"
// @Failure 404 {object} response.Response "Pocket not found"
// @Security BearerAuth
// @Router /pockets/{id} [delete]
func Delete(store storage.Store, sessions *session.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := middleware.GetUserIDFromContext(r.Context())
		if !ok {
			response.WriteJSON(w, http.StatusUnauthorized, response.GeneralError(errors.New("user not authenticated")))
			return
		}

		pocketID := r.PathValue("id")
		if pocketID == "" {
			response.WriteJSON(w, http.StatusBadRequest, response.GeneralError(errors.New("pocket ID is required")))
			return
		}

		err := store.DeletePocket(pocketID, userID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				response.WriteJSON(w, http.StatusNotFound, response.GeneralError(errors.New("pocket not found")))
				return
			}
			slog.Error("Failed to delete pocket", slog.String("error", err.Error()), slog.String("pocket_id", pocketID))
			response.WriteJSON(w, http.StatusInternalServerError, response.GeneralError(err))
			return
		}

		if err := sessions.RefreshPockets(userID); err != nil {
			slog.Error("Failed to refresh pockets after delete", slog.String("error", err.Error()))
		}

		response.WriteJSON(w, http.StatusOK, response.RequestOK("Pocket deleted successfully", nil))
	}
}
