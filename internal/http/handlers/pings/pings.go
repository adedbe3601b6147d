package pings

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/pulseout/pulse-service/internal/events"
	"github.com/pulseout/pulse-service/internal/http/middleware"
	"github.com/pulseout/pulse-service/internal/session"
	"github.com/pulseout/pulse-service/internal/storage"
	"github.com/pulseout/pulse-service/internal/types"
	"github.com/pulseout/pulse-service/internal/utils/response"
)

// List returns the viewer's cached ping conversations
// @Summary Get pings
// @Description Get the viewer's ping conversations from the session cache
// @Tags pings
// @Produce json
// @Success 200 {object} response.Response "Pings fetched successfully"
// @Failure 401 {object} response.Response "Unauthorized"
// @Failure 500 {object} response.Response "Internal server error"
// @Security BearerAuth
// @Router /pings [get]
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

		response.WriteJSON(w, http.StatusOK, response.RequestOK("Pings fetched successfully", sess.Pings()))
	}
}

// Create handles sending a ping
// @Summary Send a ping
// @Description Send a ping to another user; consumes one token of the daily ping budget
// @Tags pings
// @Accept json
// @Produce json
// @Param ping body types.PingCreateRequest true "Ping details"
// @Success 201 {object} map[string]string "Ping sent successfully"
// @Failure 400 {object} response.Response "Bad request"
// @Failure 401 {object} response.Response "Unauthorized"
// @Failure 429 {object} response.Response "Daily ping budget exhausted"
// @Failure 500 {object} response.Response "Internal server error"
// @Security BearerAuth
// @Router /pings [post]
func Create(store storage.Store, sessions *session.Manager, publisher events.Publisher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := middleware.GetUserIDFromContext(r.Context())
		if !ok {
			response.WriteJSON(w, http.StatusUnauthorized, response.GeneralError(errors.New("user not authenticated")))
			return
		}

		var req types.PingCreateRequest

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

		if req.ReceiverID == userID {
			response.WriteJSON(w, http.StatusBadRequest, response.GeneralError(errors.New("cannot ping yourself")))
			return
		}

		pingID, err := store.CreatePing(userID, req.ReceiverID, req.Context)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				response.WriteJSON(w, http.StatusNotFound, response.GeneralError(errors.New("receiver not found")))
				return
			}
			response.WriteJSON(w, http.StatusInternalServerError, response.GeneralError(err))
			return
		}
		slog.Info("Ping sent", slog.String("ping_id", pingID), slog.String("sender_id", userID))

		if publisher != nil {
			publisher.PublishPingReceived(pingID, userID, req.ReceiverID, req.Context)
		}

		if err := sessions.RefreshPings(userID); err != nil {
			slog.Error("Failed to refresh pings after send", slog.String("error", err.Error()))
		}

		response.WriteJSON(w, http.StatusCreated, map[string]string{"id": pingID})
	}
}

// Open marks a ping as read by its receiver
// @Summary Open a ping
// @Description Mark a ping as read; only the receiver may open it
// @Tags pings
// @Param id path string true "Ping ID"
// @Success 200 {object} response.Response "Ping opened"
// @Failure 400 {object} response.Response "Bad request"
// @Failure 401 {object} response.Response "Unauthorized"
// @Failure 404 {object} response.Response "Ping not found"
// @Security BearerAuth
// @Router /pings/{id}/open [post]
func Open(store storage.Store, sessions *session.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := middleware.GetUserIDFromContext(r.Context())
		if !ok {
			response.WriteJSON(w, http.StatusUnauthorized, response.GeneralError(errors.New("user not authenticated")))
			return
		}

		pingID := r.PathValue("id")
		if pingID == "" {
			response.WriteJSON(w, http.StatusBadRequest, response.GeneralError(errors.New("ping ID is required")))
			return
		}

		err := store.MarkPingRead(pingID, userID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				response.WriteJSON(w, http.StatusNotFound, response.GeneralError(errors.New("ping not found")))
				return
			}
			slog.Error("Failed to mark ping read", slog.String("error", err.Error()), slog.String("ping_id", pingID))
			response.WriteJSON(w, http.StatusInternalServerError, response.GeneralError(err))
			return
		}

		if sess, ok := sessions.Get(userID); ok {
			sess.PatchPing(pingID, func(p *types.Ping) {
				p.IsRead = true
			})
		}

		response.WriteJSON(w, http.StatusOK, response.RequestOK("Ping opened", nil))
	}
}

// Messages returns the chat thread of a ping
// @Summary Get ping messages
// @Tags pings
// @Produce json
// @Param id path string true "Ping ID"
// @Success 200 {object} response.Response "Messages fetched successfully"
// @Failure 400 {object} response.Response "Bad request"
// @Failure 401 {object} response.Response "Unauthorized"
// @Security BearerAuth
// @Router /pings/{id}/messages [get]
func Messages(store storage.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, ok := middleware.GetUserIDFromContext(r.Context())
		if !ok {
			response.WriteJSON(w, http.StatusUnauthorized, response.GeneralError(errors.New("user not authenticated")))
			return
		}

		pingID := r.PathValue("id")
		if pingID == "" {
			response.WriteJSON(w, http.StatusBadRequest, response.GeneralError(errors.New("ping ID is required")))
			return
		}

		messages, err := store.GetMessages(pingID)
		if err != nil {
			response.WriteJSON(w, http.StatusInternalServerError, response.GeneralError(err))
			return
		}

		response.WriteJSON(w, http.StatusOK, response.RequestOK("Messages fetched successfully", messages))
	}
}

// SendMessage appends a message to a ping's chat thread
// @Summary Send a chat message
// @Tags pings
// @Accept json
// @Produce json
// @Param id path string true "Ping ID"
// @Param message body types.MessageCreateRequest true "Message content"
// @Success 201 {object} map[string]string "Message sent successfully"
// @Failure 400 {object} response.Response "Bad request"
// @Failure 401 {object} response.Response "Unauthorized"
// @Failure 404 {object} response.Response "Ping not found"
// @Security BearerAuth
// @Router /pings/{id}/messages [post]
func SendMessage(store storage.Store, sessions *session.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := middleware.GetUserIDFromContext(r.Context())
		if !ok {
			response.WriteJSON(w, http.StatusUnauthorized, response.GeneralError(errors.New("user not authenticated")))
			return
		}

		pingID := r.PathValue("id")
		if pingID == "" {
			response.WriteJSON(w, http.StatusBadRequest, response.GeneralError(errors.New("ping ID is required")))
			return
		}

		var req types.MessageCreateRequest

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

		messageID, err := store.AddMessage(pingID, userID, req.Content)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				response.WriteJSON(w, http.StatusNotFound, response.GeneralError(errors.New("ping not found")))
				return
			}
			response.WriteJSON(w, http.StatusInternalServerError, response.GeneralError(err))
			return
		}

		if err := sessions.RefreshPings(userID); err != nil {
			slog.Error("Failed to refresh pings after message", slog.String("error", err.Error()))
		}

		response.WriteJSON(w, http.StatusCreated, map[string]string{"id": messageID})
	}
}
