package posts

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/pulseout/pulse-service/internal/http/middleware"
	"github.com/pulseout/pulse-service/internal/pulse"
	"github.com/pulseout/pulse-service/internal/session"
	"github.com/pulseout/pulse-service/internal/storage"
	"github.com/pulseout/pulse-service/internal/types"
	"github.com/pulseout/pulse-service/internal/utils/response"
)

// depthBadgeThreshold is the content length, in runes, above which a post
// earns the depth badge.
const depthBadgeThreshold = 200

// Feed returns the viewer's cached posts feed
// @Summary Get the posts feed
// @Description Get the posts feed from the viewer's session cache
// @Tags posts
// @Produce json
// @Success 200 {object} response.Response "Posts fetched successfully"
// @Failure 401 {object} response.Response "Unauthorized"
// @Failure 500 {object} response.Response "Internal server error"
// @Security BearerAuth
// @Router /feed [get]
func Feed(sessions *session.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Extract user ID from context
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

		response.WriteJSON(w, http.StatusOK, response.RequestOK("Posts fetched successfully", sess.Posts()))
	}
}

// CreatePost handles publishing a new post
// @Summary Create a new post
// @Description Create a post; long-form content earns the depth badge, and a future scheduled_for holds it back as a time capsule
// @Tags posts
// @Accept json
// @Produce json
// @Param post body types.PostCreateRequest true "Post content"
// @Success 201 {object} map[string]string "Post created successfully"
// @Failure 400 {object} response.Response "Bad request"
// @Failure 401 {object} response.Response "Unauthorized"
// @Failure 500 {object} response.Response "Internal server error"
// @Security BearerAuth
// @Router /posts [post]
func CreatePost(store storage.Store, sessions *session.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Extract user ID from context
		userID, ok := middleware.GetUserIDFromContext(r.Context())
		if !ok {
			response.WriteJSON(w, http.StatusUnauthorized, response.GeneralError(errors.New("user not authenticated")))
			return
		}

		var req types.PostCreateRequest

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

		depthBadge := utf8.RuneCountInString(req.Content) > depthBadgeThreshold

		postID, err := store.CreatePost(userID, req, depthBadge)
		if err != nil {
			response.WriteJSON(w, http.StatusInternalServerError, response.GeneralError(err))
			return
		}
		slog.Info("Post created", slog.String("post_id", postID), slog.String("user_id", userID))

		// The author sees their own post immediately; everyone else waits
		// for the coarse change notification.
		if err := sessions.RefreshPosts(userID); err != nil {
			slog.Error("Failed to refresh posts after create", slog.String("error", err.Error()))
		}

		response.WriteJSON(w, http.StatusCreated, map[string]string{"id": postID})
	}
}

// DeletePost handles deleting the viewer's own post
// @Summary Delete a post
// @Description Delete one of the viewer's posts; fails when the post still has comments
// @Tags posts
// @Param id path string true "Post ID"
// @Success 200 {object} response.Response "Post deleted successfully"
// @Failure 400 {object} response.Response "Bad request"
// @Failure 401 {object} response.Response "Unauthorized"
// @Failure 404 {object} response.Response "Post not found"
// @Failure 409 {object} response.Response "Post has comments"
// @Failure 500 {object} response.Response "Internal server error"
// @Security BearerAuth
// @Router /posts/{id} [delete]
func DeletePost(store storage.Store, sessions *session.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := middleware.GetUserIDFromContext(r.Context())
		if !ok {
			response.WriteJSON(w, http.StatusUnauthorized, response.GeneralError(errors.New("user not authenticated")))
			return
		}

		postID := r.PathValue("id")
		if postID == "" {
			response.WriteJSON(w, http.StatusBadRequest, response.GeneralError(errors.New("post ID is required")))
			return
		}

		err := store.DeletePost(postID, userID)
		if err != nil {
			if errors.Is(err, storage.ErrHasDependents) {
				response.WriteJSON(w, http.StatusConflict, response.GeneralError(
					errors.New("cannot delete a post that has comments")))
				return
			}
			if errors.Is(err, storage.ErrNotFound) {
				response.WriteJSON(w, http.StatusNotFound, response.GeneralError(errors.New("post not found")))
				return
			}
			slog.Error("Failed to delete post", slog.String("error", err.Error()), slog.String("post_id", postID))
			response.WriteJSON(w, http.StatusInternalServerError, response.GeneralError(err))
			return
		}

		if sess, ok := sessions.Get(userID); ok {
			sess.RemovePost(postID)
		}

		response.WriteJSON(w, http.StatusOK, response.RequestOK("Post deleted successfully", nil))
	}
}

// React handles toggling a reaction on a post
// @Summary Toggle a reaction
// @Description Toggle one of the four reaction kinds on a post; repeating the active kind retracts it
// @Tags posts
// @Accept json
// @Produce json
// @Param id path string true "Post ID"
// @Param reaction body types.ReactionRequest true "Reaction kind"
// @Success 200 {object} response.Response "Reaction applied"
// @Failure 400 {object} response.Response "Bad request"
// @Failure 401 {object} response.Response "Unauthorized"
// @Failure 404 {object} response.Response "Post not found"
// @Security BearerAuth
// @Router /posts/{id}/react [post]
func React(controller *pulse.Controller, sessions *session.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := middleware.GetUserIDFromContext(r.Context())
		if !ok {
			response.WriteJSON(w, http.StatusUnauthorized, response.GeneralError(errors.New("user not authenticated")))
			return
		}

		postID := r.PathValue("id")
		if postID == "" {
			response.WriteJSON(w, http.StatusBadRequest, response.GeneralError(errors.New("post ID is required")))
			return
		}

		var req types.ReactionRequest

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

		sess, err := sessions.GetOrInit(userID)
		if err != nil {
			response.WriteJSON(w, http.StatusInternalServerError, response.GeneralError(err))
			return
		}

		post, err := controller.ToggleReaction(sess, postID, req.Kind)
		if errors.Is(err, pulse.ErrPostNotFound) {
			response.WriteJSON(w, http.StatusNotFound, response.GeneralError(errors.New("post not found")))
			return
		}
		// Remote write failures do not roll the toggle back; the patched
		// post is returned either way and the controller has logged the
		// failure.
		response.WriteJSON(w, http.StatusOK, response.RequestOK("Reaction applied", post))
	}
}

// ToggleBookmark handles flipping a post's bookmark state
// @Summary Toggle a bookmark
// @Description Flip a post in or out of the viewer's bookmark set
// @Tags posts
// @Param id path string true "Post ID"
// @Success 200 {object} response.Response "Bookmark toggled"
// @Failure 400 {object} response.Response "Bad request"
// @Failure 401 {object} response.Response "Unauthorized"
// @Security BearerAuth
// @Router /posts/{id}/bookmark [post]
func ToggleBookmark(controller *pulse.Controller, sessions *session.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := middleware.GetUserIDFromContext(r.Context())
		if !ok {
			response.WriteJSON(w, http.StatusUnauthorized, response.GeneralError(errors.New("user not authenticated")))
			return
		}

		postID := r.PathValue("id")
		if postID == "" {
			response.WriteJSON(w, http.StatusBadRequest, response.GeneralError(errors.New("post ID is required")))
			return
		}

		sess, err := sessions.GetOrInit(userID)
		if err != nil {
			response.WriteJSON(w, http.StatusInternalServerError, response.GeneralError(err))
			return
		}

		bookmarked, err := controller.ToggleBookmark(sess, postID)
		if err != nil {
			slog.Error("Failed to persist bookmark toggle", slog.String("error", err.Error()), slog.String("post_id", postID))
		}

		response.WriteJSON(w, http.StatusOK, response.RequestOK("Bookmark toggled", map[string]bool{
			"bookmarked": bookmarked,
		}))
	}
}

// AddComment handles adding a comment to a post
// @Summary Add a comment
// @Description Add a text or voice comment to a post
// @Tags posts
// @Accept json
// @Produce json
// @Param id path string true "Post ID"
// @Param comment body types.CommentCreateRequest true "Comment content"
// @Success 201 {object} map[string]string "Comment created successfully"
// @Failure 400 {object} response.Response "Bad request"
// @Failure 401 {object} response.Response "Unauthorized"
// @Failure 500 {object} response.Response "Internal server error"
// @Security BearerAuth
// @Router /posts/{id}/comments [post]
func AddComment(store storage.Store, sessions *session.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := middleware.GetUserIDFromContext(r.Context())
		if !ok {
			response.WriteJSON(w, http.StatusUnauthorized, response.GeneralError(errors.New("user not authenticated")))
			return
		}

		postID := r.PathValue("id")
		if postID == "" {
			response.WriteJSON(w, http.StatusBadRequest, response.GeneralError(errors.New("post ID is required")))
			return
		}

		var req types.CommentCreateRequest

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

		commentID, err := store.AddComment(postID, userID, req.Content, req.IsVoice)
		if err != nil {
			response.WriteJSON(w, http.StatusInternalServerError, response.GeneralError(err))
			return
		}

		// Comments are not patched optimistically: refetch the feed so the
		// new comment arrives with its server-side id and timestamp.
		if err := sessions.RefreshPosts(userID); err != nil {
			slog.Error("Failed to refresh posts after comment", slog.String("error", err.Error()))
		}

		response.WriteJSON(w, http.StatusCreated, map[string]string{"id": commentID})
	}
}

// DeleteComment handles deleting the viewer's own comment
// @Summary Delete a comment
// @Tags posts
// @Param id path string true "Comment ID"
// @Success 200 {object} response.Response "Comment deleted successfully"
// @Failure 400 {object} response.Response "Bad request"
// @Failure 401 {object} response.Response "Unauthorized"
// @Failure 404 {object} response.Response "Comment not found"
// @Security BearerAuth
// @Router /comments/{id} [delete]
func DeleteComment(store storage.Store, sessions *session.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := middleware.GetUserIDFromContext(r.Context())
		if !ok {
			response.WriteJSON(w, http.StatusUnauthorized, response.GeneralError(errors.New("user not authenticated")))
			return
		}

		commentID := r.PathValue("id")
		if commentID == "" {
			response.WriteJSON(w, http.StatusBadRequest, response.GeneralError(errors.New("comment ID is required")))
			return
		}

		err := store.DeleteComment(commentID, userID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				response.WriteJSON(w, http.StatusNotFound, response.GeneralError(errors.New("comment not found")))
				return
			}
			slog.Error("Failed to delete comment", slog.String("error", err.Error()), slog.String("comment_id", commentID))
			response.WriteJSON(w, http.StatusInternalServerError, response.GeneralError(err))
			return
		}

		if err := sessions.RefreshPosts(userID); err != nil {
			slog.Error("Failed to refresh posts after comment delete", slog.String("error", err.Error()))
		}

		response.WriteJSON(w, http.StatusOK, response.RequestOK("Comment deleted successfully", nil))
	}
}
