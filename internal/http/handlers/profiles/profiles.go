package profiles

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/pulseout/pulse-service/internal/http/middleware"
	"github.com/pulseout/pulse-service/internal/prefs"
	"github.com/pulseout/pulse-service/internal/pulse"
	"github.com/pulseout/pulse-service/internal/session"
	"github.com/pulseout/pulse-service/internal/storage"
	"github.com/pulseout/pulse-service/internal/types"
	"github.com/pulseout/pulse-service/internal/utils/jwt"
	"github.com/pulseout/pulse-service/internal/utils/password"
	"github.com/pulseout/pulse-service/internal/utils/response"
)

// SignUp handles user registration
// @Summary Register a new user
// @Description Register a new user account
// @Tags profiles
// @Accept json
// @Produce json
// @Param user body types.SignUpRequest true "User registration details"
// @Success 201 {object} map[string]string "User created successfully"
// @Failure 400 {object} response.Response "Bad request"
// @Failure 409 {object} response.Response "Account already exists"
// @Failure 500 {object} response.Response "Internal server error"
// @Router /signup [post]
func SignUp(store storage.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var signupReq types.SignUpRequest

		err := json.NewDecoder(r.Body).Decode(&signupReq)
		if err != nil {
			response.WriteJSON(w, http.StatusBadRequest, response.GeneralError(err))
			return
		}

		// Validate request
		validate := validator.New()
		err = validate.Struct(signupReq)
		if err != nil {
			if ve, ok := err.(validator.ValidationErrors); ok {
				response.WriteJSON(w, http.StatusBadRequest, response.ValidationError(ve))
				return
			}
			response.WriteJSON(w, http.StatusBadRequest, response.GeneralError(err))
			return
		}

		hashedPassword, err := password.HashPassword(signupReq.Password)
		if err != nil {
			response.WriteJSON(w, http.StatusInternalServerError, response.GeneralError(errors.New("failed to hash password")))
			return
		}

		userID, err := store.CreateUser(signupReq.Email, hashedPassword, signupReq.Name, signupReq.Handle)
		if err != nil {
			if errors.Is(err, storage.ErrDuplicate) {
				response.WriteJSON(w, http.StatusConflict, response.GeneralError(
					errors.New("an account with this email or handle already exists")))
				return
			}
			response.WriteJSON(w, http.StatusInternalServerError, response.GeneralError(err))
			return
		}
		slog.Info("User created with ID:", slog.String("user_id", userID))

		response.WriteJSON(w, http.StatusCreated, map[string]string{
			"id": userID,
		})
	}
}

// Login handles user authentication
// @Summary Authenticate a user
// @Description Authenticate a user, initialize their session and return a JWT token
// @Tags profiles
// @Accept json
// @Produce json
// @Param user body types.SignInRequest true "User login details"
// @Success 200 {object} map[string]string "User authenticated successfully with token"
// @Failure 400 {object} response.Response "Bad request"
// @Failure 401 {object} response.Response "Unauthorized"
// @Router /login [post]
func Login(store storage.Store, sessions *session.Manager, JWTSecret string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var signinReq types.SignInRequest

		err := json.NewDecoder(r.Body).Decode(&signinReq)
		if err != nil {
			response.WriteJSON(w, http.StatusBadRequest, response.GeneralError(err))
			return
		}

		// Validate request
		validate := validator.New()
		err = validate.Struct(signinReq)
		if err != nil {
			if ve, ok := err.(validator.ValidationErrors); ok {
				response.WriteJSON(w, http.StatusBadRequest, response.ValidationError(ve))
				return
			}
			response.WriteJSON(w, http.StatusBadRequest, response.GeneralError(err))
			return
		}

		// Authentication logic
		userID, hashedPassword, err := store.GetUserByEmail(signinReq.Email)
		if err != nil {
			response.WriteJSON(w, http.StatusUnauthorized, response.GeneralError(errors.New("invalid email or password")))
			return
		}

		correctPassword := password.CheckPasswordHash(signinReq.Password, hashedPassword)
		if !correctPassword {
			response.WriteJSON(w, http.StatusUnauthorized, response.GeneralError(errors.New("invalid email or password")))
			return
		}
		token, err := jwt.CreateToken(userID, JWTSecret)
		if err != nil {
			response.WriteJSON(w, http.StatusInternalServerError, response.GeneralError(errors.New("failed to generate token")))
			return
		}

		// Load the full snapshot now so the first feed request is served
		// from cache. A failed load is not fatal: the next authenticated
		// request initializes the session lazily.
		if _, err := sessions.Init(userID); err != nil {
			slog.Error("Failed to initialize session on login", slog.String("error", err.Error()), slog.String("user_id", userID))
		}

		response.WriteJSON(w, http.StatusOK, map[string]string{
			"user_id": userID,
			"token":   token,
		})
	}
}

// Logout tears down the user's session
// @Summary Log out
// @Description Discard the user's session cache
// @Tags profiles
// @Success 200 {object} response.Response "Logged out successfully"
// @Failure 401 {object} response.Response "Unauthorized"
// @Security BearerAuth
// @Router /logout [post]
func Logout(sessions *session.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := middleware.GetUserIDFromContext(r.Context())
		if !ok {
			response.WriteJSON(w, http.StatusUnauthorized, response.GeneralError(errors.New("user not authenticated")))
			return
		}

		sessions.Teardown(userID)

		response.WriteJSON(w, http.StatusOK, response.RequestOK("Logged out successfully", nil))
	}
}

// Me returns the viewer's cached profile
// @Summary Get the current user
// @Description Get the viewer's cached profile including follows, bookmarks and the remaining daily ping budget
// @Tags profiles
// @Produce json
// @Success 200 {object} response.Response "Profile fetched successfully"
// @Failure 401 {object} response.Response "Unauthorized"
// @Failure 500 {object} response.Response "Internal server error"
// @Security BearerAuth
// @Router /me [get]
func Me(sessions *session.Manager, rlc *middleware.RateLimitConfig) http.HandlerFunc {
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

		user := sess.User()
		user.DailyPingsRemaining = rlc.Remaining(r, userID, "pings")

		response.WriteJSON(w, http.StatusOK, response.RequestOK("Profile fetched successfully", user))
	}
}

// ToggleFollow handles flipping a follow relationship
// @Summary Toggle following a user
// @Description Follow the user when not followed, unfollow otherwise
// @Tags profiles
// @Param user_id path string true "User ID to toggle"
// @Success 200 {object} response.Response "Follow toggled"
// @Failure 400 {object} response.Response "Bad request"
// @Failure 401 {object} response.Response "Unauthorized"
// @Security BearerAuth
// @Router /profiles/{user_id}/follow [post]
func ToggleFollow(controller *pulse.Controller, sessions *session.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := middleware.GetUserIDFromContext(r.Context())
		if !ok {
			response.WriteJSON(w, http.StatusUnauthorized, response.GeneralError(errors.New("user not authenticated")))
			return
		}

		targetID := r.PathValue("user_id")
		if targetID == "" {
			response.WriteJSON(w, http.StatusBadRequest, response.GeneralError(errors.New("user_id is required")))
			return
		}
		if targetID == userID {
			response.WriteJSON(w, http.StatusBadRequest, response.GeneralError(errors.New("cannot follow yourself")))
			return
		}

		sess, err := sessions.GetOrInit(userID)
		if err != nil {
			response.WriteJSON(w, http.StatusInternalServerError, response.GeneralError(err))
			return
		}

		following, err := controller.ToggleFollow(sess, targetID)
		if err != nil {
			slog.Error("Failed to persist follow toggle", slog.String("error", err.Error()), slog.String("target_id", targetID))
		}

		response.WriteJSON(w, http.StatusOK, response.RequestOK("Follow toggled", map[string]bool{
			"following": following,
		}))
	}
}

// Search handles profile search
// @Summary Search profiles
// @Description Search profiles by name or handle; a failed search degrades to an empty result set
// @Tags profiles
// @Produce json
// @Param q query string true "Search query"
// @Param limit query int false "Maximum results" default(10)
// @Success 200 {object} response.Response "Search results"
// @Failure 401 {object} response.Response "Unauthorized"
// @Security BearerAuth
// @Router /profiles/search [get]
func Search(store storage.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, ok := middleware.GetUserIDFromContext(r.Context())
		if !ok {
			response.WriteJSON(w, http.StatusUnauthorized, response.GeneralError(errors.New("user not authenticated")))
			return
		}

		query := r.URL.Query().Get("q")
		if query == "" {
			response.WriteJSON(w, http.StatusOK, response.RequestOK("Search results", []types.User{}))
			return
		}

		limit := 10
		if l := r.URL.Query().Get("limit"); l != "" {
			if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 100 {
				limit = parsed
			}
		}

		results, err := store.SearchProfiles(query, limit)
		if err != nil {
			// Search is best-effort: log and return an empty set rather
			// than failing the request.
			slog.Error("Profile search failed", slog.String("error", err.Error()), slog.String("query", query))
			results = []types.User{}
		}

		response.WriteJSON(w, http.StatusOK, response.RequestOK("Search results", results))
	}
}

// UpdateProfile handles editing the viewer's profile
// @Summary Update the current user's profile
// @Description Update name, bio, avatar, arbiter flag and cultural shelf
// @Tags profiles
// @Accept json
// @Produce json
// @Param profile body types.ProfileUpdateRequest true "Profile fields"
// @Success 200 {object} response.Response "Profile updated successfully"
// @Failure 400 {object} response.Response "Bad request"
// @Failure 401 {object} response.Response "Unauthorized"
// @Failure 500 {object} response.Response "Internal server error"
// @Security BearerAuth
// @Router /me [put]
func UpdateProfile(store storage.Store, sessions *session.Manager, preferences *prefs.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := middleware.GetUserIDFromContext(r.Context())
		if !ok {
			response.WriteJSON(w, http.StatusUnauthorized, response.GeneralError(errors.New("user not authenticated")))
			return
		}

		var req types.ProfileUpdateRequest

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

		// The shelf copy is written first so it survives even when the
		// profile write fails.
		if err := preferences.SaveShelf(r.Context(), userID, req.Shelf); err != nil {
			slog.Error("Failed to save shelf copy", slog.String("error", err.Error()), slog.String("user_id", userID))
		}

		if err := store.UpdateProfile(userID, req.Name, req.Bio, req.Avatar, req.IsArbiter); err != nil {
			response.WriteJSON(w, http.StatusInternalServerError, response.GeneralError(err))
			return
		}

		if sess, ok := sessions.Get(userID); ok {
			sess.PatchUser(func(u *types.User) {
				u.Name = req.Name
				u.Bio = req.Bio
				u.Avatar = req.Avatar
				u.IsArbiter = req.IsArbiter
				u.Shelf = req.Shelf
			})
		}

		response.WriteJSON(w, http.StatusOK, response.RequestOK("Profile updated successfully", nil))
	}
}

// SetVoiceBio marks the viewer's profile as having a voice bio
// @Summary Record a voice bio
// @Tags profiles
// @Success 200 {object} response.Response "Voice bio recorded"
// @Failure 401 {object} response.Response "Unauthorized"
// @Failure 500 {object} response.Response "Internal server error"
// @Security BearerAuth
// @Router /me/voice-bio [post]
func SetVoiceBio(store storage.Store, sessions *session.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := middleware.GetUserIDFromContext(r.Context())
		if !ok {
			response.WriteJSON(w, http.StatusUnauthorized, response.GeneralError(errors.New("user not authenticated")))
			return
		}

		if err := store.SetVoiceBio(userID); err != nil {
			response.WriteJSON(w, http.StatusInternalServerError, response.GeneralError(err))
			return
		}

		if sess, ok := sessions.Get(userID); ok {
			sess.PatchUser(func(u *types.User) {
				u.HasVoiceBio = true
			})
		}

		response.WriteJSON(w, http.StatusOK, response.RequestOK("Voice bio recorded", nil))
	}
}

// GetPrefs returns the viewer's onboarding flags
// @Summary Get onboarding preferences
// @Description Get the community pact and tour completion flags
// @Tags profiles
// @Produce json
// @Success 200 {object} response.Response "Preferences fetched"
// @Failure 401 {object} response.Response "Unauthorized"
// @Failure 500 {object} response.Response "Internal server error"
// @Security BearerAuth
// @Router /me/prefs [get]
func GetPrefs(preferences *prefs.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := middleware.GetUserIDFromContext(r.Context())
		if !ok {
			response.WriteJSON(w, http.StatusUnauthorized, response.GeneralError(errors.New("user not authenticated")))
			return
		}

		pact, err := preferences.HasAcceptedPact(r.Context(), userID)
		if err != nil {
			response.WriteJSON(w, http.StatusInternalServerError, response.GeneralError(err))
			return
		}
		tour, err := preferences.HasCompletedTour(r.Context(), userID)
		if err != nil {
			response.WriteJSON(w, http.StatusInternalServerError, response.GeneralError(err))
			return
		}

		response.WriteJSON(w, http.StatusOK, response.RequestOK("Preferences fetched", map[string]bool{
			"pact_accepted":  pact,
			"tour_completed": tour,
		}))
	}
}

// AcceptPact records the viewer's acceptance of the community pact
// @Summary Accept the community pact
// @Tags profiles
// @Success 200 {object} response.Response "Pact accepted"
// @Failure 401 {object} response.Response "Unauthorized"
// @Failure 500 {object} response.Response "Internal server error"
// @Security BearerAuth
// @Router /me/pact [post]
func AcceptPact(preferences *prefs.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := middleware.GetUserIDFromContext(r.Context())
		if !ok {
			response.WriteJSON(w, http.StatusUnauthorized, response.GeneralError(errors.New("user not authenticated")))
			return
		}

		if err := preferences.AcceptPact(r.Context(), userID); err != nil {
			response.WriteJSON(w, http.StatusInternalServerError, response.GeneralError(err))
			return
		}

		response.WriteJSON(w, http.StatusOK, response.RequestOK("Pact accepted", nil))
	}
}

// CompleteTour records that the viewer finished the onboarding tour
// @Summary Complete the onboarding tour
// @Tags profiles
// @Success 200 {object} response.Response "Tour completed"
// @Failure 401 {object} response.Response "Unauthorized"
// @Failure 500 {object} response.Response "Internal server error"
// @Security BearerAuth
// @Router /me/tour [post]
func CompleteTour(preferences *prefs.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := middleware.GetUserIDFromContext(r.Context())
		if !ok {
			response.WriteJSON(w, http.StatusUnauthorized, response.GeneralError(errors.New("user not authenticated")))
			return
		}

		if err := preferences.CompleteTour(r.Context(), userID); err != nil {
			response.WriteJSON(w, http.StatusInternalServerError, response.GeneralError(err))
			return
		}

		response.WriteJSON(w, http.StatusOK, response.RequestOK("Tour completed", nil))
	}
}
