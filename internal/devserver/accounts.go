// ABOUTME: Account handlers: login, register, profile, token refresh, logout
// ABOUTME: Passwords are bcrypt hashes; unknown emails still pay a hash comparison

package devserver

import (
	"context"
	"errors"
	"net/http"
	"net/mail"
	"strings"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"
)

const (
	minPasswordLength = 8

	detailBadCredentials = "No active account found with the given credentials"
	detailTokenInvalid   = "Given token not valid for any token type"
	detailTokenRevoked   = "Token is blacklisted"
)

// dummyHash keeps login timing uniform when the email is unknown.
const dummyHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

type userHandler func(w http.ResponseWriter, r *http.Request, user *User)

// authenticated requires a valid access token and resolves its user.
func (s *Server) authenticated(next userHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || raw == "" {
			s.writeDetail(w, http.StatusUnauthorized, "Authentication credentials were not provided.")
			return
		}
		claims, err := s.tokens.Verify(raw, KindAccess)
		if err != nil {
			s.writeDetail(w, http.StatusUnauthorized, detailTokenInvalid)
			return
		}
		userID, err := claims.UserID()
		if err != nil {
			s.writeDetail(w, http.StatusUnauthorized, detailTokenInvalid)
			return
		}
		user, err := s.store.UserByID(r.Context(), userID)
		if errors.Is(err, ErrNotFound) {
			s.writeDetail(w, http.StatusUnauthorized, "User not found")
			return
		}
		if err != nil {
			s.writeInternal(w, "loading user", err)
			return
		}
		next(w, r, user)
	}
}

type authPayload struct {
	User    userJSON `json:"user"`
	Access  string   `json:"access"`
	Refresh string   `json:"refresh"`
}

func (s *Server) issueAuth(user *User) (*authPayload, error) {
	access, refresh, err := s.tokens.IssuePair(user.ID)
	if err != nil {
		return nil, err
	}
	return &authPayload{User: toUserJSON(user), Access: access, Refresh: refresh}, nil
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeMessage(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	if req.Email == "" || req.Password == "" {
		fields := FieldErrors{}
		if req.Email == "" {
			fields.Add("email", "This field may not be blank.")
		}
		if req.Password == "" {
			fields.Add("password", "This field may not be blank.")
		}
		s.writeMessage(w, http.StatusBadRequest, "Email and password are required", fields)
		return
	}

	user, err := s.store.UserByEmail(r.Context(), req.Email)
	if err != nil {
		_ = bcrypt.CompareHashAndPassword([]byte(dummyHash), []byte(req.Password))
		if !errors.Is(err, ErrNotFound) {
			s.writeInternal(w, "loading user", err)
			return
		}
		s.writeDetail(w, http.StatusUnauthorized, detailBadCredentials)
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		s.writeDetail(w, http.StatusUnauthorized, detailBadCredentials)
		return
	}

	payload, err := s.issueAuth(user)
	if err != nil {
		s.writeInternal(w, "issuing tokens", err)
		return
	}
	s.logger.Info("user logged in", "user_id", user.ID)
	s.writeJSON(w, http.StatusOK, payload)
}

type registerRequest struct {
	Username        string `json:"username"`
	Email           string `json:"email"`
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"password_confirm"`
}

func (req *registerRequest) validate() FieldErrors {
	fields := FieldErrors{}
	if strings.TrimSpace(req.Username) == "" {
		fields.Add("username", "This field may not be blank.")
	}
	if req.Email == "" {
		fields.Add("email", "This field may not be blank.")
	} else if _, err := mail.ParseAddress(req.Email); err != nil {
		fields.Add("email", "Enter a valid email address.")
	}
	if utf8.RuneCountInString(req.Password) < minPasswordLength {
		fields.Add("password", "This password is too short. It must contain at least 8 characters.")
	}
	if req.Password != req.PasswordConfirm {
		fields.Add("password_confirm", "Password fields didn't match.")
	}
	if len(fields) == 0 {
		return nil
	}
	return fields
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeMessage(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	if fields := req.validate(); fields != nil {
		s.writeMessage(w, http.StatusBadRequest, "Registration failed", fields)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		s.writeInternal(w, "hashing password", err)
		return
	}
	user := &User{
		Username:     strings.TrimSpace(req.Username),
		Email:        strings.TrimSpace(req.Email),
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		PasswordHash: string(hash),
		CreatedAt:    s.now(),
	}
	switch err := s.store.CreateUser(r.Context(), user); {
	case errors.Is(err, ErrEmailTaken):
		s.writeMessage(w, http.StatusBadRequest, "Registration failed",
			FieldErrors{"email": {"A user with that email already exists."}})
		return
	case errors.Is(err, ErrUsernameTaken):
		s.writeMessage(w, http.StatusBadRequest, "Registration failed",
			FieldErrors{"username": {"A user with that username already exists."}})
		return
	case err != nil:
		s.writeInternal(w, "creating user", err)
		return
	}

	payload, err := s.issueAuth(user)
	if err != nil {
		s.writeInternal(w, "issuing tokens", err)
		return
	}
	s.logger.Info("user registered", "user_id", user.ID, "username", user.Username)
	s.writeData(w, http.StatusCreated, payload)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request, user *User) {
	s.writeData(w, http.StatusOK, toUserJSON(user))
}

type refreshBody struct {
	Refresh string `json:"refresh"`
}

// verifyRefresh validates a refresh token and checks it was not revoked.
func (s *Server) verifyRefresh(ctx context.Context, raw string) (*Claims, string, error) {
	claims, err := s.tokens.Verify(raw, KindRefresh)
	if err != nil {
		return nil, detailTokenInvalid, err
	}
	revoked, err := s.store.TokenRevoked(ctx, claims.ID)
	if err != nil {
		return nil, "", err
	}
	if revoked {
		return nil, detailTokenRevoked, ErrInvalidToken
	}
	return claims, "", nil
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshBody
	if err := decodeJSON(w, r, &req); err != nil || req.Refresh == "" {
		s.writeMessage(w, http.StatusBadRequest, "Refresh token is required",
			FieldErrors{"refresh": {"This field is required."}})
		return
	}
	claims, detail, err := s.verifyRefresh(r.Context(), req.Refresh)
	if err != nil {
		if detail == "" {
			s.writeInternal(w, "verifying refresh token", err)
			return
		}
		s.writeDetail(w, http.StatusUnauthorized, detail)
		return
	}
	userID, err := claims.UserID()
	if err != nil {
		s.writeDetail(w, http.StatusUnauthorized, detailTokenInvalid)
		return
	}
	access, err := s.tokens.Issue(userID, KindAccess)
	if err != nil {
		s.writeInternal(w, "issuing access token", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"access": access})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req refreshBody
	if err := decodeJSON(w, r, &req); err != nil || req.Refresh == "" {
		s.writeMessage(w, http.StatusBadRequest, "Refresh token is required",
			FieldErrors{"refresh": {"This field is required."}})
		return
	}
	claims, detail, err := s.verifyRefresh(r.Context(), req.Refresh)
	if err != nil {
		if detail == "" {
			s.writeInternal(w, "verifying refresh token", err)
			return
		}
		s.writeDetail(w, http.StatusBadRequest, "Token is invalid or expired")
		return
	}
	if err := s.store.RevokeToken(r.Context(), claims.ID, claims.ExpiresAt.Time); err != nil {
		s.writeInternal(w, "revoking token", err)
		return
	}
	s.logger.Info("refresh token revoked", "subject", claims.Subject)
	s.writeJSON(w, http.StatusOK, map[string]string{"message": "Successfully logged out"})
}
