package server

import (
	"fmt"
	"mime"
	"net/http"

	"github.com/Tyrowin/flux/internal/auth"
	"github.com/Tyrowin/flux/internal/domain"
	"github.com/Tyrowin/flux/internal/service"
)

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (s *Server) registerHandler(w http.ResponseWriter, r *http.Request) {
	var req auth.RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	u, err := s.users.Register(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newUserView(u))
}

// tokenHandler accepts OAuth2 password-form fields or a JSON body.
func (s *Server) tokenHandler(w http.ResponseWriter, r *http.Request) {
	creds, err := readCredentials(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	pair, err := s.users.Login(r.Context(), creds.Username, creds.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

func readCredentials(w http.ResponseWriter, r *http.Request) (credentials, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		var creds credentials
		err := decodeJSON(w, r, &creds)
		return creds, err
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := r.ParseForm(); err != nil {
		return credentials{}, fmt.Errorf("%w: invalid form body: %v", domain.ErrValidation, err)
	}
	creds := credentials{Username: r.PostForm.Get("username"), Password: r.PostForm.Get("password")}
	if creds.Username == "" || creds.Password == "" {
		return credentials{}, fmt.Errorf("%w: username and password are required", domain.ErrValidation)
	}
	return creds, nil
}

func (s *Server) refreshHandler(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	pair, err := s.users.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

func (s *Server) logoutHandler(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.users.Logout(r.Context(), req.RefreshToken); err != nil {
		writeError(w, r, err)
		return
	}
	writeMessage(w, "Successfully logged out")
}

func (s *Server) meHandler(w http.ResponseWriter, _ *http.Request, caller domain.User) {
	writeJSON(w, http.StatusOK, newUserView(caller))
}

func (s *Server) profileHandler(w http.ResponseWriter, r *http.Request) {
	p, err := s.users.GetProfile(r.Context(), r.PathValue("username"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newProfileView(p))
}

func (s *Server) updateProfileHandler(w http.ResponseWriter, r *http.Request, caller domain.User) {
	var upd service.ProfileUpdate
	if err := decodeJSON(w, r, &upd); err != nil {
		writeError(w, r, err)
		return
	}
	p, err := s.users.UpdateProfile(r.Context(), caller, upd)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newProfileView(p))
}
