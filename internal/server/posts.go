package server

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/Tyrowin/flux/internal/domain"
	"github.com/Tyrowin/flux/internal/service"
)

func (s *Server) createPostHandler(w http.ResponseWriter, r *http.Request, caller domain.User) {
	var in service.PostInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	p, err := s.posts.Create(r.Context(), caller, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newPostView(p))
}

func (s *Server) listPostsHandler(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, r, err)
		return
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		writeError(w, r, err)
		return
	}
	posts, err := s.posts.List(r.Context(), limit, offset)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, postViews(posts))
}

func (s *Server) getPostHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	p, err := s.posts.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newPostView(p))
}

func (s *Server) updatePostHandler(w http.ResponseWriter, r *http.Request, caller domain.User) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var patch service.PostPatch
	if err := decodeJSON(w, r, &patch); err != nil {
		writeError(w, r, err)
		return
	}
	p, err := s.posts.Update(r.Context(), caller, id, patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newPostView(p))
}

func (s *Server) deletePostHandler(w http.ResponseWriter, r *http.Request, caller domain.User) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.posts.Delete(r.Context(), caller, id); err != nil {
		writeError(w, r, err)
		return
	}
	writeMessage(w, "Post deleted successfully")
}

// queryInt reads an optional integer query parameter; absent means 0.
func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", domain.ErrValidation, name)
	}
	return v, nil
}
