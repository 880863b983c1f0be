package server

import (
	"net/http"

	"github.com/Tyrowin/flux/internal/chat"
	"github.com/Tyrowin/flux/internal/domain"
	"github.com/Tyrowin/flux/internal/service"
)

func (s *Server) createChannelHandler(w http.ResponseWriter, r *http.Request, caller domain.User) {
	var in service.ChannelInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	ch, err := s.channels.Create(r.Context(), caller, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newChannelView(ch))
}

func (s *Server) listChannelsHandler(w http.ResponseWriter, r *http.Request, caller domain.User) {
	chs, err := s.channels.ListForUser(r.Context(), caller)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, channelViews(chs))
}

func (s *Server) searchChannelsHandler(w http.ResponseWriter, r *http.Request, caller domain.User) {
	chs, err := s.channels.Search(r.Context(), caller, r.URL.Query().Get("query"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, channelViews(chs))
}

func (s *Server) channelDetailHandler(w http.ResponseWriter, r *http.Request, caller domain.User) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	detail, err := s.channels.Detail(r.Context(), caller, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newChannelDetailView(detail))
}

func (s *Server) postMessageHandler(w http.ResponseWriter, r *http.Request, caller domain.User) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var in service.MessageInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	msg, err := s.channels.PostMessage(r.Context(), caller, id, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, chat.NewOutbound(msg))
}

func (s *Server) joinChannelHandler(w http.ResponseWriter, r *http.Request, caller domain.User) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.channels.Join(r.Context(), caller, id); err != nil {
		writeError(w, r, err)
		return
	}
	writeMessage(w, "Successfully joined the channel")
}

func (s *Server) leaveChannelHandler(w http.ResponseWriter, r *http.Request, caller domain.User) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.channels.Leave(r.Context(), caller, id); err != nil {
		writeError(w, r, err)
		return
	}
	writeMessage(w, "Successfully left the channel")
}
