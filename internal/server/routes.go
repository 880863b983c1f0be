package server

import "net/http"

// SetupRoutes registers every application route on a new ServeMux.
func (s *Server) SetupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.WelcomeHandler)
	mux.HandleFunc("GET /healthz", s.HealthHandler)
	mux.HandleFunc("GET /test", TestPageHandler)

	mux.HandleFunc("POST /users/register", s.registerHandler)
	mux.HandleFunc("POST /users/token", s.tokenHandler)
	mux.HandleFunc("POST /users/refresh", s.refreshHandler)
	mux.HandleFunc("POST /users/logout", s.logoutHandler)
	mux.HandleFunc("GET /users/me", s.requireAuth(s.meHandler))
	mux.HandleFunc("PUT /users/me/profile", s.requireAuth(s.updateProfileHandler))
	mux.HandleFunc("GET /users/{username}/profile", s.profileHandler)

	mux.HandleFunc("POST /posts/{$}", s.requireAuth(s.createPostHandler))
	mux.HandleFunc("GET /posts/{$}", s.listPostsHandler)
	mux.HandleFunc("GET /posts/{id}", s.getPostHandler)
	mux.HandleFunc("PUT /posts/{id}", s.requireAuth(s.updatePostHandler))
	mux.HandleFunc("DELETE /posts/{id}", s.requireAuth(s.deletePostHandler))

	mux.HandleFunc("POST /chat/channels", s.requireAuth(s.createChannelHandler))
	mux.HandleFunc("GET /chat/channels", s.requireAuth(s.listChannelsHandler))
	mux.HandleFunc("GET /chat/channels/search", s.requireAuth(s.searchChannelsHandler))
	mux.HandleFunc("GET /chat/channels/{id}", s.requireAuth(s.channelDetailHandler))
	mux.HandleFunc("POST /chat/channels/{id}/messages", s.requireAuth(s.postMessageHandler))
	mux.HandleFunc("POST /chat/channels/{id}/join", s.requireAuth(s.joinChannelHandler))
	mux.HandleFunc("DELETE /chat/channels/{id}/leave", s.requireAuth(s.leaveChannelHandler))

	mux.HandleFunc("GET /chat/ws/{channel_id}", s.WebSocketHandler)

	return mux
}
