package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Tyrowin/flux/internal/logging"
)

const healthTimeout = 2 * time.Second

// WelcomeHandler answers the API root.
func (s *Server) WelcomeHandler(w http.ResponseWriter, _ *http.Request) {
	writeMessage(w, "Welcome to the Flux API")
}

// HealthHandler reports liveness and, when a database is wired, its
// reachability.
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	if s.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()
		if err := s.health.Ping(ctx); err != nil {
			logging.FromContext(r.Context()).Error("http - health - database unreachable", logging.Err(err))
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = fmt.Fprint(w, "Flux server is degraded: database unreachable")
			return
		}
	}
	_, _ = fmt.Fprint(w, "Flux server is running!")
}

// WebSocketHandler hands a channel connection to the chat handler. The
// access token travels in the query string because browsers cannot set
// headers on websocket requests.
func (s *Server) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	channelID, err := pathID(r, "channel_id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.chat.ServeChannel(w, r, channelID, r.URL.Query().Get("token"))
}

// TestPageHandler serves an HTML page for trying a channel connection from
// the browser.
func TestPageHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	if _, err := fmt.Fprint(w, testPage); err != nil {
		logging.FromContext(r.Context()).Warn("http - test page - write failed", logging.Err(err))
	}
}

const testPage = `<!DOCTYPE html>
<html>
<head>
    <title>Flux WebSocket Test</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        #messages {
            border: 1px solid #ccc;
            height: 300px;
            padding: 10px;
            overflow-y: scroll;
            margin: 10px 0;
            background-color: #f9f9f9;
        }
        input[type="text"] {
            width: 300px;
            padding: 5px;
            margin-right: 10px;
        }
        input.short { width: 80px; }
        button {
            padding: 5px 15px;
            background-color: #007cba;
            color: white;
            border: none;
            cursor: pointer;
        }
        button:hover { background-color: #005a87; }
        .status {
            margin: 10px 0;
            padding: 5px;
            border-radius: 3px;
        }
        .connected { background-color: #d4edda; color: #155724; }
        .disconnected { background-color: #f8d7da; color: #721c24; }
    </style>
</head>
<body>
    <h1>Flux WebSocket Test</h1>

    <div id="status" class="status disconnected">Disconnected</div>

    <div>
        <input type="text" id="channelInput" class="short" placeholder="Channel id">
        <input type="text" id="tokenInput" placeholder="Access token">
        <button id="connectButton" onclick="toggleConnection()">Connect</button>
    </div>
    <div style="margin-top: 10px">
        <input type="text" id="messageInput" placeholder="Type a message..." disabled>
        <button id="sendButton" onclick="sendMessage()" disabled>Send</button>
    </div>

    <div id="messages"></div>

    <script>
        let ws = null;
        const messagesDiv = document.getElementById('messages');
        const channelInput = document.getElementById('channelInput');
        const tokenInput = document.getElementById('tokenInput');
        const messageInput = document.getElementById('messageInput');
        const sendButton = document.getElementById('sendButton');
        const connectButton = document.getElementById('connectButton');
        const statusDiv = document.getElementById('status');

        function addMessage(text, color) {
            const el = document.createElement('div');
            el.style.margin = '5px 0';
            el.style.padding = '3px';
            el.style.color = color || 'gray';
            el.textContent = text;
            messagesDiv.appendChild(el);
            messagesDiv.scrollTop = messagesDiv.scrollHeight;
        }

        function updateStatus(connected) {
            statusDiv.textContent = connected ? 'Connected' : 'Disconnected';
            statusDiv.className = 'status ' + (connected ? 'connected' : 'disconnected');
            messageInput.disabled = !connected;
            sendButton.disabled = !connected;
            connectButton.textContent = connected ? 'Disconnect' : 'Connect';
        }

        function connect() {
            const scheme = location.protocol === 'https:' ? 'wss://' : 'ws://';
            const url = scheme + location.host + '/chat/ws/' + encodeURIComponent(channelInput.value.trim()) +
                '?token=' + encodeURIComponent(tokenInput.value.trim());
            ws = new WebSocket(url);

            ws.onopen = function() {
                addMessage('Connected to channel ' + channelInput.value.trim());
                updateStatus(true);
            };

            ws.onmessage = function(event) {
                try {
                    const msg = JSON.parse(event.data);
                    addMessage('[' + msg.created_at + '] ' + msg.user + ': ' + msg.content, 'green');
                } catch (e) {
                    addMessage(event.data, 'green');
                }
            };

            ws.onclose = function(event) {
                addMessage('Connection closed (' + event.code + (event.reason ? ': ' + event.reason : '') + ')');
                updateStatus(false);
                ws = null;
            };

            ws.onerror = function() {
                addMessage('Connection error');
            };
        }

        function toggleConnection() {
            if (ws && ws.readyState === WebSocket.OPEN) {
                ws.close();
            } else {
                connect();
            }
        }

        function sendMessage() {
            const content = messageInput.value.trim();
            if (content && ws && ws.readyState === WebSocket.OPEN) {
                ws.send(JSON.stringify({content: content}));
                messageInput.value = '';
            }
        }

        messageInput.addEventListener('keypress', function(e) {
            if (e.key === 'Enter') {
                sendMessage();
            }
        });
    </script>
</body>
</html>`
