package logging

import "log/slog"

// Domain identifiers

func Channel(id int64) slog.Attr {
	return slog.Int64("channel_id", id)
}

func User(name string) slog.Attr {
	return slog.String("user", name)
}

func Conn(id string) slog.Attr {
	return slog.String("conn_id", id)
}

func State(s string) slog.Attr {
	return slog.String("state", s)
}

func MessageID(id int64) slog.Attr {
	return slog.Int64("message_id", id)
}

// Request / tracing

func RequestID(id string) slog.Attr {
	return slog.String("request_id", id)
}

func TraceID(id string) slog.Attr {
	return slog.String("trace_id", id)
}

func RemoteAddr(addr string) slog.Attr {
	return slog.String("remote_addr", addr)
}

// Error handling

func Err(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "")
	}
	return slog.String("error", err.Error())
}
