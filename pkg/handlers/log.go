package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"mercator-hq/workbench/pkg/clientlog"
	"mercator-hq/workbench/pkg/jsonrpc"
	"mercator-hq/workbench/pkg/security/auth"
	"mercator-hq/workbench/pkg/uri"
)

// LogMethod is the only method accepted by the log handler.
const LogMethod = "log"

// maxLogBody bounds a posted log message.
const maxLogBody = 64 << 10

// LogHandler ingests log messages posted by the browser client. Params are
// [level, message] where level is 0 (error), 1 (warning) or 2 (info).
// Every message is written to the server log and, when a store is
// configured, appended to it.
type LogHandler struct {
	store  clientlog.Store
	logger *slog.Logger
	now    func() time.Time
}

// NewLogHandler returns a LogHandler. store may be nil.
func NewLogHandler(store clientlog.Store, logger *slog.Logger) *LogHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogHandler{
		store:  store,
		logger: logger.With("component", "handlers.log"),
		now:    time.Now,
	}
}

// ServeBlocking implements uri.BlockingHandler.
func (h *LogHandler) ServeBlocking(req *http.Request, resp *uri.Response) {
	rpc, rpcErr := jsonrpc.ReadRequest(req, maxLogBody)
	if rpcErr != nil {
		jsonrpc.WriteError(resp, http.StatusBadRequest, nil, rpcErr)
		return
	}
	if rpc.Method != LogMethod {
		jsonrpc.WriteError(resp, http.StatusOK, rpc.ID, jsonrpc.NewError(jsonrpc.MethodNotFound, "unknown method: "+rpc.Method))
		return
	}

	var params []json.RawMessage
	if err := rpc.UnmarshalParams(&params); err != nil {
		jsonrpc.WriteError(resp, http.StatusOK, rpc.ID, err)
		return
	}
	var (
		level   clientlog.Level
		message string
	)
	if len(params) != 2 ||
		json.Unmarshal(params[0], &level) != nil ||
		json.Unmarshal(params[1], &message) != nil ||
		!level.Valid() {
		jsonrpc.WriteError(resp, http.StatusOK, rpc.ID, jsonrpc.NewError(jsonrpc.InvalidParams, "expected [level, message]"))
		return
	}

	id, _ := auth.IdentityFrom(req.Context())
	entry := clientlog.NewEntry(id.User, level, message, h.now())
	entry.ClientID = rpc.ClientID
	entry.UserAgent = req.UserAgent()

	h.logger.Log(req.Context(), slogLevel(level), "client log",
		"client_level", level.String(),
		"message", message,
		"client_id", entry.ClientID,
	)

	if h.store != nil {
		ctx, cancel := context.WithTimeout(req.Context(), 5*time.Second)
		defer cancel()
		if err := h.store.Append(ctx, entry); err != nil {
			h.logger.WarnContext(req.Context(), "failed to store client log entry", "error", err)
		}
	}

	jsonrpc.WriteResult(resp, rpc.ID, true)
}

func slogLevel(l clientlog.Level) slog.Level {
	switch l {
	case clientlog.LevelError:
		return slog.LevelError
	case clientlog.LevelWarning:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}
