package networking

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// WebsocketMessageHandler usage:
// * Read from GetReader chan until closed (which means the other party closed it)
// * Write into GetWriter chan until you want - if you close it than the websocket will be closed gracefully.
//
// NOTE: Messages are websocket.TextMessage, Twilio media streams are JSON only.
type WebsocketMessageHandler interface {
	// GetReader is where websocket.ReadMessage will produce messages into UNTIL the websocket is closed,
	// then the Reader chan will be CLOSED, i.e. do NOT close this channel yourself as panic is a guaranteed.
	GetReader() chan<- []byte
	// GetWriter is where you can write response - upon channel close, or invalid message produced,
	// the websocket will attempt to close gracefully.
	GetWriter() <-chan []byte
}

const writeTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Twilio does not send an Origin we could check
	},
}

func getClientIpAddress(r *http.Request) (clientIP string) {
	clientIP = r.RemoteAddr

	// Check for real IP in headers (useful if behind proxy)
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		clientIP = realIP
	} else if forwardedFor := r.Header.Get("X-Forwarded-For"); forwardedFor != "" {
		clientIP = forwardedFor
	}
	return
}

// NewWebsocketHandlerFunc takes the raw http reader / writer,
// and abstracts it into WebsocketMessageHandler which works at the chan []byte message level.
// createHandler is called once per connection with the request context.
func NewWebsocketHandlerFunc(createHandler func(ctx context.Context) WebsocketMessageHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clientIP := getClientIpAddress(r)
		log.Info().Str("client_ip", clientIP).Str("method", r.Method).Str("request_url", r.URL.String()).Msg("attempting to establish a websocket connection")

		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade already replied with an http error.
			log.Error().Err(err).Str("client_ip", clientIP).Msg("websocket upgrade failed")
			return
		}
		defer func() { errLog(ws.Close(), "websocket.Close()") }()

		handler := createHandler(r.Context())

		writerDone := make(chan struct{})
		go func() {
			defer close(writerDone)
			writeUntilChanClosed(ws, handler.GetWriter())
			// Keep draining so the handler never blocks on a dead connection.
			for range handler.GetWriter() {
			}
		}()

		readUntilClosed(ws, handler.GetReader())
		close(handler.GetReader())
		<-writerDone
		log.Info().Str("client_ip", clientIP).Msg("websocket connection done")
	}
}

func readUntilClosed(ws *websocket.Conn, reader chan<- []byte) {
	for {
		_, msg, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived, websocket.CloseGoingAway) {
				log.Info().Msg("websocket connection closed normally from the other party")
			} else {
				log.Error().Err(err).Msg("couldn't read message from websocket")
			}
			// Usually, nothing good will happen ever after a bad websocket message
			return
		}
		reader <- msg
	}
}

func writeUntilChanClosed(ws *websocket.Conn, writer <-chan []byte) {
	for msg := range writer {
		errLog(ws.SetWriteDeadline(time.Now().Add(writeTimeout)), "websocket.SetWriteDeadline")
		if err := ws.WriteMessage(websocket.TextMessage, msg); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				log.Info().Msg("websocket too late to write message, as already closed")
			} else {
				errLog(err, "ws.WriteMessage")
			}
			return
		}
	}

	// Channel closed by the user, attempt to close connection gracefully.
	// That will also end up the reader routine.
	log.Info().Msg("websocket writer channel closed, attempting to close connection gracefully")
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	errLog(ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeTimeout)), "websocket.CloseMessage gracefully")
	// The reader only stops once the other party acknowledges, do not wait forever.
	errLog(ws.SetReadDeadline(time.Now().Add(writeTimeout)), "websocket.SetReadDeadline")
}

// ListenAndServe runs handler on addr until ctx is done, then shuts the server down.
func ListenAndServe(ctx context.Context, addr string, handler http.Handler) error {
	server := &http.Server{Addr: addr, Handler: handler}
	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("http server listening")
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		return errors.Wrap(err, "http server failed")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	log.Info().Msg("http server shutting down")
	if err := server.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "http server shutdown")
	}
	return nil
}

func errLog(err error, what string) {
	if err != nil {
		log.Error().Err(err).Msg(what)
	}
}
