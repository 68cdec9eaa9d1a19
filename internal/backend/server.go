// Package backend serves the chat channel: it answers menu questions by
// streaming text frames terminated by the end-of-answer sentinel.
package backend

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/xiaot623/gogo/menuchat/internal/backend/answer"
	"github.com/xiaot623/gogo/menuchat/internal/backend/policy"
	"github.com/xiaot623/gogo/menuchat/internal/config"
	"github.com/xiaot623/gogo/menuchat/internal/protocol"
)

// Retriever finds menu context for a question.
type Retriever interface {
	FindContext(ctx context.Context, question string, limit int) (string, error)
}

// Evaluator admits or refuses a question.
type Evaluator interface {
	Evaluate(ctx context.Context, in policy.Input) (string, string, error)
}

// Deps are the collaborators of a Server.
type Deps struct {
	Retriever Retriever
	Policy    Evaluator
	Answerer  answer.Answerer
}

// Server handles chat channels.
type Server struct {
	cfg      config.BackendConfig
	deps     Deps
	hub      *Hub
	echo     *echo.Echo
	upgrader websocket.Upgrader
	logger   zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// NewServer creates a chat backend server.
func NewServer(cfg config.BackendConfig, deps Deps, logger zerolog.Logger) *Server {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.ReadTimeout <= cfg.PingInterval {
		cfg.ReadTimeout = 2 * cfg.PingInterval
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.ContextLimit <= 0 {
		cfg.ContextLimit = 3
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:  cfg,
		deps: deps,
		hub:  NewHub(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// The ordering UI is served from another origin in development.
				return true
			},
		},
		logger: logger.With().Str("component", "backend").Logger(),
		ctx:    ctx,
		cancel: cancel,
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			s.logger.Debug().Str("uri", v.URI).Int("status", v.Status).Dur("latency", v.Latency).Msg("request")
			return nil
		},
	}))
	e.GET(protocol.DefaultPath, s.HandleWebSocket)
	e.GET("/health", s.handleHealth)
	s.echo = e

	return s
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start listens on addr until Shutdown.
func (s *Server) Start(addr string) error {
	s.logger.Info().Str("addr", addr).Msg("chat backend listening")
	return s.echo.Start(addr)
}

// Shutdown closes every chat channel and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancel()
	err := s.echo.Shutdown(ctx)
	s.hub.CloseAll()
	return err
}

// ConnectionCount returns the number of open chat channels.
func (s *Server) ConnectionCount() int {
	return s.hub.GetConnectionCount()
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":      "healthy",
		"connections": s.hub.GetConnectionCount(),
	})
}

// HandleWebSocket upgrades the request and starts the connection pumps.
func (s *Server) HandleWebSocket(c echo.Context) error {
	ws, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to upgrade websocket")
		return err
	}

	conn := s.hub.NewConnection(s.ctx, ws)
	s.hub.Register(conn)
	if s.cfg.MaxMessageSize > 0 {
		ws.SetReadLimit(s.cfg.MaxMessageSize)
	}
	s.logger.Info().Str("conn_id", conn.ID).Msg("client connected")

	go s.writePump(conn)
	go s.answerLoop(conn)
	go s.readPump(conn)
	return nil
}

// readPump reads question frames and queues them for answering.
func (s *Server) readPump(conn *Connection) {
	defer func() {
		if s.hub.Unregister(conn) {
			s.logger.Info().Str("conn_id", conn.ID).Msg("client disconnected")
		}
		conn.Close()
	}()

	conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	conn.Conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		return nil
	})

	for {
		_, message, err := conn.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn().Err(err).Str("conn_id", conn.ID).Msg("websocket read error")
			}
			return
		}

		q, err := protocol.DecodeQuestion(message)
		if err != nil {
			s.logger.Debug().Err(err).Str("conn_id", conn.ID).Msg("invalid frame skipped")
			continue
		}
		if q.Empty() {
			continue
		}

		select {
		case conn.questions <- q.Question:
		default:
			s.logger.Warn().Str("conn_id", conn.ID).Msg("too many pending questions, dropping")
		}
	}
}

// writePump writes queued frames and keeps the channel alive with pings.
func (s *Server) writePump(conn *Connection) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case message := <-conn.Send:
			conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				s.logger.Warn().Err(err).Str("conn_id", conn.ID).Msg("failed to write message")
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-conn.Done():
			conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// answerLoop answers questions one at a time, in arrival order.
func (s *Server) answerLoop(conn *Connection) {
	for {
		select {
		case <-conn.Done():
			return
		case question := <-conn.questions:
			if err := s.answer(conn, question); err != nil {
				if !errors.Is(err, context.Canceled) {
					s.logger.Warn().Err(err).Str("conn_id", conn.ID).Msg("answer aborted")
				}
				return
			}
		}
	}
}

// answer streams the reply to one question followed by the sentinel.
func (s *Server) answer(conn *Connection, question string) error {
	ctx := conn.ctx
	emit := func(chunk string) error { return s.emit(conn, chunk) }
	log := s.logger.With().Str("conn_id", conn.ID).Logger()

	if s.deps.Policy != nil {
		decision, reason, err := s.deps.Policy.Evaluate(ctx, policy.Input{
			Question:  question,
			MaxLength: s.cfg.MaxQuestionLen,
		})
		if err != nil {
			log.Error().Err(err).Msg("policy evaluation failed")
			decision, reason = policy.DecisionDeny, "policy error"
		}
		if decision != policy.DecisionAllow {
			log.Info().Str("reason", reason).Msg("question refused")
			if err := emit(answer.Refusal); err != nil {
				return err
			}
			return emit(protocol.Sentinel)
		}
	}

	var contextText string
	if s.deps.Retriever != nil {
		found, err := s.deps.Retriever.FindContext(ctx, question, s.cfg.ContextLimit)
		if err != nil {
			log.Error().Err(err).Msg("menu context lookup failed")
		} else {
			contextText = found
		}
	}
	log.Debug().Int("context_lines", countLines(contextText)).Msg("answering question")

	if err := s.deps.Answerer.Stream(ctx, contextText, question, emit); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn().Err(err).Msg("answer stream failed")
	}
	return emit(protocol.Sentinel)
}

func (s *Server) emit(conn *Connection, text string) error {
	select {
	case conn.Send <- []byte(text):
		return nil
	case <-conn.Done():
		return conn.ctx.Err()
	}
}

func countLines(s string) int {
	if s == "" {
		return 0
	}
	return strings.Count(s, "\n") + 1
}
