package realtime

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	pkgAuth "github.com/angelmondragon/cartsplit-backend/pkg/auth"
	"github.com/angelmondragon/cartsplit-backend/pkg/config"
	"github.com/angelmondragon/cartsplit-backend/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxInboundSize = 512
)

// RoomJoiner streams the frames published to a user's room.
type RoomJoiner interface {
	Join(ctx context.Context, userID uuid.UUID) (<-chan []byte, io.Closer, error)
}

type GatewayParams struct {
	JWT            config.JWTConfig
	Rooms          RoomJoiner
	AllowedOrigins []string
	Logger         *logger.Logger
}

// Gateway upgrades authenticated sessions to websockets and relays the
// caller's room to them.
type Gateway struct {
	jwt      config.JWTConfig
	rooms    RoomJoiner
	logg     *logger.Logger
	upgrader websocket.Upgrader
}

func NewGateway(params GatewayParams) (*Gateway, error) {
	if params.Rooms == nil {
		return nil, errors.New("room joiner required")
	}
	if params.JWT.Secret == "" {
		return nil, errors.New("jwt secret required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	origins := make(map[string]struct{}, len(params.AllowedOrigins))
	for _, o := range params.AllowedOrigins {
		if o = strings.TrimSpace(o); o != "" {
			origins[o] = struct{}{}
		}
	}
	return &Gateway{
		jwt:   params.JWT,
		rooms: params.Rooms,
		logg:  logg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if len(origins) == 0 || origin == "" {
					return true
				}
				_, ok := origins[origin]
				return ok
			},
		},
	}, nil
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	claims, err := pkgAuth.ParseAccessToken(g.jwt, sessionToken(r))
	if err != nil {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	ctx = g.logg.WithUserID(ctx, claims.UserID.String())
	frames, sub, err := g.rooms.Join(ctx, claims.UserID)
	if err != nil {
		cancel()
		g.logg.Error(ctx, "join room", err)
		http.Error(w, "room unavailable", http.StatusServiceUnavailable)
		return
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		cancel()
		_ = sub.Close()
		g.logg.Warn(ctx, "websocket upgrade failed: "+err.Error())
		return
	}
	g.logg.Info(ctx, "push session opened")

	go g.readPump(ctx, cancel, conn)
	g.writePump(ctx, cancel, conn, frames, sub)
}

// readPump drains control frames so pongs are processed; any read error ends
// the session.
func (g *Gateway) readPump(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn) {
	defer cancel()
	conn.SetReadLimit(maxInboundSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				g.logg.Warn(ctx, "push session read failed: "+err.Error())
			}
			return
		}
	}
}

func (g *Gateway) writePump(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, frames <-chan []byte, sub io.Closer) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		cancel()
		_ = sub.Close()
		_ = conn.Close()
		g.logg.Info(ctx, "push session closed")
	}()

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		case frame, ok := <-frames:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "room closed"))
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// sessionToken prefers the Authorization header and falls back to the
// access_token query parameter, since browsers cannot set headers on upgrade.
func sessionToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return strings.TrimSpace(r.URL.Query().Get("access_token"))
}
