package realtime

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgAuth "github.com/angelmondragon/cartsplit-backend/pkg/auth"
	"github.com/angelmondragon/cartsplit-backend/pkg/config"
	"github.com/angelmondragon/cartsplit-backend/pkg/enums"
)

type stubJoiner struct {
	mu     sync.Mutex
	frames chan []byte
	joined uuid.UUID
	closed bool
}

func (s *stubJoiner) Join(_ context.Context, userID uuid.UUID) (<-chan []byte, io.Closer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.joined = userID
	return s.frames, s, nil
}

func (s *stubJoiner) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *stubJoiner) userID() uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.joined
}

func testJWT() config.JWTConfig {
	return config.JWTConfig{Secret: "secret", Issuer: "cartsplit", ExpirationMinutes: 5}
}

func wsURL(server *httptest.Server, query string) string {
	return "ws" + strings.TrimPrefix(server.URL, "http") + "/ws" + query
}

func TestGatewayRejectsMissingToken(t *testing.T) {
	gw, err := NewGateway(GatewayParams{JWT: testJWT(), Rooms: &stubJoiner{}})
	require.NoError(t, err)
	server := httptest.NewServer(gw)
	defer server.Close()

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(server, ""), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestGatewayRelaysRoomFrames(t *testing.T) {
	rooms := &stubJoiner{frames: make(chan []byte, 1)}
	gw, err := NewGateway(GatewayParams{JWT: testJWT(), Rooms: rooms})
	require.NoError(t, err)
	server := httptest.NewServer(gw)
	defer server.Close()

	userID := uuid.New()
	token, err := pkgAuth.MintAccessToken(testJWT(), time.Now(), pkgAuth.AccessTokenPayload{UserID: userID, Role: enums.RoleBuyer})
	require.NoError(t, err)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(server, "?access_token="+token), nil)
	require.NoError(t, err)
	defer conn.Close()

	rooms.frames <- []byte(`{"type":"shipment.status"}`)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"shipment.status"}`, string(msg))
	assert.Equal(t, userID, rooms.userID())
}

func TestGatewayRejectsForeignOrigin(t *testing.T) {
	gw, err := NewGateway(GatewayParams{JWT: testJWT(), Rooms: &stubJoiner{frames: make(chan []byte)}, AllowedOrigins: []string{"https://shop.example"}})
	require.NoError(t, err)
	server := httptest.NewServer(gw)
	defer server.Close()

	token, err := pkgAuth.MintAccessToken(testJWT(), time.Now(), pkgAuth.AccessTokenPayload{UserID: uuid.New(), Role: enums.RoleBuyer})
	require.NoError(t, err)

	header := http.Header{"Origin": []string{"https://evil.example"}}
	header.Set("Authorization", "Bearer "+token)
	_, resp, err := websocket.DefaultDialer.Dial(wsURL(server, ""), header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestNewGatewayRequiresRooms(t *testing.T) {
	_, err := NewGateway(GatewayParams{JWT: testJWT()})
	require.Error(t, err)
}
