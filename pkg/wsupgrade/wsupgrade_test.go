package wsupgrade

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpgradeRoundTripsBinaryFrames(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		frame, err := conn.ReadFrame()
		require.NoError(t, err)
		require.NoError(t, conn.WriteFrame(append([]byte("echo:"), frame...)))
	}))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/"
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.WriteMessage(websocket.BinaryMessage, []byte("tile 0 0")))
	client.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := client.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "echo:tile 0 0", string(data))
}
