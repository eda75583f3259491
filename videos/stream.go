package videos

import (
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"cinemagen_back/authorization"
)

const (
	streamInterval     = 3 * time.Second
	streamWriteTimeout = 10 * time.Second
)

var streamUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// statusFrame is one websocket push: the caller's records that can still
// change state, refreshed on every tick.
type statusFrame struct {
	Videos []Video   `json:"videos"`
	SentAt time.Time `json:"sent_at"`
}

// handleStream upgrades the connection and pushes the caller's active records
// until the client hangs up. Terminal transitions made by the sweep become
// visible here without the client polling the list endpoint.
func (m *Module) handleStream(c *gin.Context) {
	userID, _ := authorization.CurrentUser(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	conn, err := streamUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("videos: websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(streamInterval)
	defer ticker.Stop()

	ctx := c.Request.Context()
	for {
		records, err := m.store.ListActiveByUser(ctx, userID)
		if err != nil {
			log.Printf("videos: stream snapshot for user %d: %v", userID, err)
			return
		}
		frame := statusFrame{Videos: records, SentAt: time.Now().UTC()}

		conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
		if err := conn.WriteJSON(frame); err != nil {
			return
		}

		select {
		case <-ticker.C:
		case <-closed:
			return
		case <-ctx.Done():
			return
		}
	}
}
