package controllers

import (
	"riderx/middleware"
	"riderx/utils"
	"riderx/websocket"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type WebSocketController struct {
	hub  *websocket.Hub
	auth *middleware.AuthMiddleware
}

func NewWebSocketController(hub *websocket.Hub, auth *middleware.AuthMiddleware) *WebSocketController {
	return &WebSocketController{
		hub:  hub,
		auth: auth,
	}
}

// HandleWebSocket upgrades an authenticated rider to the alert stream. Riders
// may also stream position fixes over the same connection.
func (wsc *WebSocketController) HandleWebSocket(c *gin.Context) {
	riderID, err := wsc.auth.WebSocketAuth(wsc.auth.ExtractToken(c))
	if err != nil {
		logrus.Warnf("WebSocket authentication failed: %v", err)
		utils.UnauthorizedResponse(c, "Invalid authentication token")
		return
	}

	conn, err := websocket.Upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error
		logrus.Errorf("Failed to upgrade WebSocket connection: %v", err)
		return
	}

	client := websocket.NewClient(conn, wsc.hub, riderID)
	wsc.hub.Register(client)

	go client.WritePump()
	go client.ReadPump()

	logrus.Infof("WebSocket connection established for rider: %s", riderID)
}

func (wsc *WebSocketController) GetConnectionStats(c *gin.Context) {
	utils.SuccessResponse(c, "Connection statistics retrieved", gin.H{
		"hub":    wsc.hub.GetStats(),
		"online": wsc.hub.IsRiderOnline(utils.GetRiderID(c)),
	})
}
