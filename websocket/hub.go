package websocket

import (
	"context"
	"sync"
	"time"

	"riderx/models"

	"github.com/sirupsen/logrus"
)

// FixHandler takes position fixes streamed by connected clients.
type FixHandler interface {
	AddFix(ctx context.Context, riderID, rideID string, fix models.PositionFix) (models.FixResult, error)
}

// Hub tracks connected clients per rider and pushes ride and crash events
// to them.
type Hub struct {
	clients      map[*Client]bool
	riderClients map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	sendToUser chan UserMessage

	fixHandler FixHandler

	stats HubStats
	mutex sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc
}

type UserMessage struct {
	RiderID string
	Message models.WSMessage
}

type HubStats struct {
	TotalConnections  int64     `json:"totalConnections"`
	ActiveConnections int       `json:"activeConnections"`
	ConnectedRiders   int       `json:"connectedRiders"`
	MessagesSent      int64     `json:"messagesSent"`
	MessagesDropped   int64     `json:"messagesDropped"`
	StartTime         time.Time `json:"startTime"`
}

func NewHub(fixHandler FixHandler) *Hub {
	ctx, cancel := context.WithCancel(context.Background())

	return &Hub{
		clients:      make(map[*Client]bool),
		riderClients: make(map[string]map[*Client]bool),
		register:     make(chan *Client),
		unregister:   make(chan *Client),
		sendToUser:   make(chan UserMessage, 256),
		fixHandler:   fixHandler,
		stats: HubStats{
			StartTime: time.Now(),
		},
		ctx:    ctx,
		cancel: cancel,
	}
}

// SetFixHandler must be called before Run.
func (h *Hub) SetFixHandler(fixHandler FixHandler) {
	h.fixHandler = fixHandler
}

func (h *Hub) Run() {
	logrus.Info("WebSocket Hub starting...")

	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case userMessage := <-h.sendToUser:
			h.sendMessageToRider(userMessage)

		case <-h.ctx.Done():
			logrus.Info("WebSocket Hub shutting down...")
			h.closeAll()
			return
		}
	}
}

func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.ctx.Done():
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.ctx.Done():
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.clients[client] = true
	if h.riderClients[client.riderID] == nil {
		h.riderClients[client.riderID] = make(map[*Client]bool)
	}
	h.riderClients[client.riderID][client] = true

	h.stats.ActiveConnections++
	h.stats.TotalConnections++

	logrus.Infof("Client registered: %s (Total: %d)", client.riderID, h.stats.ActiveConnections)
}

func (h *Hub) unregisterClient(client *Client) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if _, ok := h.clients[client]; !ok {
		return
	}

	delete(h.clients, client)
	if set := h.riderClients[client.riderID]; set != nil {
		delete(set, client)
		if len(set) == 0 {
			delete(h.riderClients, client.riderID)
		}
	}
	client.closeSend()
	h.stats.ActiveConnections--

	logrus.Infof("Client unregistered: %s (Total: %d)", client.riderID, h.stats.ActiveConnections)
}

func (h *Hub) sendMessageToRider(userMessage UserMessage) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	for client := range h.riderClients[userMessage.RiderID] {
		if client.enqueue(userMessage.Message) {
			h.stats.MessagesSent++
		} else {
			h.stats.MessagesDropped++
			logrus.Warnf("Send buffer full for rider %s, dropping %s", client.riderID, userMessage.Message.Type)
		}
	}
}

func (h *Hub) closeAll() {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	for client := range h.clients {
		client.closeSend()
		delete(h.clients, client)
	}
	h.riderClients = make(map[string]map[*Client]bool)
	h.stats.ActiveConnections = 0
}

// SendToRider queues a message for every connection of the rider.
func (h *Hub) SendToRider(riderID string, msgType string, data interface{}) {
	msg := models.WSMessage{
		Type:      msgType,
		Data:      data,
		RiderID:   riderID,
		Timestamp: time.Now(),
	}

	select {
	case h.sendToUser <- UserMessage{RiderID: riderID, Message: msg}:
	case <-h.ctx.Done():
	default:
		logrus.Warnf("Hub queue full, dropping %s for rider %s", msgType, riderID)
	}
}

// =================== EVENT PUBLISHING ===================

func (h *Hub) PublishRideAlert(ctx context.Context, riderID, rideID string, alert models.Alert) error {
	h.SendToRider(riderID, models.WSTypeRideAlert, models.WSRideAlert{RideID: rideID, Alert: alert})
	return nil
}

func (h *Hub) PublishCrashReported(ctx context.Context, report models.CrashReport) error {
	h.SendToRider(report.RiderID, models.WSTypeCrashReported, models.WSCrashReported{
		ReportID:   report.ID,
		UserStatus: report.UserStatus,
		Location:   report.Location,
		Timestamp:  report.Timestamp,
	})
	return nil
}

func (h *Hub) PublishNotificationResult(ctx context.Context, riderID string, summary models.NotificationSummary) error {
	h.SendToRider(riderID, models.WSTypeNotificationResult, summary)
	return nil
}

// NotifyContactReached tells the rider a contact was reached while the rest
// of the notification run is still going.
func (h *Hub) NotifyContactReached(report models.CrashReport, contact models.EmergencyContact) {
	h.SendToRider(report.RiderID, models.WSTypeContactNotified, models.WSContactNotified{
		ReportID:    report.ID,
		ContactID:   contact.ID,
		ContactName: contact.Name,
	})
}

// =================== STATUS ===================

func (h *Hub) IsRiderOnline(riderID string) bool {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.riderClients[riderID]) > 0
}

func (h *Hub) GetStats() HubStats {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	stats := h.stats
	stats.ConnectedRiders = len(h.riderClients)
	return stats
}

func (h *Hub) Shutdown() {
	h.cancel()
}
