package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ikkim/marketplace-admin/pkg/logger"
)

// EventType 브로드캐스트 이벤트 종류
type EventType string

const (
	EventCredentialDecided EventType = "credential.decided" // 심사 결정 완료
	EventBusinessVerified  EventType = "business.verified"  // 업체 인증 플래그 반영
)

// Event 관리자 대시보드로 전송되는 알림
type Event struct {
	Type             EventType  `json:"type"`
	CredentialID     string     `json:"credential_id,omitempty"`
	BusinessID       string     `json:"business_id"`
	Status           string     `json:"status,omitempty"`
	VerifiedBy       string     `json:"verified_by,omitempty"`
	VerifiedAt       *time.Time `json:"verified_at,omitempty"`
	BusinessVerified bool       `json:"business_verified"`
}

// Client 연결된 관리자 세션
type Client struct {
	Hub    *Hub
	Conn   *Conn
	UserID string
	Send   chan []byte
}

// Hub WebSocket 연결 관리자
type Hub struct {
	// 등록된 클라이언트들 (UserID -> []*Client, 멀티 디바이스 지원)
	clients map[string][]*Client

	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
	quit       chan struct{}

	mu sync.RWMutex
}

// NewHub Hub 생성
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string][]*Client),
		register:   make(chan *Client, 256),
		unregister: make(chan *Client, 256),
		broadcast:  make(chan []byte, 1024),
		quit:       make(chan struct{}),
	}
}

// Run Hub 실행. Stop이 호출될 때까지 블록된다.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.UserID] = append(h.clients[client.UserID], client)
			sessions := len(h.clients[client.UserID])
			h.mu.Unlock()
			logger.Info("WebSocket client registered", map[string]interface{}{
				"user_id":        client.UserID,
				"total_sessions": sessions,
			})

		case client := <-h.unregister:
			h.removeClient(client)

		case message := <-h.broadcast:
			h.mu.RLock()
			for userID, clientList := range h.clients {
				for _, client := range clientList {
					select {
					case client.Send <- message:
					default:
						// Send 채널이 막혀있음 - 비동기로 정리
						go h.Unregister(client)
						logger.Warn("Client send buffer full, disconnecting", map[string]interface{}{
							"user_id": userID,
						})
					}
				}
			}
			h.mu.RUnlock()

		case <-h.quit:
			h.mu.Lock()
			for userID, clientList := range h.clients {
				for _, client := range clientList {
					close(client.Send)
				}
				delete(h.clients, userID)
			}
			h.mu.Unlock()
			return
		}
	}
}

// Stop Run 루프 종료 및 모든 세션 정리
func (h *Hub) Stop() {
	select {
	case <-h.quit:
	default:
		close(h.quit)
	}
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clientList, ok := h.clients[client.UserID]
	if !ok {
		return
	}

	newList := make([]*Client, 0, len(clientList))
	found := false
	for _, c := range clientList {
		if c == client {
			found = true
			continue
		}
		newList = append(newList, c)
	}
	if !found {
		return
	}

	if len(newList) == 0 {
		delete(h.clients, client.UserID)
	} else {
		h.clients[client.UserID] = newList
	}
	close(client.Send)

	logger.Info("WebSocket client unregistered", map[string]interface{}{
		"user_id":            client.UserID,
		"remaining_sessions": len(newList),
	})
}

// Publish 모든 관리자 세션에 이벤트 전송. nil Hub는 무시한다.
func (h *Hub) Publish(event Event) {
	if h == nil {
		return
	}

	data, err := json.Marshal(event)
	if err != nil {
		logger.Error("Failed to marshal event", err, map[string]interface{}{
			"type": event.Type,
		})
		return
	}

	select {
	case h.broadcast <- data:
	default:
		// 메시지 손실을 허용 (심사 로직에 영향 없음)
		logger.Warn("Broadcast channel full, event dropped", map[string]interface{}{
			"type":        event.Type,
			"business_id": event.BusinessID,
		})
	}
}

// Attach 업그레이드된 연결을 Hub에 등록하고 읽기/쓰기 루프를 시작
func (h *Hub) Attach(conn *websocket.Conn, userID string) *Client {
	client := &Client{
		Hub:    h,
		Conn:   &Conn{Conn: conn},
		UserID: userID,
		Send:   make(chan []byte, 256),
	}

	h.Register(client)

	go client.WritePump()
	go client.ReadPump()
	return client
}

// Register 클라이언트 등록
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister 클라이언트 등록 해제
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// IsUserOnline 사용자 온라인 여부 확인
func (h *Hub) IsUserOnline(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[userID]
	return ok
}

// SessionCount 현재 연결된 세션 수
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := 0
	for _, clientList := range h.clients {
		n += len(clientList)
	}
	return n
}
