package server

import (
	"encoding/json"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/KanuToCL/SonoTag-sub000/internal/protocol"
	"github.com/KanuToCL/SonoTag-sub000/internal/session"
)

func dialTestWS(t *testing.T) (*websocket.Conn, *session.Manager) {
	t.Helper()

	cfg := testServerConfig()
	logger := slog.Default()
	manager := session.NewManager(cfg, stubClassifier{}, nil, logger)
	wsServer := NewWSServer(cfg, logger, manager, nil)
	httpServer := NewHTTPServer(cfg, logger, manager, wsServer, nil)

	ts := httptest.NewServer(httpServer.server.Handler)
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("WebSocket dial failed: %v", err)
	}

	t.Cleanup(func() {
		conn.Close()
		ts.Close()
		manager.Stop()
	})
	return conn, manager
}

// readEvent reads events until one of the wanted type arrives, skipping
// interleaved columns events from the render loop
func readEvent(t *testing.T, conn *websocket.Conn, wantType string) *protocol.ServerEvent {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("ReadMessage failed waiting for %s: %v", wantType, err)
		}

		var event protocol.ServerEvent
		if err := json.Unmarshal(data, &event); err != nil {
			t.Fatalf("Invalid event JSON: %v", err)
		}
		if event.Type == wantType {
			return &event
		}
		if event.Type == protocol.TypeError && wantType != protocol.TypeError {
			t.Fatalf("Unexpected error event: %s", event.Message)
		}
	}
}

func TestWSSessionLifecycle(t *testing.T) {
	conn, manager := dialTestWS(t)

	start := `{"type":"start","source_rate":48000,"prompts":["dog barking","rain"]}`
	if err := conn.WriteMessage(websocket.TextMessage, []byte(start)); err != nil {
		t.Fatalf("Write start failed: %v", err)
	}

	started := readEvent(t, conn, protocol.TypeStarted)
	if started.SessionID == "" {
		t.Fatal("Expected session ID in started event")
	}
	if len(started.Prompts) != 2 {
		t.Errorf("Expected 2 prompts, got %v", started.Prompts)
	}

	if _, ok := manager.GetSession(started.SessionID); !ok {
		t.Error("Session not registered with manager")
	}

	// Binary PCM frames feed the session without error events
	frame := protocol.EncodePCMFrame(make([]float32, 4800))
	if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		t.Fatalf("Write audio failed: %v", err)
	}

	// The render loop streams columns while audio flows
	columns := readEvent(t, conn, protocol.TypeColumns)
	if len(columns.Heatmap) != 2 {
		t.Errorf("Expected heatmap column with 2 rows, got %d", len(columns.Heatmap))
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"stop"}`)); err != nil {
		t.Fatalf("Write stop failed: %v", err)
	}

	stopped := readEvent(t, conn, protocol.TypeStopped)
	if stopped.SessionID != started.SessionID {
		t.Errorf("Stopped wrong session: %s", stopped.SessionID)
	}

	if _, ok := manager.GetSession(started.SessionID); ok {
		t.Error("Session still registered after stop")
	}
}

func TestWSRejectsBadControl(t *testing.T) {
	conn, _ := dialTestWS(t)

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"start"}`)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	event := readEvent(t, conn, protocol.TypeError)
	if event.Message == "" {
		t.Error("Expected an error message")
	}
}

func TestWSSecondStartRejected(t *testing.T) {
	conn, _ := dialTestWS(t)

	start := `{"type":"start","source_rate":48000,"prompts":["speech"]}`
	if err := conn.WriteMessage(websocket.TextMessage, []byte(start)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	readEvent(t, conn, protocol.TypeStarted)

	if err := conn.WriteMessage(websocket.TextMessage, []byte(start)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	event := readEvent(t, conn, protocol.TypeError)
	if !strings.Contains(event.Message, "already started") {
		t.Errorf("Unexpected error message: %s", event.Message)
	}
}

func TestWSConfigure(t *testing.T) {
	conn, manager := dialTestWS(t)

	start := `{"type":"start","source_rate":48000,"prompts":["speech"]}`
	conn.WriteMessage(websocket.TextMessage, []byte(start))
	started := readEvent(t, conn, protocol.TypeStarted)

	configure := `{"type":"configure","window_seconds":3,"slide_speed":2}`
	if err := conn.WriteMessage(websocket.TextMessage, []byte(configure)); err != nil {
		t.Fatalf("Write configure failed: %v", err)
	}

	// Give the read loop a moment to apply the update
	deadline := time.Now().Add(time.Second)
	for {
		s, ok := manager.GetSession(started.SessionID)
		if !ok {
			t.Fatal("Session disappeared")
		}
		if s.GetStats().WindowSeconds == 3 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("Configure never applied")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestWSDisconnectEndsSession(t *testing.T) {
	conn, manager := dialTestWS(t)

	start := `{"type":"start","source_rate":48000,"prompts":["speech"]}`
	conn.WriteMessage(websocket.TextMessage, []byte(start))
	started := readEvent(t, conn, protocol.TypeStarted)

	conn.Close()

	deadline := time.Now().Add(time.Second)
	for {
		if _, ok := manager.GetSession(started.SessionID); !ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("Session still registered after disconnect")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
