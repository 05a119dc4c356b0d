package jobevents

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lumenfeed/ingest/internal/common"
	"github.com/lumenfeed/ingest/internal/models"
)

func TestHub_BroadcastReachesConnectedClient(t *testing.T) {
	hub := New(common.NewSilentLogger())
	go hub.Run()
	defer hub.Stop()

	server := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("failed to dial websocket: %v", err)
	}
	defer conn.Close()

	deadline := time.Now()
	for i := 0; i < 50 && hub.ClientCount() == 0; i++ {
		time.Sleep(10 * time.Millisecond)
		deadline = time.Now()
	}
	_ = deadline
	if hub.ClientCount() != 1 {
		t.Fatalf("expected 1 registered client, got %d", hub.ClientCount())
	}

	hub.Broadcast(models.JobEvent{Type: models.JobEventQueued, JobID: "job-1", Status: models.JobStatusQueued})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, message, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("failed to read broadcast message: %v", err)
	}
	if !strings.Contains(string(message), "job-1") {
		t.Errorf("expected message to contain job id, got %q", string(message))
	}
	if !strings.Contains(string(message), "job_queued") {
		t.Errorf("expected message to contain event type, got %q", string(message))
	}
}

func TestHub_BroadcastWithNoClientsIsNoOp(t *testing.T) {
	hub := New(common.NewSilentLogger())
	go hub.Run()
	defer hub.Stop()

	hub.Broadcast(models.JobEvent{Type: models.JobEventStarted, JobID: "job-1"})
	if hub.ClientCount() != 0 {
		t.Errorf("expected no clients, got %d", hub.ClientCount())
	}
}
