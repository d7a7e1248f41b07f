//go:build e2e

package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"
)

var baseURL string

func TestMain(m *testing.M) {
	baseURL = os.Getenv("DUSTWARD_BASE_URL")
	if baseURL == "" {
		baseURL = "http://localhost:3210"
	}

	// Wait for server readiness (up to 30s)
	ready := false
	for i := 0; i < 30; i++ {
		resp, err := http.Get(baseURL + "/api/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				ready = true
				break
			}
		}
		time.Sleep(1 * time.Second)
	}
	if !ready {
		fmt.Fprintf(os.Stderr, "server at %s not ready after 30s\n", baseURL)
		os.Exit(1)
	}

	os.Exit(m.Run())
}

// messageRequest is the payload sent to the REST gateway.
type messageRequest struct {
	UserID   string `json:"user_id"`
	UserName string `json:"user_name"`
	Content  string `json:"content"`
}

// messageResponse is the outbound message returned by the REST gateway.
type messageResponse struct {
	Platform  string `json:"platform"`
	ChannelID string `json:"channel_id"`
	Content   string `json:"content"`
	ReplyTo   string `json:"reply_to,omitempty"`
}

// sendMessage POSTs player input through the REST gateway and returns
// the reply content.
func sendMessage(t *testing.T, content string) string {
	t.Helper()

	body, err := json.Marshal(messageRequest{
		UserID:   "smoke-test",
		UserName: "smokebot",
		Content:  content,
	})
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}

	client := &http.Client{Timeout: 130 * time.Second}
	resp, err := client.Post(
		baseURL+"/api/gateway/rest/message",
		"application/json",
		bytes.NewReader(body),
	)
	if err != nil {
		t.Fatalf("POST /api/gateway/rest/message: %v", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response body: %v", err)
	}

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", resp.StatusCode, string(raw))
	}

	var msg messageResponse
	if err := json.Unmarshal(raw, &msg); err != nil {
		t.Fatalf("unmarshal response: %v (body: %s)", err, string(raw))
	}
	return msg.Content
}

func TestSlashHelp(t *testing.T) {
	reply := sendMessage(t, "/help")
	if !strings.Contains(reply, "/help") {
		t.Errorf("expected response to contain '/help', got: %s", reply)
	}
	t.Logf("reply: %.200s", reply)
}

func TestSlashRoll(t *testing.T) {
	reply := sendMessage(t, "/roll 2d10+3")
	if !strings.Contains(reply, "2d10+3") {
		t.Errorf("expected roll notation in reply, got: %s", reply)
	}
	t.Logf("reply: %.200s", reply)
}

func TestSlashSaves(t *testing.T) {
	reply := sendMessage(t, "/saves")
	if len(reply) == 0 {
		t.Error("expected non-empty response for /saves")
	}
	t.Logf("reply: %.200s", reply)
}

func TestNewSaveAndTurn(t *testing.T) {
	reply := sendMessage(t, "/new Mara smoke-run")
	lower := strings.ToLower(reply)
	if !strings.Contains(lower, "mara") {
		t.Errorf("expected creation confirmation, got: %s", reply)
	}

	reply = sendMessage(t, "I look around the depot yard.")
	if len(reply) <= 10 {
		t.Errorf("expected narration (len > 10), got len=%d: %s", len(reply), reply)
	}
	t.Logf("narration: %.300s", reply)

	reply = sendMessage(t, "/strain")
	if len(reply) == 0 {
		t.Error("expected non-empty response for /strain")
	}
	t.Logf("strain: %.200s", reply)
}

func TestPlainMessageWithoutSave(t *testing.T) {
	// A fresh user key with no attached save should get guidance, not a turn.
	body, _ := json.Marshal(messageRequest{
		UserID:   "smoke-test-fresh",
		UserName: "fresh",
		Content:  "hello?",
	})
	client := &http.Client{Timeout: 130 * time.Second}
	resp, err := client.Post(baseURL+"/api/gateway/rest/message", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(raw), "/new") {
		t.Errorf("expected guidance mentioning /new, got: %s", string(raw))
	}
}
