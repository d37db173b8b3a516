package audit_test

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/keynest/keynest/internal/audit"
	"github.com/keynest/keynest/internal/db/models"
)

// ---------------------------------------------------------------------------
// MultiShipper — via NewMultiShipper factory
// ---------------------------------------------------------------------------

func TestNewMultiShipper_Empty(t *testing.T) {
	ms, err := audit.NewMultiShipper(nil)
	if err != nil {
		t.Fatalf("NewMultiShipper(nil) error: %v", err)
	}
	if ms == nil {
		t.Fatal("NewMultiShipper returned nil")
	}
}

func TestMultiShipper_ShipEmpty(t *testing.T) {
	ms, _ := audit.NewMultiShipper(nil)
	if err := ms.Ship(context.Background(), &models.AuditLog{Action: "create"}); err != nil {
		t.Errorf("Ship() on empty multi-shipper = %v, want nil", err)
	}
}

func TestMultiShipper_CloseEmpty(t *testing.T) {
	ms, _ := audit.NewMultiShipper(nil)
	if err := ms.Close(); err != nil {
		t.Errorf("Close() on empty multi-shipper = %v, want nil", err)
	}
}

func TestNewMultiShipper_DisabledConfigSkipped(t *testing.T) {
	cfgs := []audit.ShipperConfig{
		{Enabled: false, Type: "webhook", Webhook: &audit.WebhookConfig{URL: "http://example.com"}},
	}
	ms, err := audit.NewMultiShipper(cfgs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Disabled config acts as an empty multi-shipper
	if err := ms.Ship(context.Background(), &models.AuditLog{Action: "create"}); err != nil {
		t.Errorf("Ship() = %v, want nil", err)
	}
}

func TestNewMultiShipper_UnknownType(t *testing.T) {
	cfgs := []audit.ShipperConfig{{Enabled: true, Type: "foobar"}}
	if _, err := audit.NewMultiShipper(cfgs); err == nil {
		t.Error("expected error for unknown shipper type, got nil")
	}
}

func TestNewMultiShipper_WebhookNilConfig(t *testing.T) {
	cfgs := []audit.ShipperConfig{{Enabled: true, Type: "webhook", Webhook: nil}}
	if _, err := audit.NewMultiShipper(cfgs); err == nil {
		t.Error("expected error for webhook with nil config, got nil")
	}
}

func TestNewMultiShipper_FileNilConfig(t *testing.T) {
	cfgs := []audit.ShipperConfig{{Enabled: true, Type: "file", File: nil}}
	if _, err := audit.NewMultiShipper(cfgs); err == nil {
		t.Error("expected error for file with nil config, got nil")
	}
}

// ---------------------------------------------------------------------------
// FileShipper
// ---------------------------------------------------------------------------

func TestFileShipper_ShipWritesJSONLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	fs, err := audit.NewFileShipper(&audit.FileConfig{Path: path})
	if err != nil {
		t.Fatalf("NewFileShipper: %v", err)
	}
	defer fs.Close()

	entry := &models.AuditLog{
		UserID:     "user-1",
		Action:     models.AuditActionExport,
		TargetType: "environment",
		TargetID:   "env-1",
		Details:    map[string]any{"format": "env"},
	}
	if err := fs.Ship(context.Background(), entry); err != nil {
		t.Fatalf("Ship: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open audit log: %v", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		t.Fatal("audit log is empty")
	}
	var got models.AuditLog
	if err := json.Unmarshal(scanner.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal line: %v", err)
	}
	if got.Action != models.AuditActionExport {
		t.Errorf("Action = %s, want export", got.Action)
	}
	if got.TargetID != "env-1" {
		t.Errorf("TargetID = %s, want env-1", got.TargetID)
	}
}

func TestFileShipper_AppendsAcrossEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	fs, err := audit.NewFileShipper(&audit.FileConfig{Path: path})
	if err != nil {
		t.Fatalf("NewFileShipper: %v", err)
	}
	defer fs.Close()

	for i := 0; i < 3; i++ {
		if err := fs.Ship(context.Background(), &models.AuditLog{Action: "view"}); err != nil {
			t.Fatalf("Ship: %v", err)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read audit log: %v", err)
	}
	lines := 0
	for _, b := range data {
		if b == '\n' {
			lines++
		}
	}
	if lines != 3 {
		t.Errorf("lines = %d, want 3", lines)
	}
}

// ---------------------------------------------------------------------------
// WebhookShipper
// ---------------------------------------------------------------------------

func TestWebhookShipper_ShipDirect(t *testing.T) {
	received := make(chan models.AuditLog, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var entry models.AuditLog
		if err := json.NewDecoder(r.Body).Decode(&entry); err != nil {
			t.Errorf("decode webhook body: %v", err)
		}
		received <- entry
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	ws, err := audit.NewWebhookShipper(&audit.WebhookConfig{URL: srv.URL})
	if err != nil {
		t.Fatalf("NewWebhookShipper: %v", err)
	}
	defer ws.Close()

	entry := &models.AuditLog{UserID: "user-1", Action: models.AuditActionImport, TargetType: "environment"}
	if err := ws.Ship(context.Background(), entry); err != nil {
		t.Fatalf("Ship: %v", err)
	}

	got := <-received
	if got.Action != models.AuditActionImport {
		t.Errorf("Action = %s, want import", got.Action)
	}
}

func TestWebhookShipper_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ws, err := audit.NewWebhookShipper(&audit.WebhookConfig{URL: srv.URL})
	if err != nil {
		t.Fatalf("NewWebhookShipper: %v", err)
	}
	defer ws.Close()

	if err := ws.Ship(context.Background(), &models.AuditLog{Action: "view"}); err == nil {
		t.Error("expected error for 500 response, got nil")
	}
}

func TestWebhookShipper_CustomHeaders(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ws, err := audit.NewWebhookShipper(&audit.WebhookConfig{
		URL:     srv.URL,
		Headers: map[string]string{"Authorization": "Bearer sink-token"},
	})
	if err != nil {
		t.Fatalf("NewWebhookShipper: %v", err)
	}
	defer ws.Close()

	if err := ws.Ship(context.Background(), &models.AuditLog{Action: "view"}); err != nil {
		t.Fatalf("Ship: %v", err)
	}
	if gotAuth != "Bearer sink-token" {
		t.Errorf("Authorization = %q, want Bearer sink-token", gotAuth)
	}
}
