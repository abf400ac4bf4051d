package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ongoingai/langfuse-bridge/internal/journal"
)

func seedFailedEntry(t *testing.T, journalPath string, payload []byte) {
	t.Helper()
	store, err := journal.NewSQLiteStore(journalPath)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	entry := &journal.Entry{
		CallType:   "acompletion",
		Model:      "gpt-4o",
		Status:     journal.StatusFailed,
		Error:      "backend unavailable",
		Payload:    payload,
		RecordedAt: time.Now().UTC(),
	}
	if err := store.WriteEntry(context.Background(), entry); err != nil {
		t.Fatal(err)
	}
}

func TestRunReplayResubmitsFailures(t *testing.T) {
	stub := &backendStub{}
	server := httptest.NewServer(stub.handler())
	t.Cleanup(server.Close)

	capturePath := writeCaptureFile(t)
	payload, err := os.ReadFile(capturePath)
	if err != nil {
		t.Fatal(err)
	}

	journalPath := filepath.Join(t.TempDir(), "journal.db")
	seedFailedEntry(t, journalPath, payload)

	configPath := writeTempConfig(t, fmt.Sprintf(`
langfuse:
  public_key: pk-test
  secret_key: sk-test
  host: %s
  max_clients: 50
journal:
  enabled: true
  driver: sqlite
  path: %s
`, server.URL, journalPath))

	var out, errOut bytes.Buffer
	code := runReplay([]string{"-config", configPath}, &out, &errOut)
	if code != 0 {
		t.Fatalf("code = %d, stderr %q", code, errOut.String())
	}
	if !strings.Contains(out.String(), "trace_id=") {
		t.Errorf("stdout = %q", out.String())
	}

	types := stub.types()
	if len(types) != 2 || types[0] != "trace-create" || types[1] != "generation-create" {
		t.Errorf("posted events = %v", types)
	}

	// The replay outcome lands as a fresh journal entry.
	store, err := journal.NewSQLiteStore(journalPath)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	entry, err := store.GetEntry(context.Background(), 2)
	if err != nil {
		t.Fatal(err)
	}
	if entry.Status != journal.StatusSubmitted {
		t.Errorf("replayed entry status = %q", entry.Status)
	}
}

func TestRunReplayRequiresJournal(t *testing.T) {
	stub := &backendStub{}
	server := httptest.NewServer(stub.handler())
	t.Cleanup(server.Close)

	configPath := writeTempConfig(t, fmt.Sprintf(`
langfuse:
  public_key: pk-test
  secret_key: sk-test
  host: %s
  max_clients: 50
`, server.URL))

	var out, errOut bytes.Buffer
	if code := runReplay([]string{"-config", configPath}, &out, &errOut); code != 1 {
		t.Fatalf("code = %d, want 1", code)
	}
	if !strings.Contains(errOut.String(), "journal.enabled") {
		t.Errorf("stderr = %q", errOut.String())
	}
}

func TestRunReplayNothingToDo(t *testing.T) {
	stub := &backendStub{}
	server := httptest.NewServer(stub.handler())
	t.Cleanup(server.Close)

	configPath := writeTempConfig(t, fmt.Sprintf(`
langfuse:
  public_key: pk-test
  secret_key: sk-test
  host: %s
  max_clients: 50
journal:
  enabled: true
  driver: sqlite
  path: %s
`, server.URL, filepath.Join(t.TempDir(), "journal.db")))

	var out, errOut bytes.Buffer
	if code := runReplay([]string{"-config", configPath}, &out, &errOut); code != 0 {
		t.Fatalf("code = %d, stderr %q", code, errOut.String())
	}
	if !strings.Contains(out.String(), "no failed submissions to replay") {
		t.Errorf("stdout = %q", out.String())
	}
}

func TestRunFailuresListsEntries(t *testing.T) {
	journalPath := filepath.Join(t.TempDir(), "journal.db")
	seedFailedEntry(t, journalPath, []byte("{}"))

	configPath := writeTempConfig(t, fmt.Sprintf(`
langfuse:
  public_key: pk-test
  secret_key: sk-test
journal:
  enabled: true
  driver: sqlite
  path: %s
`, journalPath))

	var out, errOut bytes.Buffer
	if code := runFailures([]string{"-config", configPath}, &out, &errOut); code != 0 {
		t.Fatalf("code = %d, stderr %q", code, errOut.String())
	}
	line := out.String()
	if !strings.Contains(line, "acompletion") || !strings.Contains(line, "gpt-4o") || !strings.Contains(line, "backend unavailable") {
		t.Errorf("stdout = %q", line)
	}
}

func TestRunFailuresRequiresJournal(t *testing.T) {
	configPath := writeTempConfig(t, `
langfuse:
  public_key: pk-test
  secret_key: sk-test
`)

	var out, errOut bytes.Buffer
	if code := runFailures([]string{"-config", configPath}, &out, &errOut); code != 1 {
		t.Fatalf("code = %d, want 1", code)
	}
}

func TestRunFailuresRejectsPositionalArgs(t *testing.T) {
	var out, errOut bytes.Buffer
	if code := runFailures([]string{"extra"}, &out, &errOut); code != 2 {
		t.Fatalf("code = %d, want 2", code)
	}
}
