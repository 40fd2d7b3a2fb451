package tabletalkctl

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRunAskPrintsAnswer(t *testing.T) {
	var got map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/ask_graph_agent" {
			http.Error(w, "unexpected route", http.StatusNotFound)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"response":"There are 3 users.","conversation":[]}`))
	}))
	defer server.Close()

	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	code := Run(context.Background(), []string{"ask", "--base-url", server.URL, "--session", "s1", "how", "many", "users?"}, Options{
		Stdout: stdout,
		Stderr: stderr,
	})
	if code != exitOK {
		t.Fatalf("exit code = %d, stderr = %s", code, stderr.String())
	}
	if got["user_query"] != "how many users?" || got["session_id"] != "s1" {
		t.Fatalf("request body = %#v", got)
	}
	if strings.TrimSpace(stdout.String()) != "There are 3 users." {
		t.Fatalf("stdout = %q", stdout.String())
	}
}

func TestRunAskRawPrintsJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"response":"ok","conversation":[{"user":"q","bot":"ok"}]}`))
	}))
	defer server.Close()

	stdout := &bytes.Buffer{}
	code := Run(context.Background(), []string{"ask", "--raw", "q"}, Options{BaseURL: server.URL, Stdout: stdout})
	if code != exitOK {
		t.Fatalf("exit code = %d", code)
	}
	if !strings.Contains(stdout.String(), `"conversation": [`) {
		t.Fatalf("stdout = %q", stdout.String())
	}
}

func TestRunUploadSendsMultipart(t *testing.T) {
	var table, fileName, content string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/upload_new_table" {
			http.Error(w, "unexpected route", http.StatusNotFound)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		table = r.FormValue("table_name")
		file, header, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer file.Close()
		raw, _ := io.ReadAll(file)
		fileName = header.Filename
		content = string(raw)
		_, _ = w.Write([]byte(`{"status":"success","message":"Uploaded 1 rows to table 'users' successfully"}`))
	}))
	defer server.Close()

	path := filepath.Join(t.TempDir(), "users.csv")
	if err := os.WriteFile(path, []byte("id,name\n1,ann\n"), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	stdout := &bytes.Buffer{}
	code := Run(context.Background(), []string{"upload", path, "--table", "users"}, Options{BaseURL: server.URL, Stdout: stdout})
	if code != exitOK {
		t.Fatalf("exit code = %d", code)
	}
	if table != "users" || fileName != "users.csv" || content != "id,name\n1,ann\n" {
		t.Fatalf("upload = %q %q %q", table, fileName, content)
	}
	if !strings.Contains(stdout.String(), "Uploaded 1 rows") {
		t.Fatalf("stdout = %q", stdout.String())
	}
}

func TestRunUploadRequiresTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.csv")
	if err := os.WriteFile(path, []byte("id\n1\n"), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	stderr := &bytes.Buffer{}
	code := Run(context.Background(), []string{"upload", path}, Options{Stderr: stderr})
	if code != exitUsage {
		t.Fatalf("exit code = %d, want %d", code, exitUsage)
	}
	if !strings.Contains(stderr.String(), "--table is required") {
		t.Fatalf("stderr = %q", stderr.String())
	}
}

func TestRunSessionsRendersTable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"sessions":["alpha","beta"]}`))
	}))
	defer server.Close()

	stdout := &bytes.Buffer{}
	code := Run(context.Background(), []string{"sessions"}, Options{BaseURL: server.URL, Stdout: stdout})
	if code != exitOK {
		t.Fatalf("exit code = %d", code)
	}
	for _, want := range []string{"Session", "alpha", "beta"} {
		if !strings.Contains(stdout.String(), want) {
			t.Fatalf("stdout missing %q: %s", want, stdout.String())
		}
	}
}

func TestRunHistoryUsesSessionArgument(t *testing.T) {
	var path string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		_, _ = w.Write([]byte(`{"session_id":"s 2","conversation":[{"user":"hi","bot":"hello"}]}`))
	}))
	defer server.Close()

	stdout := &bytes.Buffer{}
	code := Run(context.Background(), []string{"history", "s 2"}, Options{BaseURL: server.URL, Stdout: stdout})
	if code != exitOK {
		t.Fatalf("exit code = %d", code)
	}
	if path != "/sessions/s 2" {
		t.Fatalf("path = %q", path)
	}
	if !strings.Contains(stdout.String(), "hello") {
		t.Fatalf("stdout = %q", stdout.String())
	}
}

func TestRunReturnsFailureOnHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"code":"SESSION_NOT_FOUND"}}`))
	}))
	defer server.Close()

	stderr := &bytes.Buffer{}
	code := Run(context.Background(), []string{"history", "missing"}, Options{BaseURL: server.URL, Stderr: stderr})
	if code != exitFailure {
		t.Fatalf("exit code = %d, want %d", code, exitFailure)
	}
	if !strings.Contains(stderr.String(), "http 404") {
		t.Fatalf("stderr = %q", stderr.String())
	}
}

func TestRunHealthPrettyPrints(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer server.Close()

	stdout := &bytes.Buffer{}
	code := Run(context.Background(), []string{"health"}, Options{BaseURL: server.URL, Stdout: stdout})
	if code != exitOK {
		t.Fatalf("exit code = %d", code)
	}
	if !strings.Contains(stdout.String(), "\"status\": \"ok\"") {
		t.Fatalf("stdout = %q", stdout.String())
	}
}

func TestRunUnknownCommandIsUsageError(t *testing.T) {
	code := Run(context.Background(), []string{"nope"}, Options{})
	if code != exitUsage {
		t.Fatalf("exit code = %d, want %d", code, exitUsage)
	}
}
