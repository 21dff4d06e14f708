package xldeploy

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

// ---------------------------------------------------------------------------
// Client construction tests
// ---------------------------------------------------------------------------

func TestNewClient_Defaults(t *testing.T) {
	c := NewClient(ClientConfig{MaxRetries: -1})

	if c.maxRetries != defaultMaxRetries {
		t.Errorf("maxRetries = %d, want %d", c.maxRetries, defaultMaxRetries)
	}
	if c.httpClient.Timeout != time.Duration(defaultTimeoutSeconds)*time.Second {
		t.Errorf("timeout = %v, want %v", c.httpClient.Timeout, time.Duration(defaultTimeoutSeconds)*time.Second)
	}
	if c.URL() != defaultURL {
		t.Errorf("URL() = %q, want %q", c.URL(), defaultURL)
	}
}

func TestNewClient_TrimsTrailingSlash(t *testing.T) {
	c := NewClient(ClientConfig{URL: "https://xld.example.com:4516/", MaxRetries: 2, TimeoutSeconds: 5})

	if c.URL() != "https://xld.example.com:4516" {
		t.Errorf("URL() = %q, want trailing slash trimmed", c.URL())
	}
	if c.maxRetries != 2 {
		t.Errorf("maxRetries = %d, want 2", c.maxRetries)
	}
	if c.httpClient.Timeout != 5*time.Second {
		t.Errorf("timeout = %v, want 5s", c.httpClient.Timeout)
	}
}

// testClient returns a client pointed at server with no retries.
func testClient(t *testing.T, server *httptest.Server) *Client {
	t.Helper()
	return NewClient(ClientConfig{
		URL:            server.URL,
		Username:       "admin",
		Password:       "secret",
		MaxRetries:     0,
		TimeoutSeconds: 5,
	})
}

func writeJSON(t *testing.T, w http.ResponseWriter, status int, v interface{}) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Errorf("encode response: %v", err)
	}
}

// ---------------------------------------------------------------------------
// Repository service
// ---------------------------------------------------------------------------

func TestExists(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("method = %s, want GET", r.Method)
		}
		if r.URL.Path != "/deployit/repository/exists/Environments/Dev/PetClinic" {
			t.Errorf("path = %s", r.URL.Path)
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "admin" || pass != "secret" {
			t.Errorf("basic auth = (%q, %q, %v), want admin/secret", user, pass, ok)
		}
		if got := r.Header.Get("Accept"); got != "application/json" {
			t.Errorf("Accept = %q, want application/json", got)
		}
		writeJSON(t, w, http.StatusOK, true)
	}))
	defer server.Close()

	c := testClient(t, server)
	ok, err := c.Exists(context.Background(), "Environments/Dev/PetClinic")
	if err != nil {
		t.Fatalf("Exists() returned error: %v", err)
	}
	if !ok {
		t.Error("Exists() = false, want true")
	}
}

func TestExists_EscapesSegments(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.EscapedPath() != "/deployit/repository/exists/Environments/Dev%20Env" {
			t.Errorf("escaped path = %s", r.URL.EscapedPath())
		}
		writeJSON(t, w, http.StatusOK, false)
	}))
	defer server.Close()

	ok, err := testClient(t, server).Exists(context.Background(), "Environments/Dev Env")
	if err != nil {
		t.Fatalf("Exists() returned error: %v", err)
	}
	if ok {
		t.Error("Exists() = true, want false")
	}
}

func TestCreateAndRead(t *testing.T) {
	var stored []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/deployit/repository/ci/Environments/Dev" {
			t.Errorf("path = %s", r.URL.Path)
		}
		switch r.Method {
		case http.MethodPost:
			if ct := r.Header.Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q", ct)
			}
			body, _ := io.ReadAll(r.Body)
			stored = body
			w.Header().Set("Content-Type", "application/json")
			w.Write(body)
		case http.MethodGet:
			w.Header().Set("Content-Type", "application/json")
			w.Write(stored)
		default:
			t.Errorf("unexpected method %s", r.Method)
		}
	}))
	defer server.Close()

	c := testClient(t, server)
	env := NewConfigurationItem("Environments/Dev", "udm.Environment")
	env.SetProperty("members", []string{"Infrastructure/host1", "Infrastructure/host2"})

	created, err := c.Create(context.Background(), env.ID, env)
	if err != nil {
		t.Fatalf("Create() returned error: %v", err)
	}
	if created.ID != "Environments/Dev" || created.Type != "udm.Environment" {
		t.Errorf("created = %s/%s", created.ID, created.Type)
	}

	got, err := c.Read(context.Background(), "Environments/Dev")
	if err != nil {
		t.Fatalf("Read() returned error: %v", err)
	}
	members := got.StringList("members")
	if len(members) != 2 || members[0] != "Infrastructure/host1" || members[1] != "Infrastructure/host2" {
		t.Errorf("members = %v", members)
	}
}

func TestDelete_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte("Repository entity Environments/Gone not found\n\tat com.example.Foo"))
	}))
	defer server.Close()

	err := testClient(t, server).Delete(context.Background(), "Environments/Gone")
	if err == nil {
		t.Fatal("Delete() error = nil, want error")
	}
	if !IsNotFound(err) {
		t.Errorf("IsNotFound(%v) = false, want true", err)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error does not wrap *APIError: %v", err)
	}
	if apiErr.Message != "Repository entity Environments/Gone not found" {
		t.Errorf("Message = %q, want first line of body", apiErr.Message)
	}
}

// ---------------------------------------------------------------------------
// Task service
// ---------------------------------------------------------------------------

func TestGetTask(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/deployit/tasks/v2/task-1" {
			t.Errorf("path = %s", r.URL.Path)
		}
		writeJSON(t, w, http.StatusOK, TaskState{
			ID:          "task-1",
			Description: "Initial deployment of PetClinic",
			State:       TaskExecuting,
			CurrentStep: 2,
			NrSteps:     5,
			StartDate:   &start,
		})
	}))
	defer server.Close()

	ts, err := testClient(t, server).GetTask(context.Background(), "task-1")
	if err != nil {
		t.Fatalf("GetTask() returned error: %v", err)
	}
	if ts.State != TaskExecuting || ts.CurrentStep != 2 || ts.NrSteps != 5 {
		t.Errorf("task = %+v", ts)
	}
	if ts.StartDate == nil || !ts.StartDate.Equal(start) {
		t.Errorf("StartDate = %v, want %v", ts.StartDate, start)
	}
	if ts.CompletionDate != nil {
		t.Errorf("CompletionDate = %v, want nil", ts.CompletionDate)
	}
}

func TestSkip(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/deployit/task/task-1/skip" {
			t.Errorf("%s %s", r.Method, r.URL.Path)
		}
		var steps []int
		if err := json.NewDecoder(r.Body).Decode(&steps); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if len(steps) != 3 || steps[0] != 1 || steps[2] != 3 {
			t.Errorf("steps = %v, want [1 2 3]", steps)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	if err := testClient(t, server).Skip(context.Background(), "task-1", []int{1, 2, 3}); err != nil {
		t.Fatalf("Skip() returned error: %v", err)
	}
}

func TestStartArchiveCancel(t *testing.T) {
	var calls []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.Method+" "+r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	c := testClient(t, server)
	ctx := context.Background()
	if err := c.Start(ctx, "t1"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := c.Archive(ctx, "t1"); err != nil {
		t.Fatalf("Archive: %v", err)
	}
	if err := c.Cancel(ctx, "t1"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	want := []string{
		"POST /deployit/tasks/v2/t1/start",
		"POST /deployit/tasks/v2/t1/archive",
		"DELETE /deployit/tasks/v2/t1",
	}
	if len(calls) != len(want) {
		t.Fatalf("calls = %v, want %v", calls, want)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("call[%d] = %q, want %q", i, calls[i], want[i])
		}
	}
}

// ---------------------------------------------------------------------------
// Deployment service
// ---------------------------------------------------------------------------

func TestPrepareInitial(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/deployit/deployment/prepare/initial" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("version"); got != "Applications/PetClinic/1.0" {
			t.Errorf("version = %q", got)
		}
		if got := r.URL.Query().Get("environment"); got != "Environments/Dev" {
			t.Errorf("environment = %q", got)
		}
		writeJSON(t, w, http.StatusOK, Deployment{
			ID:   "deployment-1",
			Type: DeploymentInitial,
		})
	}))
	defer server.Close()

	d, err := testClient(t, server).PrepareInitial(context.Background(), "Applications/PetClinic/1.0", "Environments/Dev")
	if err != nil {
		t.Fatalf("PrepareInitial() returned error: %v", err)
	}
	if d.Type != DeploymentInitial {
		t.Errorf("Type = %q, want INITIAL", d.Type)
	}
}

func TestValidate_ReturnsMessagesOnDeployeds(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "deployment-1",
			"type": "INITIAL",
			"deployeds": [
				{"id": "Infrastructure/host1/petclinic", "type": "jee.WarModule", "contextRoot": "/pet",
				 "validation-messages": [{"ci": "Infrastructure/host1/petclinic", "property": "port", "message": "Port is required", "level": "ERROR"}]},
				{"id": "Infrastructure/host2/petclinic", "type": "jee.WarModule"}
			]
		}`))
	}))
	defer server.Close()

	d, err := testClient(t, server).Validate(context.Background(), &Deployment{ID: "deployment-1"})
	if err != nil {
		t.Fatalf("Validate() returned error: %v", err)
	}
	if len(d.Deployeds) != 2 {
		t.Fatalf("len(Deployeds) = %d, want 2", len(d.Deployeds))
	}
	first := d.Deployeds[0]
	if len(first.Validations) != 1 || first.Validations[0].PropertyName != "port" {
		t.Errorf("validations = %+v", first.Validations)
	}
	if v, _ := first.Property("contextRoot"); v != "/pet" {
		t.Errorf("contextRoot = %v", v)
	}
	if len(d.Deployeds[1].Validations) != 0 {
		t.Errorf("second deployed has validations: %+v", d.Deployeds[1].Validations)
	}
}

func TestCreateTask(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/deployit/deployment" {
			t.Errorf("%s %s", r.Method, r.URL.Path)
		}
		writeJSON(t, w, http.StatusOK, "6b0e3c1a-task")
	}))
	defer server.Close()

	id, err := testClient(t, server).CreateTask(context.Background(), &Deployment{ID: "d"})
	if err != nil {
		t.Fatalf("CreateTask() returned error: %v", err)
	}
	if id != "6b0e3c1a-task" {
		t.Errorf("task id = %q", id)
	}
}

func TestImportPackage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/deployit/package/upload/petclinic-1.0.dar" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(10 << 20); err != nil {
			t.Errorf("ParseMultipartForm: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		files := r.MultipartForm.File["fileData"]
		if len(files) != 1 {
			t.Errorf("fileData parts = %d, want 1", len(files))
		} else if files[0].Filename != "petclinic-1.0.dar" {
			t.Errorf("filename = %q", files[0].Filename)
		}
		writeJSON(t, w, http.StatusOK, NewConfigurationItem("Applications/PetClinic/1.0", "udm.DeploymentPackage"))
	}))
	defer server.Close()

	dar := filepath.Join(t.TempDir(), "petclinic-1.0.dar")
	if err := os.WriteFile(dar, []byte("PK\x03\x04fake"), 0o644); err != nil {
		t.Fatal(err)
	}

	ci, err := testClient(t, server).ImportPackage(context.Background(), dar)
	if err != nil {
		t.Fatalf("ImportPackage() returned error: %v", err)
	}
	if ci.ID != "Applications/PetClinic/1.0" {
		t.Errorf("ci.ID = %q", ci.ID)
	}
}

// ---------------------------------------------------------------------------
// Retry behaviour
// ---------------------------------------------------------------------------

func TestRetryOn503(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		writeJSON(t, w, http.StatusOK, true)
	}))
	defer server.Close()

	c := NewClient(ClientConfig{URL: server.URL, MaxRetries: 1, TimeoutSeconds: 5})
	ok, err := c.Exists(context.Background(), "Environments/Dev")
	if err != nil {
		t.Fatalf("Exists() returned error: %v", err)
	}
	if !ok {
		t.Error("Exists() = false, want true")
	}
	if got := atomic.LoadInt32(&attempts); got != 2 {
		t.Errorf("attempts = %d, want 2", got)
	}
}

func TestNoRetryOn400(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		writeJSON(t, w, http.StatusBadRequest, map[string]string{"message": "bad id"})
	}))
	defer server.Close()

	c := NewClient(ClientConfig{URL: server.URL, MaxRetries: 3, TimeoutSeconds: 5})
	_, err := c.Read(context.Background(), "nope")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *APIError", err)
	}
	if apiErr.StatusCode != 400 || apiErr.Message != "bad id" {
		t.Errorf("apiErr = %+v", apiErr)
	}
	if got := atomic.LoadInt32(&attempts); got != 1 {
		t.Errorf("attempts = %d, want 1", got)
	}
}

func TestRetry_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	c := NewClient(ClientConfig{URL: server.URL, MaxRetries: 5, TimeoutSeconds: 5})
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	err := c.Start(ctx, "t1")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want context.DeadlineExceeded", err)
	}
}
