package acctest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/xldeploy/terraform-provider-xldeploy/internal/darpackage"
	"github.com/xldeploy/terraform-provider-xldeploy/internal/xldeploy"
)

// mockTask is a deployment task held by the mock server.
type mockTask struct {
	state      xldeploy.TaskState
	steps      []xldeploy.StepState
	deployment *xldeploy.Deployment
	fail       bool
	archived   bool
}

// MockXLDeployServer is an in-memory stand-in for the deployment server's
// remote API. Tasks run to completion as soon as they are started.
type MockXLDeployServer struct {
	mu          sync.Mutex
	cis         map[string]*xldeploy.ConfigurationItem
	tasks       map[string]*mockTask
	validations map[string][]xldeploy.ValidationMessage // keyed by deployed application ID
	taskCounter int
	failNext    bool
	uploadDir   string
	Server      *httptest.Server
}

// NewMockXLDeployServer creates a new mock server and returns it. The server
// is closed when the test finishes.
func NewMockXLDeployServer(t *testing.T) *MockXLDeployServer {
	t.Helper()

	m := &MockXLDeployServer{
		cis:         make(map[string]*xldeploy.ConfigurationItem),
		tasks:       make(map[string]*mockTask),
		validations: make(map[string][]xldeploy.ValidationMessage),
		uploadDir:   t.TempDir(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/deployit/repository/exists/", m.handleExists)
	mux.HandleFunc("/deployit/repository/ci/", m.handleCI)
	mux.HandleFunc("/deployit/package/upload/", m.handleUpload)
	mux.HandleFunc("/deployit/deployment/prepare/", m.handlePrepare)
	mux.HandleFunc("/deployit/deployment/validate", m.handleValidate)
	mux.HandleFunc("/deployit/deployment", m.handleCreateTask)
	mux.HandleFunc("/deployit/tasks/v2/", m.handleTask)
	mux.HandleFunc("/deployit/task/", m.handleTaskSteps)

	m.Server = httptest.NewServer(mux)
	t.Cleanup(m.Server.Close)

	return m
}

// URL returns the base URL of the mock server.
func (m *MockXLDeployServer) URL() string {
	return m.Server.URL
}

// ---------------------------------------------------------------------------
// Test controls
// ---------------------------------------------------------------------------

// AddCI stores a CI directly, bypassing the API.
func (m *MockXLDeployServer) AddCI(ci *xldeploy.ConfigurationItem) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cis[ci.ID] = ci
}

// HasCI reports whether a CI is stored.
func (m *MockXLDeployServer) HasCI(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.cis[id]
	return ok
}

// CI returns a stored CI or nil.
func (m *MockXLDeployServer) CI(id string) *xldeploy.ConfigurationItem {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cis[id]
}

// RemoveCI deletes a CI directly, bypassing the API.
func (m *MockXLDeployServer) RemoveCI(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.cis, id)
}

// FailNextTask makes the next started task stop on its first step.
func (m *MockXLDeployServer) FailNextTask() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext = true
}

// SetValidationMessages attaches validation messages to every deployment of
// the given deployed application until cleared with no messages.
func (m *MockXLDeployServer) SetValidationMessages(deployedAppID string, msgs ...xldeploy.ValidationMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(msgs) == 0 {
		delete(m.validations, deployedAppID)
		return
	}
	m.validations[deployedAppID] = msgs
}

// TaskState returns the current state of a task and whether it is known.
func (m *MockXLDeployServer) TaskState(taskID string) (xldeploy.TaskExecutionState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[taskID]
	if !ok {
		return "", false
	}
	return task.state.State, true
}

// TaskCount returns the number of tasks created so far.
func (m *MockXLDeployServer) TaskCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.taskCounter
}

// ---------------------------------------------------------------------------
// Repository
// ---------------------------------------------------------------------------

func (m *MockXLDeployServer) handleExists(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/deployit/repository/exists/")

	m.mu.Lock()
	_, ok := m.cis[id]
	m.mu.Unlock()

	writeJSON(w, http.StatusOK, ok)
}

func (m *MockXLDeployServer) handleCI(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/deployit/repository/ci/")

	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.cis[id]
	switch r.Method {
	case http.MethodGet:
		if !ok {
			writeError(w, http.StatusNotFound, fmt.Sprintf("Repository entity %s not found", id))
			return
		}
		writeJSON(w, http.StatusOK, existing)

	case http.MethodPost, http.MethodPut:
		if r.Method == http.MethodPost && ok {
			writeError(w, http.StatusConflict, fmt.Sprintf("Repository entity %s already exists", id))
			return
		}
		if r.Method == http.MethodPut && !ok {
			writeError(w, http.StatusNotFound, fmt.Sprintf("Repository entity %s not found", id))
			return
		}
		var ci xldeploy.ConfigurationItem
		if err := json.NewDecoder(r.Body).Decode(&ci); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		ci.ID = id
		m.cis[id] = &ci
		writeJSON(w, http.StatusOK, &ci)

	case http.MethodDelete:
		if !ok {
			writeError(w, http.StatusNotFound, fmt.Sprintf("Repository entity %s not found", id))
			return
		}
		delete(m.cis, id)
		w.WriteHeader(http.StatusNoContent)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// ---------------------------------------------------------------------------
// Package import
// ---------------------------------------------------------------------------

func (m *MockXLDeployServer) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	fileName := path.Base(r.URL.Path)

	file, _, err := r.FormFile("fileData")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing fileData: "+err.Error())
		return
	}
	defer file.Close()

	dest := filepath.Join(m.uploadDir, strconv.FormatInt(time.Now().UnixNano(), 10)+"-"+fileName)
	out, err := os.Create(dest)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if _, err := io.Copy(out, file); err != nil {
		out.Close()
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out.Close()

	pkg, err := darpackage.Inspect(dest)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid package: "+err.Error())
		return
	}
	versionID := pkg.VersionID()
	if versionID == "" {
		writeError(w, http.StatusBadRequest, "package has no manifest")
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.cis[versionID]; ok {
		writeError(w, http.StatusConflict, fmt.Sprintf("Version %s already exists", versionID))
		return
	}
	appID := path.Dir(versionID)
	if _, ok := m.cis[appID]; !ok {
		m.cis[appID] = xldeploy.NewConfigurationItem(appID, "udm.Application")
	}
	version := xldeploy.NewConfigurationItem(versionID, pkg.PackageType)
	version.SetProperty("application", appID)
	m.cis[versionID] = version

	writeJSON(w, http.StatusOK, version)
}

// ---------------------------------------------------------------------------
// Deployment service
// ---------------------------------------------------------------------------

func (m *MockXLDeployServer) handlePrepare(w http.ResponseWriter, r *http.Request) {
	kind := strings.TrimPrefix(r.URL.Path, "/deployit/deployment/prepare/")
	q := r.URL.Query()

	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case kind == "initial" && r.Method == http.MethodGet:
		versionID, envID := q.Get("version"), q.Get("environment")
		version, ok := m.cis[versionID]
		if !ok {
			writeError(w, http.StatusNotFound, fmt.Sprintf("Repository entity %s not found", versionID))
			return
		}
		if _, ok := m.cis[envID]; !ok {
			writeError(w, http.StatusNotFound, fmt.Sprintf("Repository entity %s not found", envID))
			return
		}
		deployedID := envID + "/" + path.Base(path.Dir(versionID))
		if _, ok := m.cis[deployedID]; ok {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("%s is already deployed", deployedID))
			return
		}
		writeJSON(w, http.StatusOK, m.newDeployment(xldeploy.DeploymentInitial, version, deployedID, versionID, envID))

	case kind == "update" && r.Method == http.MethodGet:
		versionID, deployedID := q.Get("version"), q.Get("deployedApplication")
		version, ok := m.cis[versionID]
		if !ok {
			writeError(w, http.StatusNotFound, fmt.Sprintf("Repository entity %s not found", versionID))
			return
		}
		if _, ok := m.cis[deployedID]; !ok {
			writeError(w, http.StatusNotFound, fmt.Sprintf("Repository entity %s not found", deployedID))
			return
		}
		writeJSON(w, http.StatusOK, m.newDeployment(xldeploy.DeploymentUpdate, version, deployedID, versionID, path.Dir(deployedID)))

	case kind == "undeploy" && r.Method == http.MethodGet:
		deployedID := q.Get("deployedApplication")
		deployed, ok := m.cis[deployedID]
		if !ok {
			writeError(w, http.StatusNotFound, fmt.Sprintf("Repository entity %s not found", deployedID))
			return
		}
		d := &xldeploy.Deployment{
			ID:                  fmt.Sprintf("deployment-%d", time.Now().UnixNano()),
			Type:                xldeploy.DeploymentUndeploy,
			DeployedApplication: deployed,
			Deployeds:           []*xldeploy.ConfigurationItem{},
		}
		writeJSON(w, http.StatusOK, d)

	case kind == "deployeds" && r.Method == http.MethodPost:
		var d xldeploy.Deployment
		if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if d.DeployedApplication != nil {
			deployed := xldeploy.NewConfigurationItem(d.DeployedApplication.ID+"/artifact", "test.DeployedArtifact")
			d.Deployeds = append(d.Deployeds, deployed)
		}
		writeJSON(w, http.StatusOK, &d)

	default:
		http.Error(w, "not found", http.StatusNotFound)
	}
}

// newDeployment must be called with m.mu held.
func (m *MockXLDeployServer) newDeployment(kind xldeploy.DeploymentType, version *xldeploy.ConfigurationItem, deployedID, versionID, envID string) *xldeploy.Deployment {
	app := xldeploy.NewConfigurationItem(deployedID, "udm.DeployedApplication")
	app.SetProperty("version", versionID)
	app.SetProperty("environment", envID)
	return &xldeploy.Deployment{
		ID:                  fmt.Sprintf("deployment-%d", time.Now().UnixNano()),
		Type:                kind,
		Application:         version,
		DeployedApplication: app,
		Deployeds:           []*xldeploy.ConfigurationItem{},
	}
}

func (m *MockXLDeployServer) handleValidate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var d xldeploy.Deployment
	if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if d.DeployedApplication != nil {
		if msgs := m.validations[d.DeployedApplication.ID]; len(msgs) > 0 {
			if len(d.Deployeds) == 0 {
				d.Deployeds = append(d.Deployeds, xldeploy.NewConfigurationItem(d.DeployedApplication.ID+"/artifact", "test.DeployedArtifact"))
			}
			d.Deployeds[0].Validations = append([]xldeploy.ValidationMessage(nil), msgs...)
		}
	}
	writeJSON(w, http.StatusOK, &d)
}

func (m *MockXLDeployServer) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var d xldeploy.Deployment
	if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.taskCounter++
	taskID := fmt.Sprintf("task-%04d", m.taskCounter)

	target := ""
	if d.DeployedApplication != nil {
		target = d.DeployedApplication.ID
	}
	description := fmt.Sprintf("%s deployment of %s", strings.ToLower(string(d.Type)), target)
	if d.Type == xldeploy.DeploymentUndeploy {
		description = "Undeployment of " + target
	}

	task := &mockTask{
		state: xldeploy.TaskState{
			ID:          taskID,
			Description: description,
			State:       xldeploy.TaskPending,
			NrSteps:     2,
			Owner:       "admin",
		},
		steps: []xldeploy.StepState{
			{Description: "Upload artifacts", State: "PENDING"},
			{Description: "Start application", State: "PENDING"},
		},
		deployment: &d,
	}
	m.tasks[taskID] = task

	writeJSON(w, http.StatusOK, taskID)
}

// ---------------------------------------------------------------------------
// Task service
// ---------------------------------------------------------------------------

func (m *MockXLDeployServer) handleTask(w http.ResponseWriter, r *http.Request) {
	// /deployit/tasks/v2/{id}[/start|/archive]
	rest := strings.TrimPrefix(r.URL.Path, "/deployit/tasks/v2/")
	parts := strings.SplitN(rest, "/", 2)
	taskID := parts[0]

	m.mu.Lock()
	defer m.mu.Unlock()

	task, ok := m.tasks[taskID]
	if !ok || task.archived {
		writeError(w, http.StatusNotFound, fmt.Sprintf("Task %s not found", taskID))
		return
	}

	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			writeJSON(w, http.StatusOK, task.state)
		case http.MethodDelete:
			task.state.State = xldeploy.TaskCancelled
			task.archived = true
			w.WriteHeader(http.StatusNoContent)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
		return
	}

	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	switch parts[1] {
	case "start":
		m.run(task)
		w.WriteHeader(http.StatusNoContent)
	case "archive":
		if !task.state.State.IsPassiveAfterExecuting() {
			writeError(w, http.StatusConflict, fmt.Sprintf("Task %s is %s", taskID, task.state.State))
			return
		}
		task.state.State = xldeploy.TaskDone
		task.archived = true
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "not found", http.StatusNotFound)
	}
}

// run executes a task synchronously. It must be called with m.mu held.
func (m *MockXLDeployServer) run(task *mockTask) {
	now := time.Now().UTC().Truncate(time.Second)
	task.state.StartDate = &now
	task.fail = task.fail || m.failNext
	m.failNext = false

	if task.fail {
		task.state.State = xldeploy.TaskStopped
		task.state.CurrentStep = 1
		task.steps[0].State = "FAILED"
		task.steps[0].FailureCount++
		task.steps[0].Log = "Connection refused"
		return
	}

	for i := range task.steps {
		if task.steps[i].State != "SKIPPED" {
			task.steps[i].State = "DONE"
		}
	}
	task.state.State = xldeploy.TaskExecuted
	task.state.CurrentStep = task.state.NrSteps
	done := now.Add(2 * time.Second)
	task.state.CompletionDate = &done

	d := task.deployment
	if d == nil || d.DeployedApplication == nil {
		return
	}
	switch d.Type {
	case xldeploy.DeploymentInitial, xldeploy.DeploymentUpdate:
		m.cis[d.DeployedApplication.ID] = d.DeployedApplication
	case xldeploy.DeploymentUndeploy:
		delete(m.cis, d.DeployedApplication.ID)
	}
}

func (m *MockXLDeployServer) handleTaskSteps(w http.ResponseWriter, r *http.Request) {
	// /deployit/task/{id}/skip or /deployit/task/{id}/step/{n}
	rest := strings.TrimPrefix(r.URL.Path, "/deployit/task/")
	parts := strings.Split(rest, "/")
	if len(parts) < 2 {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	taskID := parts[0]

	m.mu.Lock()
	defer m.mu.Unlock()

	task, ok := m.tasks[taskID]
	if !ok || task.archived {
		writeError(w, http.StatusNotFound, fmt.Sprintf("Task %s not found", taskID))
		return
	}

	switch {
	case parts[1] == "skip" && r.Method == http.MethodPost:
		var steps []int
		if err := json.NewDecoder(r.Body).Decode(&steps); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		for _, n := range steps {
			if n < 1 || n > len(task.steps) {
				writeError(w, http.StatusBadRequest, fmt.Sprintf("Step %d does not exist", n))
				return
			}
			task.steps[n-1].State = "SKIPPED"
		}
		w.WriteHeader(http.StatusNoContent)

	case parts[1] == "step" && len(parts) == 3 && r.Method == http.MethodGet:
		n, err := strconv.Atoi(parts[2])
		if err != nil || n < 1 || n > len(task.steps) {
			writeError(w, http.StatusNotFound, fmt.Sprintf("Step %s not found", parts[2]))
			return
		}
		writeJSON(w, http.StatusOK, task.steps[n-1])

	default:
		http.Error(w, "not found", http.StatusNotFound)
	}
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg})
}
