package engine_test

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/xldeploy/terraform-provider-xldeploy/internal/engine"
	"github.com/xldeploy/terraform-provider-xldeploy/internal/logging"
	"github.com/xldeploy/terraform-provider-xldeploy/internal/xldeploy"
)

// fakeTask scripts the states a task goes through once started.
type fakeTask struct {
	state     xldeploy.TaskState
	steps     []xldeploy.StepState
	script    []xldeploy.TaskState
	started   bool
	archived  bool
	cancelled bool
	skipped   []int
}

// fakeServer is an in-memory deployment server implementing every service
// the engine depends on.
type fakeServer struct {
	mu          sync.Mutex
	cis         map[string]*xldeploy.ConfigurationItem
	tasks       map[string]*fakeTask
	calls       []string
	validations map[string][]xldeploy.ValidationMessage
	imported    []string
	nextTask    *fakeTask
	createErr   error
	cancelErr   error
}

func newFakeServer() *fakeServer {
	return &fakeServer{
		cis:         make(map[string]*xldeploy.ConfigurationItem),
		tasks:       make(map[string]*fakeTask),
		validations: make(map[string][]xldeploy.ValidationMessage),
	}
}

func (f *fakeServer) services() engine.Services {
	return engine.Services{Repository: f, Tasks: f, Deployments: f, Packages: f}
}

func (f *fakeServer) record(format string, args ...interface{}) {
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
}

func (f *fakeServer) put(ci *xldeploy.ConfigurationItem) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cis[ci.ID] = ci
}

func (f *fakeServer) addTask(id string, t *fakeTask) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t.state.ID = id
	f.tasks[id] = t
}

func (f *fakeServer) task(id string) (*fakeTask, error) {
	t, ok := f.tasks[id]
	if !ok {
		return nil, &xldeploy.APIError{StatusCode: 404, Message: "task " + id + " not found"}
	}
	return t, nil
}

func (f *fakeServer) callsWithPrefix(prefix string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.calls {
		if strings.HasPrefix(c, prefix) {
			out = append(out, c)
		}
	}
	return out
}

// Repository

func (f *fakeServer) Exists(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("exists %s", id)
	_, ok := f.cis[id]
	return ok, nil
}

func (f *fakeServer) Read(_ context.Context, id string) (*xldeploy.ConfigurationItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("read %s", id)
	ci, ok := f.cis[id]
	if !ok {
		return nil, &xldeploy.APIError{StatusCode: 404, Message: id + " not found"}
	}
	return ci, nil
}

func (f *fakeServer) Create(_ context.Context, id string, ci *xldeploy.ConfigurationItem) (*xldeploy.ConfigurationItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("create %s", id)
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.cis[id] = ci
	return ci, nil
}

func (f *fakeServer) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("delete %s", id)
	if _, ok := f.cis[id]; !ok {
		return &xldeploy.APIError{StatusCode: 404, Message: id + " not found"}
	}
	delete(f.cis, id)
	return nil
}

// Tasks

func (f *fakeServer) Start(_ context.Context, taskID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("start %s", taskID)
	t, err := f.task(taskID)
	if err != nil {
		return err
	}
	t.started = true
	return nil
}

func (f *fakeServer) Archive(_ context.Context, taskID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("archive %s", taskID)
	t, err := f.task(taskID)
	if err != nil {
		return err
	}
	t.archived = true
	return nil
}

func (f *fakeServer) Cancel(_ context.Context, taskID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("cancel %s", taskID)
	if f.cancelErr != nil {
		return f.cancelErr
	}
	t, err := f.task(taskID)
	if err != nil {
		return err
	}
	t.cancelled = true
	return nil
}

func (f *fakeServer) Skip(_ context.Context, taskID string, steps []int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("skip %s %v", taskID, steps)
	t, err := f.task(taskID)
	if err != nil {
		return err
	}
	t.skipped = append([]int{}, steps...)
	return nil
}

// GetTask advances through the script once the task is started; the last
// scripted state sticks.
func (f *fakeServer) GetTask(_ context.Context, taskID string) (*xldeploy.TaskState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("get %s", taskID)
	t, err := f.task(taskID)
	if err != nil {
		return nil, err
	}
	if t.started && len(t.script) > 0 {
		t.state = t.script[0]
		t.state.ID = taskID
		if len(t.script) > 1 {
			t.script = t.script[1:]
		}
	}
	ts := t.state
	return &ts, nil
}

func (f *fakeServer) GetStep(_ context.Context, taskID string, stepNr int) (*xldeploy.StepState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("step %s %d", taskID, stepNr)
	t, err := f.task(taskID)
	if err != nil {
		return nil, err
	}
	if stepNr < 1 || stepNr > len(t.steps) {
		return nil, &xldeploy.APIError{StatusCode: 404, Message: fmt.Sprintf("step %d not found", stepNr)}
	}
	s := t.steps[stepNr-1]
	return &s, nil
}

// Deployments

func (f *fakeServer) PrepareInitial(_ context.Context, versionID, environmentID string) (*xldeploy.Deployment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("prepare-initial %s %s", versionID, environmentID)
	return &xldeploy.Deployment{ID: "deployment", Type: xldeploy.DeploymentInitial}, nil
}

func (f *fakeServer) PrepareUpdate(_ context.Context, versionID, deployedApplicationID string) (*xldeploy.Deployment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("prepare-update %s %s", versionID, deployedApplicationID)
	return &xldeploy.Deployment{ID: "deployment", Type: xldeploy.DeploymentUpdate}, nil
}

func (f *fakeServer) PrepareUndeploy(_ context.Context, deployedApplicationID string) (*xldeploy.Deployment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("prepare-undeploy %s", deployedApplicationID)
	return &xldeploy.Deployment{ID: "deployment", Type: xldeploy.DeploymentUndeploy}, nil
}

func (f *fakeServer) PrepareAutoDeployeds(_ context.Context, d *xldeploy.Deployment) (*xldeploy.Deployment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("prepare-deployeds")
	out := *d
	out.Deployeds = []*xldeploy.ConfigurationItem{
		xldeploy.NewConfigurationItem("Infrastructure/host/tomcat/petclinic", "tomcat.WarModule"),
	}
	return &out, nil
}

func (f *fakeServer) Validate(_ context.Context, d *xldeploy.Deployment) (*xldeploy.Deployment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("validate")
	out := *d
	out.Deployeds = nil
	for _, dep := range d.Deployeds {
		c := *dep
		c.Validations = f.validations[dep.ID]
		out.Deployeds = append(out.Deployeds, &c)
	}
	return &out, nil
}

func (f *fakeServer) CreateTask(_ context.Context, d *xldeploy.Deployment) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := fmt.Sprintf("task-%d", len(f.tasks)+1)
	f.record("create-task %s %s", d.Type, id)
	t := f.nextTask
	if t == nil {
		t = executedTask()
	}
	f.nextTask = nil
	t.state.ID = id
	f.tasks[id] = t
	return id, nil
}

// Packages

func (f *fakeServer) ImportPackage(_ context.Context, darPath string) (*xldeploy.ConfigurationItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("import %s", darPath)
	f.imported = append(f.imported, darPath)
	return xldeploy.NewConfigurationItem("Applications/petclinic/1.0", "udm.DeploymentPackage"), nil
}

// executedTask is a two-step task that runs to EXECUTED.
func executedTask() *fakeTask {
	return &fakeTask{
		state: xldeploy.TaskState{Description: "Deploy petclinic", State: xldeploy.TaskPending, NrSteps: 2},
		steps: []xldeploy.StepState{
			{Description: "Copy petclinic.war", State: "PENDING"},
			{Description: "Start tomcat", State: "PENDING"},
		},
		script: []xldeploy.TaskState{
			{Description: "Deploy petclinic", State: xldeploy.TaskQueued, NrSteps: 2},
			{Description: "Deploy petclinic", State: xldeploy.TaskExecuting, CurrentStep: 1, NrSteps: 2},
			{Description: "Deploy petclinic", State: xldeploy.TaskExecuting, CurrentStep: 2, NrSteps: 2},
			{Description: "Deploy petclinic", State: xldeploy.TaskExecuted, CurrentStep: 2, NrSteps: 2},
		},
	}
}

// stoppedTask is a task whose second step fails.
func stoppedTask() *fakeTask {
	t := executedTask()
	t.steps[1] = xldeploy.StepState{Description: "Start tomcat", State: "FAILED", Log: "connection refused", FailureCount: 1}
	t.script[3].State = xldeploy.TaskStopped
	return t
}

type logLine struct {
	level string
	msg   string
}

// recordingLogger keeps every line for assertions.
type recordingLogger struct {
	mu    sync.Mutex
	lines []logLine
}

var _ logging.Logger = (*recordingLogger)(nil)

func (r *recordingLogger) add(level, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, logLine{level: level, msg: msg})
}

func (r *recordingLogger) Debug(_ context.Context, msg string, _ ...logging.Fields) { r.add("debug", msg) }
func (r *recordingLogger) Info(_ context.Context, msg string, _ ...logging.Fields)  { r.add("info", msg) }
func (r *recordingLogger) Warn(_ context.Context, msg string, _ ...logging.Fields)  { r.add("warn", msg) }

func (r *recordingLogger) messages(level string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, l := range r.lines {
		if level == "" || l.level == level {
			out = append(out, l.msg)
		}
	}
	return out
}

func (r *recordingLogger) contains(msg string) bool {
	for _, m := range r.messages("") {
		if m == msg {
			return true
		}
	}
	return false
}
