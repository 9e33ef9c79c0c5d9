package sandbox

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/bytedance/sonic"
)

type fakeContainer struct {
	ID      string
	Name    string
	Spec    ContainerSpec
	Running bool
	Exited  bool
}

// fakeEngine is an in-memory stand-in for the Docker Engine API.
type fakeEngine struct {
	mu         sync.Mutex
	containers map[string]*fakeContainer
	nextID     int
	pingStatus int
	// failures maps a route name to a status code to return instead.
	failures map[string]int
	// exitOnStart makes started containers exit immediately.
	exitOnStart bool
	execExit    int
	execCmds    [][]string
	calls       map[string]int
}

func newFakeEngine(t *testing.T) (*fakeEngine, *httptest.Server) {
	t.Helper()
	f := &fakeEngine{
		containers: make(map[string]*fakeContainer),
		pingStatus: http.StatusOK,
		failures:   make(map[string]int),
		calls:      make(map[string]int),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /_ping", f.route("ping", f.ping))
	mux.HandleFunc("POST /containers/create", f.route("create", f.create))
	mux.HandleFunc("POST /containers/{id}/start", f.route("start", f.start))
	mux.HandleFunc("GET /containers/{id}/json", f.route("inspect", f.inspect))
	mux.HandleFunc("POST /containers/{id}/exec", f.route("exec", f.execCreate))
	mux.HandleFunc("POST /exec/{id}/start", f.route("exec-start", f.execStart))
	mux.HandleFunc("GET /exec/{id}/json", f.route("exec-inspect", f.execInspect))
	mux.HandleFunc("POST /containers/{id}/stop", f.route("stop", f.stop))
	mux.HandleFunc("DELETE /containers/{id}", f.route("remove", f.remove))
	mux.HandleFunc("GET /containers/json", f.route("list", f.list))

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeEngine) route(name string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.calls[name]++
		status, fail := f.failures[name]
		f.mu.Unlock()
		if fail {
			writeJSON(w, status, apiError{Message: name + " failed"})
			return
		}
		h(w, r)
	}
}

func (f *fakeEngine) setFailure(route string, status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[route] = status
}

func (f *fakeEngine) callCount(route string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[route]
}

func (f *fakeEngine) live() []*fakeContainer {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*fakeContainer
	for _, c := range f.containers {
		out = append(out, c)
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, _ := sonic.Marshal(v)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func (f *fakeEngine) ping(w http.ResponseWriter, _ *http.Request) {
	f.mu.Lock()
	status := f.pingStatus
	f.mu.Unlock()
	w.WriteHeader(status)
	_, _ = io.WriteString(w, "OK")
}

func (f *fakeEngine) create(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	var spec ContainerSpec
	if err := sonic.Unmarshal(body, &spec); err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Message: err.Error()})
		return
	}
	f.mu.Lock()
	f.nextID++
	c := &fakeContainer{ID: fmt.Sprintf("c%04d", f.nextID), Name: r.URL.Query().Get("name"), Spec: spec}
	f.containers[c.ID] = c
	f.mu.Unlock()
	writeJSON(w, http.StatusCreated, idResponse{ID: c.ID})
}

func (f *fakeEngine) lookup(w http.ResponseWriter, r *http.Request) *fakeContainer {
	c, ok := f.containers[r.PathValue("id")]
	if !ok {
		writeJSON(w, http.StatusNotFound, apiError{Message: "No such container: " + r.PathValue("id")})
		return nil
	}
	return c
}

func (f *fakeEngine) start(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.lookup(w, r)
	if c == nil {
		return
	}
	if f.exitOnStart {
		c.Exited = true
	} else {
		c.Running = true
	}
	w.WriteHeader(http.StatusNoContent)
}

func (f *fakeEngine) inspect(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.lookup(w, r)
	if c == nil {
		return
	}
	state := ContainerState{Status: "created", Running: c.Running}
	if c.Running {
		state.Status = "running"
	}
	if c.Exited {
		state.Status = "exited"
		state.ExitCode = 127
	}
	writeJSON(w, http.StatusOK, inspectResponse{ID: c.ID, State: state})
}

func (f *fakeEngine) execCreate(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	var cfg execConfig
	_ = sonic.Unmarshal(body, &cfg)
	f.mu.Lock()
	defer f.mu.Unlock()
	if c := f.lookup(w, r); c == nil {
		return
	}
	f.execCmds = append(f.execCmds, cfg.Cmd)
	writeJSON(w, http.StatusCreated, idResponse{ID: "exec1"})
}

func (f *fakeEngine) execStart(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (f *fakeEngine) execInspect(w http.ResponseWriter, _ *http.Request) {
	f.mu.Lock()
	code := f.execExit
	f.mu.Unlock()
	writeJSON(w, http.StatusOK, execInspect{Running: false, ExitCode: code})
}

func (f *fakeEngine) stop(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.lookup(w, r)
	if c == nil {
		return
	}
	if !c.Running {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	c.Running = false
	w.WriteHeader(http.StatusNoContent)
}

func (f *fakeEngine) remove(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c := f.lookup(w, r); c == nil {
		return
	}
	delete(f.containers, r.PathValue("id"))
	w.WriteHeader(http.StatusNoContent)
}

func (f *fakeEngine) list(w http.ResponseWriter, r *http.Request) {
	var filters map[string][]string
	_ = sonic.UnmarshalString(r.URL.Query().Get("filters"), &filters)
	label := ""
	if l := filters["label"]; len(l) > 0 {
		label = l[0]
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	out := []ContainerSummary{}
	for _, c := range f.containers {
		if _, ok := c.Spec.Labels[label]; ok {
			out = append(out, ContainerSummary{ID: c.ID, Names: []string{"/" + c.Name}, Labels: c.Spec.Labels})
		}
	}
	writeJSON(w, http.StatusOK, out)
}
