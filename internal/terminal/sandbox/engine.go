package sandbox

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
)

// errNotFound marks a 404 from the engine.
var errNotFound = errors.New("not found")

// apiError is the error body returned by the Docker Engine API.
type apiError struct {
	Message string `json:"message"`
}

// EngineClient is a minimal Docker Engine API client.
type EngineClient struct {
	http *resty.Client
}

// NewEngineClient creates a client for host, which is either a unix socket
// (unix:///var/run/docker.sock) or a TCP endpoint (tcp://host:2375 or http://host:2375).
func NewEngineClient(host string) (*EngineClient, error) {
	u, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("parse docker host %q: %w", host, err)
	}

	// pooled transport from retryablehttp, as used for every outbound client
	retryClient := retryablehttp.NewClient()
	retryClient.Logger = nil
	transport, ok := retryClient.HTTPClient.Transport.(*http.Transport)
	if !ok {
		transport = http.DefaultTransport.(*http.Transport).Clone()
	}

	var baseURL string
	switch u.Scheme {
	case "unix":
		socket := u.Path
		transport.DialContext = func(ctx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", socket)
		}
		baseURL = "http://docker"
	case "tcp", "http":
		baseURL = "http://" + u.Host
	default:
		return nil, fmt.Errorf("unsupported docker host scheme %q", u.Scheme)
	}

	client := resty.New().
		SetBaseURL(baseURL).
		SetTransport(transport).
		SetTimeout(30*time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(200*time.Millisecond).
		SetRetryMaxWaitTime(2*time.Second).
		SetJSONMarshaler(sonic.Marshal).
		SetJSONUnmarshaler(sonic.Unmarshal).
		SetHeader("User-Agent", "ide-terminal/1.0")

	return &EngineClient{http: client}, nil
}

// ContainerSpec is the subset of the create request the provisioner uses.
type ContainerSpec struct {
	Image      string            `json:"Image"`
	Cmd        []string          `json:"Cmd"`
	WorkingDir string            `json:"WorkingDir"`
	Env        []string          `json:"Env,omitempty"`
	Labels     map[string]string `json:"Labels"`
	HostConfig HostConfig        `json:"HostConfig"`
}

// HostConfig carries the isolation settings of a sandbox container.
type HostConfig struct {
	Binds       []string `json:"Binds"`
	NetworkMode string   `json:"NetworkMode,omitempty"`
	Memory      int64    `json:"Memory,omitempty"`
	PidsLimit   int64    `json:"PidsLimit,omitempty"`
	CapDrop     []string `json:"CapDrop"`
	SecurityOpt []string `json:"SecurityOpt"`
	Init        bool     `json:"Init"`
}

// ContainerState is the State object of an inspect response.
type ContainerState struct {
	Status   string `json:"Status"`
	Running  bool   `json:"Running"`
	ExitCode int    `json:"ExitCode"`
	Error    string `json:"Error"`
}

// ContainerSummary is one entry of a container list.
type ContainerSummary struct {
	ID     string            `json:"Id"`
	Names  []string          `json:"Names"`
	Labels map[string]string `json:"Labels"`
	State  string            `json:"State"`
}

type idResponse struct {
	ID string `json:"Id"`
}

type inspectResponse struct {
	ID    string         `json:"Id"`
	State ContainerState `json:"State"`
}

type execConfig struct {
	Cmd          []string `json:"Cmd"`
	WorkingDir   string   `json:"WorkingDir,omitempty"`
	AttachStdout bool     `json:"AttachStdout"`
	AttachStderr bool     `json:"AttachStderr"`
}

type execInspect struct {
	Running  bool `json:"Running"`
	ExitCode int  `json:"ExitCode"`
}

// Ping checks that the engine answers.
func (c *EngineClient) Ping(ctx context.Context) error {
	resp, err := c.http.R().SetContext(ctx).Get("/_ping")
	return check(resp, err, "ping")
}

// CreateContainer creates a container and returns its id.
func (c *EngineClient) CreateContainer(ctx context.Context, name string, spec ContainerSpec) (string, error) {
	var out idResponse
	resp, err := c.http.R().SetContext(ctx).
		SetQueryParam("name", name).
		SetBody(spec).
		SetResult(&out).
		Post("/containers/create")
	if err := check(resp, err, "create container"); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", fmt.Errorf("create container: empty id in response")
	}
	return out.ID, nil
}

// StartContainer starts a created container.
func (c *EngineClient) StartContainer(ctx context.Context, id string) error {
	resp, err := c.http.R().SetContext(ctx).
		SetPathParam("id", id).
		Post("/containers/{id}/start")
	if resp != nil && resp.StatusCode() == http.StatusNotModified {
		return nil
	}
	return check(resp, err, "start container")
}

// InspectContainer returns the container state.
func (c *EngineClient) InspectContainer(ctx context.Context, id string) (ContainerState, error) {
	var out inspectResponse
	resp, err := c.http.R().SetContext(ctx).
		SetPathParam("id", id).
		SetResult(&out).
		Get("/containers/{id}/json")
	if err := check(resp, err, "inspect container"); err != nil {
		return ContainerState{}, err
	}
	return out.State, nil
}

// Exec runs cmd inside a running container and waits for its exit code.
func (c *EngineClient) Exec(ctx context.Context, id string, cmd []string, workdir string, poll time.Duration) (int, error) {
	var created idResponse
	resp, err := c.http.R().SetContext(ctx).
		SetPathParam("id", id).
		SetBody(execConfig{Cmd: cmd, WorkingDir: workdir}).
		SetResult(&created).
		Post("/containers/{id}/exec")
	if err := check(resp, err, "create exec"); err != nil {
		return 0, err
	}

	resp, err = c.http.R().SetContext(ctx).
		SetPathParam("exec", created.ID).
		SetBody(map[string]bool{"Detach": true, "Tty": false}).
		Post("/exec/{exec}/start")
	if err := check(resp, err, "start exec"); err != nil {
		return 0, err
	}

	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	for {
		var state execInspect
		resp, err = c.http.R().SetContext(ctx).
			SetPathParam("exec", created.ID).
			SetResult(&state).
			Get("/exec/{exec}/json")
		if err := check(resp, err, "inspect exec"); err != nil {
			return 0, err
		}
		if !state.Running {
			return state.ExitCode, nil
		}
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-ticker.C:
		}
	}
}

// StopContainer stops a container with a grace period in seconds. A missing
// or already stopped container is not an error.
func (c *EngineClient) StopContainer(ctx context.Context, id string, grace int) error {
	resp, err := c.http.R().SetContext(ctx).
		SetPathParam("id", id).
		SetQueryParam("t", fmt.Sprint(grace)).
		Post("/containers/{id}/stop")
	if resp != nil && resp.StatusCode() == http.StatusNotModified {
		return nil
	}
	if err := check(resp, err, "stop container"); err != nil && !errors.Is(err, errNotFound) {
		return err
	}
	return nil
}

// RemoveContainer force-removes a container and its anonymous volumes. A
// missing container is not an error.
func (c *EngineClient) RemoveContainer(ctx context.Context, id string) error {
	resp, err := c.http.R().SetContext(ctx).
		SetPathParam("id", id).
		SetQueryParams(map[string]string{"force": "1", "v": "1"}).
		Delete("/containers/{id}")
	if err := check(resp, err, "remove container"); err != nil && !errors.Is(err, errNotFound) {
		return err
	}
	return nil
}

// ListByLabel lists all containers, running or not, that carry label.
func (c *EngineClient) ListByLabel(ctx context.Context, label string) ([]ContainerSummary, error) {
	filters, err := sonic.MarshalString(map[string][]string{"label": {label}})
	if err != nil {
		return nil, err
	}
	var out []ContainerSummary
	resp, err := c.http.R().SetContext(ctx).
		SetQueryParams(map[string]string{"all": "1", "filters": filters}).
		SetResult(&out).
		Get("/containers/json")
	if err := check(resp, err, "list containers"); err != nil {
		return nil, err
	}
	return out, nil
}

func check(resp *resty.Response, err error, op string) error {
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if resp.IsSuccess() {
		return nil
	}

	msg := strings.TrimSpace(resp.String())
	var body apiError
	if sonic.Unmarshal(resp.Body(), &body) == nil && body.Message != "" {
		msg = body.Message
	}
	if resp.StatusCode() == http.StatusNotFound {
		return fmt.Errorf("%s: %w: %s", op, errNotFound, msg)
	}
	return fmt.Errorf("%s: engine returned %d: %s", op, resp.StatusCode(), msg)
}
