package client

import (
	"net/http"
	"net/url"

	"github.com/ValentinKolb/dCoord/lib/coord"
	"github.com/ValentinKolb/dCoord/rpc/common"
)

// Client talks to the project endpoints of one or more dCoord servers.
// Requests are spread over the endpoints via round-robin; unreachable servers
// and 503 answers are retried up to ClientConfig.RetryCount times.
type Client struct {
	*httpAdapter
}

// NewClient creates a client for the configured endpoints.
func NewClient(config common.ClientConfig) (*Client, error) {
	a, err := newHTTPAdapter(config)
	if err != nil {
		return nil, err
	}
	return &Client{a}, nil
}

// Caller returns the identity sent with every request.
func (c *Client) Caller() string { return c.caller }

func (c *Client) CreateProject(req coord.CreateProjectRequest) (common.ProjectPayload, error) {
	var out common.ProjectPayload
	err := c.invoke(http.MethodPost, "/projects", nil, req, &out)
	return out, err
}

func (c *Client) GetProject(id string) (common.ProjectPayload, error) {
	var out common.ProjectPayload
	err := c.invoke(http.MethodGet, "/projects/"+escape(id), nil, nil, &out)
	return out, err
}

func (c *Client) ListProjects() ([]coord.Project, error) {
	var out common.ProjectListPayload
	err := c.invoke(http.MethodGet, "/projects", nil, nil, &out)
	return out.Projects, err
}

func (c *Client) UpdateProject(req coord.UpdateProjectRequest) (common.ProjectPayload, error) {
	var out common.ProjectPayload
	err := c.invoke(http.MethodPut, "/projects/"+escape(req.ID), nil, req, &out)
	return out, err
}

// DeleteProject deletes a project. An empty knownLastModified skips the optimistic check.
func (c *Client) DeleteProject(id, knownLastModified string) (common.ProjectPayload, error) {
	var q url.Values
	if knownLastModified != "" {
		q = url.Values{"lastModified": {knownLastModified}}
	}
	var out common.ProjectPayload
	err := c.invoke(http.MethodDelete, "/projects/"+escape(id), q, nil, &out)
	return out, err
}

func (c *Client) RegenerateTasks(id string) (common.ProjectPayload, error) {
	var out common.ProjectPayload
	err := c.invoke(http.MethodPost, "/projects/"+escape(id)+"/tasks/regenerate", nil, nil, &out)
	return out, err
}

func (c *Client) RetryProvisioning(id string) (common.ProjectPayload, error) {
	var out common.ProjectPayload
	err := c.invoke(http.MethodPost, "/projects/"+escape(id)+"/folder", nil, nil, &out)
	return out, err
}

func (c *Client) Integrity() (common.IntegrityPayload, error) {
	var out common.IntegrityPayload
	err := c.invoke(http.MethodGet, "/integrity", nil, nil, &out)
	return out, err
}

func (c *Client) Status() (common.StatusPayload, error) {
	var out common.StatusPayload
	err := c.invoke(http.MethodGet, "/status", nil, nil, &out)
	return out, err
}
