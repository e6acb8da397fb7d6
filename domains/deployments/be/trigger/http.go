package trigger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/nimbusworks/tenant-orchestrator/domains/deployments/be/service"
)

// HTTPDeployer posts the typed job parameters to each downstream service's
// deploy/teardown hook. The hook applies that service's pre-built overlay in
// the tenant namespace; the image was built earlier on the service's own
// commit trigger, so no build happens here.
type HTTPDeployer struct {
	client *http.Client
	hooks  map[string]string
}

// NewHTTPDeployer constructs a deployer from the catalog's deploy hooks.
func NewHTTPDeployer(client *http.Client, catalog []service.Downstream) *HTTPDeployer {
	if client == nil {
		client = http.DefaultClient
	}
	hooks := make(map[string]string, len(catalog))
	for _, d := range catalog {
		hooks[d.Name] = d.DeployHook
	}
	return &HTTPDeployer{client: client, hooks: hooks}
}

func (d *HTTPDeployer) Deploy(ctx context.Context, params service.JobParams) error {
	return d.trigger(ctx, params, "deploy")
}

func (d *HTTPDeployer) Teardown(ctx context.Context, params service.JobParams) error {
	return d.trigger(ctx, params, "teardown")
}

func (d *HTTPDeployer) trigger(ctx context.Context, params service.JobParams, action string) error {
	hook, ok := d.hooks[params.Service]
	if !ok || hook == "" {
		return fmt.Errorf("no deploy hook configured for service %s", params.Service)
	}

	body, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("encode job params: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook+"/"+action, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s request: %w", action, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("trigger %s %s: %w", params.Service, action, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s returned %d: %s", params.Service, action, resp.StatusCode, detail)
	}
	return nil
}

var _ service.Deployer = (*HTTPDeployer)(nil)
