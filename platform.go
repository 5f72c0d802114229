/*
Copyright 2025 Tablelink Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package relay

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/tablelink/relay/config"
	"github.com/tablelink/relay/internal/request"
	"github.com/tablelink/relay/model"
)

// Platform REST paths. Relative to PlatformConfig.BaseURL.
const (
	pathPullOrders = "/pos/pull-orders"
	pathAckSingle  = "/pos/orders/ack"
	pathAckBatch   = "/pos/orders/batch-ack"
	pathReceived   = "/pos/orders/received"
	pathRemoteCnf  = "/pos/config"
)

// pollTimeout bounds any single platform round trip so a stalled connection
// cannot wedge a polling cycle.
const pollTimeout = 10 * time.Second

// pullBatchSize caps how many orders one pull may return.
const pullBatchSize = 50

// PlatformClient talks to the online-ordering platform's REST surface for one
// tenant. All calls are authenticated with the tenant's static API key.
type PlatformClient struct {
	baseURL    string
	apiKey     string
	tenantSlug string
}

// NewPlatformClient builds a client from the loaded configuration.
func NewPlatformClient(conf *config.Configuration) *PlatformClient {
	return &PlatformClient{
		baseURL:    conf.Platform.BaseURL,
		apiKey:     conf.Platform.APIKey,
		tenantSlug: conf.Platform.TenantSlug,
	}
}

// pullOrdersResponse is the platform's reply to a pull.
type pullOrdersResponse struct {
	Orders []model.RemoteOrder `json:"orders"`
}

// RemoteConfig is the tenant configuration published by the platform. Fields
// the relay does not understand are ignored.
type RemoteConfig struct {
	TenantSlug            string `json:"tenantSlug"`
	AutoPrint             *bool  `json:"autoPrint,omitempty"`
	FallbackPaymentMethod string `json:"fallbackPaymentMethod,omitempty"`
	PollingIntervalSec    int    `json:"pollingIntervalSec,omitempty"`
}

// PullOrders fetches confirmed orders created after the given high-water
// mark. A zero mark fetches the platform's default recent window. Draft and
// unconfirmed orders stay on the platform until a customer commits to them.
func (c *PlatformClient) PullOrders(ctx context.Context, since time.Time) ([]model.RemoteOrder, error) {
	q := url.Values{}
	q.Set("tenant", c.tenantSlug)
	q.Set("status", "confirmed")
	q.Set("limit", strconv.Itoa(pullBatchSize))
	if !since.IsZero() {
		q.Set("since", since.UTC().Format(time.RFC3339))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s%s?%s", c.baseURL, pathPullOrders, q.Encode()), nil)
	if err != nil {
		return nil, errors.Wrap(err, "building pull request")
	}
	request.SetAPIKey(req, c.apiKey)

	var response pullOrdersResponse
	resp, err := request.CallWithTimeout(req, &response, pollTimeout)
	if err != nil {
		return nil, errors.Wrap(err, "pulling orders")
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, errors.Errorf("pull orders: platform returned %d", resp.StatusCode)
	}
	return response.Orders, nil
}

// SendAck reports one order acknowledgment to the platform.
func (c *PlatformClient) SendAck(ctx context.Context, ack model.OrderAck) error {
	return c.postJSON(ctx, pathAckSingle, ack)
}

// SendReceived reports that an order reached the device, before any print
// outcome is known.
func (c *PlatformClient) SendReceived(ctx context.Context, ack model.OrderAck) error {
	return c.postJSON(ctx, pathReceived, ack)
}

// SendAckBatch delivers a batch of acknowledgments in one call.
func (c *PlatformClient) SendAckBatch(ctx context.Context, acks []model.OrderAck) error {
	if len(acks) == 0 {
		return nil
	}
	return c.postJSON(ctx, pathAckBatch, map[string]interface{}{"acks": acks})
}

// FetchRemoteConfig pulls the tenant configuration from the platform.
func (c *PlatformClient) FetchRemoteConfig(ctx context.Context) (*RemoteConfig, error) {
	q := url.Values{}
	q.Set("tenant", c.tenantSlug)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s%s?%s", c.baseURL, pathRemoteCnf, q.Encode()), nil)
	if err != nil {
		return nil, errors.Wrap(err, "building config request")
	}
	request.SetAPIKey(req, c.apiKey)

	var remote RemoteConfig
	resp, err := request.CallWithTimeout(req, &remote, pollTimeout)
	if err != nil {
		return nil, errors.Wrap(err, "fetching remote config")
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, errors.Errorf("remote config: platform returned %d", resp.StatusCode)
	}
	return &remote, nil
}

// Ping probes the REST surface and returns the round-trip latency.
func (c *PlatformClient) Ping(ctx context.Context, timeout time.Duration) (time.Duration, error) {
	q := url.Values{}
	q.Set("tenant", c.tenantSlug)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s%s?%s", c.baseURL, pathRemoteCnf, q.Encode()), nil)
	if err != nil {
		return 0, err
	}
	request.SetAPIKey(req, c.apiKey)

	start := time.Now()
	resp, err := request.CallWithTimeout(req, nil, timeout)
	elapsed := time.Since(start)
	if err != nil {
		return elapsed, err
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return elapsed, errors.Errorf("platform returned %d", resp.StatusCode)
	}
	return elapsed, nil
}

func (c *PlatformClient) postJSON(ctx context.Context, path string, payload interface{}) error {
	body, err := request.ToJsonReq(payload)
	if err != nil {
		return errors.Wrap(err, "encoding payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return errors.Wrap(err, "building request")
	}
	request.SetAPIKey(req, c.apiKey)

	var response map[string]interface{}
	resp, err := request.CallWithTimeout(req, &response, pollTimeout)
	if err != nil {
		return errors.Wrapf(err, "posting to %s", path)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return errors.Errorf("%s: platform returned %d", path, resp.StatusCode)
	}
	return nil
}
