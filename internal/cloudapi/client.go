// Copyright 2026 The ScaleCI Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cloudapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/scaleci/fleet/internal/httpx"
	"github.com/scaleci/fleet/internal/model"
)

// HTTPProvider is a thin REST client over the cloud provider's server,
// SSH-key, and server-type endpoints, built the way the teacher's
// internal/promapi wraps a REST API: one method per operation, typed
// request/response structs, errors wrapped with operation context.
type HTTPProvider struct {
	BaseURL string
	Token   string
	HTTP    *httpx.Client
	Naming  LabelNaming
}

func (p *HTTPProvider) do(ctx context.Context, method, path string, body, out any) error {
	var raw []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
		raw = b
	}

	req, err := http.NewRequestWithContext(ctx, method, p.BaseURL+path, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("building request %s %s: %w", method, path, err)
	}
	req.Header.Set("Authorization", "Bearer "+p.Token)
	req.Header.Set("Content-Type", "application/json")
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(raw)), nil
	}

	resp, err := p.HTTP.Do(ctx, req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return classifyStatus(resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func classifyStatus(status int) error {
	switch status {
	case http.StatusConflict, http.StatusForbidden:
		return &MaxServersError{Reason: fmt.Sprintf("http status %d", status)}
	default:
		return fmt.Errorf("cloud API returned status %d", status)
	}
}

type serverDTO struct {
	Name      string            `json:"name"`
	Type      string            `json:"server_type"`
	Location  string            `json:"location"`
	Status    string            `json:"status"`
	CreatedAt time.Time         `json:"created"`
	Labels    map[string]string `json:"labels"`
	PublicNet struct {
		IPv4 *struct{} `json:"ipv4"`
		IPv6 *struct{} `json:"ipv6"`
	} `json:"public_net"`
}

func (d serverDTO) toServer(naming LabelNaming) model.Server {
	return model.Server{
		Name:           d.Name,
		Type:           d.Type,
		Location:       d.Location,
		Net:            model.NetConfig{IPv4: d.PublicNet.IPv4 != nil, IPv6: d.PublicNet.IPv6 != nil},
		Labels:         naming.ParseLabels(d.Labels),
		SSHFingerprint: naming.SSHFingerprintOf(d.Labels),
		State:          serverState(d.Status),
		CreatedAt:      d.CreatedAt,
	}
}

func serverState(status string) model.ServerState {
	switch status {
	case "running":
		return model.ServerRunning
	case "off":
		return model.ServerOff
	default:
		return model.ServerStarting
	}
}

func (p *HTTPProvider) CreateServer(ctx context.Context, req CreateServerRequest) (model.Server, error) {
	var out serverDTO
	if err := p.do(ctx, http.MethodPost, "/servers", req, &out); err != nil {
		return model.Server{}, err
	}
	return out.toServer(p.Naming), nil
}

func (p *HTTPProvider) ListServers(ctx context.Context, activeLabel string) ([]model.Server, error) {
	var out []serverDTO
	path := fmt.Sprintf("/servers?label_selector=%s", activeLabel)
	if err := p.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	servers := make([]model.Server, 0, len(out))
	for _, d := range out {
		servers = append(servers, d.toServer(p.Naming))
	}
	return servers, nil
}

func (p *HTTPProvider) DeleteServer(ctx context.Context, name string) error {
	return p.do(ctx, http.MethodDelete, "/servers/"+name, nil, nil)
}

func (p *HTTPProvider) PowerOffServer(ctx context.Context, name string) error {
	return p.do(ctx, http.MethodPost, "/servers/"+name+"/poweroff", nil, nil)
}

func (p *HTTPProvider) UpdateServer(ctx context.Context, name, newName string, labels map[string]string) error {
	body := struct {
		Name   string            `json:"name"`
		Labels map[string]string `json:"labels"`
	}{Name: newName, Labels: labels}
	return p.do(ctx, http.MethodPut, "/servers/"+name, body, nil)
}

func (p *HTTPProvider) RebuildServer(ctx context.Context, name string, image model.Image) error {
	body := struct {
		Image string `json:"image"`
	}{Image: image.Name}
	return p.do(ctx, http.MethodPost, "/servers/"+name+"/rebuild", body, nil)
}

func (p *HTTPProvider) GetSSHKeyByFingerprint(ctx context.Context, fingerprint string) (*SSHKey, error) {
	var out SSHKey
	if err := p.do(ctx, http.MethodGet, "/ssh_keys?fingerprint="+fingerprint, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (p *HTTPProvider) CreateSSHKey(ctx context.Context, name, publicKey string) (*SSHKey, error) {
	body := struct {
		Name      string `json:"name"`
		PublicKey string `json:"public_key"`
	}{Name: name, PublicKey: publicKey}
	var out SSHKey
	if err := p.do(ctx, http.MethodPost, "/ssh_keys", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (p *HTTPProvider) ListServerTypePrices(ctx context.Context) ([]ServerTypePrice, error) {
	var out []ServerTypePrice
	if err := p.do(ctx, http.MethodGet, "/server_types", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}
