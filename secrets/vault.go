// Package secrets loads deployment secrets (bus credentials, Postgres
// DSNs, JWKS bearer tokens) from HashiCorp Vault, adapted from the
// teacher's packages/go-core/config/vault.go for alchemist-core's own
// error taxonomy and secret shapes.
package secrets

import (
	"github.com/hashicorp/vault/api"

	"github.com/arc-self/alchemist-core/alerr"
)

// Manager wraps a Vault API client for reading secrets.
type Manager struct {
	client *api.Client
}

// NewManager builds a Manager pointed at address, authenticated with
// token.
func NewManager(address, token string) (*Manager, error) {
	cfg := api.DefaultConfig()
	cfg.Address = address

	client, err := api.NewClient(cfg)
	if err != nil {
		return nil, alerr.Wrap(alerr.KindTransport, "secrets.NewManager", err)
	}
	client.SetToken(token)

	return &Manager{client: client}, nil
}

// GetSecret reads the raw data map at path. For KV v2 backends the caller
// must unwrap the nested "data" key — see GetKV2.
func (m *Manager) GetSecret(path string) (map[string]interface{}, error) {
	secret, err := m.client.Logical().Read(path)
	if err != nil {
		return nil, alerr.Wrap(alerr.KindTransport, "secrets.GetSecret", err)
	}
	if secret == nil || secret.Data == nil {
		return nil, alerr.New(alerr.KindNotFound, "secrets.GetSecret: "+path)
	}
	return secret.Data, nil
}

// GetKV2 reads path from a KV v2 backend and unwraps its "data" envelope.
func (m *Manager) GetKV2(path string) (map[string]interface{}, error) {
	raw, err := m.GetSecret(path)
	if err != nil {
		return nil, err
	}
	data, ok := raw["data"].(map[string]interface{})
	if !ok {
		return nil, alerr.New(alerr.KindTransport, "secrets.GetKV2: unexpected data format at "+path)
	}
	return data, nil
}

// BusCredentials is the shape stored at a deployment's bus credential
// path: a NATS .creds file body plus the leaf-to-hub remote URL, read
// together so a config reload always gets a consistent pair.
type BusCredentials struct {
	CredsFileContents string
	HubURL            string
}

// GetBusCredentials reads a BusCredentials pair from a KV v2 path.
func (m *Manager) GetBusCredentials(path string) (BusCredentials, error) {
	data, err := m.GetKV2(path)
	if err != nil {
		return BusCredentials{}, err
	}
	creds, _ := data["creds"].(string)
	hubURL, _ := data["hub_url"].(string)
	if creds == "" || hubURL == "" {
		return BusCredentials{}, alerr.New(alerr.KindNotFound, "secrets.GetBusCredentials: incomplete at "+path)
	}
	return BusCredentials{CredsFileContents: creds, HubURL: hubURL}, nil
}
