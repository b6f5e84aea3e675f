package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
)

// CloudflareClient manages Tunnel public hostnames and DNS records for
// site routing.
type CloudflareClient struct {
	baseURL    string
	accountID  string
	tunnelID   string
	apiToken   string
	httpClient *http.Client
	log        *zap.Logger
}

func NewCloudflareClient(baseURL, accountID, tunnelID, apiToken string, log *zap.Logger) *CloudflareClient {
	return &CloudflareClient{
		baseURL:   baseURL,
		accountID: accountID,
		tunnelID:  tunnelID,
		apiToken:  apiToken,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		log: log,
	}
}

// IngressRule is one tunnel ingress entry. The final rule in a tunnel
// configuration is the catch-all and has no hostname.
type IngressRule struct {
	Hostname      string         `json:"hostname,omitempty"`
	Service       string         `json:"service"`
	OriginRequest *OriginRequest `json:"originRequest,omitempty"`
}

type OriginRequest struct {
	HTTPHostHeader string `json:"httpHostHeader,omitempty"`
}

// TunnelConfig is the ingress portion of a tunnel configuration.
type TunnelConfig struct {
	Ingress []IngressRule `json:"ingress"`
}

type tunnelConfigResult struct {
	Config TunnelConfig `json:"config"`
}

type dnsRecord struct {
	ID      string `json:"id,omitempty"`
	Type    string `json:"type"`
	Name    string `json:"name"`
	Content string `json:"content"`
	Proxied bool   `json:"proxied"`
	TTL     int    `json:"ttl"`
}

type zoneResult struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type apiEnvelope struct {
	Success bool            `json:"success"`
	Errors  []apiError      `json:"errors"`
	Result  json.RawMessage `json:"result"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (c *CloudflareClient) do(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var envelope apiEnvelope
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return fmt.Errorf("decode response: %w (body: %s)", err, string(respBody))
	}

	if resp.StatusCode >= 400 || !envelope.Success {
		return fmt.Errorf("cloudflare api returned status %d: %v", resp.StatusCode, envelope.Errors)
	}

	if result != nil {
		if err := json.Unmarshal(envelope.Result, result); err != nil {
			return fmt.Errorf("decode result: %w", err)
		}
	}
	return nil
}

func (c *CloudflareClient) tunnelConfigPath() string {
	return fmt.Sprintf("/accounts/%s/cfd_tunnel/%s/configurations", c.accountID, c.tunnelID)
}

// GetTunnelConfig fetches the current tunnel ingress configuration.
func (c *CloudflareClient) GetTunnelConfig(ctx context.Context) (*TunnelConfig, error) {
	var result tunnelConfigResult
	if err := c.do(ctx, http.MethodGet, c.tunnelConfigPath(), nil, &result); err != nil {
		return nil, err
	}
	return &result.Config, nil
}

func (c *CloudflareClient) putTunnelConfig(ctx context.Context, cfg *TunnelConfig) error {
	body := map[string]interface{}{"config": cfg}
	return c.do(ctx, http.MethodPut, c.tunnelConfigPath(), body, nil)
}

// AddPublicHostname inserts an ingress rule for hostname before the
// catch-all rule. Adding an existing hostname is a no-op.
func (c *CloudflareClient) AddPublicHostname(ctx context.Context, hostname, service string) error {
	cfg, err := c.GetTunnelConfig(ctx)
	if err != nil {
		return fmt.Errorf("get tunnel config: %w", err)
	}
	if len(cfg.Ingress) == 0 {
		return fmt.Errorf("tunnel has no ingress rules (missing catch-all)")
	}

	for _, rule := range cfg.Ingress[:len(cfg.Ingress)-1] {
		if rule.Hostname == hostname {
			c.log.Warn("hostname already present in tunnel configuration", zap.String("hostname", hostname))
			return nil
		}
	}

	catchAll := cfg.Ingress[len(cfg.Ingress)-1]
	rules := append(cfg.Ingress[:len(cfg.Ingress)-1:len(cfg.Ingress)-1], IngressRule{
		Hostname:      hostname,
		Service:       service,
		OriginRequest: &OriginRequest{HTTPHostHeader: hostname},
	}, catchAll)

	if err := c.putTunnelConfig(ctx, &TunnelConfig{Ingress: rules}); err != nil {
		return fmt.Errorf("update tunnel config: %w", err)
	}

	c.log.Info("public hostname added", zap.String("hostname", hostname), zap.String("service", service))
	return nil
}

// RemovePublicHostname drops the ingress rule for hostname. A missing
// hostname is a no-op.
func (c *CloudflareClient) RemovePublicHostname(ctx context.Context, hostname string) error {
	cfg, err := c.GetTunnelConfig(ctx)
	if err != nil {
		return fmt.Errorf("get tunnel config: %w", err)
	}
	if len(cfg.Ingress) == 0 {
		return nil
	}

	catchAll := cfg.Ingress[len(cfg.Ingress)-1]
	var rules []IngressRule
	found := false
	for _, rule := range cfg.Ingress[:len(cfg.Ingress)-1] {
		if rule.Hostname == hostname {
			found = true
			continue
		}
		rules = append(rules, rule)
	}
	if !found {
		c.log.Warn("hostname not present in tunnel configuration", zap.String("hostname", hostname))
		return nil
	}
	rules = append(rules, catchAll)

	if err := c.putTunnelConfig(ctx, &TunnelConfig{Ingress: rules}); err != nil {
		return fmt.Errorf("update tunnel config: %w", err)
	}

	c.log.Info("public hostname removed", zap.String("hostname", hostname))
	return nil
}

// GetZoneID looks up the DNS zone for a base domain.
func (c *CloudflareClient) GetZoneID(ctx context.Context, domain string) (string, error) {
	var zones []zoneResult
	path := "/zones?name=" + url.QueryEscape(domain)
	if err := c.do(ctx, http.MethodGet, path, nil, &zones); err != nil {
		return "", err
	}
	if len(zones) == 0 {
		return "", fmt.Errorf("zone not found: %s", domain)
	}
	return zones[0].ID, nil
}

// CreateDNSRecord creates a proxied CNAME pointing hostname at the tunnel
// endpoint.
func (c *CloudflareClient) CreateDNSRecord(ctx context.Context, zoneID, hostname string) error {
	record := dnsRecord{
		Type:    "CNAME",
		Name:    hostname,
		Content: c.tunnelID + ".cfargotunnel.com",
		Proxied: true,
		TTL:     1, // auto when proxied
	}

	path := fmt.Sprintf("/zones/%s/dns_records", zoneID)
	if err := c.do(ctx, http.MethodPost, path, record, nil); err != nil {
		return err
	}

	c.log.Info("dns record created",
		zap.String("hostname", hostname),
		zap.String("target", record.Content))
	return nil
}

// FindDNSRecord returns the record ID for hostname, or "" when absent.
func (c *CloudflareClient) FindDNSRecord(ctx context.Context, zoneID, hostname string) (string, error) {
	var records []dnsRecord
	path := fmt.Sprintf("/zones/%s/dns_records?name=%s", zoneID, url.QueryEscape(hostname))
	if err := c.do(ctx, http.MethodGet, path, nil, &records); err != nil {
		return "", err
	}
	if len(records) == 0 {
		return "", nil
	}
	return records[0].ID, nil
}

// DeleteDNSRecord removes a DNS record by ID.
func (c *CloudflareClient) DeleteDNSRecord(ctx context.Context, zoneID, recordID string) error {
	path := fmt.Sprintf("/zones/%s/dns_records/%s", zoneID, recordID)
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// SetupRouting exposes hostname through the tunnel and creates its DNS
// record, using baseDomain for the zone lookup.
func (c *CloudflareClient) SetupRouting(ctx context.Context, hostname, baseDomain, service string) error {
	if err := c.AddPublicHostname(ctx, hostname, service); err != nil {
		return fmt.Errorf("add public hostname: %w", err)
	}

	zoneID, err := c.GetZoneID(ctx, baseDomain)
	if err != nil {
		return fmt.Errorf("get zone id: %w", err)
	}

	if err := c.CreateDNSRecord(ctx, zoneID, hostname); err != nil {
		return fmt.Errorf("create dns record: %w", err)
	}

	c.log.Info("site routing configured", zap.String("hostname", hostname))
	return nil
}

// TeardownRouting removes the tunnel hostname and DNS record for a site.
func (c *CloudflareClient) TeardownRouting(ctx context.Context, hostname, baseDomain string) error {
	if err := c.RemovePublicHostname(ctx, hostname); err != nil {
		return fmt.Errorf("remove public hostname: %w", err)
	}

	zoneID, err := c.GetZoneID(ctx, baseDomain)
	if err != nil {
		return fmt.Errorf("get zone id: %w", err)
	}

	recordID, err := c.FindDNSRecord(ctx, zoneID, hostname)
	if err != nil {
		return fmt.Errorf("find dns record: %w", err)
	}
	if recordID == "" {
		return nil
	}

	if err := c.DeleteDNSRecord(ctx, zoneID, recordID); err != nil {
		return fmt.Errorf("delete dns record: %w", err)
	}

	c.log.Info("site routing removed", zap.String("hostname", hostname))
	return nil
}
