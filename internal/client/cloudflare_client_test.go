package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// stubCloudflare emulates the handful of API endpoints the client uses:
// tunnel configuration, zone lookup and DNS record CRUD.
type stubCloudflare struct {
	t       *testing.T
	ingress []IngressRule
	zones   map[string]string // name -> id
	records map[string][]dnsRecord
	nextID  int
}

func newStubCloudflare(t *testing.T) *stubCloudflare {
	return &stubCloudflare{
		t:       t,
		ingress: []IngressRule{{Service: "http_status:404"}}, // catch-all only
		zones:   map[string]string{"example.com": "zone-1"},
		records: map[string][]dnsRecord{},
	}
}

func envelope(result interface{}) []byte {
	raw, _ := json.Marshal(result)
	out, _ := json.Marshal(map[string]interface{}{
		"success": true,
		"errors":  []interface{}{},
		"result":  json.RawMessage(raw),
	})
	return out
}

func (s *stubCloudflare) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/accounts/acc-1/cfd_tunnel/tun-1/configurations", func(w http.ResponseWriter, r *http.Request) {
		if auth := r.Header.Get("Authorization"); auth != "Bearer token-1" {
			s.t.Errorf("unexpected authorization header %q", auth)
		}
		switch r.Method {
		case http.MethodGet:
			w.Write(envelope(tunnelConfigResult{Config: TunnelConfig{Ingress: s.ingress}}))
		case http.MethodPut:
			var body struct {
				Config TunnelConfig `json:"config"`
			}
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				s.t.Errorf("decode tunnel config: %v", err)
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			s.ingress = body.Config.Ingress
			w.Write(envelope(nil))
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})

	mux.HandleFunc("/zones", func(w http.ResponseWriter, r *http.Request) {
		name := r.URL.Query().Get("name")
		var zones []zoneResult
		if id, ok := s.zones[name]; ok {
			zones = append(zones, zoneResult{ID: id, Name: name})
		}
		w.Write(envelope(zones))
	})

	mux.HandleFunc("/zones/zone-1/dns_records", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			var rec dnsRecord
			if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
				s.t.Errorf("decode dns record: %v", err)
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			s.nextID++
			rec.ID = fmt.Sprintf("rec-%d", s.nextID)
			s.records["zone-1"] = append(s.records["zone-1"], rec)
			w.Write(envelope(rec))
		case http.MethodGet:
			name := r.URL.Query().Get("name")
			var matched []dnsRecord
			for _, rec := range s.records["zone-1"] {
				if rec.Name == name {
					matched = append(matched, rec)
				}
			}
			w.Write(envelope(matched))
		}
	})

	mux.HandleFunc("/zones/zone-1/dns_records/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		id := strings.TrimPrefix(r.URL.Path, "/zones/zone-1/dns_records/")
		kept := s.records["zone-1"][:0]
		for _, rec := range s.records["zone-1"] {
			if rec.ID != id {
				kept = append(kept, rec)
			}
		}
		s.records["zone-1"] = kept
		w.Write(envelope(nil))
	})

	return mux
}

func newTestClient(t *testing.T) (*CloudflareClient, *stubCloudflare) {
	stub := newStubCloudflare(t)
	srv := httptest.NewServer(stub.handler())
	t.Cleanup(srv.Close)

	c := NewCloudflareClient(srv.URL, "acc-1", "tun-1", "token-1", zap.NewNop())
	return c, stub
}

func TestSetupRoutingCreatesIngressAndDNS(t *testing.T) {
	c, stub := newTestClient(t)
	ctx := context.Background()

	err := c.SetupRouting(ctx, "demo.example.com", "example.com", "http://nginx:80")
	require.NoError(t, err)

	// New rule sits before the catch-all.
	require.Len(t, stub.ingress, 2)
	assert.Equal(t, "demo.example.com", stub.ingress[0].Hostname)
	assert.Equal(t, "http://nginx:80", stub.ingress[0].Service)
	require.NotNil(t, stub.ingress[0].OriginRequest)
	assert.Equal(t, "demo.example.com", stub.ingress[0].OriginRequest.HTTPHostHeader)
	assert.Empty(t, stub.ingress[1].Hostname, "catch-all stays last")

	// CNAME points at the tunnel endpoint, proxied.
	require.Len(t, stub.records["zone-1"], 1)
	rec := stub.records["zone-1"][0]
	assert.Equal(t, "CNAME", rec.Type)
	assert.Equal(t, "demo.example.com", rec.Name)
	assert.Equal(t, "tun-1.cfargotunnel.com", rec.Content)
	assert.True(t, rec.Proxied)
}

func TestAddPublicHostnameExistingIsNoOp(t *testing.T) {
	c, stub := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.AddPublicHostname(ctx, "demo.example.com", "http://nginx:80"))
	require.NoError(t, c.AddPublicHostname(ctx, "demo.example.com", "http://nginx:80"))

	assert.Len(t, stub.ingress, 2, "duplicate add must not grow the ingress list")
}

func TestAddPublicHostnameRequiresCatchAll(t *testing.T) {
	c, stub := newTestClient(t)
	stub.ingress = nil

	err := c.AddPublicHostname(context.Background(), "demo.example.com", "http://nginx:80")
	assert.ErrorContains(t, err, "catch-all")
}

func TestTeardownRoutingRemovesEverything(t *testing.T) {
	c, stub := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.SetupRouting(ctx, "demo.example.com", "example.com", "http://nginx:80"))
	require.NoError(t, c.TeardownRouting(ctx, "demo.example.com", "example.com"))

	require.Len(t, stub.ingress, 1, "only the catch-all remains")
	assert.Empty(t, stub.ingress[0].Hostname)
	assert.Empty(t, stub.records["zone-1"])
}

func TestTeardownRoutingMissingHostnameIsNoOp(t *testing.T) {
	c, _ := newTestClient(t)

	assert.NoError(t, c.TeardownRouting(context.Background(), "ghost.example.com", "example.com"))
}

func TestGetZoneIDNotFound(t *testing.T) {
	c, _ := newTestClient(t)

	_, err := c.GetZoneID(context.Background(), "unknown.net")
	assert.ErrorContains(t, err, "zone not found")
}

func TestSetupRoutingUnknownZoneFails(t *testing.T) {
	c, stub := newTestClient(t)

	err := c.SetupRouting(context.Background(), "demo.unknown.net", "unknown.net", "http://nginx:80")
	require.Error(t, err)
	assert.ErrorContains(t, err, "zone not found")
	// Ingress rule was still added before the zone lookup failed.
	assert.Len(t, stub.ingress, 2)
}

func TestDoSurfacesAPIErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"success":false,"errors":[{"code":10000,"message":"Authentication error"}],"result":null}`))
	}))
	t.Cleanup(srv.Close)

	c := NewCloudflareClient(srv.URL, "acc-1", "tun-1", "bad-token", zap.NewNop())
	_, err := c.GetTunnelConfig(context.Background())
	require.Error(t, err)
	assert.ErrorContains(t, err, "status 403")
	assert.ErrorContains(t, err, "Authentication error")
}

func TestFindDNSRecordAbsentReturnsEmpty(t *testing.T) {
	c, _ := newTestClient(t)

	id, err := c.FindDNSRecord(context.Background(), "zone-1", "ghost.example.com")
	require.NoError(t, err)
	assert.Empty(t, id)
}
