// Package chainutils contains helpers for preparing chain submissions,
// from external IP discovery for axon serving to weight conversion and
// metagraph lookups.
package chainutils

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog/log"
)

// externalIPEndpoint is a var so tests can point it at a local server.
var externalIPEndpoint = "https://api.ipify.org"

// GetExternalIP queries a public IP service and returns the external
// IPv4 address. The service is outside our control, so the request
// retries on transient failures.
func GetExternalIP(ctx context.Context) (net.IP, error) {
	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.HTTPClient.Timeout = 5 * time.Second
	client.RetryWaitMin = 500 * time.Millisecond
	client.RetryWaitMax = 5 * time.Second
	client.Logger = nil

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, externalIPEndpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		log.Error().Err(err).Msg("failed to query external IP")
		return nil, fmt.Errorf("query external ip: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			log.Error().Err(cerr).Msg("failed to close response body")
		}
	}()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Error().Err(err).Msg("failed to read ip response")
		return nil, fmt.Errorf("read ip response: %w", err)
	}

	ipStr := string(b)
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return nil, fmt.Errorf("invalid ip returned: %s", ipStr)
	}
	ip = ip.To4()
	if ip == nil {
		return nil, fmt.Errorf("non-ipv4 address returned: %s", ipStr)
	}

	return ip, nil
}

// GetExternalIPInt queries the external IP and returns it as the uint32
// the serve-axon call expects.
func GetExternalIPInt(ctx context.Context) (uint32, error) {
	ip, err := GetExternalIP(ctx)
	if err != nil {
		return 0, err
	}
	return IPv4ToInt(ip)
}

// IPv4ToInt converts an IPv4 net.IP to its big-endian uint32 form.
func IPv4ToInt(ip net.IP) (uint32, error) {
	ip4 := ip.To4()
	if ip4 == nil {
		return 0, fmt.Errorf("not an ipv4 address")
	}
	return binary.BigEndian.Uint32(ip4), nil
}

// IntToIPv4 is the inverse of IPv4ToInt.
func IntToIPv4(nn uint32) net.IP {
	ip := make(net.IP, 4)
	binary.BigEndian.PutUint32(ip, nn)
	return ip
}
