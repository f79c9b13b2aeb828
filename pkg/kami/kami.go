// Package kami provides a Bittensor subtensor client which relies on Kami as the RPC endpoint.
package kami

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog/log"

	"github.com/tensorplex-labs/kami-client/pkg/config"
)

const (
	defaultTimeout         = 15 * time.Second
	defaultMaxConns        = 256
	defaultMaxConnsPerHost = 10
	idleConnTimeout        = 90 * time.Second
)

// Kami is a client wrapper for the Kami HTTP API. The underlying session
// is created lazily on the first request and rebuilt transparently after
// Close, so a zero-downtime reconnect is just another call.
type Kami struct {
	Host    string
	Port    string
	BaseURL string

	// Pool limits for the transport. Changes take effect the next time
	// the session is (re)created.
	MaxConns        int
	MaxConnsPerHost int
	Timeout         time.Duration

	policy   RetryPolicy
	timelock TimelockEncryptor

	mu     sync.Mutex
	client *resty.Client
}

// NewKami creates a new Kami client using the provided environment configuration.
func NewKami(cfg *config.KamiEnvConfig) (*Kami, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration cannot be nil")
	}
	if cfg.KamiHost == "" {
		return nil, &ConfigError{Message: "could not resolve Kami host"}
	}
	if cfg.KamiPort == "" {
		return nil, &ConfigError{Message: "could not resolve Kami port"}
	}

	url := fmt.Sprintf("http://%s:%s", cfg.KamiHost, cfg.KamiPort)

	return &Kami{
		Host:            cfg.KamiHost,
		Port:            cfg.KamiPort,
		BaseURL:         url,
		MaxConns:        defaultMaxConns,
		MaxConnsPerHost: defaultMaxConnsPerHost,
		Timeout:         defaultTimeout,
		policy:          DefaultRetryPolicy(),
	}, nil
}

// NewKamiFromEnv resolves KAMI_HOST and KAMI_PORT from the environment,
// falling back to localhost:3000, and logs the resolved values.
func NewKamiFromEnv(ctx context.Context) (*Kami, error) {
	cfg, err := config.LoadKamiEnv(ctx)
	if err != nil {
		return nil, err
	}
	return NewKami(cfg)
}

// SetRetryPolicy replaces the retry schedule applied to every operation.
func (k *Kami) SetRetryPolicy(p RetryPolicy) {
	k.policy = p
}

// SetTimelockEncryptor wires in the time-lock primitive required for
// commit-reveal weight submission.
func (k *Kami) SetTimelockEncryptor(enc TimelockEncryptor) {
	k.timelock = enc
}

// session returns the live resty client, building the pooled transport
// on first use or after a Close.
func (k *Kami) session() *resty.Client {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.client != nil {
		return k.client
	}

	transport := &http.Transport{
		MaxIdleConns:        k.MaxConns,
		MaxConnsPerHost:     k.MaxConnsPerHost,
		MaxIdleConnsPerHost: k.MaxConnsPerHost,
		IdleConnTimeout:     idleConnTimeout,
	}

	k.client = resty.New().
		SetBaseURL(k.BaseURL).
		SetTransport(transport).
		SetJSONMarshaler(sonic.Marshal).
		SetJSONUnmarshaler(sonic.Unmarshal).
		SetTimeout(k.Timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetHeader("Accept-Encoding", "zstd")

	log.Debug().
		Str("base_url", k.BaseURL).
		Int("max_conns", k.MaxConns).
		Int("max_conns_per_host", k.MaxConnsPerHost).
		Msg("kami session created")

	return k.client
}

// Close releases all pooled connections and drops the session. Safe to
// call repeatedly and before any request has been made; the next request
// rebuilds the session.
func (k *Kami) Close() {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.client == nil {
		return
	}
	k.client.GetClient().CloseIdleConnections()
	k.client = nil
}

// request performs one attempt against the given path and parses the
// body into a response envelope. The HTTP status line is not consulted;
// the envelope's own statusCode field is authoritative.
func request[T any](ctx context.Context, k *Kami, method, path string, body any) (Response[T], error) {
	req := k.session().R().SetContext(ctx)
	if body != nil {
		req.SetBody(body)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		log.Error().Err(err).Str("path", path).Msg("error connecting to kami api")
		return Response[T]{}, &TransportError{Path: path, Err: err}
	}

	raw, err := decodeBody(resp)
	if err != nil {
		log.Error().Err(err).Str("path", path).Msg("failed to decode response body")
		return Response[T]{}, &ProtocolError{Path: path, Err: err}
	}

	var result Response[T]
	if err := sonic.Unmarshal(raw, &result); err != nil {
		log.Error().Err(err).Str("path", path).Int("response_size", len(raw)).Msg("failed to parse response")
		return Response[T]{}, &ProtocolError{Path: path, Err: err}
	}
	return result, nil
}

// decodeBody returns the response bytes, transparently decompressing
// zstd-encoded bodies.
func decodeBody(resp *resty.Response) ([]byte, error) {
	data := resp.Body()
	if !strings.Contains(resp.Header().Get("Content-Encoding"), "zstd") {
		return data, nil
	}

	reader, err := zstd.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create zstd reader: %w", err)
	}
	defer reader.Close()

	decompressed, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("decompress response: %w", err)
	}
	return decompressed, nil
}

// execute runs one request through the retry schedule, classifying the
// envelope after every successful parse.
func execute[T any](ctx context.Context, k *Kami, method, path string, body any) (Response[T], error) {
	return withRetry(ctx, k.policy, path, func() (Response[T], error) {
		result, err := request[T](ctx, k, method, path, body)
		if err != nil {
			return Response[T]{}, err
		}
		if err := result.Err(); err != nil {
			log.Error().Err(err).Str("path", path).Msg("response contains error")
			return Response[T]{}, err
		}
		return result, nil
	})
}

func getJSON[T any](ctx context.Context, k *Kami, path string) (Response[T], error) {
	return execute[T](ctx, k, http.MethodGet, path, nil)
}

func postJSON[T any](ctx context.Context, k *Kami, path string, body any) (Response[T], error) {
	return execute[T](ctx, k, http.MethodPost, path, body)
}
