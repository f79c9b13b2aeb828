package kami

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/tensorplex-labs/kami-client/pkg/config"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *Kami) {
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	addr := ts.Listener.Addr().(*net.TCPAddr)
	kc := &config.KamiEnvConfig{
		KamiHost: addr.IP.String(),
		KamiPort: fmt.Sprint(addr.Port),
	}
	k, err := NewKami(kc)
	if err != nil {
		t.Fatalf("new kami: %v", err)
	}
	t.Cleanup(k.Close)
	return ts, k
}

func fastRetry(attempts int) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: attempts,
		WaitMin:     time.Millisecond,
		WaitMax:     5 * time.Millisecond,
		Multiplier:  1.5,
	}
}

func writeJSON(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(body))
}

func TestNewKami_NilConfig(t *testing.T) {
	_, err := NewKami(nil)
	if err == nil {
		t.Fatalf("expected error when cfg is nil")
	}
}

func TestNewKami_UnresolvedHost(t *testing.T) {
	_, err := NewKami(&config.KamiEnvConfig{KamiHost: "", KamiPort: "3000"})
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigError, got %v", err)
	}

	_, err = NewKami(&config.KamiEnvConfig{KamiHost: "localhost", KamiPort: ""})
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
}

func TestServeAxon_Success(t *testing.T) {
	_, k := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chain/serve-axon" || r.Method != http.MethodPost {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		writeJSON(w, `{"statusCode":200,"success":true,"data":"0xabc","error":null}`)
	})

	res, err := k.ServeAxon(context.Background(), ServeAxonParams{})
	if err != nil {
		t.Fatalf("ServeAxon error: %v", err)
	}
	if res.Data != "0xabc" || !res.Success {
		t.Fatalf("unexpected response: %+v", res)
	}
}

func TestEnvelopeErrorBecomesAPIError(t *testing.T) {
	_, k := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, `{"statusCode":429,"success":false,"data":null,"error":{"message":"rate limited","type":"RateLimit"}}`)
	})
	k.SetRetryPolicy(fastRetry(1))

	_, err := k.GetLatestBlock(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Message != "rate limited" || apiErr.ErrType != "RateLimit" {
		t.Fatalf("unexpected error fields: %+v", apiErr)
	}
	if !Retryable(err) {
		t.Fatalf("api errors must be retryable")
	}
}

func TestEnvelopeStatusCodeOutOfRange(t *testing.T) {
	_, k := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, `{"statusCode":503,"success":false,"data":null,"error":null}`)
	})
	k.SetRetryPolicy(fastRetry(1))

	_, err := k.GetLatestBlock(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Message != "HTTP error: 503" {
		t.Fatalf("unexpected message: %q", apiErr.Message)
	}
}

func TestHTTPStatusLineIgnoredWhenEnvelopeOK(t *testing.T) {
	_, k := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(`{"statusCode":200,"success":true,"data":{"parentHash":"0x1","blockNumber":42,"stateRoot":"0x2","extrinsicsRoot":"0x3"},"error":null}`))
	})

	block, err := k.GetCurrentBlock(context.Background())
	if err != nil {
		t.Fatalf("GetCurrentBlock error: %v", err)
	}
	if block != 42 {
		t.Fatalf("unexpected block: %d", block)
	}
}

func TestMalformedBodyIsProtocolErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	_, k := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("<html>not json</html>"))
	})
	k.SetRetryPolicy(fastRetry(5))

	_, err := k.GetLatestBlock(context.Background())
	var protoErr *ProtocolError
	if !errors.As(err, &protoErr) {
		t.Fatalf("expected ProtocolError, got %v", err)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("protocol errors must not be retried, got %d calls", got)
	}
}

func TestTransportErrorOnUnreachableServer(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	addr := ts.Listener.Addr().(*net.TCPAddr)
	ts.Close()

	k, err := NewKami(&config.KamiEnvConfig{
		KamiHost: addr.IP.String(),
		KamiPort: fmt.Sprint(addr.Port),
	})
	if err != nil {
		t.Fatalf("new kami: %v", err)
	}
	k.SetRetryPolicy(fastRetry(2))

	_, err = k.GetLatestBlock(context.Background())
	var transportErr *TransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("expected TransportError, got %v", err)
	}
	if !Retryable(err) {
		t.Fatalf("transport errors must be retryable")
	}
}

func TestRetryEventuallySucceeds(t *testing.T) {
	var calls atomic.Int32
	_, k := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 3 {
			writeJSON(w, `{"statusCode":500,"success":false,"data":null,"error":"chain service still indexing"}`)
			return
		}
		writeJSON(w, `{"statusCode":200,"success":true,"data":{"parentHash":"0x1","blockNumber":7,"stateRoot":"0x2","extrinsicsRoot":"0x3"},"error":null}`)
	})
	k.SetRetryPolicy(fastRetry(10))

	block, err := k.GetCurrentBlock(context.Background())
	if err != nil {
		t.Fatalf("GetCurrentBlock error: %v", err)
	}
	if block != 7 {
		t.Fatalf("unexpected block: %d", block)
	}
	if got := calls.Load(); got != 4 {
		t.Fatalf("expected 4 attempts, got %d", got)
	}
}

func TestGetMetagraph_DenormalizesAxons(t *testing.T) {
	payload := `{"statusCode":200,"success":true,"data":{"netuid":1,"name":"n","symbol":"s","identity":{"subnetName":"","githubRepo":"","subnetContact":"","subnetUrl":"","discord":"","description":"","additional":""},"networkRegisteredAt":0,"ownerHotkey":"","ownerColdkey":"","block":100,"tempo":360,"lastStep":0,"blocksSinceLastStep":0,"subnetEmission":0,"alphaIn":0,"alphaOut":0,"taoIn":0,"alphaOutEmission":0,"alphaInEmission":0,"taoInEmission":0,"pendingAlphaEmission":0,"pendingRootEmission":0,"subnetVolume":0,"movingPrice":{"bits":0},"rho":0,"kappa":0,"minAllowedWeights":0,"maxAllowedWeights":0,"weightsVersion":0,"weightsRateLimit":0,"activityCutoff":0,"maxValidators":0,"numUids":2,"maxUids":256,"burn":0,"difficulty":"0x1a","registrationAllowed":false,"powRegistrationAllowed":false,"immunityPeriod":0,"minDifficulty":10000000,"maxDifficulty":"0xffffffffffffffff","minBurn":0,"maxBurn":0,"adjustmentAlpha":"0x0","adjustmentInterval":0,"targetRegsPerInterval":0,"maxRegsPerBlock":0,"servingRateLimit":0,"commitRevealWeightsEnabled":false,"commitRevealPeriod":0,"liquidAlphaEnabled":false,"alphaHigh":0,"alphaLow":0,"bondsMovingAvg":0,"hotkeys":["hk1","hk2"],"coldkeys":["ck1","ck2"],"identities":[],"axons":[{"block":1,"version":1,"ip":"1.2.3.4","port":8080,"ipType":4,"protocol":4,"placeholder1":0,"placeholder2":0},{"block":2,"version":1,"ip":"5.6.7.8","port":8091,"ipType":4,"protocol":4,"placeholder1":0,"placeholder2":0}],"active":[true,false],"validatorPermit":[true,false],"pruningScore":[0,0],"lastUpdate":[0,0],"emission":[0,0],"dividends":[0,0],"incentives":[0,0],"consensus":[0,0],"trust":[0,0],"rank":[0,0],"blockAtRegistration":[0,0],"alphaStake":[0,0],"taoStake":[0,0],"totalStake":[0,0],"taoDividendsPerHotkey":[["hk1",1.5],["hk2",0]],"alphaDividendsPerHotkey":[{"hotkey":"hk1","amount":2.5},{"hotkey":"hk2","amount":0}]},"error":null}`
	_, k := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chain/subnet-metagraph/1" || r.Method != http.MethodGet {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		writeJSON(w, payload)
	})

	metagraph, err := k.GetMetagraph(context.Background(), 1)
	if err != nil {
		t.Fatalf("GetMetagraph error: %v", err)
	}
	if metagraph.Netuid != 1 || metagraph.NumUids != 2 {
		t.Fatalf("unexpected metagraph: netuid=%d numUids=%d", metagraph.Netuid, metagraph.NumUids)
	}
	for i := range metagraph.Axons {
		if metagraph.Axons[i].Hotkey != metagraph.Hotkeys[i] {
			t.Fatalf("axon %d hotkey = %q, want %q", i, metagraph.Axons[i].Hotkey, metagraph.Hotkeys[i])
		}
		if metagraph.Axons[i].Coldkey != metagraph.Coldkeys[i] {
			t.Fatalf("axon %d coldkey = %q, want %q", i, metagraph.Axons[i].Coldkey, metagraph.Coldkeys[i])
		}
	}
	if metagraph.Difficulty.Int64() != 26 {
		t.Fatalf("difficulty = %s, want 26", metagraph.Difficulty)
	}
	if metagraph.MinDifficulty.Int64() != 10000000 {
		t.Fatalf("minDifficulty = %s, want 10000000", metagraph.MinDifficulty)
	}
	if metagraph.TaoDividendsPerHotkey[0].Hotkey != "hk1" || metagraph.TaoDividendsPerHotkey[0].Amount != 1.5 {
		t.Fatalf("unexpected dividend entry: %+v", metagraph.TaoDividendsPerHotkey[0])
	}
}

func TestGetAxons_EmptySubnet(t *testing.T) {
	payload := `{"statusCode":200,"success":true,"data":{"netuid":3,"name":"","symbol":"","identity":{"subnetName":"","githubRepo":"","subnetContact":"","subnetUrl":"","discord":"","description":"","additional":""},"networkRegisteredAt":0,"ownerHotkey":"","ownerColdkey":"","block":0,"tempo":0,"lastStep":0,"blocksSinceLastStep":0,"subnetEmission":0,"alphaIn":0,"alphaOut":0,"taoIn":0,"alphaOutEmission":0,"alphaInEmission":0,"taoInEmission":0,"pendingAlphaEmission":0,"pendingRootEmission":0,"subnetVolume":0,"movingPrice":{"bits":0},"rho":0,"kappa":0,"minAllowedWeights":0,"maxAllowedWeights":0,"weightsVersion":0,"weightsRateLimit":0,"activityCutoff":0,"maxValidators":0,"numUids":0,"maxUids":0,"burn":0,"difficulty":0,"registrationAllowed":false,"powRegistrationAllowed":false,"immunityPeriod":0,"minDifficulty":0,"maxDifficulty":0,"minBurn":0,"maxBurn":0,"adjustmentAlpha":0,"adjustmentInterval":0,"targetRegsPerInterval":0,"maxRegsPerBlock":0,"servingRateLimit":0,"commitRevealWeightsEnabled":false,"commitRevealPeriod":0,"liquidAlphaEnabled":false,"alphaHigh":0,"alphaLow":0,"bondsMovingAvg":0,"hotkeys":[],"coldkeys":[],"identities":[],"axons":[],"active":[],"validatorPermit":[],"pruningScore":[],"lastUpdate":[],"emission":[],"dividends":[],"incentives":[],"consensus":[],"trust":[],"rank":[],"blockAtRegistration":[],"alphaStake":[],"taoStake":[],"totalStake":[],"taoDividendsPerHotkey":[],"alphaDividendsPerHotkey":[]},"error":null}`
	_, k := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, payload)
	})

	axons, err := k.GetAxons(context.Background(), 3)
	if err != nil {
		t.Fatalf("GetAxons error: %v", err)
	}
	if len(axons) != 0 {
		t.Fatalf("expected empty axons, got %d", len(axons))
	}
}

func TestIsHotkeyRegistered_QueryParams(t *testing.T) {
	var lastQuery string
	_, k := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chain/check-hotkey" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		lastQuery = r.URL.RawQuery
		writeJSON(w, `{"statusCode":200,"success":true,"data":{"isHotkeyValid":true},"error":null}`)
	})

	ok, err := k.IsHotkeyRegistered(context.Background(), 1, "hk5", nil)
	if err != nil || !ok {
		t.Fatalf("IsHotkeyRegistered: %v %v", ok, err)
	}
	if lastQuery != "netuid=1&hotkey=hk5" {
		t.Fatalf("unexpected query: %q", lastQuery)
	}
	if strings.Contains(lastQuery, "block") {
		t.Fatalf("block param must be omitted when nil, got %q", lastQuery)
	}

	block := 12345
	ok, err = k.IsHotkeyRegistered(context.Background(), 1, "hk5", &block)
	if err != nil || !ok {
		t.Fatalf("IsHotkeyRegistered: %v %v", ok, err)
	}
	if lastQuery != "netuid=1&hotkey=hk5&block=12345" {
		t.Fatalf("unexpected query: %q", lastQuery)
	}
}

func TestGetAccountNonce(t *testing.T) {
	_, k := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/substrate/account-nonce/5Gv8YY" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		writeJSON(w, `{"statusCode":200,"success":true,"data":{"accountNonce":17},"error":null}`)
	})

	nonce, err := k.GetAccountNonce(context.Background(), "5Gv8YY")
	if err != nil {
		t.Fatalf("GetAccountNonce error: %v", err)
	}
	if nonce != 17 {
		t.Fatalf("unexpected nonce: %d", nonce)
	}
}

func TestVerify_RejectsNonHexSignature(t *testing.T) {
	var called atomic.Bool
	_, k := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		called.Store(true)
		writeJSON(w, `{"statusCode":200,"success":true,"data":{"valid":true},"error":null}`)
	})

	_, err := k.Verify(context.Background(), "hk", "msg", "not-hex")
	var valErr *ValidationError
	if !errors.As(err, &valErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if called.Load() {
		t.Fatalf("no network call may happen for a malformed signature")
	}
	if Retryable(err) {
		t.Fatalf("validation errors must not be retryable")
	}
}

func TestVerify_Success(t *testing.T) {
	_, k := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/substrate/sign-message/verify" || r.Method != http.MethodPost {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		writeJSON(w, `{"statusCode":200,"success":true,"data":{"valid":true},"error":null}`)
	})

	valid, err := k.Verify(context.Background(), "hk", "msg", "0xdeadbeef")
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if !valid {
		t.Fatalf("expected valid signature")
	}
}

func TestSignMessage_Success(t *testing.T) {
	_, k := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/substrate/sign-message/sign" || r.Method != http.MethodPost {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		writeJSON(w, `{"statusCode":200,"success":true,"data":{"signature":"0xsig"},"error":null}`)
	})

	sig, err := k.SignMessage(context.Background(), "m")
	if err != nil {
		t.Fatalf("SignMessage error: %v", err)
	}
	if sig != "0xsig" {
		t.Fatalf("unexpected signature: %q", sig)
	}
}

func TestSignMessage_DoesNotFailOnEnvelopeError(t *testing.T) {
	_, k := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, `{"statusCode":500,"success":false,"data":{},"error":"keyring unavailable"}`)
	})
	k.SetRetryPolicy(fastRetry(2))

	sig, err := k.SignMessage(context.Background(), "m")
	if err != nil {
		t.Fatalf("SignMessage must not fail on an envelope error, got %v", err)
	}
	if sig != "" {
		t.Fatalf("expected empty signature, got %q", sig)
	}
}

func TestGetKeyringPair(t *testing.T) {
	_, k := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/substrate/keyring-pair-info" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		writeJSON(w, `{"statusCode":200,"success":true,"data":{"keyringPair":{"address":"addr","addressRaw":{},"isLocked":false,"meta":{},"publicKey":{},"type":"sr25519"},"walletColdkey":"cold"},"error":null}`)
	})

	info, err := k.GetKeyringPair(context.Background())
	if err != nil {
		t.Fatalf("GetKeyringPair error: %v", err)
	}
	if info.KeyringPair.Address != "addr" || info.WalletColdkey != "cold" {
		t.Fatalf("unexpected info: %+v", info)
	}
}

func TestClose_IdempotentAndSessionRebuilds(t *testing.T) {
	var calls atomic.Int32
	_, k := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, `{"statusCode":200,"success":true,"data":{"parentHash":"0x1","blockNumber":9,"stateRoot":"0x2","extrinsicsRoot":"0x3"},"error":null}`)
	})

	k.Close()
	k.Close()

	if _, err := k.GetCurrentBlock(context.Background()); err != nil {
		t.Fatalf("request after Close failed: %v", err)
	}

	k.Close()

	if _, err := k.GetCurrentBlock(context.Background()); err != nil {
		t.Fatalf("request after second Close failed: %v", err)
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("expected 2 requests, got %d", got)
	}
}

func TestZstdResponseDecompressed(t *testing.T) {
	payload := []byte(`{"statusCode":200,"success":true,"data":{"parentHash":"0x1","blockNumber":88,"stateRoot":"0x2","extrinsicsRoot":"0x3"},"error":null}`)
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		t.Fatalf("zstd writer: %v", err)
	}
	compressed := enc.EncodeAll(payload, nil)
	enc.Close()

	var sawAcceptEncoding atomic.Bool
	_, k := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.Header.Get("Accept-Encoding"), "zstd") {
			sawAcceptEncoding.Store(true)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Encoding", "zstd")
		w.WriteHeader(http.StatusOK)
		w.Write(compressed)
	})

	block, err := k.GetCurrentBlock(context.Background())
	if err != nil {
		t.Fatalf("GetCurrentBlock error: %v", err)
	}
	if block != 88 {
		t.Fatalf("unexpected block: %d", block)
	}
	if !sawAcceptEncoding.Load() {
		t.Fatalf("request must advertise zstd support")
	}
}
