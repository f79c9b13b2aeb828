package stubserver

import (
	"context"
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog/log"

	"github.com/tensorplex-labs/kami-client/pkg/config"
	"github.com/tensorplex-labs/kami-client/pkg/kami"
	"github.com/tensorplex-labs/kami-client/pkg/signature"
)

// Server is the HTTP face of the emulated chain service.
type Server struct {
	App   *fiber.App
	state *State
	cfg   *config.StubServerEnvConfig
}

func NewServer(cfg *config.StubServerEnvConfig, state *State) *Server {
	app := fiber.New(fiber.Config{
		Prefork:      false,
		ErrorHandler: fiberErrHandler,
		JSONEncoder:  sonic.Marshal,
		JSONDecoder:  sonic.Unmarshal,
		BodyLimit:    cfg.BodySizeLimit,
	})

	app.Use(recover.New())
	app.Use(ZstdMiddleware([]string{"/health"}))

	s := &Server{
		App:   app,
		state: state,
		cfg:   cfg,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.App.Get("/health", func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})

	s.App.Get("/chain/latest-block", s.handleLatestBlock)
	s.App.Get("/chain/subnet-metagraph/:netuid", s.handleMetagraph)
	s.App.Get("/chain/subnet-hyperparameters/:netuid", s.handleHyperparams)
	s.App.Get("/chain/check-hotkey", s.handleCheckHotkey)
	s.App.Post("/chain/serve-axon", s.handleServeAxon)
	s.App.Post("/chain/set-weights", s.handleSetWeights)
	s.App.Post("/chain/set-commit-reveal-weights", s.handleSetCommitRevealWeights)

	s.App.Get("/substrate/keyring-pair-info", s.handleKeyringPairInfo)
	s.App.Get("/substrate/account-nonce/:address", s.handleAccountNonce)
	s.App.Post("/substrate/sign-message/sign", s.handleSignMessage)
	s.App.Post("/substrate/sign-message/verify", s.handleVerifyMessage)
}

// Start listens on the configured port until Shutdown.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	log.Info().
		Str("addr", addr).
		Int("netuid", s.state.Netuid()).
		Str("signer", s.state.SignerAddress()).
		Msg("Kami stub server listening")
	return s.App.Listen(addr)
}

// Shutdown drains connections and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.App.ShutdownWithContext(ctx)
}

func fiberErrHandler(ctx *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError

	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
	}

	log.Error().
		Err(err).
		Int("status_code", code).
		Str("path", ctx.Path()).
		Str("method", ctx.Method()).
		Msg("Fiber error handler triggered")

	return ctx.Status(code).JSON(kami.Response[any]{
		StatusCode: code,
		Error:      &kami.ErrorField{Message: err.Error()},
	})
}

// respond wraps data in the success envelope.
func respond[T any](c *fiber.Ctx, data T) error {
	return c.JSON(kami.Response[T]{
		StatusCode: fiber.StatusOK,
		Success:    true,
		Data:       data,
	})
}

// respondError mirrors the status code into the envelope, which is
// where clients look for it.
func respondError(c *fiber.Ctx, status int, message, errType string) error {
	return c.Status(status).JSON(kami.Response[any]{
		StatusCode: status,
		Error:      &kami.ErrorField{Message: message, Type: errType},
	})
}

// checkNetuid validates the netuid against the emulated subnet. A nil
// error means the request may proceed.
func (s *Server) checkNetuid(c *fiber.Ctx, netuid int) error {
	if netuid == s.state.Netuid() {
		return nil
	}
	return respondError(c, fiber.StatusNotFound,
		fmt.Sprintf("subnet %d does not exist", netuid), "SubnetNotFound")
}

func (s *Server) handleLatestBlock(c *fiber.Ctx) error {
	block := s.state.NextBlock()
	return respond(c, kami.LatestBlock{
		ParentHash:     fakeBlockHash(block - 1),
		BlockNumber:    block,
		StateRoot:      fakeBlockHash(block + 1000000),
		ExtrinsicsRoot: fakeBlockHash(block + 2000000),
	})
}

func (s *Server) handleMetagraph(c *fiber.Ctx) error {
	netuid, err := c.ParamsInt("netuid")
	if err != nil {
		return respondError(c, fiber.StatusBadRequest, "netuid must be an integer", "BadRequest")
	}
	if err := s.checkNetuid(c, netuid); err != nil {
		return err
	}
	return respond(c, s.state.Metagraph())
}

func (s *Server) handleHyperparams(c *fiber.Ctx) error {
	netuid, err := c.ParamsInt("netuid")
	if err != nil {
		return respondError(c, fiber.StatusBadRequest, "netuid must be an integer", "BadRequest")
	}
	if err := s.checkNetuid(c, netuid); err != nil {
		return err
	}
	return respond(c, s.state.Hyperparams())
}

func (s *Server) handleCheckHotkey(c *fiber.Ctx) error {
	netuid := c.QueryInt("netuid", -1)
	hotkey := c.Query("hotkey")
	if netuid < 0 || hotkey == "" {
		return respondError(c, fiber.StatusBadRequest, "netuid and hotkey are required", "BadRequest")
	}
	if err := s.checkNetuid(c, netuid); err != nil {
		return err
	}
	// The optional block parameter is accepted but the stub has no
	// history to answer from, so it always checks the present.
	return respond(c, kami.CheckHotkey{IsHotkeyValid: s.state.IsRegistered(hotkey)})
}

func (s *Server) handleServeAxon(c *fiber.Ctx) error {
	var params kami.ServeAxonParams
	if err := c.BodyParser(&params); err != nil {
		return respondError(c, fiber.StatusBadRequest, err.Error(), "BadRequest")
	}
	if err := s.checkNetuid(c, params.Netuid); err != nil {
		return err
	}

	hash, err := s.state.ServeAxon(params)
	if err != nil {
		return respondError(c, fiber.StatusInternalServerError, err.Error(), "ExtrinsicFailed")
	}

	log.Info().
		Int("netuid", params.Netuid).
		Int("port", params.Port).
		Str("hash", hash).
		Msg("Axon served")
	return respond(c, hash)
}

func (s *Server) handleSetWeights(c *fiber.Ctx) error {
	var params kami.SetWeightsParams
	if err := c.BodyParser(&params); err != nil {
		return respondError(c, fiber.StatusBadRequest, err.Error(), "BadRequest")
	}
	if err := s.checkNetuid(c, params.Netuid); err != nil {
		return err
	}
	if len(params.Dests) != len(params.Weights) {
		return respondError(c, fiber.StatusBadRequest,
			"dests and weights must have the same length", "BadRequest")
	}

	hash, err := s.state.SetWeights(params)
	if err != nil {
		return respondError(c, fiber.StatusInternalServerError, err.Error(), "ExtrinsicFailed")
	}

	log.Info().
		Int("netuid", params.Netuid).
		Int("uids", len(params.Dests)).
		Str("hash", hash).
		Msg("Weights set")
	return respond(c, hash)
}

func (s *Server) handleSetCommitRevealWeights(c *fiber.Ctx) error {
	var params kami.SetCommitRevealWeightsParams
	if err := c.BodyParser(&params); err != nil {
		return respondError(c, fiber.StatusBadRequest, err.Error(), "BadRequest")
	}
	if err := s.checkNetuid(c, params.Netuid); err != nil {
		return err
	}
	if params.Commit == "" || params.RevealRound <= 0 {
		return respondError(c, fiber.StatusBadRequest,
			"commit and revealRound are required", "BadRequest")
	}

	hash, err := s.state.SetCommitRevealWeights(params)
	if err != nil {
		return respondError(c, fiber.StatusInternalServerError, err.Error(), "ExtrinsicFailed")
	}

	log.Info().
		Int("netuid", params.Netuid).
		Int("reveal_round", params.RevealRound).
		Str("hash", hash).
		Msg("Commit-reveal weights set")
	return respond(c, hash)
}

func (s *Server) handleKeyringPairInfo(c *fiber.Ctx) error {
	return respond(c, kami.KeyringPairInfo{
		KeyringPair: kami.KeyringPair{
			Address: s.state.SignerAddress(),
			Type:    "sr25519",
			Meta:    map[string]any{"name": "stub"},
		},
		WalletColdkey: "5StubColdkey000",
	})
}

func (s *Server) handleAccountNonce(c *fiber.Ctx) error {
	address := c.Params("address")
	return respond(c, kami.AccountNonce{AccountNonce: s.state.Nonce(address)})
}

func (s *Server) handleSignMessage(c *fiber.Ctx) error {
	var params kami.SignMessageParams
	if err := c.BodyParser(&params); err != nil {
		return respondError(c, fiber.StatusBadRequest, err.Error(), "BadRequest")
	}

	sig, err := s.state.Signer().Sign(params.Message)
	if err != nil {
		return respondError(c, fiber.StatusInternalServerError, err.Error(), "SigningError")
	}
	return respond(c, kami.SignMessage{Signature: sig})
}

func (s *Server) handleVerifyMessage(c *fiber.Ctx) error {
	var params kami.VerifyMessageParams
	if err := c.BodyParser(&params); err != nil {
		return respondError(c, fiber.StatusBadRequest, err.Error(), "BadRequest")
	}

	valid, err := signature.Verify(params.Message, params.Signature, params.SigneeAddress)
	if err != nil {
		return respondError(c, fiber.StatusBadRequest, err.Error(), "VerificationError")
	}
	return respond(c, kami.VerifyMessage{Valid: valid})
}

func fakeBlockHash(n int) string {
	return fmt.Sprintf("0x%064x", n)
}
