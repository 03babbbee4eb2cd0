package quotehttp

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/alexkalak/go_arena_market/common/external/rpcclient/rpcerrors"
	"github.com/alexkalak/go_arena_market/common/models"
	"github.com/alexkalak/go_arena_market/common/repo/rankingrepo/rankingrepoerrors"
	"github.com/alexkalak/go_arena_market/services/quoteservice/src/quoteservice"
	"github.com/alexkalak/go_arena_market/services/quoteservice/src/quoteservice/quoteserviceerrors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const defaultShutdownTimeout = 5 * time.Second

type QuoteHTTPServer interface {
	Start(ctx context.Context) error
	Handler() http.Handler
}

type QuoteHTTPServerConfig struct {
	Port            uint
	ShutdownTimeout time.Duration
}

func (c *QuoteHTTPServerConfig) validate() error {
	if c.Port == 0 {
		return errors.New("QuoteHTTPServerConfig field Port cannot equal to 0")
	}

	return nil
}

type QuoteHTTPServerDependencies struct {
	QuoteService quoteservice.QuoteService
	Logger       *zerolog.Logger
	// served at /metrics, promhttp.Handler() when nil
	MetricsHandler http.Handler
}

func (d *QuoteHTTPServerDependencies) validate() error {
	if d.QuoteService == nil {
		return errors.New("QuoteHTTPServerDependencies field QuoteService cannot be nil")
	}

	return nil
}

type quoteHTTPServer struct {
	config       QuoteHTTPServerConfig
	quoteService quoteservice.QuoteService
	logger       zerolog.Logger
	engine       *gin.Engine
}

func New(config QuoteHTTPServerConfig, dependencies QuoteHTTPServerDependencies) (QuoteHTTPServer, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	if err := dependencies.validate(); err != nil {
		return nil, err
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = defaultShutdownTimeout
	}

	logger := zerolog.Nop()
	if dependencies.Logger != nil {
		logger = dependencies.Logger.With().Str("component", "quotehttp").Logger()
	}

	metricsHandler := dependencies.MetricsHandler
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}

	s := &quoteHTTPServer{
		config:       config,
		quoteService: dependencies.QuoteService,
		logger:       logger,
	}

	engine := gin.New()
	engine.Use(gin.Recovery(), s.requestLogger)
	engine.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	engine.GET("/metrics", gin.WrapH(metricsHandler))
	engine.GET("/quote", s.getQuote)
	engine.GET("/games/:gameId/players", s.getPlayers)
	engine.GET("/games/:gameId/players/:address", s.getPlayer)
	engine.GET("/games/:gameId/rankings", s.getRankings)
	engine.GET("/games/:gameId/snapshots/latest", s.getLatestSnapshot)
	s.engine = engine

	return s, nil
}

func (s *quoteHTTPServer) Handler() http.Handler {
	return s.engine
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *quoteHTTPServer) Start(ctx context.Context) error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.config.Port))
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Serve(lis)
	}()
	s.logger.Info().Uint("port", s.config.Port).Msg("http server running")

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info().Msg("http server shutdown")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}

func (s *quoteHTTPServer) requestLogger(c *gin.Context) {
	start := time.Now()
	c.Next()

	s.logger.Debug().
		Str("method", c.Request.Method).
		Str("path", c.Request.URL.Path).
		Int("status", c.Writer.Status()).
		Dur("cost", time.Since(start)).
		Msg("request")
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

type quoteResponse struct {
	TokenIn                 string `json:"token_in"`
	TokenOut                string `json:"token_out"`
	Fee                     uint32 `json:"fee"`
	AmountIn                string `json:"amount_in"`
	AmountOut               string `json:"amount_out"`
	SqrtPriceX96After       string `json:"sqrt_price_x96_after,omitempty"`
	InitializedTicksCrossed uint32 `json:"initialized_ticks_crossed"`
	GasEstimate             string `json:"gas_estimate,omitempty"`
	FetchedAt               string `json:"fetched_at"`
}

type rankingResponse struct {
	Address string `json:"address"`
	Rank    int    `json:"rank"`
}

func bigIntText(value *big.Int) string {
	if value == nil {
		return ""
	}
	return value.String()
}

func (s *quoteHTTPServer) getQuote(c *gin.Context) {
	amountIn, ok := new(big.Int).SetString(c.Query("amount"), 10)
	if !ok {
		c.JSON(http.StatusBadRequest, errorResponse{Error: quoteserviceerrors.ErrInvalidAmount.Error()})
		return
	}

	var fee uint64
	if feeStr := c.Query("fee"); feeStr != "" {
		parsed, err := strconv.ParseUint(feeStr, 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, errorResponse{Error: "fee must be an unsigned integer"})
			return
		}
		fee = parsed
	}

	pair := models.NewAssetPair(c.Query("tokenIn"), c.Query("tokenOut"), uint32(fee))
	quote, err := s.quoteService.GetQuote(c.Request.Context(), pair, amountIn)
	if err != nil {
		s.writeQuoteError(c, err)
		return
	}

	c.JSON(http.StatusOK, quoteResponse{
		TokenIn:                 pair.TokenIn,
		TokenOut:                pair.TokenOut,
		Fee:                     pair.Fee,
		AmountIn:                amountIn.String(),
		AmountOut:               bigIntText(quote.AmountOut),
		SqrtPriceX96After:       bigIntText(quote.SqrtPriceX96After),
		InitializedTicksCrossed: quote.InitializedTicksCrossed,
		GasEstimate:             bigIntText(quote.GasEstimate),
		FetchedAt:               quote.FetchedAt.UTC().Format(time.RFC3339Nano),
	})
}

func (s *quoteHTTPServer) writeQuoteError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, quoteserviceerrors.ErrInvalidAmount),
		errors.Is(err, quoteserviceerrors.ErrInvalidToken),
		errors.Is(err, quoteserviceerrors.ErrSameAsset):
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	kind := rpcerrors.KindOf(err)
	s.logger.Warn().Err(err).Str("kind", kind.String()).Msg("quote failed")
	c.JSON(http.StatusBadGateway, errorResponse{
		Error: rpcerrors.UserMessage(kind),
		Kind:  kind.String(),
	})
}

func parseGameID(c *gin.Context) (*big.Int, bool) {
	gameID, ok := new(big.Int).SetString(c.Param("gameId"), 10)
	if !ok || gameID.Sign() < 0 {
		c.JSON(http.StatusBadRequest, errorResponse{Error: quoteserviceerrors.ErrInvalidGameID.Error()})
		return nil, false
	}

	return gameID, true
}

func (s *quoteHTTPServer) getPlayers(c *gin.Context) {
	gameID, ok := parseGameID(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, s.quoteService.GetPlayers(c.Request.Context(), gameID))
}

func (s *quoteHTTPServer) getPlayer(c *gin.Context) {
	gameID, ok := parseGameID(c)
	if !ok {
		return
	}

	addressStr := c.Param("address")
	if !common.IsHexAddress(addressStr) {
		c.JSON(http.StatusBadRequest, errorResponse{Error: quoteserviceerrors.ErrInvalidPlayerAddress.Error()})
		return
	}

	player, err := s.quoteService.GetPlayer(c.Request.Context(), gameID, common.HexToAddress(addressStr))
	if err != nil {
		c.JSON(http.StatusNotFound, errorResponse{Error: err.Error()})
		return
	}

	c.JSON(http.StatusOK, player)
}

// getRankings accepts repeated ?address= parameters; without them every
// player of the game is ranked.
func (s *quoteHTTPServer) getRankings(c *gin.Context) {
	gameID, ok := parseGameID(c)
	if !ok {
		return
	}

	addresses := []common.Address{}
	for _, addressStr := range c.QueryArray("address") {
		if !common.IsHexAddress(addressStr) {
			c.JSON(http.StatusBadRequest, errorResponse{Error: quoteserviceerrors.ErrInvalidPlayerAddress.Error()})
			return
		}
		addresses = append(addresses, common.HexToAddress(addressStr))
	}

	table := s.quoteService.GetRankings(c.Request.Context(), gameID, addresses)

	result := make([]rankingResponse, 0, len(table))
	for address, rank := range table {
		result = append(result, rankingResponse{Address: address.Hex(), Rank: rank})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Rank != result[j].Rank {
			return result[i].Rank < result[j].Rank
		}
		return result[i].Address < result[j].Address
	})

	c.JSON(http.StatusOK, result)
}

func (s *quoteHTTPServer) getLatestSnapshot(c *gin.Context) {
	gameID, ok := parseGameID(c)
	if !ok {
		return
	}

	snapshot, err := s.quoteService.GetLatestSnapshot(c.Request.Context(), gameID)
	switch {
	case errors.Is(err, rankingrepoerrors.ErrSnapshotNotFound):
		c.JSON(http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, quoteserviceerrors.ErrSnapshotsDisabled):
		c.JSON(http.StatusNotImplemented, errorResponse{Error: err.Error()})
	case err != nil:
		s.logger.Error().Err(err).Str("game_id", gameID.String()).Msg("read latest snapshot")
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "unable to read snapshot"})
	default:
		c.JSON(http.StatusOK, snapshot)
	}
}
