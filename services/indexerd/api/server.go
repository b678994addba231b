package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"lineledger/core/state"
	"lineledger/core/types"
	"lineledger/observability"
	"lineledger/storage/eventindex"
)

// Store is the read side of the entity store.
type Store interface {
	Line(id common.Address) (*types.Line, bool, error)
	Position(id common.Hash) (*types.Position, bool, error)
	Proposal(id string) (*types.Proposal, bool, error)
	Token(addr common.Address) (*types.Token, bool, error)
	Escrow(id common.Address) (*types.Escrow, bool, error)
	EscrowDeposits(escrow common.Address, fn func(*types.EscrowDeposit) bool) error
	SpigotController(id common.Address) (*types.SpigotController, bool, error)
	Spigots(controller common.Address, fn func(*types.Spigot) bool) error
	RevenueSummary(id string) (*types.SpigotRevenueSummary, bool, error)
	Events(idPrefix string, fn func(*types.Event) bool) error
	Cursor() (state.Cursor, bool, error)
}

// RecordIndex answers audit record queries from the SQL index.
type RecordIndex interface {
	ByLine(ctx context.Context, line common.Address, page eventindex.Page) ([]eventindex.Record, error)
	ByPosition(ctx context.Context, id common.Hash, page eventindex.Page) ([]eventindex.Record, error)
}

// Config configures the query server.
type Config struct {
	Listen             string
	RateLimitPerMinute int
}

// Server exposes the ledger over read-only JSON endpoints.
type Server struct {
	cfg     Config
	store   Store
	index   RecordIndex
	logger  *slog.Logger
	metrics *observability.APIMetrics
	limiter *limiter
}

// New builds a server. index may be nil, in which case record listings scan
// the entity store.
func New(cfg Config, store Store, index RecordIndex, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:     cfg,
		store:   store,
		index:   index,
		logger:  logger,
		metrics: observability.API(),
		limiter: newLimiter(cfg.RateLimitPerMinute),
	}
}

// Handler returns the instrumented router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(s.observe)
	r.Use(s.throttle)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/lines/{id}", s.handleLine)
	r.Get("/lines/{id}/positions", s.handleLinePositions)
	r.Get("/lines/{id}/events", s.handleLineEvents)
	r.Get("/positions/{id}", s.handlePosition)
	r.Get("/positions/{id}/events", s.handlePositionEvents)
	r.Get("/proposals/{id}", s.handleProposal)
	r.Get("/tokens/{addr}", s.handleToken)
	r.Get("/escrows/{id}", s.handleEscrow)
	r.Get("/spigots/{controller}", s.handleController)
	r.Get("/spigots/{controller}/revenue/{token}", s.handleRevenue)

	return otelhttp.NewHandler(r, "indexerd")
}

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("indexerd: api listening", slog.String("addr", s.cfg.Listen))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	body := map[string]interface{}{"status": "ok"}
	cursor, ok, err := s.store.Cursor()
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	if ok {
		body["block"] = cursor.Block
		body["logIndex"] = cursor.LogIndex
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleLine(w http.ResponseWriter, r *http.Request) {
	id, ok := addressParam(w, r, "id")
	if !ok {
		return
	}
	line, found, err := s.store.Line(id)
	s.respond(w, line, found, err)
}

func (s *Server) handleLinePositions(w http.ResponseWriter, r *http.Request) {
	id, ok := addressParam(w, r, "id")
	if !ok {
		return
	}
	line, found, err := s.store.Line(id)
	if err != nil || !found {
		s.respond(w, nil, found, err)
		return
	}
	positions := make([]*types.Position, 0, len(line.Positions))
	for _, pid := range line.Positions {
		pos, found, err := s.store.Position(pid)
		if err != nil {
			s.respond(w, nil, false, err)
			return
		}
		if found {
			positions = append(positions, pos)
		}
	}
	writeJSON(w, http.StatusOK, positions)
}

func (s *Server) handleLineEvents(w http.ResponseWriter, r *http.Request) {
	id, ok := addressParam(w, r, "id")
	if !ok {
		return
	}
	page := pageParams(r)
	if s.index != nil {
		records, err := s.index.ByLine(r.Context(), id, page)
		s.writeRecords(w, records, err)
		return
	}
	s.scanEvents(w, page, func(evt *types.Event) bool {
		return evt.Attr("line") == types.AddressKey(id) || evt.Contract == id
	})
}

func (s *Server) handlePosition(w http.ResponseWriter, r *http.Request) {
	id, ok := hashParam(w, r, "id")
	if !ok {
		return
	}
	pos, found, err := s.store.Position(id)
	s.respond(w, pos, found, err)
}

func (s *Server) handlePositionEvents(w http.ResponseWriter, r *http.Request) {
	id, ok := hashParam(w, r, "id")
	if !ok {
		return
	}
	page := pageParams(r)
	if s.index != nil {
		records, err := s.index.ByPosition(r.Context(), id, page)
		s.writeRecords(w, records, err)
		return
	}
	s.scanEvents(w, page, func(evt *types.Event) bool {
		return evt.Attr("position") == types.HashKey(id)
	})
}

func (s *Server) handleProposal(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "proposal id required")
		return
	}
	proposal, found, err := s.store.Proposal(id)
	if err == nil && !found && strings.ToLower(id) != id {
		proposal, found, err = s.store.Proposal(strings.ToLower(id))
	}
	s.respond(w, proposal, found, err)
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	addr, ok := addressParam(w, r, "addr")
	if !ok {
		return
	}
	token, found, err := s.store.Token(addr)
	s.respond(w, token, found, err)
}

type escrowView struct {
	*types.Escrow
	Deposits []*types.EscrowDeposit `json:"deposits"`
}

func (s *Server) handleEscrow(w http.ResponseWriter, r *http.Request) {
	id, ok := addressParam(w, r, "id")
	if !ok {
		return
	}
	escrow, found, err := s.store.Escrow(id)
	if err != nil || !found {
		s.respond(w, nil, found, err)
		return
	}
	view := escrowView{Escrow: escrow, Deposits: []*types.EscrowDeposit{}}
	if err := s.store.EscrowDeposits(id, func(d *types.EscrowDeposit) bool {
		view.Deposits = append(view.Deposits, d)
		return true
	}); err != nil {
		s.respond(w, nil, false, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type controllerView struct {
	*types.SpigotController
	Spigots []*types.Spigot `json:"spigots"`
}

func (s *Server) handleController(w http.ResponseWriter, r *http.Request) {
	id, ok := addressParam(w, r, "controller")
	if !ok {
		return
	}
	controller, found, err := s.store.SpigotController(id)
	if err != nil || !found {
		s.respond(w, nil, found, err)
		return
	}
	view := controllerView{SpigotController: controller, Spigots: []*types.Spigot{}}
	if err := s.store.Spigots(id, func(sp *types.Spigot) bool {
		view.Spigots = append(view.Spigots, sp)
		return true
	}); err != nil {
		s.respond(w, nil, false, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleRevenue(w http.ResponseWriter, r *http.Request) {
	controller, ok := addressParam(w, r, "controller")
	if !ok {
		return
	}
	token, ok := addressParam(w, r, "token")
	if !ok {
		return
	}
	summary, found, err := s.store.RevenueSummary(types.PairID(controller, token))
	s.respond(w, summary, found, err)
}

func (s *Server) scanEvents(w http.ResponseWriter, page eventindex.Page, match func(*types.Event) bool) {
	out := []*types.Event{}
	skipped := 0
	err := s.store.Events("", func(evt *types.Event) bool {
		if !match(evt) {
			return true
		}
		if skipped < page.Offset {
			skipped++
			return true
		}
		out = append(out, evt)
		return len(out) < page.Limit
	})
	if err != nil {
		s.respond(w, nil, false, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) writeRecords(w http.ResponseWriter, records []eventindex.Record, err error) {
	if err != nil {
		s.respond(w, nil, false, err)
		return
	}
	out := make([]*types.Event, 0, len(records))
	for _, rec := range records {
		evt, err := rec.Event()
		if err != nil {
			s.respond(w, nil, false, err)
			return
		}
		out = append(out, evt)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) respond(w http.ResponseWriter, body interface{}, found bool, err error) {
	switch {
	case err != nil:
		s.logger.Error("indexerd: api read failed", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "internal error")
	case !found:
		writeError(w, http.StatusNotFound, "not found")
	default:
		writeJSON(w, http.StatusOK, body)
	}
}

func addressParam(w http.ResponseWriter, r *http.Request, name string) (common.Address, bool) {
	raw := strings.TrimSpace(chi.URLParam(r, name))
	if !common.IsHexAddress(raw) {
		writeError(w, http.StatusBadRequest, "invalid address "+name)
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}

func hashParam(w http.ResponseWriter, r *http.Request, name string) (common.Hash, bool) {
	raw := strings.TrimPrefix(strings.TrimSpace(chi.URLParam(r, name)), "0x")
	if len(raw) != 2*common.HashLength {
		writeError(w, http.StatusBadRequest, "invalid id "+name)
		return common.Hash{}, false
	}
	return common.HexToHash(raw), true
}

func pageParams(r *http.Request) eventindex.Page {
	var page eventindex.Page
	if v, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && v > 0 {
		page.Offset = v
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 {
		page.Limit = v
	}
	return page.Normalize()
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
