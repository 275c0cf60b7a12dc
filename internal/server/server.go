// Package server exposes the market data service over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"marketdata/internal/aggregate"
	"marketdata/internal/logging"
	"marketdata/internal/provider"
	"marketdata/internal/provider/ratelimit"
	"marketdata/internal/service"
)

const (
	maxSymbols     = 1000
	defaultHistory = 30 // days
)

// Backend is the subset of *service.Service served over HTTP.
type Backend interface {
	SearchSymbols(ctx context.Context, query string) []provider.SymbolSearchResult
	GetQuote(ctx context.Context, inst provider.Instrument) (provider.Quote, bool)
	GetHistory(ctx context.Context, inst provider.Instrument, r provider.DateRange) ([]provider.PriceBar, error)
	RefreshAll(ctx context.Context, instruments []provider.Instrument) service.RefreshSummary
	Status(ctx context.Context) service.MarketStatus
	Instruments() []provider.Instrument
	Lookup(key string) (provider.Instrument, bool)
}

// Options tune the HTTP surface.
type Options struct {
	Logger *logrus.Entry
	// CORSOrigins enables CORS for the listed origins.
	CORSOrigins []string
	// RequestTimeout bounds each request; zero means 15s.
	RequestTimeout time.Duration
	Now            func() time.Time
}

type api struct {
	svc     Backend
	log     *logrus.Entry
	timeout time.Duration
	now     func() time.Time
}

// New returns the HTTP handler for svc.
func New(svc Backend, opts Options) http.Handler {
	a := &api{svc: svc, log: opts.Logger, timeout: opts.RequestTimeout, now: opts.Now}
	if a.log == nil {
		a.log = logrus.NewEntry(logrus.StandardLogger())
	}
	a.log = a.log.WithField("component", "http")
	if a.timeout <= 0 {
		a.timeout = 15 * time.Second
	}
	if a.now == nil {
		a.now = time.Now
	}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", a.health).Methods(http.MethodGet)
	apiR := r.PathPrefix("/api").Subrouter()
	apiR.HandleFunc("/search", a.search).Methods(http.MethodGet)
	apiR.HandleFunc("/quotes", a.quotes).Methods(http.MethodGet)
	apiR.HandleFunc("/history/{symbol}", a.history).Methods(http.MethodGet)
	apiR.HandleFunc("/status", a.status).Methods(http.MethodGet)
	apiR.HandleFunc("/refresh", a.refresh).Methods(http.MethodPost)

	var h http.Handler = r
	h = handlers.CompressHandler(h)
	if len(opts.CORSOrigins) > 0 {
		h = handlers.CORS(
			handlers.AllowedOrigins(opts.CORSOrigins),
			handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
			handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
		)(h)
	}
	h = handlers.RecoveryHandler(handlers.RecoveryLogger(a.log), handlers.PrintRecoveryStack(true))(h)
	return logging.Middleware(a.log)(h)
}

func (a *api) health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

type searchResponse struct {
	Results []provider.SymbolSearchResult `json:"results"`
}

func (a *api) search(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeError(w, http.StatusBadRequest, "missing q query param")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), a.timeout)
	defer cancel()
	writeJSON(w, http.StatusOK, searchResponse{Results: a.svc.SearchSymbols(ctx, q)})
}

type quotesResponse struct {
	Quotes []provider.Quote `json:"quotes"`
	// Missing lists tracked symbols for which no price is available.
	Missing []string `json:"missing,omitempty"`
	// Unknown lists requested symbols that are not tracked.
	Unknown []string `json:"unknown,omitempty"`
}

func (a *api) quotes(w http.ResponseWriter, r *http.Request) {
	var insts []provider.Instrument
	var resp quotesResponse

	raw := r.URL.Query().Get("symbols")
	if strings.TrimSpace(raw) == "" {
		insts = a.svc.Instruments()
	} else {
		symbols := splitCSV(raw)
		if len(symbols) > maxSymbols {
			writeError(w, http.StatusBadRequest, "too many symbols (max 1000)")
			return
		}
		for _, s := range symbols {
			inst, ok := a.svc.Lookup(s)
			if !ok {
				resp.Unknown = append(resp.Unknown, s)
				continue
			}
			insts = append(insts, inst)
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), a.timeout)
	defer cancel()

	var mu sync.Mutex
	var wg sync.WaitGroup
	found := make([]provider.Quote, 0, len(insts))
	for _, inst := range insts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q, ok := a.svc.GetQuote(ctx, inst)
			mu.Lock()
			defer mu.Unlock()
			if !ok {
				resp.Missing = append(resp.Missing, inst.Symbol)
				return
			}
			found = append(found, q)
		}()
	}
	wg.Wait()

	resp.Quotes = aggregate.LatestByInstrument(found)
	writeJSON(w, http.StatusOK, resp)
}

type historyResponse struct {
	InstrumentID string              `json:"instrument_id"`
	Symbol       string              `json:"symbol"`
	From         string              `json:"from"`
	To           string              `json:"to"`
	Bars         []provider.PriceBar `json:"bars"`
}

func (a *api) history(w http.ResponseWriter, r *http.Request) {
	sym := mux.Vars(r)["symbol"]
	inst, ok := a.svc.Lookup(sym)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown symbol "+sym)
		return
	}

	to := provider.Day(a.now())
	if v := r.URL.Query().Get("to"); v != "" {
		d, err := time.Parse(time.DateOnly, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid to date, want YYYY-MM-DD")
			return
		}
		to = d
	}
	from := to.AddDate(0, 0, -defaultHistory)
	if v := r.URL.Query().Get("from"); v != "" {
		d, err := time.Parse(time.DateOnly, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid from date, want YYYY-MM-DD")
			return
		}
		from = d
	}

	ctx, cancel := context.WithTimeout(r.Context(), a.timeout)
	defer cancel()
	bars, err := a.svc.GetHistory(ctx, inst, provider.DateRange{From: from, To: to})
	if err != nil {
		writeError(w, historyStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, historyResponse{
		InstrumentID: inst.ID,
		Symbol:       inst.Symbol,
		From:         from.Format(time.DateOnly),
		To:           to.Format(time.DateOnly),
		Bars:         bars,
	})
}

func historyStatus(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidRange):
		return http.StatusBadRequest
	case errors.Is(err, ratelimit.ErrBudgetExhausted), errors.Is(err, provider.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, provider.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, provider.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, service.ErrNoHistoryProvider):
		return http.StatusNotImplemented
	default:
		return http.StatusBadGateway
	}
}

func (a *api) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.svc.Status(r.Context()))
}

func (a *api) refresh(w http.ResponseWriter, r *http.Request) {
	insts := a.svc.Instruments()
	if len(insts) == 0 {
		writeError(w, http.StatusConflict, "no instruments are tracked")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), a.timeout)
	defer cancel()
	writeJSON(w, http.StatusOK, a.svc.RefreshAll(ctx, insts))
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
