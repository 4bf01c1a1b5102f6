package web

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	"github.com/ulule/limiter/v3/drivers/store/memory"

	"github.com/liut/parlor/pkg/services/charts"
	"github.com/liut/parlor/pkg/services/highlight"
	"github.com/liut/parlor/pkg/services/invoker"
	"github.com/liut/parlor/pkg/services/stores"
	"github.com/liut/parlor/pkg/settings"
	"github.com/liut/parlor/pkg/transcript"
)

const dftInvokeRate = "30-M"

type Service interface {
	Serve(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Invoker runs a query against the resource of an action
type Invoker interface {
	Invoke(ctx context.Context, resource, query, credential string) (string, error)
}

type Config struct {
	Addr  string
	Debug bool

	DocHandler http.Handler

	// optional, from settings when empty
	Storage    stores.Storage
	Invoker    Invoker
	Segmenter  *transcript.Segmenter
	InvokeRate string
}

type server struct {
	Addr string
	cfg  Config

	sto stores.Storage

	ar *chi.Mux     // app router
	hs *http.Server // http server

	seg *transcript.Segmenter
	hl  *highlight.Highlighter
	cr  charts.Renderer
	iv  Invoker
	lmt *stdlib.Middleware // invoke rate limit
}

// New return new web server
func New(cfg Config) Service {
	return newServer(cfg)
}

func newServer(cfg Config) *server {
	ar := chi.NewMux()
	if cfg.Debug {
		ar.Use(middleware.Logger)
	}
	ar.Use(middleware.Recoverer, middleware.RealIP)

	s := &server{
		Addr: cfg.Addr, ar: ar,
		cfg: cfg,
		sto: cfg.Storage,
		seg: cfg.Segmenter,
		iv:  cfg.Invoker,
		hl:  highlight.New(highlight.DefaultStyle),
		cr:  new(charts.ConfigRenderer),
	}
	if s.sto == nil {
		s.sto = stores.Sgt()
	}
	if s.seg == nil {
		s.seg = transcript.New(transcript.Options{
			CharDelay:         settings.Current.CharDelay,
			CodeAdvancesClock: settings.Current.CodeAdvancesClock,
			UserName:          settings.Current.UserName,
		})
	}
	if s.iv == nil {
		s.iv = invoker.New(settings.Current.InvokeTimeout)
	}
	s.initLimiter()
	s.strapRouter()

	s.hs = &http.Server{
		Addr:    s.Addr,
		Handler: s.ar,
	}

	if cfg.Debug {
		logger().Infow("routes:")
		walkFunc := func(method string, route string, handler http.Handler, middlewares ...func(http.Handler) http.Handler) error {
			route = strings.Replace(route, "/*/", "/", -1)
			fmt.Fprintf(os.Stderr, "DEBUG: %-6s %-24s --> %s (%d mw)\n", method, route, nameOfFunction(handler), len(middlewares))
			return nil
		}

		if err := chi.Walk(ar, walkFunc); err != nil {
			logger().Infow("router walk fail", "err", err)
		}
	}
	return s
}

func (s *server) Serve(ctx context.Context) error {
	// Run HTTP server
	runErrChan := make(chan error)
	t := time.AfterFunc(time.Millisecond*200, func() {
		runErrChan <- s.hs.ListenAndServe()
	})

	defer t.Stop()
	logger().Infow("Listen on", "addr", s.hs.Addr)

	// Wait
	for {
		select {
		case runErr := <-runErrChan:
			if runErr != nil {
				logger().Infow("run http server failed",
					"err", runErr,
				)
				return runErr
			}
		case <-ctx.Done():
			logger().Info("http server has been stopped")
			return ctx.Err()
		}
	}
}

func (s *server) Stop(ctx context.Context) error {
	if err := s.hs.Shutdown(ctx); err != nil {
		logger().Infow("Server Shutdown", "err", err)
		return err
	}
	return nil
}

func (s *server) initLimiter() {
	formatted := s.cfg.InvokeRate
	if len(formatted) == 0 {
		formatted = settings.Current.InvokeRate
	}
	rate, err := limiter.NewRateFromFormatted(formatted)
	if err != nil {
		logger().Infow("invalid invoke rate, use default", "rate", formatted, "err", err)
		rate, _ = limiter.NewRateFromFormatted(dftInvokeRate)
	}
	s.lmt = stdlib.NewMiddleware(limiter.New(memory.NewStore(), rate))
}
