package app

import (
	"fmt"
	"net/http"
	"time"

	"go.uber.org/dig"

	"ferry77-dispatch/internal/config"
	"ferry77-dispatch/internal/http/pprofserver"
)

type pprofServerOut struct {
	dig.Out
	Server *http.Server `name:"pprof_server"`
}

// newPprofServer builds the profiling server. A nil server means profiling
// is disabled and the runner skips it.
func newPprofServer(cfg *config.Config) pprofServerOut {
	if !cfg.Pprof.Enabled {
		return pprofServerOut{}
	}
	return pprofServerOut{
		Server: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Pprof.Port),
			Handler:           pprofserver.Handler(cfg.Pprof.User, cfg.Pprof.Pass),
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}
