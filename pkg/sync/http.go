package sync

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

type requestLogger struct {
	log.FieldLogger
}

func (l *requestLogger) Print(v ...interface{}) {
	l.FieldLogger.Info(v...)
}

func (d *Daemon) newRouter() chi.Router {
	logger := d.logger.WithField("component", "api")

	router := chi.NewRouter()
	router.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{Logger: &requestLogger{logger}}))

	router.Get("/healthy", d.healthHandler)
	router.Handle("/metrics", promhttp.Handler())
	router.Post("/api/v1/runs", d.triggerRunHandler)
	return router
}

func (d *Daemon) healthHandler(w http.ResponseWriter, r *http.Request) {
	d.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// triggerRunHandler runs a synchronization inline and reports its outcome.
// The request body is an opaque trigger payload and is ignored.
func (d *Daemon) triggerRunHandler(w http.ResponseWriter, r *http.Request) {
	result, ok := d.runOnce()
	if !ok {
		d.writeJSON(w, http.StatusConflict, Result{
			Status:  StatusFailure,
			Message: "a sync run is already in progress",
		})
		return
	}

	code := http.StatusOK
	if result.Status != StatusSuccess {
		code = http.StatusInternalServerError
	}
	d.writeJSON(w, code, result)
}

func (d *Daemon) writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		d.logger.WithError(err).Error("error writing HTTP response")
	}
}
