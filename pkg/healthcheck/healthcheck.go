/*
Copyright Broca Project Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package healthcheck

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/trustbloc/logutil-go/pkg/log"

	logfields "github.com/broca-activitypub/broca/internal/pkg/log"
	"github.com/broca-activitypub/broca/pkg/httpserver"
	"github.com/broca-activitypub/broca/pkg/restapi/common"
)

var logger = log.New("healthcheck")

const (
	healthCheckEndpoint = "/healthcheck"

	success      = "success"
	notConnected = "not connected"
	unknown      = "unknown error"
)

type pubSub interface {
	IsConnected() bool
}

type db interface {
	Ping() error
}

// Handler implements a health check HTTP handler.
type Handler struct {
	pubSub          pubSub
	db              db
	maintenanceMode bool
	startTime       time.Time
}

// NewHandler returns a new health check handler. The pubSub and db dependencies are
// optional; a nil dependency is excluded from the check.
func NewHandler(pubSub pubSub, db db, maintenanceMode bool) *Handler {
	return &Handler{
		pubSub:          pubSub,
		db:              db,
		maintenanceMode: maintenanceMode,
		startTime:       time.Now(),
	}
}

// Method returns the HTTP method, which is always GET.
func (h *Handler) Method() string {
	return http.MethodGet
}

// Path returns the base path of the target URL for this handler.
func (h *Handler) Path() string {
	return healthCheckEndpoint
}

// Handler returns the handler that should be registered with an HTTP server.
func (h *Handler) Handler() common.HTTPRequestHandler {
	return h.checkHealth
}

type response struct {
	Status      string    `json:"status,omitempty"`
	MQStatus    string    `json:"mqStatus,omitempty"`
	DBStatus    string    `json:"dbStatus,omitempty"`
	CurrentTime time.Time `json:"currentTime,omitempty"`
	Uptime      string    `json:"uptime,omitempty"`
	Version     string    `json:"version,omitempty"`
}

func (h *Handler) checkHealth(rw http.ResponseWriter, _ *http.Request) {
	returnStatusServiceUnavailable := false

	unavailable, mqStatus := h.mqHealthCheck()
	if unavailable {
		returnStatusServiceUnavailable = true
	}

	unavailable, dbStatus := h.dbHealthCheck()
	if unavailable {
		returnStatusServiceUnavailable = true
	}

	status := http.StatusOK

	if returnStatusServiceUnavailable {
		status = http.StatusServiceUnavailable
	}

	hc := &response{
		Status:      "OK",
		MQStatus:    mqStatus,
		DBStatus:    dbStatus,
		CurrentTime: time.Now(),
		Uptime:      time.Since(h.startTime).Truncate(time.Second).String(),
		Version:     httpserver.BuildVersion,
	}

	if h.maintenanceMode {
		// The server was started in maintenance mode, so return 200 even if a check is
		// failing in order to give an admin the opportunity to fix the configuration.
		status = http.StatusOK
		hc.Status = "Maintenance"
	}

	hcBytes, err := json.Marshal(hc)
	if err != nil {
		logger.Error("Healthcheck marshal error", log.WithError(err))

		return
	}

	logger.Debug("Health check returning response", logfields.WithHTTPStatus(status),
		logfields.WithResponse(hcBytes))

	rw.WriteHeader(status)

	_, err = rw.Write(hcBytes)
	if err != nil {
		logger.Error("Healthcheck response failure", log.WithError(err))
	}
}

func (h *Handler) mqHealthCheck() (bool, string) {
	if h.pubSub == nil {
		return false, ""
	}

	if h.pubSub.IsConnected() {
		return false, success
	}

	return true, notConnected
}

func (h *Handler) dbHealthCheck() (bool, string) {
	if h.db == nil {
		return false, ""
	}

	err := h.db.Ping()
	if err == nil {
		return false, success
	}

	return true, toStatus(err)
}

func toStatus(err error) string {
	if err.Error() != "" {
		return err.Error()
	}

	return unknown
}
