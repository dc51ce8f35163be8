package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/wmu-sunseeker/gobps/pkg/controller"
	"github.com/wmu-sunseeker/gobps/pkg/gateway"
)

const API_VERSION = "1.0"
const MAX_SEQUENCE_NB = 2<<31 - 1
const API_PREFIX = "/bps"
const STREAM_PATH = "/stream"

type route struct {
	method  string
	handler GatewayRequestHandler
}

type GatewayServer struct {
	*gateway.BaseGateway
	router *gin.Engine
	routes map[string]route
	hub    *Hub
	logger *log.Entry
}

// Create a new gateway
func NewGatewayServer(base *gateway.BaseGateway) *GatewayServer {
	gin.SetMode(gin.ReleaseMode)
	gw := &GatewayServer{
		BaseGateway: base,
		router:      gin.New(),
		routes:      make(map[string]route),
		hub:         NewHub(),
		logger:      log.WithField("component", "gateway"),
	}
	gw.router.Use(gin.Recovery(), gw.logRequests)
	gw.router.Any(API_PREFIX+"/:version/:sequence/*command", gw.handleRequest)
	gw.router.GET(STREAM_PATH, gw.handleStream)

	gw.addRoute(http.MethodGet, "status", gw.handleStatus)
	gw.addRoute(http.MethodGet, "faults", gw.handleFaults)
	gw.addRoute(http.MethodGet, "faults/latest", gw.handleLatestFault)
	gw.addRoute(http.MethodGet, "cells", gw.handleCells)
	gw.addRoute(http.MethodGet, "temperatures", gw.handleTemperatures)
	gw.addRoute(http.MethodGet, "info/version", gw.handleGetVersion)
	gw.addRoute(http.MethodPost, "reset", gw.handleReset)
	gw.addRoute(http.MethodPost, "charge", gw.handleCharge)

	base.Subscribe(func(s controller.Snapshot) {
		gw.hub.Publish(StreamMessage{Type: "snapshot", Snapshot: &s})
	})
	return gw
}

// Add a route to the server for handling a specific command
func (g *GatewayServer) addRoute(method string, command string, handler GatewayRequestHandler) {
	g.routes[command] = route{method: method, handler: handler}
}

// Root handler, for tests and embedding
func (g *GatewayServer) Handler() http.Handler {
	return g.router
}

// Serve until the context is cancelled
func (g *GatewayServer) Serve(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           g.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		g.logger.Infof("[GATEWAY] listening on %v", addr)
		errc <- server.ListenAndServe()
	}()
	select {
	case err := <-errc:
		g.hub.Close()
		return err
	case <-ctx.Done():
	}
	shutdown, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	g.hub.Close()
	err := server.Shutdown(shutdown)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (g *GatewayServer) logRequests(c *gin.Context) {
	start := time.Now()
	c.Next()
	g.logger.Debugf("[GATEWAY] %v %v | %v in %v", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
}
