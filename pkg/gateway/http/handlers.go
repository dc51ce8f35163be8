package http

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

// Handle a [GatewayRequest], a nil response is a plain success
type GatewayRequestHandler func(req *GatewayRequest) (any, error)

// Create a new sanitized api request object from raw http request
func (g *GatewayServer) newRequestFromRaw(c *gin.Context) (*GatewayRequest, error) {
	if version := c.Param("version"); version != API_VERSION {
		g.logger.Errorf("[GATEWAY] api version %v is not supported", version)
		return nil, ErrGwRequestNotSupported
	}
	sequence, err := strconv.Atoi(c.Param("sequence"))
	if err != nil || sequence < 0 || sequence > MAX_SEQUENCE_NB {
		g.logger.Errorf("[GATEWAY] error processing sequence number %v", c.Param("sequence"))
		return nil, ErrGwSyntaxError
	}
	var parameters json.RawMessage
	if c.Request.Body != nil {
		err = json.NewDecoder(c.Request.Body).Decode(&parameters)
		if err != nil && err != io.EOF {
			g.logger.Warnf("[GATEWAY] failed to unmarshal request body : %v", err)
			return nil, ErrGwSyntaxError
		}
	}
	return &GatewayRequest{
		method:     c.Request.Method,
		command:    strings.Trim(c.Param("command"), "/"),
		sequence:   uint32(sequence),
		parameters: parameters,
	}, nil
}

// Default handler of any HTTP gateway request
// This parses a typical request and forwards it to the correct handler
func (g *GatewayServer) handleRequest(c *gin.Context) {
	req, err := g.newRequestFromRaw(c)
	if err != nil {
		c.Data(http.StatusOK, gin.MIMEJSON, NewResponseError(0, err))
		return
	}
	sequence := int(req.sequence)
	route, ok := g.routes[req.command]
	if !ok || route.method != req.method {
		g.logger.Debugf("[GATEWAY] no handler found for %v %v", req.method, req.command)
		c.Data(http.StatusOK, gin.MIMEJSON, NewResponseError(sequence, ErrGwRequestNotSupported))
		return
	}
	resp, err := route.handler(req)
	switch {
	case err != nil:
		c.Data(http.StatusOK, gin.MIMEJSON, NewResponseError(sequence, err))
	case resp == nil:
		c.Data(http.StatusOK, gin.MIMEJSON, NewResponseSuccess(sequence))
	default:
		c.JSON(http.StatusOK, resp)
	}
}

func (g *GatewayServer) handleStatus(req *GatewayRequest) (any, error) {
	return StatusResponse{
		GatewayResponseBase: NewResponseBase(int(req.sequence), "OK"),
		Status:              g.Status(),
	}, nil
}

func (g *GatewayServer) handleFaults(req *GatewayRequest) (any, error) {
	return FaultsResponse{
		GatewayResponseBase: NewResponseBase(int(req.sequence), "OK"),
		Faults:              g.Faults(),
	}, nil
}

func (g *GatewayServer) handleLatestFault(req *GatewayRequest) (any, error) {
	resp := FaultResponse{GatewayResponseBase: NewResponseBase(int(req.sequence), "OK")}
	if fault, ok := g.LatestFault(); ok {
		resp.Fault = &fault
	}
	return resp, nil
}

func (g *GatewayServer) handleCells(req *GatewayRequest) (any, error) {
	status := g.Status()
	return CellsResponse{
		GatewayResponseBase: NewResponseBase(int(req.sequence), "OK"),
		PackVoltage:         status.PackVoltage,
		BankStatus:          status.BankStatus[:],
		Cells:               status.Cells,
	}, nil
}

func (g *GatewayServer) handleTemperatures(req *GatewayRequest) (any, error) {
	status := g.Status()
	return TemperaturesResponse{
		GatewayResponseBase: NewResponseBase(int(req.sequence), "OK"),
		Status:              status.TemperatureStatus,
		Temperatures:        status.Temperatures,
	}, nil
}

func (g *GatewayServer) handleGetVersion(req *GatewayRequest) (any, error) {
	version := g.GetVersion()
	return VersionInfo{
		GatewayResponseBase: NewResponseBase(int(req.sequence), "OK"),
		GatewayVersion:      &version,
	}, nil
}

func (g *GatewayServer) handleReset(req *GatewayRequest) (any, error) {
	return nil, g.Reset()
}

func (g *GatewayServer) handleCharge(req *GatewayRequest) (any, error) {
	return nil, g.ManualCharge()
}
