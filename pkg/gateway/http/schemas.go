package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/wmu-sunseeker/gobps/pkg/controller"
	"github.com/wmu-sunseeker/gobps/pkg/gateway"
)

type GatewayResponse interface {
	GetError() error
	GetSequenceNb() int
}

// HTTP response base
type GatewayResponseBase struct {
	// Sequence number corresponding to a request
	Sequence string `json:"sequence"`
	// Response, can be "OK" or "ERROR:x"
	Response string `json:"response"`
}

func NewResponseBase(sequence int, response string) *GatewayResponseBase {
	return &GatewayResponseBase{
		Sequence: strconv.Itoa(sequence),
		Response: response,
	}
}

// Map any error to a gateway error response
func NewResponseError(sequence int, err error) []byte {
	var gwErr *GatewayError
	switch {
	case errors.As(err, &gwErr):
	case errors.Is(err, gateway.ErrWrongMode):
		gwErr = ErrGwWrongMode
	default:
		gwErr = ErrGwRequestNotProcessed
	}
	jData, _ := json.Marshal(NewResponseBase(sequence, gwErr.Error()))
	return jData
}

func NewResponseSuccess(sequence int) []byte {
	jData, _ := json.Marshal(NewResponseBase(sequence, "OK"))
	return jData
}

// Extract error if any inside of response
func (resp *GatewayResponseBase) GetError() error {
	if !strings.HasPrefix(resp.Response, "ERROR:") {
		return nil
	}
	code, err := strconv.Atoi(strings.TrimPrefix(resp.Response, "ERROR:"))
	if err != nil {
		return fmt.Errorf("error decoding error field ('ERROR:' : %v)", err)
	}
	return NewGatewayError(code)
}

func (resp *GatewayResponseBase) GetSequenceNb() int {
	sequence, _ := strconv.Atoi(resp.Sequence)
	return sequence
}

// HTTP request to the server
type GatewayRequest struct {
	method     string
	command    string // rest of the URI after the sequence number
	sequence   uint32
	parameters json.RawMessage
}

type StatusResponse struct {
	*GatewayResponseBase
	Status controller.Snapshot `json:"status"`
}

type FaultsResponse struct {
	*GatewayResponseBase
	Faults []controller.FaultEvent `json:"faults"`
}

type FaultResponse struct {
	*GatewayResponseBase
	Fault *controller.FaultEvent `json:"fault"`
}

type CellsResponse struct {
	*GatewayResponseBase
	PackVoltage float32                  `json:"packVoltage"`
	BankStatus  []uint8                  `json:"bankStatus"`
	Cells       []controller.CellReading `json:"cells"`
}

type TemperaturesResponse struct {
	*GatewayResponseBase
	Status       string                          `json:"status"`
	Temperatures []controller.TemperatureReading `json:"temperatures"`
}

type VersionInfo struct {
	*GatewayResponseBase
	*gateway.GatewayVersion
}

// Message pushed on the live stream
type StreamMessage struct {
	Type     string               `json:"type"` // hello or snapshot
	Client   string               `json:"client,omitempty"`
	Snapshot *controller.Snapshot `json:"snapshot,omitempty"`
}
