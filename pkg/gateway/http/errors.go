package http

import "fmt"

var ERROR_GATEWAY_DESCRIPTION_MAP = map[int]string{
	100: "Request not supported",
	101: "Syntax error",
	102: "Request not processed due to internal state",
	204: "Wrong operating mode",
	601: "CAN interface currently not available",
	900: "Manufacturer-specific error",
}

var (
	ErrGwRequestNotSupported      = &GatewayError{Code: 100}
	ErrGwSyntaxError              = &GatewayError{Code: 101}
	ErrGwRequestNotProcessed      = &GatewayError{Code: 102}
	ErrGwWrongMode                = &GatewayError{Code: 204}
	ErrGwCANInterfaceNotAvailable = &GatewayError{Code: 601}
	ErrGwManufacturerSpecific     = &GatewayError{Code: 900}
)

type GatewayError struct {
	Code int
}

func NewGatewayError(code int) error {
	return &GatewayError{Code: code}
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("ERROR:%d", e.Code)
}

func (e *GatewayError) Description() string {
	if description, ok := ERROR_GATEWAY_DESCRIPTION_MAP[e.Code]; ok {
		return description
	}
	return "Unknown error"
}
