package bps

import "errors"

var (
	ErrIllegalArgument = errors.New("error in function arguments")
	ErrInvalidConfig   = errors.New("invalid configuration")
	ErrLinkDown        = errors.New("CAN link is not enabled")
	ErrTxFailed        = errors.New("CAN transmission failed")
	ErrRxOverflow      = errors.New("previous frame was not processed yet, receive queue full")
	ErrRxMsgLength     = errors.New("wrong receive message length")
	ErrUnknownAddress  = errors.New("no handler for CAN address")
	ErrMonitorInit     = errors.New("cell monitor initialization failed")
	ErrMonitorRead     = errors.New("cell monitor read failed")
	ErrAdcRead         = errors.New("ADC read failed")
	ErrOutput          = errors.New("discrete output command failed")
)
