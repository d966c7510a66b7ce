package wire

import "strconv"

// ResultCode is the status carried in acknowledgements and responses.
type ResultCode int

const (
	// ResultOK indicates the operation completed successfully.
	ResultOK ResultCode = 0

	// ResultFail is the generic failure code.
	ResultFail ResultCode = -1

	// ResultInvalidArg indicates the radio core rejected an argument.
	ResultInvalidArg ResultCode = -2

	// ResultNotImplemented indicates the operation is not supported.
	ResultNotImplemented ResultCode = -3

	// ResultTimeout indicates the radio core timed out talking to the device.
	ResultTimeout ResultCode = -4

	// ResultOutOfMemory indicates the radio core ran out of memory.
	ResultOutOfMemory ResultCode = -5

	// ResultMessageDeliveryFailed indicates the device never acknowledged.
	ResultMessageDeliveryFailed ResultCode = -6

	// ResultNetworkBusy indicates the mesh network is congested.
	ResultNetworkBusy ResultCode = -7

	// ResultNotReady indicates the network is not up yet.
	ResultNotReady ResultCode = -8

	// ResultLPM indicates the radio is in low power mode.
	ResultLPM ResultCode = -9
)

// String returns the result code name.
func (c ResultCode) String() string {
	switch c {
	case ResultOK:
		return "OK"
	case ResultFail:
		return "FAIL"
	case ResultInvalidArg:
		return "INVALID_ARG"
	case ResultNotImplemented:
		return "NOT_IMPLEMENTED"
	case ResultTimeout:
		return "TIMEOUT"
	case ResultOutOfMemory:
		return "OUT_OF_MEMORY"
	case ResultMessageDeliveryFailed:
		return "MESSAGE_DELIVERY_FAILED"
	case ResultNetworkBusy:
		return "NETWORK_BUSY"
	case ResultNotReady:
		return "NOT_READY"
	case ResultLPM:
		return "LPM"
	default:
		return "RESULT_" + strconv.Itoa(int(c))
	}
}

// IsSuccess returns true for ResultOK.
func (c ResultCode) IsSuccess() bool {
	return c == ResultOK
}
