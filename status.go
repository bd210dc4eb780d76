package zenohrpc

// RpcStatus 统一 transport / codec 两类故障的调用结果
type RpcStatus int

const (
	StatusOK RpcStatus = iota
	StatusTimeout
	StatusEncodeError
	StatusDecodeError
	StatusTransportError
	StatusNotFound
)

func (s RpcStatus) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusTimeout:
		return "TIMEOUT"
	case StatusEncodeError:
		return "ENCODE_ERROR"
	case StatusDecodeError:
		return "DECODE_ERROR"
	case StatusTransportError:
		return "TRANSPORT_ERROR"
	case StatusNotFound:
		return "NOT_FOUND"
	}
	return "UNKNOWN"
}
