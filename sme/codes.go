package sme

// ScanResultCode is the outcome of a ScanRequest.
type ScanResultCode uint8

const (
	ScanSuccess ScanResultCode = iota
	ScanBusy
	ScanInvalidArgs
	ScanCanceled
	ScanInternalError
)

func (c ScanResultCode) String() string {
	switch c {
	case ScanSuccess:
		return "success"
	case ScanBusy:
		return "busy"
	case ScanInvalidArgs:
		return "invalid-args"
	case ScanCanceled:
		return "canceled"
	case ScanInternalError:
		return "internal-error"
	default:
		return "unknown"
	}
}

// ConnectResult is the outcome of a ConnectRequest.
type ConnectResult uint8

const (
	ConnectSuccess ConnectResult = iota
	ConnectAuthenticationRejected
	ConnectAuthenticationTimeout
	ConnectAssociationRejected
	ConnectAssociationTimeout
	ConnectCanceled
	ConnectInternalError
)

func (c ConnectResult) String() string {
	switch c {
	case ConnectSuccess:
		return "success"
	case ConnectAuthenticationRejected:
		return "authentication-rejected"
	case ConnectAuthenticationTimeout:
		return "authentication-timeout"
	case ConnectAssociationRejected:
		return "association-rejected"
	case ConnectAssociationTimeout:
		return "association-timeout"
	case ConnectCanceled:
		return "canceled"
	case ConnectInternalError:
		return "internal-error"
	default:
		return "unknown"
	}
}

// EapolResult is the outcome of an EapolRequest.
type EapolResult uint8

const (
	EapolTxSuccess EapolResult = iota
	EapolTxFailure
)

func (c EapolResult) String() string {
	switch c {
	case EapolTxSuccess:
		return "success"
	case EapolTxFailure:
		return "transmission-failure"
	default:
		return "unknown"
	}
}
