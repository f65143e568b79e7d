// Package classifier maps transport result codes onto failure classes.
package classifier

import (
	"strconv"

	"github.com/walletsms/golang_services/internal/core_sms/domain"
)

// Result codes reported by the platform SMS stack in sent and delivered callbacks.
const (
	ResultOK                    = -1
	ResultGenericFailure        = 1
	ResultRadioOff              = 2
	ResultNullPDU               = 3
	ResultNoService             = 4
	ResultLimitExceeded         = 5
	ResultFDNCheckFailure       = 6
	ResultShortCodeNotAllowed   = 7
	ResultShortCodeNeverAllowed = 8
	ResultRadioNotAvailable     = 9
	ResultNetworkReject         = 10
	ResultInvalidArguments      = 11
	ResultInvalidState          = 12
	ResultNoMemory              = 13
	ResultInvalidSMSFormat      = 14
	ResultSystemError           = 15
	ResultModemError            = 16
	ResultNetworkError          = 17
	ResultEncodingError         = 18
	ResultInvalidSMSCAddress    = 19
	ResultOperationNotAllowed   = 20
	ResultInternalError         = 21
	ResultNoResources           = 22
	ResultCancelled             = 23
	ResultRequestNotSupported   = 24
)

type codeInfo struct {
	name  string
	class domain.FailureClass
}

var known = map[int]codeInfo{
	ResultGenericFailure:        {"GENERIC_FAILURE", domain.FailureTransient},
	ResultRadioOff:              {"RADIO_OFF", domain.FailureTransient},
	ResultNullPDU:               {"NULL_PDU", domain.FailurePermanent},
	ResultNoService:             {"NO_SERVICE", domain.FailureTransient},
	ResultLimitExceeded:         {"LIMIT_EXCEEDED", domain.FailureTransient},
	ResultFDNCheckFailure:       {"FDN_CHECK_FAILURE", domain.FailurePermanent},
	ResultShortCodeNotAllowed:   {"SHORT_CODE_NOT_ALLOWED", domain.FailurePermanent},
	ResultShortCodeNeverAllowed: {"SHORT_CODE_NEVER_ALLOWED", domain.FailurePermanent},
	ResultRadioNotAvailable:     {"RADIO_NOT_AVAILABLE", domain.FailureTransient},
	ResultNetworkReject:         {"NETWORK_REJECT", domain.FailureTransient},
	ResultInvalidArguments:      {"INVALID_ARGUMENTS", domain.FailurePermanent},
	ResultInvalidState:          {"INVALID_STATE", domain.FailureTransient},
	ResultNoMemory:              {"NO_MEMORY", domain.FailureTransient},
	ResultInvalidSMSFormat:      {"INVALID_SMS_FORMAT", domain.FailurePermanent},
	ResultSystemError:           {"SYSTEM_ERROR", domain.FailureTransient},
	ResultModemError:            {"MODEM_ERROR", domain.FailureTransient},
	ResultNetworkError:          {"NETWORK_ERROR", domain.FailureTransient},
	ResultEncodingError:         {"ENCODING_ERROR", domain.FailurePermanent},
	ResultInvalidSMSCAddress:    {"INVALID_SMSC_ADDRESS", domain.FailurePermanent},
	ResultOperationNotAllowed:   {"OPERATION_NOT_ALLOWED", domain.FailureTransient},
	ResultInternalError:         {"INTERNAL_ERROR", domain.FailureTransient},
	ResultNoResources:           {"NO_RESOURCES", domain.FailureTransient},
	ResultCancelled:             {"CANCELLED", domain.FailureTransient},
	ResultRequestNotSupported:   {"REQUEST_NOT_SUPPORTED", domain.FailurePermanent},
}

// Classify is total: codes it does not recognize are transient.
func Classify(code int) domain.FailureClass {
	if info, ok := known[code]; ok {
		return info.class
	}
	return domain.FailureTransient
}

// Name returns a diagnostic name for code.
func Name(code int) string {
	if code == ResultOK {
		return "RESULT_OK"
	}
	if info, ok := known[code]; ok {
		return info.name
	}
	return "UNKNOWN_" + strconv.Itoa(code)
}

// Reason builds the FailureReason recorded for a failed transition.
func Reason(code int) *domain.FailureReason {
	return &domain.FailureReason{Class: Classify(code), Code: code, Name: Name(code)}
}

// Outcome converts a raw callback result code into a segment outcome.
func Outcome(code int) domain.Outcome {
	if code == ResultOK {
		return domain.Ok()
	}
	return domain.ErrorCode(code)
}

// Classifier adapts the package functions for injection.
type Classifier struct{}

func New() *Classifier { return &Classifier{} }

func (*Classifier) Classify(code int) domain.FailureClass { return Classify(code) }

func (*Classifier) Reason(code int) *domain.FailureReason { return Reason(code) }
