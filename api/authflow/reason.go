package authflow

import "net/http"

type Stage int

const (
	StageStart Stage = iota
	StageLocation
	StageDevice
	StageCredentials
	StageSuccess
)

func (s Stage) String() string {
	switch s {
	case StageStart:
		return "start"
	case StageLocation:
		return "location"
	case StageDevice:
		return "device"
	case StageCredentials:
		return "credentials"
	case StageSuccess:
		return "success"
	default:
		return "unknown"
	}
}

// DenialReason is the detailed cause of a failed login. It is written to logs
// and the audit trail only; clients see ClientMessage.
type DenialReason int

const (
	ReasonNone DenialReason = iota
	ReasonMissingField
	ReasonInvalidCoordinates
	ReasonLocationRequired
	ReasonNoGeofences
	ReasonOutsideGeofence
	ReasonGeofenceUnavailable
	ReasonDeviceRequired
	ReasonDeviceDenied
	ReasonDeviceRequiresApproval
	ReasonUnknownPrincipal
	ReasonInactivePrincipal
	ReasonWrongPassword
	ReasonCredentialStoreUnavailable
	ReasonSessionUnavailable
)

var reasonText = map[DenialReason]string{
	ReasonNone:                       "none",
	ReasonMissingField:               "username or password missing",
	ReasonInvalidCoordinates:         "location coordinates are not valid numbers",
	ReasonLocationRequired:           "location required but not supplied",
	ReasonNoGeofences:                "no geofences configured",
	ReasonOutsideGeofence:            "location outside every geofence",
	ReasonGeofenceUnavailable:        "geofence store unavailable",
	ReasonDeviceRequired:             "device fingerprint required but not supplied",
	ReasonDeviceDenied:               "device fingerprint rejected",
	ReasonDeviceRequiresApproval:     "device requires administrator approval",
	ReasonUnknownPrincipal:           "user not found",
	ReasonInactivePrincipal:          "user is inactive",
	ReasonWrongPassword:              "wrong password",
	ReasonCredentialStoreUnavailable: "credential store unavailable",
	ReasonSessionUnavailable:         "session could not be created",
}

func (r DenialReason) String() string {
	if s, ok := reasonText[r]; ok {
		return s
	}
	return "unknown"
}

// Client-facing messages. Credential failures share one message so responses
// do not reveal whether a username exists.
const (
	MessageMissingField     = "missing required field"
	MessageInvalidLocation  = "invalid location"
	MessageOutsideArea      = "outside permitted area"
	MessageDeviceRequired   = "device fingerprint required"
	MessageDeviceNotAllowed = "device not authorized"
	MessageInvalidCreds     = "invalid credentials"
	MessageInternal         = "internal server error"
)

func (r DenialReason) ClientMessage() string {
	switch r {
	case ReasonMissingField:
		return MessageMissingField
	case ReasonInvalidCoordinates, ReasonLocationRequired:
		return MessageInvalidLocation
	case ReasonNoGeofences, ReasonOutsideGeofence:
		return MessageOutsideArea
	case ReasonDeviceRequired:
		return MessageDeviceRequired
	case ReasonDeviceDenied, ReasonDeviceRequiresApproval:
		return MessageDeviceNotAllowed
	case ReasonUnknownPrincipal, ReasonInactivePrincipal, ReasonWrongPassword:
		return MessageInvalidCreds
	case ReasonNone:
		return ""
	default:
		return MessageInternal
	}
}

func (r DenialReason) HTTPStatus() int {
	switch r {
	case ReasonNone:
		return http.StatusOK
	case ReasonMissingField, ReasonInvalidCoordinates, ReasonLocationRequired, ReasonDeviceRequired:
		return http.StatusBadRequest
	case ReasonNoGeofences, ReasonOutsideGeofence, ReasonDeviceDenied, ReasonDeviceRequiresApproval:
		return http.StatusForbidden
	case ReasonUnknownPrincipal, ReasonInactivePrincipal, ReasonWrongPassword:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// RequiresManualApproval marks device outcomes the client should turn into an
// authorization request instead of a plain error.
func (r DenialReason) RequiresManualApproval() bool {
	return r == ReasonDeviceDenied || r == ReasonDeviceRequiresApproval
}
