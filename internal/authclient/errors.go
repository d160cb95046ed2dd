package authclient

import (
	"fmt"
	"net/http"
)

// ErrorCode is the typed form of the numeric `code` carried by problem bodies
// and by sync session errors.
type ErrorCode int

const (
	Unknown ErrorCode = -1

	// Connection level and protocol errors.
	ConnectionClosed     ErrorCode = 100
	OtherError           ErrorCode = 101
	UnknownMessage       ErrorCode = 102
	BadSyntax            ErrorCode = 103
	LimitsExceeded       ErrorCode = 104
	WrongProtocolVersion ErrorCode = 105
	BadSessionIdent      ErrorCode = 106
	ReuseOfSessionIdent  ErrorCode = 107
	BoundInOtherSession  ErrorCode = 108
	BadMessageOrder      ErrorCode = 109

	// Session level errors.
	SessionClosed             ErrorCode = 200
	OtherSessionError         ErrorCode = 201
	TokenExpired              ErrorCode = 202
	BadUserAuthentication     ErrorCode = 203
	IllegalRealmPath          ErrorCode = 204
	NoSuchRealm               ErrorCode = 205
	PermissionDenied          ErrorCode = 206
	BadServerFileIdent        ErrorCode = 207
	BadClientFileIdent        ErrorCode = 208
	BadServerVersion          ErrorCode = 209
	BadClientVersion          ErrorCode = 210
	DivergingHistories        ErrorCode = 211
	BadChangeset              ErrorCode = 212
	DisabledSession           ErrorCode = 213
	PartialSyncDisabled       ErrorCode = 214
	UnsupportedSessionFeature ErrorCode = 215
	BadOriginFileIdent        ErrorCode = 216

	// Auth endpoint errors.
	InvalidParameters   ErrorCode = 601
	MissingParameters   ErrorCode = 602
	InvalidCredentials  ErrorCode = 611
	UnknownAccount      ErrorCode = 612
	ExistingAccount     ErrorCode = 613
	AccessDenied        ErrorCode = 614
	ExpiredRefreshToken ErrorCode = 615
	InvalidHost         ErrorCode = 616
	RealmNotFound       ErrorCode = 617
	UnknownUser         ErrorCode = 618
	WrongRealmType      ErrorCode = 619

	ExpiredPermissionOffer        ErrorCode = 701
	AmbiguousPermissionOfferToken ErrorCode = 702
	FileMayNotBeShared            ErrorCode = 703

	ServerMisconfiguration ErrorCode = 801
)

var codeNames = map[ErrorCode]string{
	Unknown:                       "Unknown",
	ConnectionClosed:              "ConnectionClosed",
	OtherError:                    "OtherError",
	UnknownMessage:                "UnknownMessage",
	BadSyntax:                     "BadSyntax",
	LimitsExceeded:                "LimitsExceeded",
	WrongProtocolVersion:          "WrongProtocolVersion",
	BadSessionIdent:               "BadSessionIdent",
	ReuseOfSessionIdent:           "ReuseOfSessionIdent",
	BoundInOtherSession:           "BoundInOtherSession",
	BadMessageOrder:               "BadMessageOrder",
	SessionClosed:                 "SessionClosed",
	OtherSessionError:             "OtherSessionError",
	TokenExpired:                  "TokenExpired",
	BadUserAuthentication:         "BadUserAuthentication",
	IllegalRealmPath:              "IllegalRealmPath",
	NoSuchRealm:                   "NoSuchRealm",
	PermissionDenied:              "PermissionDenied",
	BadServerFileIdent:            "BadServerFileIdent",
	BadClientFileIdent:            "BadClientFileIdent",
	BadServerVersion:              "BadServerVersion",
	BadClientVersion:              "BadClientVersion",
	DivergingHistories:            "DivergingHistories",
	BadChangeset:                  "BadChangeset",
	DisabledSession:               "DisabledSession",
	PartialSyncDisabled:           "PartialSyncDisabled",
	UnsupportedSessionFeature:     "UnsupportedSessionFeature",
	BadOriginFileIdent:            "BadOriginFileIdent",
	InvalidParameters:             "InvalidParameters",
	MissingParameters:             "MissingParameters",
	InvalidCredentials:            "InvalidCredentials",
	UnknownAccount:                "UnknownAccount",
	ExistingAccount:               "ExistingAccount",
	AccessDenied:                  "AccessDenied",
	ExpiredRefreshToken:           "ExpiredRefreshToken",
	InvalidHost:                   "InvalidHost",
	RealmNotFound:                 "RealmNotFound",
	UnknownUser:                   "UnknownUser",
	WrongRealmType:                "WrongRealmType",
	ExpiredPermissionOffer:        "ExpiredPermissionOffer",
	AmbiguousPermissionOfferToken: "AmbiguousPermissionOfferToken",
	FileMayNotBeShared:            "FileMayNotBeShared",
	ServerMisconfiguration:        "ServerMisconfiguration",
}

// CodeFromInt maps a wire code through the fixed table; anything unknown is Unknown.
func CodeFromInt(v int) ErrorCode {
	c := ErrorCode(v)
	if _, ok := codeNames[c]; ok {
		return c
	}
	return Unknown
}

func (c ErrorCode) String() string {
	if n, ok := codeNames[c]; ok {
		return n
	}
	return fmt.Sprintf("ErrorCode(%d)", int(c))
}

// TransportError is returned for non-2xx or non-JSON responses without a
// problem body, and for requests that never produced a response (StatusCode 0).
type TransportError struct {
	StatusCode int
	Reason     string
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("auth request failed: %v", e.Err)
	}
	if e.Body == "" {
		return fmt.Sprintf("auth endpoint returned %d %s", e.StatusCode, e.Reason)
	}
	return fmt.Sprintf("auth endpoint returned %d %s: %s", e.StatusCode, e.Reason, e.Body)
}

func (e *TransportError) Unwrap() error { return e.Err }

// AuthenticationError is returned for application/problem+json responses.
type AuthenticationError struct {
	Code       ErrorCode
	StatusCode int
	Reason     string
	Body       string
	Title      string
}

func (e *AuthenticationError) Error() string {
	title := e.Title
	if title == "" {
		title = e.Reason
	}
	return fmt.Sprintf("authentication failed (%s, %d): %s", e.Code, e.StatusCode, title)
}

func reasonPhrase(status int) string {
	return http.StatusText(status)
}
