package app

import (
	"fmt"
	"net/http"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches domain errors by code so callers can test against the sentinels below.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	return ok && e != nil && t.Code == e.Code
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

var (
	ErrConnectInFlight    = domainError(http.StatusConflict, "CONNECT_IN_FLIGHT", "A wallet connection is already in progress", nil)
	ErrAlreadyConnected   = domainError(http.StatusConflict, "ALREADY_CONNECTED", "Wallet is already connected", nil)
	ErrNotConnected       = domainError(http.StatusConflict, "NOT_CONNECTED", "Connect your wallet first", nil)
	ErrWrongNetwork       = domainError(http.StatusUnprocessableEntity, "WRONG_NETWORK", "Wallet is connected to the wrong network", nil)
	ErrInvalidGender      = domainError(http.StatusUnprocessableEntity, "INVALID_GENDER", "Gender must be empty, Male or Female", nil)
	ErrPageNotFound       = domainError(http.StatusNotFound, "PAGE_NOT_FOUND", "Page not found or expired", nil)
	ErrHistoryUnsupported = domainError(http.StatusNotImplemented, "HISTORY_UNSUPPORTED", "Profile backend does not keep history", nil)
)

type NotificationKind string

const (
	NotifyWrongNetwork   NotificationKind = "wrong_network"
	NotifyProfileUpdated NotificationKind = "profile_updated"
	NotifyUpdateFailed   NotificationKind = "update_failed"
)

// Notification is a message meant for the person at the page.
type Notification struct {
	Kind    NotificationKind `json:"kind"`
	Message string           `json:"message"`
}

type Notifier interface {
	Notify(Notification)
}
