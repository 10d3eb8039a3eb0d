package gateway

import (
	"errors"
	"fmt"
)

var (
	// ErrConfigMissing indicates the tenant has no gateway credential or channel.
	ErrConfigMissing = errors.New("gateway: credential or instance missing")
	// ErrInvalidPhone indicates the recipient could not be normalized.
	ErrInvalidPhone = errors.New("gateway: invalid phone")
	// ErrNonPublicMedia indicates a media URL the gateway cannot fetch.
	ErrNonPublicMedia = errors.New("gateway: media url is not publicly reachable")
	// ErrUnsupportedMedia indicates a media type outside ptt, image and document.
	ErrUnsupportedMedia = errors.New("gateway: unsupported media type")
	// ErrRejected indicates the gateway answered with success=false.
	ErrRejected = errors.New("gateway: rejected")
	// ErrMalformedResponse indicates a body that was neither JSON nor HTML.
	ErrMalformedResponse = errors.New("gateway: malformed response")
	// ErrHTMLResponse indicates the gateway returned an HTML page instead of JSON.
	ErrHTMLResponse = errors.New("gateway: html response")
)

// DeliveryError describes a failed delivery attempt.
type DeliveryError struct {
	Op         string
	Strategy   string
	StatusCode int
	Err        error
}

func (e *DeliveryError) Error() string {
	msg := "gateway: " + e.Op
	if e.Strategy != "" {
		msg += " via " + e.Strategy
	}
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// IsConfigMissing reports whether err means delivery was skipped for lack of credentials.
func IsConfigMissing(err error) bool {
	return errors.Is(err, ErrConfigMissing)
}
