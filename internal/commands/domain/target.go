package commands

import (
	"errors"
	"net"
	"strings"

	"github.com/asaskevich/govalidator"
)

var (
	ErrMissingTarget = errors.New("missing target")
	ErrInvalidTarget = errors.New("invalid target")
)

// ValidateTarget accepts a host name or IP, optionally with a port.
func ValidateTarget(target string) error {
	target = strings.TrimSpace(target)
	if target == "" {
		return ErrMissingTarget
	}
	host, port := target, ""
	if h, p, err := net.SplitHostPort(target); err == nil {
		host, port = h, p
	}
	if !govalidator.IsHost(host) {
		return ErrInvalidTarget
	}
	if port != "" && !govalidator.IsPort(port) {
		return ErrInvalidTarget
	}
	return nil
}
