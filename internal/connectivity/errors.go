package connectivity

import "errors"

// ErrTransport marks connect, auth or session failures. Such failures drop the
// link instead of failing a command.
var ErrTransport = errors.New("transport fault")

type transportError struct {
	err error
}

func (e *transportError) Error() string { return e.err.Error() }

func (e *transportError) Unwrap() []error { return []error{ErrTransport, e.err} }

// TransportFault wraps err so that IsTransportFault reports true.
func TransportFault(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrTransport) {
		return err
	}
	return &transportError{err: err}
}

// IsTransportFault reports whether err is a transport fault.
func IsTransportFault(err error) bool {
	return errors.Is(err, ErrTransport)
}
