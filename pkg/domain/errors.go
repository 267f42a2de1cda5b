package domain

import "errors"

// ErrStructural is returned when a design or sequence node is neither a valid leaf nor a valid composite.
var ErrStructural = errors.New("structural error")

// ErrSerialization is returned when the configuration cannot be converted to a transmissible form.
var ErrSerialization = errors.New("serialization failure")

// ErrUntrustedOrigin is returned when an inbound message comes from a sender outside the trusted origins.
var ErrUntrustedOrigin = errors.New("untrusted origin")

// ErrFieldNotFound is returned when a model state field has never been written.
var ErrFieldNotFound = errors.New("field not found")

// ErrUnknownMessage is returned for envelopes whose type is not part of the protocol.
var ErrUnknownMessage = errors.New("unknown message type")
