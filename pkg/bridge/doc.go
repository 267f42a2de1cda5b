/*
Package bridge implements the message protocol between the widget host and the
externally rendered application frame.

The bridge is a two-state machine. It starts Unready; every READY envelope from the
frame increments a readiness counter, and while the counter is positive the current
configuration is sent as CONFIG each time either the counter or the configuration
changes. Inbound SEQUENCE_ARRAY and export envelopes replace their model state slot
wholesale and are not gated on readiness.

Inbound envelopes are accepted only from trusted origins.
*/
package bridge
