/*
Package ports defines the driven ports (interfaces) of the revisit widget host.

These interfaces decouple the widget from concrete storage and transport, so the same
Widget runs against an in-memory model, Redis, or a WebSocket-connected frame.

# Key Interfaces

  - ModelStore: key-value model state with read, write and change subscription.
  - Sender: outbound channel bound to one fixed destination.
  - Receiver: inbound channel with subscribe/unsubscribe.
*/
package ports
