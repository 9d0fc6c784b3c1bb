package llamabridge

import "github.com/wagiedev/llamabridge/internal/config"

// Transport is the external collaborator that delivers requests and
// receives replies. Implement it to connect the bridge to another message
// bus, or to drive it from tests.
//
// Built-in transports are selected with WithTransportKind or WithMQTT.
type Transport = config.Transport

// RequestHandler receives one inbound request from a Transport.
type RequestHandler = config.RequestHandler
