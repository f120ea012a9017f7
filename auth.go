package mqttcore

import (
	"github.com/RoanBrand/mqttcore/session"
)

// Provider of Authentication and Authorization for the Server.
// Callers must return non-nil errors if Auth fails.
//
// AuthUser authenticates a client on CONNECT; username and password may be empty.
// AuthSubscription authorizes a client for subscribing to a Topic Filter.
type Auther = session.Auther
