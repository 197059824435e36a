package bus

import "fmt"

// Backend identifies a delivery backend. It is the key into the status
// registry and the manager's dispatch table.
type Backend string

const (
	BackendTelegram Backend = "telegram"
	BackendDiscord  Backend = "discord"
	BackendCqhttp   Backend = "cqhttp"
	BackendSlack    Backend = "slack"
)

// Backends lists every backend in a stable order.
var Backends = []Backend{BackendTelegram, BackendDiscord, BackendCqhttp, BackendSlack}

// ParseBackend converts a user-supplied name into a Backend.
func ParseBackend(s string) (Backend, error) {
	for _, b := range Backends {
		if string(b) == s {
			return b, nil
		}
	}
	return "", fmt.Errorf("unknown backend %q", s)
}

func (b Backend) String() string { return string(b) }
