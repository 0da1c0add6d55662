package printer

import (
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/OpenPrinting/go-mfp/util/uuid"
)

// Identity is an opaque, stable printer identifier.
type Identity string

// NewIdentity derives the identity for a printer service name. The same name
// always yields the same identity, so a printer keeps its identity when its
// address changes.
func NewIdentity(name string) Identity {
	u := uuid.SHA1(uuid.NameSpaceDNS, "airlabel."+strings.ToLower(strings.TrimSpace(name)))
	return Identity(u.String())
}

// Endpoint is a discovered or cached printer.
type Endpoint struct {
	ID        Identity  `json:"id"`
	Name      string    `json:"name"`
	Host      string    `json:"host"`
	Port      int       `json:"port"`
	FirstSeen time.Time `json:"firstSeen"`
}

// NewEndpoint builds an Endpoint with its identity derived from name.
func NewEndpoint(name, host string, port int) Endpoint {
	return Endpoint{
		ID:        NewIdentity(name),
		Name:      name,
		Host:      host,
		Port:      port,
		FirstSeen: time.Now(),
	}
}

// Addr returns host:port.
func (e Endpoint) Addr() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}
