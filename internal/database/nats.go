package database

import (
	"fmt"

	"github.com/nats-io/nats.go"
)

// ConnectNATS establishes a connection to the NATS broker. An empty address
// returns a nil connection, which downstream publishers treat as disabled.
func ConnectNATS(addr string) (*nats.Conn, error) {
	if addr == "" {
		return nil, nil
	}

	conn, err := nats.Connect(addr, nats.Name("codequest-api"))
	if err != nil {
		return nil, fmt.Errorf("unable to connect to nats: %w", err)
	}

	return conn, nil
}
