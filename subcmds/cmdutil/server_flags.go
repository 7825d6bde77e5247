// Copyright (c) 2023 BVK Chaitanya

package cmdutil

import (
	"flag"
	"fmt"
	"net"
)

type ServerFlags struct {
	Port int
	IP   string
}

func (sf *ServerFlags) SetFlags(fset *flag.FlagSet) {
	fset.IntVar(&sf.Port, "listen-port", 0, "TCP port number for the api endpoint (overrides the config)")
	fset.StringVar(&sf.IP, "listen-ip", "", "TCP ip address for the api endpoint (overrides the config)")
}

// Address merges the flags into the configured listen address. Returns nil
// when no address is configured.
func (sf *ServerFlags) Address(listen string) (*net.TCPAddr, error) {
	host, port := "127.0.0.1", "0"
	if len(listen) != 0 {
		h, p, err := net.SplitHostPort(listen)
		if err != nil {
			return nil, fmt.Errorf("could not parse listen address %q: %w", listen, err)
		}
		host, port = h, p
	} else if sf.Port == 0 {
		return nil, nil
	}
	if len(sf.IP) != 0 {
		host = sf.IP
	}
	if sf.Port != 0 {
		port = fmt.Sprintf("%d", sf.Port)
	}
	addr, err := net.ResolveTCPAddr("tcp", net.JoinHostPort(host, port))
	if err != nil {
		return nil, fmt.Errorf("could not resolve listen address: %w", err)
	}
	return addr, nil
}
