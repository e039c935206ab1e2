package util

import (
	"fmt"
	"io"
	"net"
	"strings"

	log "github.com/sirupsen/logrus"
)

// outboundIP returns the local address used for outbound traffic. No packets are sent;
// dialing UDP only selects a route.
func outboundIP() string {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		log.Debugf("outbound ip detection failed: %v", err)
		return "<server-address>"
	}
	defer func() {
		if closeErr := conn.Close(); closeErr != nil {
			log.Warnf("Failed to close UDP connection: %v", closeErr)
		}
	}()
	if localAddr, ok := conn.LocalAddr().(*net.UDPAddr); ok {
		return localAddr.IP.String()
	}
	return "<server-address>"
}

// PrintSSHTunnelInstructions explains how to forward the redirect URI port from the
// machine running the browser when NowPlaying runs on a remote host.
func PrintSSHTunnelInstructions(w io.Writer, port int) {
	writeTunnelInstructions(w, port, outboundIP())
}

func writeTunnelInstructions(w io.Writer, port int, host string) {
	border := strings.Repeat("=", 80)
	_, _ = fmt.Fprintln(w, "The Spotify redirect must reach this machine. From a remote session, forward the port first:")
	_, _ = fmt.Fprintln(w, border)
	_, _ = fmt.Fprintf(w, "  ssh -L %d:127.0.0.1:%d <user>@%s\n", port, port, host)
	_, _ = fmt.Fprintln(w, border)
}
