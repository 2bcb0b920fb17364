package transport

import (
	"fmt"
	"net"
	"net/url"
	"sync"

	"github.com/gopcua/opcua/ua"
)

// UDPLayer implements the pubsub-udp-uadp transport profile. Datagrams are
// sent to the address of the connection's NetworkAddressURL; multicast
// addresses work without further setup.
type UDPLayer struct{}

// NewUDPLayer creates the UDP transport layer.
func NewUDPLayer() *UDPLayer {
	return &UDPLayer{}
}

// ProfileURI implements Layer.
func (l *UDPLayer) ProfileURI() string {
	return ProfileUDPUADP
}

// CreateChannel implements Layer. The URL must use the opc.udp scheme.
func (l *UDPLayer) CreateChannel(cfg ChannelConfig) (Channel, error) {
	raddr, err := parseUDPAddress(cfg.URL)
	if err != nil {
		return nil, err
	}

	var laddr *net.UDPAddr
	if cfg.NetworkInterface != "" {
		ifi, err := net.InterfaceByName(cfg.NetworkInterface)
		if err != nil {
			return nil, fmt.Errorf("network interface %q: %w", cfg.NetworkInterface, err)
		}
		addrs, err := ifi.Addrs()
		if err == nil && len(addrs) > 0 {
			if ipn, ok := addrs[0].(*net.IPNet); ok {
				laddr = &net.UDPAddr{IP: ipn.IP}
			}
		}
	}

	conn, err := net.DialUDP("udp", laddr, raddr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", raddr, err)
	}
	log.Debugf("opened UDP channel to %s", raddr)
	return &udpChannel{conn: conn}, nil
}

func parseUDPAddress(rawURL string) (*net.UDPAddr, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	if u.Scheme != "opc.udp" || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAddress, rawURL)
	}
	return net.ResolveUDPAddr("udp", u.Host)
}

type udpChannel struct {
	mu     sync.Mutex
	conn   *net.UDPConn
	closed bool
}

// Register is a no-op for UDP; the receive side joins the multicast group
// when the reader pipeline starts.
func (c *udpChannel) Register(transportSettings *ua.Variant) ua.StatusCode {
	return ua.StatusOK
}

func (c *udpChannel) Send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrChannelClosed
	}
	_, err := c.conn.Write(payload)
	return err
}

func (c *udpChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.conn.Close()
}
