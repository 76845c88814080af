// Package security holds the TLS configuration types shared by the hub
// listener and the device-facing dialer.
package security

// Config groups the TLS settings for both sides of the hub.
type Config struct {
	Server ServerTLSConfig `json:"server,omitempty" yaml:"server,omitempty"`
	Client ClientTLSConfig `json:"client,omitempty" yaml:"client,omitempty"`
}

// ServerTLSConfig configures TLS for the inbound device listener.
type ServerTLSConfig struct {
	Enabled    bool   `json:"enabled" yaml:"enabled"`
	CertFile   string `json:"certFile,omitempty" yaml:"certFile,omitempty"`
	KeyFile    string `json:"keyFile,omitempty" yaml:"keyFile,omitempty"`
	MinVersion string `json:"minVersion,omitempty" yaml:"minVersion,omitempty"` // "1.2" or "1.3"

	MTLS ServerMTLSConfig `json:"mtls,omitempty" yaml:"mtls,omitempty"`
}

// ServerMTLSConfig configures client certificate validation on the
// listener. With RequireClientCert unset a presented certificate is
// still verified, but connections without one are accepted.
type ServerMTLSConfig struct {
	Enabled           bool     `json:"enabled" yaml:"enabled"`
	ClientCAFiles     []string `json:"clientCAFiles,omitempty" yaml:"clientCAFiles,omitempty"`
	RequireClientCert bool     `json:"requireClientCert,omitempty" yaml:"requireClientCert,omitempty"`
	AllowedClientCNs  []string `json:"allowedClientCNs,omitempty" yaml:"allowedClientCNs,omitempty"`
}

// ClientTLSConfig configures TLS for outbound device connections. The
// system CA bundle is always trusted; CAFiles add device or site CAs on
// top of it.
type ClientTLSConfig struct {
	CAFiles            []string `json:"caFiles,omitempty" yaml:"caFiles,omitempty"`
	InsecureSkipVerify bool     `json:"insecureSkipVerify,omitempty" yaml:"insecureSkipVerify,omitempty"` // DEV/TEST ONLY
	MinVersion         string   `json:"minVersion,omitempty" yaml:"minVersion,omitempty"`

	MTLS ClientMTLSConfig `json:"mtls,omitempty" yaml:"mtls,omitempty"`
}

// ClientMTLSConfig supplies the certificate the hub presents to devices
// that demand mutual TLS.
type ClientMTLSConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	CertFile string `json:"certFile,omitempty" yaml:"certFile,omitempty"`
	KeyFile  string `json:"keyFile,omitempty" yaml:"keyFile,omitempty"`
}
