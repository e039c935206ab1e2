package config

// SDKConfig holds settings shared by every outbound HTTP client.
type SDKConfig struct {
	// ProxyURL is the URL of an optional proxy server to use for outbound requests.
	// Supported schemes are http, https and socks5.
	ProxyURL string `yaml:"proxy-url" json:"proxy-url"`
}
