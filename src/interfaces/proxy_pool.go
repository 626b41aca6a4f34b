package interfaces

import "net/url"

// IProxyPool supplies the outbound proxy for each feed request.
type IProxyPool interface {
	// Proxy returns nil for a direct connection.
	Proxy() *url.URL
	ReportFailure()
	ReportSuccess()
	UserAgent() string
	Size() int
}
