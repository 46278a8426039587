// Package security はアプリケーションのセキュリティ機能を提供する。
package security

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
)

// OutboundGuard は外部API（映画カタログ）への送信を安全に行うための機能を提供する。
// 設定値から読み込んだエンドポイントが内部ネットワークを指していないことを検証する。
type OutboundGuard struct {
	allowedPorts []int
}

// outboundSchemes は外部APIで許可するURLスキーム。
var outboundSchemes = []string{"https"}

// internalNetworks は外部APIの宛先として許可しないネットワーク範囲。
var internalNetworks = mustParseCIDRs(
	"10.0.0.0/8",     // RFC 1918
	"172.16.0.0/12",  // RFC 1918
	"192.168.0.0/16", // RFC 1918
	"127.0.0.0/8",    // ループバック
	"169.254.0.0/16", // リンクローカル（メタデータIPを含む）
	"0.0.0.0/8",
	"100.64.0.0/10", // CGNAT
	"::1/128",
	"fe80::/10",
	"fc00::/7",
)

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	out := make([]*net.IPNet, 0, len(cidrs))
	for _, cidr := range cidrs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			panic(fmt.Sprintf("invalid CIDR: %s: %v", cidr, err))
		}
		out = append(out, network)
	}
	return out
}

// NewOutboundGuard はOutboundGuardを生成する。宛先ポートは443のみ許可する。
func NewOutboundGuard() *OutboundGuard {
	return &OutboundGuard{allowedPorts: []int{443}}
}

// NewClient は接続先IPをダイヤル時に検証するHTTPクライアントを生成する。
// safeurlがDNS解決後のアドレスを検証するため、DNS再バインディングも防止される。
func (g *OutboundGuard) NewClient(timeout time.Duration) *http.Client {
	config := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes(outboundSchemes...).
		SetAllowedPorts(g.allowedPorts...).
		Build()

	return safeurl.Client(config).Client
}

// ValidateEndpoint は外部APIのエンドポイントURLを静的に検証する。
// httpsのみ許可し、IPリテラルが内部ネットワークを指す場合とlocalhostを拒否する。
func (g *OutboundGuard) ValidateEndpoint(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("empty endpoint")
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid endpoint: %w", err)
	}
	if !strings.EqualFold(parsed.Scheme, "https") {
		return fmt.Errorf("disallowed scheme: %q (allowed: %v)", parsed.Scheme, outboundSchemes)
	}

	host := parsed.Hostname()
	switch {
	case host == "":
		return fmt.Errorf("empty host in endpoint: %s", rawURL)
	case strings.EqualFold(host, "localhost"):
		return fmt.Errorf("blocked host: %s", host)
	}
	if ip := net.ParseIP(host); ip != nil {
		for _, network := range internalNetworks {
			if network.Contains(ip) {
				return fmt.Errorf("blocked IP address: %s", ip)
			}
		}
	}
	return nil
}
