package scraper

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/miekg/dns"
)

// EmailVerifier decides whether a scraped address can receive mail
type EmailVerifier interface {
	Verify(ctx context.Context, email string) bool
}

// DefaultResolvers are queried when no resolver is configured
var DefaultResolvers = []string{"8.8.8.8:53", "1.1.1.1:53"}

// MXVerifier accepts addresses whose domain publishes an MX record.
// Answers are cached per domain for the verifier's lifetime.
type MXVerifier struct {
	servers []string
	client  *dns.Client

	mu    sync.Mutex
	cache map[string]bool
}

// NewMXVerifier creates an MXVerifier querying servers ("host:port")
func NewMXVerifier(servers []string, timeout time.Duration) *MXVerifier {
	if len(servers) == 0 {
		servers = DefaultResolvers
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &MXVerifier{
		servers: servers,
		client:  &dns.Client{Timeout: timeout},
		cache:   make(map[string]bool),
	}
}

// Verify implements EmailVerifier
func (v *MXVerifier) Verify(ctx context.Context, email string) bool {
	at := strings.LastIndex(email, "@")
	if at < 0 || at == len(email)-1 {
		return false
	}
	domain := strings.ToLower(strings.TrimSpace(email[at+1:]))

	v.mu.Lock()
	ok, cached := v.cache[domain]
	v.mu.Unlock()
	if cached {
		return ok
	}

	ok = v.lookup(ctx, domain)

	v.mu.Lock()
	v.cache[domain] = ok
	v.mu.Unlock()
	return ok
}

func (v *MXVerifier) lookup(ctx context.Context, domain string) bool {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(domain), dns.TypeMX)
	msg.RecursionDesired = true

	for _, server := range v.servers {
		resp, _, err := v.client.ExchangeContext(ctx, msg, server)
		if err != nil || resp == nil {
			continue
		}
		if resp.Rcode != dns.RcodeSuccess {
			return false
		}
		for _, rr := range resp.Answer {
			if _, isMX := rr.(*dns.MX); isMX {
				return true
			}
		}
		return false
	}
	return false
}
