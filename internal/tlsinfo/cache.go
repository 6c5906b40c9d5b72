package tlsinfo

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/gustycube/uptime-probe/internal/types"
)

type cached struct {
	host types.HostInfo
	cert types.CertificateInfo
	err  error
}

// Cache shares inspection results between endpoints on the same hostname, so
// several health paths on one host cost a single handshake. Concurrent misses
// for one hostname wait on the same inspection.
type Cache struct {
	next     Interface
	lru      *expirable.LRU[string, cached]
	inflight singleflight.Group
}

// NewCache wraps next with an LRU of size entries that expire after ttl.
func NewCache(next Interface, size int, ttl time.Duration) *Cache {
	return &Cache{next: next, lru: expirable.NewLRU[string, cached](size, nil, ttl)}
}

func (c *Cache) Inspect(ctx context.Context, endpointURL string) (types.HostInfo, types.CertificateInfo, error) {
	hostname, endpoint := SplitEndpoint(endpointURL)
	v, ok := c.lru.Get(hostname)
	if !ok {
		res, _, _ := c.inflight.Do(hostname, func() (interface{}, error) {
			if v, ok := c.lru.Get(hostname); ok {
				return v, nil
			}
			h, cert, err := c.next.Inspect(ctx, endpointURL)
			v := cached{host: h, cert: cert, err: err}
			if ctx.Err() == nil {
				c.lru.Add(hostname, v)
			}
			return v, nil
		})
		v = res.(cached)
	}
	h := v.host
	if h.Hostname != "" {
		h.EndpointPath = endpoint
	}
	return h, v.cert, v.err
}
