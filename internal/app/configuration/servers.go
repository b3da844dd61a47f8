package configuration

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"sync"

	"github.com/form3tech-oss/pactkit/internal/app/contract"
	"github.com/form3tech-oss/pactkit/internal/app/mockservice"
	log "github.com/sirupsen/logrus"
)

var servers sync.Map

// StartServer starts a mock service for config and registers it under its
// bound host. Only one mock service may run per address.
func StartServer(config mockservice.Config, interactions ...contract.Interaction) (*mockservice.Handle, error) {
	if port := config.ServerAddress.Port(); port != "" && port != "0" {
		if _, loaded := LoadServer(config.ServerAddress.Host); loaded {
			return nil, fmt.Errorf("mock service already running at %s", config.ServerAddress.String())
		}
	}

	handle, err := mockservice.Configure(config, interactions)
	if err != nil {
		return nil, err
	}

	key := registryKey(handle.URL())
	if _, loaded := servers.LoadOrStore(key, handle); loaded {
		_ = handle.Close(context.Background())
		return nil, fmt.Errorf("mock service already running at %s", handle.URL())
	}
	return handle, nil
}

func LoadServer(host string) (*mockservice.Handle, bool) {
	handle, loaded := servers.Load(host)
	if !loaded {
		return nil, false
	}
	return handle.(*mockservice.Handle), loaded
}

// Servers lists the running mock services ordered by address.
func Servers() []*mockservice.Handle {
	var handles []*mockservice.Handle
	servers.Range(func(_, value interface{}) bool {
		handles = append(handles, value.(*mockservice.Handle))
		return true
	})
	sort.Slice(handles, func(i, j int) bool { return handles[i].URL() < handles[j].URL() })
	return handles
}

// ShutdownServer stops the mock service registered under host.
func ShutdownServer(ctx context.Context, host string) error {
	handle, loaded := servers.LoadAndDelete(host)
	if !loaded {
		return fmt.Errorf("no mock service running at %s", host)
	}
	return handle.(*mockservice.Handle).Close(ctx)
}

func ShutdownAllServers(ctx context.Context) {
	servers.Range(func(key, _ interface{}) bool {
		handle, loaded := servers.LoadAndDelete(key)
		if loaded {
			if err := handle.(*mockservice.Handle).Close(ctx); err != nil {
				log.Error(err)
			}
		}
		return true
	})
}

// registryKey is the host:port a mock service URL is registered under, so
// that ":0" style addresses resolve to the bound port.
func registryKey(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return u.Host
}
