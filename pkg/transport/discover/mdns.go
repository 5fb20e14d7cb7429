/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

/*
Package discover finds candidate cluster peers two ways: mDNS
(Bonjour/Avahi) for same-segment LAN discovery, used by the
ravel-discover CLI, and DNS-SRV for environments (Kubernetes headless services,
static zone files) where multicast doesn't reach.
*/
package discover

import (
	"fmt"
	"strconv"
	"time"

	"github.com/hashicorp/mdns"
)

// ServiceName is the mDNS service type Ravel nodes advertise under.
const ServiceName = "_ravel._tcp"

// DiscoveredNode is one peer found by either discovery mechanism.
type DiscoveredNode struct {
	NodeID string
	Addr   string // host:port, directly usable as a raft.MemberID / dial address
	Info   map[string]string
}

// AdvertiseConfig configures mDNS self-advertisement.
type AdvertiseConfig struct {
	NodeID string
	Port   int
	// Info is carried as TXT records, e.g. {"role": "member"}.
	Info map[string]string
}

// Advertiser publishes this node's presence over mDNS until Close.
type Advertiser struct {
	server *mdns.Server
}

// NewAdvertiser registers an mDNS service record for cfg and starts
// responding to queries for it.
func NewAdvertiser(cfg AdvertiseConfig) (*Advertiser, error) {
	txt := make([]string, 0, len(cfg.Info))
	for k, v := range cfg.Info {
		txt = append(txt, k+"="+v)
	}

	service, err := mdns.NewMDNSService(cfg.NodeID, ServiceName, "", "", cfg.Port, nil, txt)
	if err != nil {
		return nil, fmt.Errorf("discover: build mdns service record: %w", err)
	}
	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return nil, fmt.Errorf("discover: start mdns responder: %w", err)
	}
	return &Advertiser{server: server}, nil
}

// Close stops responding to mDNS queries.
func (a *Advertiser) Close() error {
	return a.server.Shutdown()
}

// BrowseConfig bounds one mDNS lookup sweep.
type BrowseConfig struct {
	Timeout time.Duration
}

// Browse sends an mDNS query and collects every node that answers
// before Timeout elapses.
func Browse(cfg BrowseConfig) ([]DiscoveredNode, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}

	entriesCh := make(chan *mdns.ServiceEntry, 32)
	var nodes []DiscoveredNode
	done := make(chan struct{})

	go func() {
		defer close(done)
		for entry := range entriesCh {
			addr := entry.AddrV4
			if addr == nil {
				addr = entry.AddrV6
			}
			if addr == nil {
				continue
			}
			node := DiscoveredNode{
				NodeID: entry.Name,
				Addr:   addr.String() + ":" + strconv.Itoa(entry.Port),
			}
			if len(entry.InfoFields) > 0 {
				node.Info = parseTXT(entry.InfoFields)
			}
			nodes = append(nodes, node)
		}
	}()

	err := mdns.Query(&mdns.QueryParam{
		Service: ServiceName,
		Timeout: cfg.Timeout,
		Entries: entriesCh,
	})
	close(entriesCh)
	<-done

	if err != nil {
		return nil, fmt.Errorf("discover: mdns query: %w", err)
	}
	return nodes, nil
}

func parseTXT(fields []string) map[string]string {
	info := make(map[string]string, len(fields))
	for _, f := range fields {
		for i := 0; i < len(f); i++ {
			if f[i] == '=' {
				info[f[:i]] = f[i+1:]
				break
			}
		}
	}
	return info
}
