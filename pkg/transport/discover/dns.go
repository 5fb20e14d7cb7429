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

package discover

import (
	"fmt"
	"strings"
	"time"

	"github.com/miekg/dns"
)

// ResolveSRV looks up the SRV records for service.domain against
// resolverAddr (e.g. "10.0.0.2:53"), for environments where multicast
// discovery doesn't reach (Kubernetes headless services, a static
// cluster zone file). Each answer becomes one DiscoveredNode addressed
// by the target's resolved A/AAAA record when the resolver glues one
// into the Additional section, falling back to the bare target name
// otherwise.
func ResolveSRV(service, domain, resolverAddr string, timeout time.Duration) ([]DiscoveredNode, error) {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	name := dns.Fqdn(service + "." + domain)

	msg := new(dns.Msg)
	msg.SetQuestion(name, dns.TypeSRV)
	client := &dns.Client{Timeout: timeout}

	resp, _, err := client.Exchange(msg, resolverAddr)
	if err != nil {
		return nil, fmt.Errorf("discover: srv query %s via %s: %w", name, resolverAddr, err)
	}
	if resp.Rcode != dns.RcodeSuccess {
		return nil, fmt.Errorf("discover: srv query %s: rcode %s", name, dns.RcodeToString[resp.Rcode])
	}

	glue := make(map[string]string)
	for _, rr := range resp.Extra {
		switch a := rr.(type) {
		case *dns.A:
			glue[a.Hdr.Name] = a.A.String()
		case *dns.AAAA:
			glue[a.Hdr.Name] = a.AAAA.String()
		}
	}

	var nodes []DiscoveredNode
	for _, rr := range resp.Answer {
		srv, ok := rr.(*dns.SRV)
		if !ok {
			continue
		}
		host := srv.Target
		if ip, ok := glue[srv.Target]; ok {
			host = ip
		} else {
			host = strings.TrimSuffix(host, ".")
		}
		nodes = append(nodes, DiscoveredNode{
			NodeID: strings.TrimSuffix(srv.Target, "."),
			Addr:   fmt.Sprintf("%s:%d", host, srv.Port),
		})
	}
	return nodes, nil
}
