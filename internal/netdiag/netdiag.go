// Package netdiag inspects the local network environment. Probe records on
// a peer-to-peer overlay can look dead simply because the local node sits
// behind an unfriendly NAT, so the doctor command reports the mapped
// public address and a NAT classification before anyone trusts a run of
// failed reads.
package netdiag

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pion/stun/v3"
)

const (
	NATTypeUnknown          = "unknown"
	NATTypeSymmetric        = "symmetric"
	NATTypeConeOrRestricted = "cone_or_restricted"
)

// Report is the result of probing a set of STUN servers.
type Report struct {
	// PublicAddr is the first successfully mapped address.
	PublicAddr string
	// NATType classifies the NAT from the mapped addresses.
	NATType string
	// Mapped holds one entry per server that answered.
	Mapped []string
}

// Diagnose queries every server and classifies the NAT from the answers.
// It fails only when no server answered at all.
func Diagnose(ctx context.Context, servers []string, timeout time.Duration) (Report, error) {
	if len(servers) == 0 {
		return Report{NATType: NATTypeUnknown}, fmt.Errorf("no STUN servers configured")
	}

	var mapped []string
	var lastErr error
	for _, server := range servers {
		addr, err := mappedAddress(ctx, server, timeout)
		if err != nil {
			lastErr = err
			continue
		}
		mapped = append(mapped, addr)
	}

	if len(mapped) == 0 {
		if lastErr == nil {
			lastErr = fmt.Errorf("STUN probe failed")
		}
		return Report{NATType: NATTypeUnknown}, lastErr
	}

	return Report{
		PublicAddr: mapped[0],
		NATType:    Classify(mapped),
		Mapped:     mapped,
	}, nil
}

// Classify infers NAT type by comparing mapped addresses from multiple
// servers. Differing mappings mean the NAT allocates per-destination ports
// (symmetric), which makes inbound DHT traffic unlikely to arrive.
func Classify(addrs []string) string {
	if len(addrs) < 2 {
		return NATTypeUnknown
	}
	for _, addr := range addrs[1:] {
		if addr != addrs[0] {
			return NATTypeSymmetric
		}
	}
	return NATTypeConeOrRestricted
}

func mappedAddress(ctx context.Context, server string, timeout time.Duration) (string, error) {
	uriStr := strings.TrimSpace(server)
	if uriStr == "" {
		return "", fmt.Errorf("empty STUN server")
	}
	if !strings.HasPrefix(uriStr, "stun:") {
		uriStr = "stun:" + uriStr
	}

	uri, err := stun.ParseURI(uriStr)
	if err != nil {
		return "", err
	}

	client, err := stun.DialURI(uri, &stun.DialConfig{})
	if err != nil {
		return "", err
	}
	defer client.Close()

	msg := stun.MustBuild(stun.TransactionID, stun.BindingRequest)
	result := make(chan stun.XORMappedAddress, 1)
	fail := make(chan error, 1)

	go func() {
		var addr stun.XORMappedAddress
		err := client.Do(msg, func(res stun.Event) {
			if res.Error != nil {
				fail <- res.Error
				return
			}
			if err := addr.GetFrom(res.Message); err != nil {
				fail <- err
				return
			}
			result <- addr
		})
		if err != nil {
			fail <- err
		}
	}()

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	select {
	case addr := <-result:
		return addr.String(), nil
	case err := <-fail:
		return "", err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
