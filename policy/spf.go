// Package policy evaluates sender policy (SPF) for the outbound mail server
package policy

import (
	"blitiri.com.ar/go/spf"
	"github.com/rykov/lure/lifecycle"
	log "github.com/sirupsen/logrus"

	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// Resolver is a lifecycle.PolicyResolver backed by blitiri.com.ar/go/spf
type Resolver struct {
	// Overrides the system DNS resolver
	DNS spf.DNSResolver
}

func NewResolver() *Resolver {
	return &Resolver{}
}

func (r *Resolver) Check(ctx context.Context, ip net.IP, domain, sender string, timeout time.Duration) (lifecycle.PolicyResult, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	opts := []spf.Option{spf.WithContext(ctx)}
	if r.DNS != nil {
		opts = append(opts, spf.WithResolver(r.DNS))
	}

	res, err := spf.CheckHostWithSender(ip, domain, sender+"@"+domain, opts...)
	log.WithFields(log.Fields{
		"ip":     ip.String(),
		"domain": domain,
		"result": string(res),
	}).Debug("spf check complete")

	switch res {
	case spf.Pass:
		return lifecycle.PolicyPass, nil
	case spf.Fail:
		return lifecycle.PolicyFail, nil
	case spf.SoftFail:
		return lifecycle.PolicySoftFail, nil
	case spf.Neutral:
		return lifecycle.PolicyNeutral, nil
	case spf.None:
		return lifecycle.PolicyNone, nil
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) || isTimeout(err) {
		return lifecycle.PolicyNone, lifecycle.ErrPolicyTimeout
	}
	if err == nil {
		err = errors.New(string(res))
	}
	return lifecycle.PolicyNone, &lifecycle.PolicyError{Err: fmt.Errorf("%s: %w", res, err)}
}

func isTimeout(err error) bool {
	var dnsErr *net.DNSError
	return errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &dnsErr) && dnsErr.IsTimeout)
}

// Summary describes a policy result for an operator
func Summary(res lifecycle.PolicyResult) string {
	switch res {
	case lifecycle.PolicyNone:
		return "No SPF records found."
	case lifecycle.PolicyFail:
		return "SPF exists with a hard fail, messages will probably be blocked."
	case lifecycle.PolicySoftFail:
		return "SPF exists with a soft fail, messages might be blocked."
	default:
		return "SPF exists and the policy evaluates to: " + string(res)
	}
}
