package guard

import "context"

// Strategy selects the token verifier for a route.
type Strategy int

const (
	// StrategyDefault picks StrategyJWT for verify-only routes and
	// StrategyProvider otherwise.
	StrategyDefault Strategy = iota
	StrategyProvider
	StrategyJWT
)

func (s Strategy) String() string {
	switch s {
	case StrategyProvider:
		return "provider"
	case StrategyJWT:
		return "jwt"
	}
	return "default"
}

// Policy is the effective authentication policy of a route.
type Policy struct {
	// Optional lets requests without credentials, or with credentials that
	// fail verification, proceed anonymously.
	Optional bool
	// VerifyOnly stops after token verification; the claims become the
	// identity and the session store is not consulted.
	VerifyOnly bool
	Strategy   Strategy
}

func (p Policy) strategy() Strategy {
	if p.Strategy != StrategyDefault {
		return p.Strategy
	}
	if p.VerifyOnly {
		return StrategyJWT
	}
	return StrategyProvider
}

// Flags is a partial policy declared at one scope. Unset fields inherit
// from the enclosing scope.
type Flags struct {
	Optional   *bool
	VerifyOnly *bool
	Strategy   Strategy
}

// Optional declares the optional-auth flag.
func Optional(v bool) Flags { return Flags{Optional: &v} }

// VerifyOnly declares the verify-only flag.
func VerifyOnly(v bool) Flags { return Flags{VerifyOnly: &v} }

// UseStrategy declares the verifier strategy.
func UseStrategy(s Strategy) Flags { return Flags{Strategy: s} }

// Over returns p with every flag set in f applied on top.
func (f Flags) Over(p Policy) Policy {
	if f.Optional != nil {
		p.Optional = *f.Optional
	}
	if f.VerifyOnly != nil {
		p.VerifyOnly = *f.VerifyOnly
	}
	if f.Strategy != StrategyDefault {
		p.Strategy = f.Strategy
	}
	return p
}

// Resolve applies flags from the outermost scope to the innermost; later
// entries override earlier ones.
func Resolve(base Policy, scopes ...Flags) Policy {
	for _, f := range scopes {
		base = f.Over(base)
	}
	return base
}

type policyKey struct{}

func withPolicy(ctx context.Context, p Policy) context.Context {
	return context.WithValue(ctx, policyKey{}, p)
}

func policyFrom(ctx context.Context) Policy {
	p, _ := ctx.Value(policyKey{}).(Policy)
	return p
}
