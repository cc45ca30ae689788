package genesis

import (
	"bytes"
	"fmt"
	"math/big"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"augmint/crypto"
	nativecommon "augmint/native/common"
	"augmint/native/loan"
	"augmint/native/locker"
	"augmint/native/token"
)

// Spec is the bootstrap document applied once to an empty store. Amounts are
// decimal strings in base units (wei for collateral, token units for tokens).
type Spec struct {
	Roles                map[string][]string          `yaml:"roles"`
	Wei                  map[string]string            `yaml:"wei"`
	Tokens               map[string]map[string]string `yaml:"tokens"` // symbol -> addr -> amount
	Rates                map[string]string            `yaml:"rates"`
	TransferFees         *FeeSpec                     `yaml:"transferFees,omitempty"`
	LoanProducts         []LoanProductSpec            `yaml:"loanProducts"`
	LockProducts         []LockProductSpec            `yaml:"lockProducts"`
	AcceptedLegacyTokens []string                     `yaml:"acceptedLegacyTokens"`
}

type FeeSpec struct {
	FeePt  uint64 `yaml:"feePt"`
	FeeMin string `yaml:"feeMin"`
	FeeMax string `yaml:"feeMax"`
}

type LoanProductSpec struct {
	TermSeconds        uint64 `yaml:"termSeconds"`
	DiscountRate       uint64 `yaml:"discountRate"`
	CollateralRatio    uint64 `yaml:"collateralRatio"`
	MinDisbursedAmount string `yaml:"minDisbursedAmount"`
	DefaultingFeePt    uint64 `yaml:"defaultingFeePt"`
	Active             bool   `yaml:"active"`
}

type LockProductSpec struct {
	PerTermInterest   uint64 `yaml:"perTermInterest"`
	DurationInSecs    uint64 `yaml:"durationInSecs"`
	MinimumLockAmount string `yaml:"minimumLockAmount"`
	Active            bool   `yaml:"active"`
}

// Allocation is one resolved balance assignment.
type Allocation struct {
	Address crypto.Address
	Amount  *big.Int
}

// RoleGrant assigns a permission label to an account.
type RoleGrant struct {
	Permission string
	Address    crypto.Address
}

type Rate struct {
	Symbol string
	Value  *big.Int
}

// Plan is the validated, typed form of a Spec in deterministic order.
type Plan struct {
	Roles                []RoleGrant
	Wei                  []Allocation
	Tokens               map[string][]Allocation
	Rates                []Rate
	TransferFees         *token.FeeParams
	LoanProducts         []loan.Product
	LockProducts         []locker.LockProduct
	AcceptedLegacyTokens []string
}

// TokenSymbols returns the token allocation symbols in sorted order.
func (p *Plan) TokenSymbols() []string {
	out := make([]string, 0, len(p.Tokens))
	for symbol := range p.Tokens {
		out = append(out, symbol)
	}
	sort.Strings(out)
	return out
}

// Load reads and decodes a YAML genesis document.
func Load(path string) (*Spec, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("genesis path must be provided")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read genesis %q: %w", path, err)
	}
	spec, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("genesis %q: %w", path, err)
	}
	return spec, nil
}

// Parse decodes a YAML genesis document, rejecting unknown fields.
func Parse(raw []byte) (*Spec, error) {
	var spec Spec
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&spec); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if _, err := spec.Resolve(); err != nil {
		return nil, err
	}
	return &spec, nil
}

// Resolve validates the document and converts it into a Plan.
func (s *Spec) Resolve() (*Plan, error) {
	plan := &Plan{Tokens: make(map[string][]Allocation)}

	known := make(map[string]struct{})
	for _, perm := range nativecommon.KnownPermissions() {
		known[perm] = struct{}{}
	}
	roles := make([]string, 0, len(s.Roles))
	for role := range s.Roles {
		roles = append(roles, role)
	}
	sort.Strings(roles)
	for _, role := range roles {
		if _, ok := known[role]; !ok {
			return nil, fmt.Errorf("roles: unknown permission %q", role)
		}
		for _, raw := range s.Roles[role] {
			addr, err := crypto.ParseAddress(raw)
			if err != nil {
				return nil, fmt.Errorf("roles %s: %w", role, err)
			}
			plan.Roles = append(plan.Roles, RoleGrant{Permission: role, Address: addr})
		}
	}

	wei, err := resolveAllocations(s.Wei)
	if err != nil {
		return nil, fmt.Errorf("wei: %w", err)
	}
	plan.Wei = wei

	for symbol, alloc := range s.Tokens {
		normalized := strings.ToUpper(strings.TrimSpace(symbol))
		if normalized == "" {
			return nil, fmt.Errorf("tokens: empty symbol")
		}
		resolved, err := resolveAllocations(alloc)
		if err != nil {
			return nil, fmt.Errorf("tokens %s: %w", normalized, err)
		}
		plan.Tokens[normalized] = append(plan.Tokens[normalized], resolved...)
	}

	symbols := make([]string, 0, len(s.Rates))
	for symbol := range s.Rates {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	for _, symbol := range symbols {
		value, err := parseAmount(s.Rates[symbol])
		if err != nil {
			return nil, fmt.Errorf("rates %s: %w", symbol, err)
		}
		plan.Rates = append(plan.Rates, Rate{Symbol: strings.ToUpper(strings.TrimSpace(symbol)), Value: value})
	}

	if s.TransferFees != nil {
		feeMin, err := parseAmount(s.TransferFees.FeeMin)
		if err != nil {
			return nil, fmt.Errorf("transferFees.feeMin: %w", err)
		}
		feeMax, err := parseAmount(s.TransferFees.FeeMax)
		if err != nil {
			return nil, fmt.Errorf("transferFees.feeMax: %w", err)
		}
		if feeMin.Cmp(feeMax) > 0 {
			return nil, fmt.Errorf("transferFees: feeMin exceeds feeMax")
		}
		if s.TransferFees.FeePt > nativecommon.PPM {
			return nil, fmt.Errorf("transferFees: feePt above %d", nativecommon.PPM)
		}
		plan.TransferFees = &token.FeeParams{FeePt: s.TransferFees.FeePt, FeeMin: feeMin, FeeMax: feeMax}
	}

	for i, p := range s.LoanProducts {
		minimum, err := parseAmount(p.MinDisbursedAmount)
		if err != nil {
			return nil, fmt.Errorf("loanProducts[%d].minDisbursedAmount: %w", i, err)
		}
		if p.TermSeconds == 0 {
			return nil, fmt.Errorf("loanProducts[%d]: termSeconds must be positive", i)
		}
		if p.TermSeconds > nativecommon.MaxDurationSecs {
			return nil, fmt.Errorf("loanProducts[%d]: termSeconds exceeds %d", i, uint64(nativecommon.MaxDurationSecs))
		}
		if p.CollateralRatio == 0 || p.DiscountRate == 0 || p.DiscountRate > nativecommon.PPM {
			return nil, fmt.Errorf("loanProducts[%d]: collateralRatio and discountRate must be in (0, %d]", i, nativecommon.PPM)
		}
		plan.LoanProducts = append(plan.LoanProducts, loan.Product{
			Term:               p.TermSeconds,
			DiscountRate:       p.DiscountRate,
			CollateralRatio:    p.CollateralRatio,
			MinDisbursedAmount: minimum,
			DefaultingFeePt:    p.DefaultingFeePt,
			Active:             p.Active,
		})
	}

	for i, p := range s.LockProducts {
		minimum, err := parseAmount(p.MinimumLockAmount)
		if err != nil {
			return nil, fmt.Errorf("lockProducts[%d].minimumLockAmount: %w", i, err)
		}
		if p.DurationInSecs == 0 {
			return nil, fmt.Errorf("lockProducts[%d]: durationInSecs must be positive", i)
		}
		if p.DurationInSecs > nativecommon.MaxDurationSecs {
			return nil, fmt.Errorf("lockProducts[%d]: durationInSecs exceeds %d", i, uint64(nativecommon.MaxDurationSecs))
		}
		plan.LockProducts = append(plan.LockProducts, locker.LockProduct{
			PerTermInterest:   p.PerTermInterest,
			DurationInSecs:    p.DurationInSecs,
			MinimumLockAmount: minimum,
			Active:            p.Active,
		})
	}

	for _, symbol := range s.AcceptedLegacyTokens {
		normalized := strings.ToUpper(strings.TrimSpace(symbol))
		if normalized == "" {
			return nil, fmt.Errorf("acceptedLegacyTokens: empty symbol")
		}
		plan.AcceptedLegacyTokens = append(plan.AcceptedLegacyTokens, normalized)
	}
	return plan, nil
}

func resolveAllocations(raw map[string]string) ([]Allocation, error) {
	out := make([]Allocation, 0, len(raw))
	for addrStr, amountStr := range raw {
		addr, err := crypto.ParseAddress(addrStr)
		if err != nil {
			return nil, err
		}
		amount, err := parseAmount(amountStr)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", addrStr, err)
		}
		out = append(out, Allocation{Address: addr, Amount: amount})
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].Address.Bytes(), out[j].Address.Bytes()) < 0
	})
	for i := 1; i < len(out); i++ {
		if out[i].Address.Equal(out[i-1].Address) {
			return nil, fmt.Errorf("duplicate allocation for %s", out[i].Address)
		}
	}
	return out, nil
}

func parseAmount(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", value)
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("amount must not be negative")
	}
	return amount, nil
}
