package checkout

import (
	"errors"
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/shopspring/decimal"
)

// Rule is a promotion as configured: an expression returning the discount
// amount for the current cart.
type Rule struct {
	ID         string
	Expression string
}

type promotion struct {
	id      string
	program *vm.Program
}

// Promotions is a compiled rule set.
type Promotions struct {
	rules []promotion
}

// CompilePromotions compiles rules. Expressions see subtotal, quantity, skus
// and items (each with sku, price and quantity).
func CompilePromotions(rules []Rule) (*Promotions, error) {
	compiled := make([]promotion, 0, len(rules))
	seen := make(map[string]struct{}, len(rules))
	for _, rule := range rules {
		id := strings.TrimSpace(rule.ID)
		if id == "" {
			return nil, errors.New("promotion id must not be empty")
		}
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("duplicate promotion %q", id)
		}
		seen[id] = struct{}{}
		program, err := expr.Compile(rule.Expression, expr.Env(map[string]interface{}{}), expr.AllowUndefinedVariables())
		if err != nil {
			return nil, fmt.Errorf("compile promotion %s: %w", id, err)
		}
		compiled = append(compiled, promotion{id: id, program: program})
	}
	return &Promotions{rules: compiled}, nil
}

// Len returns the number of rules.
func (p *Promotions) Len() int {
	if p == nil {
		return 0
	}
	return len(p.rules)
}

func environment(st State) map[string]interface{} {
	items := make([]map[string]interface{}, 0, len(st.Items))
	skus := make([]string, 0, len(st.Items))
	for _, item := range st.Items {
		items = append(items, map[string]interface{}{
			"sku":      item.SKU,
			"price":    item.Price.InexactFloat64(),
			"quantity": item.Quantity,
		})
		skus = append(skus, item.SKU)
	}
	return map[string]interface{}{
		"subtotal": st.Subtotal.InexactFloat64(),
		"quantity": st.Quantity(),
		"items":    items,
		"skus":     skus,
	}
}

// Apply prices st: the discount is the sum of every rule result, capped at the
// subtotal. Rules that fail contribute nothing and are reported in the error.
func (p *Promotions) Apply(st State) (State, error) {
	discount := decimal.Zero
	applied := []string(nil)
	var errs []error
	if p != nil && len(st.Items) > 0 {
		env := environment(st)
		for _, rule := range p.rules {
			out, err := expr.Run(rule.program, env)
			if err != nil {
				errs = append(errs, fmt.Errorf("promotion %s: %w", rule.id, err))
				continue
			}
			amount, err := toDecimal(out)
			if err != nil {
				errs = append(errs, fmt.Errorf("promotion %s: %w", rule.id, err))
				continue
			}
			if amount.IsPositive() {
				discount = discount.Add(amount)
				applied = append(applied, rule.id)
			}
		}
	}
	if discount.GreaterThan(st.Subtotal) {
		discount = st.Subtotal
	}
	st.Discount = discount.Round(2)
	st.Total = st.Subtotal.Sub(st.Discount)
	st.Applied = applied
	return st, errors.Join(errs...)
}

func toDecimal(value interface{}) (decimal.Decimal, error) {
	switch v := value.(type) {
	case nil:
		return decimal.Zero, nil
	case int:
		return decimal.NewFromInt(int64(v)), nil
	case int64:
		return decimal.NewFromInt(v), nil
	case float64:
		return decimal.NewFromFloat(v), nil
	case decimal.Decimal:
		return v, nil
	case string:
		return decimal.NewFromString(v)
	default:
		return decimal.Zero, fmt.Errorf("unsupported discount type %T", value)
	}
}
