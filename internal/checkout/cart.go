package checkout

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/timzifer/orbit/container"
)

// Options configures a cart.
type Options struct {
	Currency          string
	ProcessingDelay   time.Duration
	HeartbeatInterval time.Duration
	Promotions        []Rule
	Logger            zerolog.Logger
}

type syntax = container.Syntax[State, SideEffect]

// Cart is a checkout view model backed by a state container.
type Cart struct {
	c          container.Container[State, SideEffect]
	opts       Options
	logger     zerolog.Logger
	promotions atomic.Pointer[Promotions]
}

var _ container.Host[State, SideEffect] = (*Cart)(nil)

// New builds a cart. Container options are applied before the cart's own
// state equality.
func New(ctx context.Context, opts Options, containerOpts ...container.Option) (*Cart, error) {
	if opts.Currency == "" {
		opts.Currency = "EUR"
	}
	promotions, err := CompilePromotions(opts.Promotions)
	if err != nil {
		return nil, err
	}
	cart := &Cart{
		opts:   opts,
		logger: opts.Logger.With().Str("component", "checkout").Logger(),
	}
	cart.promotions.Store(promotions)

	all := append([]container.Option{}, containerOpts...)
	all = append(all, container.WithStateEquality(func(a, b any) bool {
		return a.(State).Equal(b.(State))
	}))
	initial := State{Currency: opts.Currency, Status: StatusLoading, Subtotal: decimal.Zero, Discount: decimal.Zero, Total: decimal.Zero}
	c, err := container.New[State, SideEffect](ctx, initial, cart.onCreate, all...)
	if err != nil {
		return nil, err
	}
	cart.c = c
	return cart, nil
}

// Container returns the cart's container.
func (c *Cart) Container() container.Container[State, SideEffect] { return c.c }

func (c *Cart) onCreate(s *syntax) error {
	if err := s.Reduce(func(st State) State {
		st.Status = StatusReady
		return st
	}); err != nil {
		return err
	}
	if err := s.PostSideEffect(SideEffect{Kind: SideEffectReady}); err != nil {
		return err
	}
	interval := c.opts.HeartbeatInterval
	if interval <= 0 {
		return nil
	}
	return s.RepeatOnSubscription(func(ctx context.Context) error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				if err := s.PostSideEffect(SideEffect{Kind: SideEffectHeartbeat}); err != nil {
					return err
				}
			}
		}
	})
}

func (c *Cart) fail(s *syntax, message string) error {
	c.logger.Warn().Str("reason", message).Msg("cart action rejected")
	if err := s.Reduce(func(st State) State {
		st.LastFailed = message
		return st
	}); err != nil {
		return err
	}
	return s.PostSideEffect(SideEffect{Kind: SideEffectError, Message: message})
}

// reprice reduces with mutate and reapplies the current promotions. Rule
// failures are reported as error side effects.
func (c *Cart) reprice(s *syntax, mutate func(State) State) error {
	var ruleErr error
	if err := s.Reduce(func(st State) State {
		next, err := c.promotions.Load().Apply(mutate(st))
		ruleErr = err
		return next
	}); err != nil {
		return err
	}
	if ruleErr != nil {
		return s.PostSideEffect(SideEffect{Kind: SideEffectError, Message: ruleErr.Error()})
	}
	return nil
}

func editable(st State) bool {
	return st.Status != StatusPaying && st.Status != StatusPaid
}

// AddItem adds quantity units of sku at price. Adding a known SKU increases its
// quantity and takes the new price.
func (c *Cart) AddItem(sku string, price decimal.Decimal, quantity int) *container.Job {
	sku = strings.TrimSpace(sku)
	return c.c.Orbit(func(s *syntax) error {
		switch {
		case sku == "":
			return c.fail(s, "sku must not be empty")
		case quantity <= 0:
			return c.fail(s, fmt.Sprintf("quantity for %s must be positive", sku))
		case price.IsNegative():
			return c.fail(s, fmt.Sprintf("price for %s must not be negative", sku))
		case !editable(s.State()):
			return c.fail(s, "cart is already checked out")
		}
		return c.reprice(s, func(st State) State {
			items := make([]Item, 0, len(st.Items)+1)
			found := false
			for _, item := range st.Items {
				if item.SKU == sku {
					item.Quantity += quantity
					item.Price = price
					found = true
				}
				items = append(items, item)
			}
			if !found {
				items = append(items, Item{SKU: sku, Price: price, Quantity: quantity})
			}
			st = st.withItems(items)
			st.Revision++
			st.LastFailed = ""
			return st
		})
	})
}

// RemoveItem drops the line for sku.
func (c *Cart) RemoveItem(sku string) *container.Job {
	return c.c.Orbit(func(s *syntax) error {
		current := s.State()
		if !editable(current) {
			return c.fail(s, "cart is already checked out")
		}
		if _, ok := current.Item(sku); !ok {
			return c.fail(s, fmt.Sprintf("%s is not in the cart", sku))
		}
		return c.reprice(s, func(st State) State {
			items := make([]Item, 0, len(st.Items))
			for _, item := range st.Items {
				if item.SKU != sku {
					items = append(items, item)
				}
			}
			st = st.withItems(items)
			st.Revision++
			st.LastFailed = ""
			return st
		})
	})
}

// ApplyPromotions reprices the cart with the current rules.
func (c *Cart) ApplyPromotions() *container.Job {
	return c.c.Orbit(func(s *syntax) error {
		return c.reprice(s, func(st State) State { return st })
	})
}

// SetPromotions replaces the rule set and reprices the cart. Compile errors are
// returned without touching the running rules.
func (c *Cart) SetPromotions(rules []Rule) (*container.Job, error) {
	promotions, err := CompilePromotions(rules)
	if err != nil {
		return nil, err
	}
	return c.c.Orbit(func(s *syntax) error {
		c.promotions.Store(promotions)
		c.logger.Info().Int("rules", promotions.Len()).Msg("promotions updated")
		if err := c.reprice(s, func(st State) State { return st }); err != nil {
			return err
		}
		return s.PostSideEffect(SideEffect{Kind: SideEffectPromotions, Message: fmt.Sprintf("%d rules", promotions.Len())})
	}), nil
}

// Checkout pays for the cart. Payment suspends for the configured processing
// delay; the cart is then paid and a receipt is posted.
func (c *Cart) Checkout() *container.Job {
	return c.c.Orbit(func(s *syntax) error {
		current := s.State()
		switch {
		case len(current.Items) == 0:
			return c.fail(s, "cart is empty")
		case !editable(current):
			return c.fail(s, "cart is already checked out")
		}
		if err := s.Reduce(func(st State) State {
			st.Status = StatusPaying
			return st
		}); err != nil {
			return err
		}
		if err := s.Delay(c.opts.ProcessingDelay); err != nil {
			return err
		}
		receipt := uuid.NewString()
		var total decimal.Decimal
		if err := s.Reduce(func(st State) State {
			st.Status = StatusPaid
			st.ReceiptID = receipt
			total = st.Total
			return st
		}); err != nil {
			return err
		}
		c.logger.Info().Str("receipt", receipt).Str("total", total.StringFixed(2)).Msg("cart paid")
		return s.PostSideEffect(SideEffect{
			Kind:      SideEffectReceipt,
			ReceiptID: receipt,
			Total:     total,
			Message:   fmt.Sprintf("paid %s %s", total.StringFixed(2), current.Currency),
		})
	})
}
