package checkout

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/timzifer/orbit/container"
)

// Action names a scripted cart operation.
type Action string

const (
	ActionAdd             Action = "add"
	ActionRemove          Action = "remove"
	ActionApplyPromotions Action = "apply_promotions"
	ActionCheckout        Action = "checkout"
	ActionWait            Action = "wait"
)

// Step is one scripted operation.
type Step struct {
	Action   Action
	SKU      string
	Price    decimal.Decimal
	Quantity int
	Wait     time.Duration
}

// ParseStep builds a step from its textual form, as found in configuration files.
func ParseStep(action, sku, price string, quantity int, wait time.Duration) (Step, error) {
	step := Step{Action: Action(action), SKU: sku, Quantity: quantity, Wait: wait}
	switch step.Action {
	case ActionAdd:
		parsed, err := decimal.NewFromString(price)
		if err != nil {
			return Step{}, fmt.Errorf("price %q: %w", price, err)
		}
		step.Price = parsed
		if step.Quantity == 0 {
			step.Quantity = 1
		}
	case ActionRemove, ActionApplyPromotions, ActionCheckout, ActionWait:
	default:
		return Step{}, fmt.Errorf("unknown action %q", action)
	}
	return step, nil
}

// Run executes steps in order, waiting for each intent to finish.
func (c *Cart) Run(ctx context.Context, steps []Step) error {
	for i, step := range steps {
		var job *container.Job
		switch step.Action {
		case ActionAdd:
			job = c.AddItem(step.SKU, step.Price, step.Quantity)
		case ActionRemove:
			job = c.RemoveItem(step.SKU)
		case ActionApplyPromotions:
			job = c.ApplyPromotions()
		case ActionCheckout:
			job = c.Checkout()
		case ActionWait:
			timer := time.NewTimer(step.Wait)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			}
			continue
		default:
			return fmt.Errorf("step %d: unknown action %q", i+1, step.Action)
		}
		c.logger.Debug().Int("step", i+1).Str("action", string(step.Action)).Str("job", job.Name()).Msg("scenario step submitted")
		if err := job.Join(ctx); err != nil {
			return fmt.Errorf("step %d (%s): %w", i+1, step.Action, err)
		}
	}
	return nil
}
