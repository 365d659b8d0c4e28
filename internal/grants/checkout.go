package grants

import (
	"entitled/internal/types"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ParseCheckout maps a payment provider event to the user it belongs to and the
// subscription row it implies. The raw event is kept, compressed, as SourcePayload.
func ParseCheckout(m types.CheckoutMapping, payload map[string]any) (string, types.PaidSubscription, error) {
	userID, err := EvalString(m.UserIDExpr, payload)
	if err != nil {
		return "", types.PaidSubscription{}, types.Err(types.ErrInvalidCheckout, err, "user id")
	}
	if userID == nil || strings.TrimSpace(*userID) == "" {
		return "", types.PaidSubscription{}, types.Err(types.ErrInvalidCheckout, nil, "no user id at %q", m.UserIDExpr)
	}

	sub := types.PaidSubscription{Status: types.SubscriptionStatusActive}
	status, err := EvalString(m.StatusExpr, payload)
	if err != nil {
		return "", types.PaidSubscription{}, types.Err(types.ErrInvalidCheckout, err, "status")
	}
	if status != nil && *status != "" {
		sub.Status = strings.ToLower(*status)
	}

	plan, err := EvalString(m.PlanExpr, payload)
	if err != nil {
		return "", types.PaidSubscription{}, types.Err(types.ErrInvalidCheckout, err, "plan")
	}
	if plan != nil {
		sub.PlanType = *plan
	}

	rawEnd, err := EvalAny(m.PeriodEndExpr, payload)
	if err != nil {
		return "", types.PaidSubscription{}, types.Err(types.ErrInvalidCheckout, err, "period end")
	}
	if rawEnd != nil {
		end, err := parsePeriodEnd(rawEnd)
		if err != nil {
			return "", types.PaidSubscription{}, types.Err(types.ErrInvalidCheckout, err, "period end")
		}
		sub.PeriodEnd = &end
	}

	sub.SourcePayload, err = EncodePayload(payload)
	if err != nil {
		return "", types.PaidSubscription{}, types.Err(types.ErrInvalidCheckout, err, "encode payload")
	}
	return strings.TrimSpace(*userID), sub, nil
}

// parsePeriodEnd accepts unix seconds (number, json.Number or numeric string) or RFC3339.
func parsePeriodEnd(v any) (time.Time, error) {
	switch t := v.(type) {
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return time.Time{}, fmt.Errorf("invalid timestamp %v", t)
		}
		return time.Unix(int64(t), 0).UTC(), nil
	case int:
		return time.Unix(int64(t), 0).UTC(), nil
	case int64:
		return time.Unix(t, 0).UTC(), nil
	case interface{ Int64() (int64, error) }:
		n, err := t.Int64()
		if err != nil {
			return time.Time{}, err
		}
		return time.Unix(n, 0).UTC(), nil
	case string:
		if n, err := strconv.ParseInt(t, 10, 64); err == nil {
			return time.Unix(n, 0).UTC(), nil
		}
		ts, err := time.Parse(time.RFC3339, t)
		if err != nil {
			return time.Time{}, err
		}
		return ts.UTC(), nil
	default:
		return time.Time{}, fmt.Errorf("unsupported period end type %T", v)
	}
}
