package grants

import (
	"entitled/internal/types"
	"strconv"
	"time"

	"github.com/goccy/go-json"
)

// number stands in for a decoder's json.Number.
type number string

func (n number) Int64() (int64, error) { return strconv.ParseInt(string(n), 10, 64) }

func (s *UnitTestSuite) TestEvalAny() {
	obj := map[string]any{
		"key1": "value1",
		"key2": map[string]any{
			"subkey1": "subvalue1",
			"subkey2": 42,
		},
		"key3": []any{"elem1", "elem2"},
		"key4": nil,
	}

	v, err := EvalAny("key2.subkey1", obj)
	s.NoError(err)
	s.Equal("subvalue1", v)

	v, err = EvalAny("key3[1]", obj)
	s.NoError(err)
	s.Equal("elem2", v)

	v, err = EvalAny("key4", obj)
	s.NoError(err)
	s.Nil(v)

	v, err = EvalAny("nonexistent", obj)
	s.NoError(err)
	s.Nil(v)

	_, err = EvalAny("key1[", obj)
	s.Error(err)
}

func (s *UnitTestSuite) TestEvalString() {
	obj := map[string]any{"n": 42, "s": "x", "b": true}

	v, err := EvalString("s", obj)
	s.NoError(err)
	s.Equal("x", *v)

	v, err = EvalString("n", obj)
	s.NoError(err)
	s.Equal("42", *v)

	v, err = EvalString("b", obj)
	s.NoError(err)
	s.Equal("true", *v)

	v, err = EvalString("missing", obj)
	s.NoError(err)
	s.Nil(v)
}

func (s *UnitTestSuite) TestPayloadRoundTrip() {
	in := map[string]any{"user_id": "u1", "amount": float64(999)}
	enc, err := EncodePayload(in)
	s.Require().NoError(err)
	s.NotContains(enc, "=")

	raw, err := DecodePayload(enc)
	s.Require().NoError(err)
	var out map[string]any
	s.Require().NoError(json.Unmarshal(raw, &out))
	s.Equal(in, out)

	_, err = DecodePayload("not base64!")
	s.Error(err)
}

func (s *UnitTestSuite) TestParseCheckoutCustomMapping() {
	m := types.CheckoutMapping{
		UserIDExpr:    "data.object.metadata.user_id",
		StatusExpr:    "data.object.status",
		PlanExpr:      "data.object.plan.nickname",
		PeriodEndExpr: "data.object.current_period_end",
	}
	payload := map[string]any{
		"data": map[string]any{
			"object": map[string]any{
				"metadata":           map[string]any{"user_id": "u9"},
				"status":             "past_due",
				"plan":               map[string]any{"nickname": "monthly"},
				"current_period_end": "2027-01-01T00:00:00Z",
			},
		},
	}
	userID, sub, err := ParseCheckout(m, payload)
	s.Require().NoError(err)
	s.Equal("u9", userID)
	s.Equal(types.SubscriptionStatusPastDue, sub.Status)
	s.Equal("monthly", sub.PlanType)
	s.Equal(time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC), *sub.PeriodEnd)

	raw, err := DecodePayload(sub.SourcePayload)
	s.Require().NoError(err)
	s.Contains(string(raw), `"u9"`)
}

func (s *UnitTestSuite) TestParseCheckoutDefaults() {
	userID, sub, err := ParseCheckout(types.DefaultCheckoutMapping(), map[string]any{"user_id": "u1"})
	s.Require().NoError(err)
	s.Equal("u1", userID)
	s.Equal(types.SubscriptionStatusActive, sub.Status)
	s.Empty(sub.PlanType)
	s.Nil(sub.PeriodEnd)
}

func (s *UnitTestSuite) TestParseCheckoutRejects() {
	m := types.DefaultCheckoutMapping()
	_, _, err := ParseCheckout(m, map[string]any{"user_id": "  "})
	s.ErrorIs(err, types.ErrInvalidCheckout)

	_, _, err = ParseCheckout(m, map[string]any{"user_id": "u1", "period_end": "next tuesday"})
	s.ErrorIs(err, types.ErrInvalidCheckout)

	_, _, err = ParseCheckout(m, map[string]any{"user_id": "u1", "period_end": []any{1}})
	s.ErrorIs(err, types.ErrInvalidCheckout)
}

func (s *UnitTestSuite) TestParsePeriodEnd() {
	want := time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)
	for _, v := range []any{float64(1798761600), 1798761600, int64(1798761600), number("1798761600"), "1798761600", "2027-01-01T00:00:00Z"} {
		got, err := parsePeriodEnd(v)
		s.NoError(err, "%v", v)
		s.Equal(want, got, "%v", v)
	}
}
