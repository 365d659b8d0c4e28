package cmds

import (
	"bytes"
	"context"
	"entitled/internal/backends/memory"
	"entitled/internal/types"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type CmdsTestSuite struct {
	suite.Suite

	dir    string
	promos *memory.PromoStore
	grants *memory.GrantStore
}

func TestCmdsTestSuite(t *testing.T) {
	suite.Run(t, new(CmdsTestSuite))
}

func (s *CmdsTestSuite) SetupTest() {
	s.dir = s.T().TempDir()
	s.promos = memory.NewPromoStore()
	s.grants = memory.NewGrantStore()
}

func (s *CmdsTestSuite) write(name, content string) string {
	p := filepath.Join(s.dir, name)
	s.Require().NoError(os.WriteFile(p, []byte(content), 0o600))
	return p
}

func (s *CmdsTestSuite) TestPutAndGetPromos() {
	path := s.write("promos.yml", `
promos:
  - code: spring
    description: Spring sale
    grant_days: 7
    max_redemptions: 100
    valid_until: 2027-06-01T00:00:00Z
  - code: WELCOME
    grant_days: 3
`)
	n, err := PutPromos(context.Background(), s.promos, path)
	s.Require().NoError(err)
	s.Equal(2, n)

	p, err := s.promos.GetPromo(context.Background(), "SPRING")
	s.Require().NoError(err)
	s.Equal("Spring sale", p.Description)
	s.Equal(100, p.MaxRedemptions)
	s.Require().NotNil(p.ValidUntil)
	s.True(p.ValidUntil.Equal(time.Date(2027, 6, 1, 0, 0, 0, 0, time.UTC)))

	var out bytes.Buffer
	s.Require().NoError(GetPromo(context.Background(), s.promos, "spring", &out))
	s.Contains(out.String(), `"code": "SPRING"`)
	s.Contains(out.String(), `"redemptions": 0`)

	out.Reset()
	s.Require().NoError(ListPromos(context.Background(), s.promos, &out))
	s.Equal("SPRING\nWELCOME\n", out.String())
}

func (s *CmdsTestSuite) TestPutPromosStopsAtInvalid() {
	path := s.write("bad.yml", `
promos:
  - code: GOOD
    grant_days: 1
  - code: BAD
    grant_days: 0
`)
	n, err := PutPromos(context.Background(), s.promos, path)
	s.ErrorIs(err, types.ErrInvalidPromo)
	s.Equal(1, n)
}

func (s *CmdsTestSuite) TestGetMissingPromo() {
	err := GetPromo(context.Background(), s.promos, "NOPE", &bytes.Buffer{})
	s.ErrorIs(err, types.ErrNotFound)
}

func (s *CmdsTestSuite) TestSeedGrants() {
	path := s.write("seed.yml", `
users:
  alice:
    subscription:
      plan_type: annual
      period_end: 2027-01-01T00:00:00Z
    admin: {}
  bob:
    trial:
      trial_end: 2026-12-01T00:00:00Z
    temporary:
      expires_at: 2026-11-01T00:00:00Z
      reason: beta
`)
	n, err := SeedGrants(context.Background(), s.grants, path)
	s.Require().NoError(err)
	s.Equal(2, n)

	alice, _ := s.grants.LoadGrants(context.Background(), "alice")
	s.Require().NotNil(alice.Subscription)
	s.Equal(types.SubscriptionStatusActive, alice.Subscription.Status)
	s.Equal("annual", alice.Subscription.PlanType)
	s.NotNil(alice.Admin)

	bob, _ := s.grants.LoadGrants(context.Background(), "bob")
	s.Require().NotNil(bob.Trial)
	s.Require().NotNil(bob.Temporary)
	s.Equal("beta", bob.Temporary.Reason)
	s.Nil(bob.Admin)
}

func (s *CmdsTestSuite) TestMissingFile() {
	_, err := SeedGrants(context.Background(), s.grants, filepath.Join(s.dir, "nope.yml"))
	s.Error(err)
}
