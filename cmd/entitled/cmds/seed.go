package cmds

import (
	"context"
	"entitled/internal/ports"
	"entitled/internal/types"
	"fmt"
	"os"
	"sort"

	"github.com/goccy/go-yaml"
	log "github.com/sirupsen/logrus"
)

// SeedFile maps user ids to the grants they should hold:
//
//	users:
//	  alice:
//	    subscription: {status: active, plan_type: annual, period_end: 2027-01-01T00:00:00Z}
//	    admin: {}
//	  bob:
//	    trial: {trial_end: 2026-12-01T00:00:00Z}
type SeedFile struct {
	Users map[string]types.RawGrantData `yaml:"users"`
}

// SeedGrants writes every grant listed in the YAML file at path. Grants a user
// already has and that the file does not mention are left alone.
func SeedGrants(ctx context.Context, store ports.GrantStore, path string) (int, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	var f SeedFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return 0, fmt.Errorf("parse %s: %w", path, err)
	}
	users := make([]string, 0, len(f.Users))
	for u := range f.Users {
		users = append(users, u)
	}
	sort.Strings(users)
	for _, u := range users {
		if err := seedUser(ctx, store, u, f.Users[u]); err != nil {
			return 0, fmt.Errorf("seed %s: %w", u, err)
		}
		log.WithField("userID", u).Info("grants seeded")
	}
	return len(users), nil
}

func seedUser(ctx context.Context, store ports.GrantStore, userID string, g types.RawGrantData) error {
	if g.Subscription != nil {
		if g.Subscription.Status == "" {
			g.Subscription.Status = types.SubscriptionStatusActive
		}
		if err := store.PutSubscription(ctx, userID, *g.Subscription); err != nil {
			return err
		}
	}
	if g.Trial != nil {
		if err := store.PutTrial(ctx, userID, *g.Trial); err != nil {
			return err
		}
	}
	if g.Temporary != nil {
		if err := store.PutTemporaryGrant(ctx, userID, *g.Temporary); err != nil {
			return err
		}
	}
	if g.Admin != nil {
		if err := store.SetAdmin(ctx, userID, true); err != nil {
			return err
		}
	}
	return nil
}
