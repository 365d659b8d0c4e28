// Package cmds implements the operator subcommands of the entitled binary.
package cmds

import (
	"context"
	"entitled/internal/ports"
	"entitled/internal/types"
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-json"
	"github.com/goccy/go-yaml"
	log "github.com/sirupsen/logrus"
)

// PromoFile is the YAML layout read by `entitled promo put`:
//
//	promos:
//	  - code: SPRING
//	    grant_days: 7
//	    max_redemptions: 100
//	    valid_until: 2027-06-01T00:00:00Z
type PromoFile struct {
	Promos []types.PromoCode `yaml:"promos"`
}

// PutPromos creates or updates every promo code in the YAML file at path.
// Codes are normalized before they are stored. It stops at the first invalid code.
func PutPromos(ctx context.Context, store ports.PromoStore, path string) (int, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	var f PromoFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return 0, fmt.Errorf("parse %s: %w", path, err)
	}
	for i, p := range f.Promos {
		p.Code = types.NormalizePromoCode(p.Code)
		if err := store.PutPromo(ctx, p); err != nil {
			return i, fmt.Errorf("promo #%d (%s): %w", i+1, p.Code, err)
		}
		log.WithField("code", p.Code).Info("promo code stored")
	}
	return len(f.Promos), nil
}

// GetPromo writes the promo code, including its redemption count, as JSON to w.
func GetPromo(ctx context.Context, store ports.PromoStore, code string, w io.Writer) error {
	p, err := store.GetPromo(ctx, types.NormalizePromoCode(code))
	if err != nil {
		return err
	}
	b, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}

// ListPromos writes one promo code per line to w.
func ListPromos(ctx context.Context, store ports.PromoStore, w io.Writer) error {
	codes, err := store.ListPromos(ctx)
	if err != nil {
		return err
	}
	for _, c := range codes {
		if _, err := fmt.Fprintln(w, c); err != nil {
			return err
		}
	}
	return nil
}
