package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/BatmanBruc/bat-bot-freepik/types"
	"gopkg.in/yaml.v3"
)

type planFileEntry struct {
	Service       string `yaml:"service"`
	PlanID        string `yaml:"plan_id"`
	Name          string `yaml:"name"`
	Description   string `yaml:"description"`
	Price         int64  `yaml:"price"`
	Currency      string `yaml:"currency"`
	DurationDays  int    `yaml:"duration_days"`
	DownloadLimit int    `yaml:"download_limit"`
	Active        *bool  `yaml:"is_active"`
}

type planFile struct {
	Plans []planFileEntry `yaml:"plans"`
}

// ParsePlans decodes a YAML plan catalogue. Currency defaults to LKR and
// plans are active unless is_active is false.
func ParsePlans(data []byte) ([]types.Plan, error) {
	var f planFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse plans: %w", err)
	}
	out := make([]types.Plan, 0, len(f.Plans))
	for i, e := range f.Plans {
		p := types.Plan{
			Service:       strings.TrimSpace(e.Service),
			PlanID:        strings.TrimSpace(e.PlanID),
			Name:          e.Name,
			Description:   e.Description,
			Price:         e.Price,
			Currency:      strings.TrimSpace(e.Currency),
			DurationDays:  e.DurationDays,
			DownloadLimit: e.DownloadLimit,
			Active:        e.Active == nil || *e.Active,
		}
		if p.Currency == "" {
			p.Currency = "LKR"
		}
		if !validPlan(p) {
			return nil, fmt.Errorf("plan #%d: %w: service, plan_id and duration_days are required", i+1, types.ErrInvalidPlan)
		}
		out = append(out, p)
	}
	return out, nil
}

func LoadPlansFile(path string) ([]types.Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParsePlans(data)
}

// MarshalPlans renders plans in the catalogue format.
func MarshalPlans(plans []types.Plan) ([]byte, error) {
	f := planFile{Plans: make([]planFileEntry, 0, len(plans))}
	for _, p := range plans {
		active := p.Active
		f.Plans = append(f.Plans, planFileEntry{
			Service:       p.Service,
			PlanID:        p.PlanID,
			Name:          p.Name,
			Description:   p.Description,
			Price:         p.Price,
			Currency:      p.Currency,
			DurationDays:  p.DurationDays,
			DownloadLimit: p.DownloadLimit,
			Active:        &active,
		})
	}
	return yaml.Marshal(f)
}

// SyncPlans adds catalogue plans missing from s and updates the rest.
// It returns how many were added and updated.
func SyncPlans(ctx context.Context, s types.EntitlementStore, plans []types.Plan) (added, updated int, err error) {
	for _, p := range plans {
		_, err := s.AddPlan(ctx, p)
		if err == nil {
			added++
			continue
		}
		if !errors.Is(err, types.ErrAlreadyExists) {
			return added, updated, err
		}
		ok, err := s.UpdatePlan(ctx, p.Service, p.PlanID, types.PlanUpdate{
			Name:          &p.Name,
			Description:   &p.Description,
			Price:         &p.Price,
			Currency:      &p.Currency,
			DurationDays:  &p.DurationDays,
			DownloadLimit: &p.DownloadLimit,
			Active:        &p.Active,
		})
		if err != nil {
			return added, updated, err
		}
		if ok {
			updated++
		}
	}
	return added, updated, nil
}
