package engine

import (
	"fmt"
	"log"
	"strings"

	"keyflow/internal/db"
)

// ImportResult summarizes one catalog import.
type ImportResult struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
}

// ImportCatalog pulls the provider's service list and upserts catalog
// entries bound to that provider. Re-importing refreshes names, platform
// tags and rates; the provider binding itself is the import's output and
// is never re-evaluated at dispatch time.
func (e *Engine) ImportCatalog(providerID uint) (ImportResult, error) {
	var result ImportResult

	prov, err := e.store.ProviderByID(providerID)
	if err != nil {
		return result, err
	}
	if prov == nil {
		return result, ErrProviderNotFound
	}

	remote, err := e.client.Services(*prov)
	if err != nil {
		return result, fmt.Errorf("%w: %s", ErrProviderUnavailable, err)
	}

	for _, r := range remote {
		existing, err := e.store.ServiceByProviderExternalID(prov.ID, r.ExternalID)
		if err != nil {
			return result, err
		}
		if existing == nil {
			svc := &db.Service{
				ProviderID: prov.ID,
				ExternalID: r.ExternalID,
				Name:       r.Name,
				Platform:   r.Category,
				Type:       r.Type,
				Price:      r.Rate,
				Active:     true,
			}
			if err := e.store.CreateService(svc); err != nil {
				return result, err
			}
			result.Created++
			continue
		}

		existing.Name = r.Name
		existing.Platform = r.Category
		existing.Type = r.Type
		existing.Price = r.Rate
		if err := e.store.SaveService(existing); err != nil {
			return result, err
		}
		result.Updated++
	}

	return result, nil
}

// RebindServices assigns providers to catalog entries whose binding is
// missing or points at a removed provider, using MatchProvider. Every
// assignment is logged so the tie-break outcome is observable. Returns
// the number of entries bound.
func (e *Engine) RebindServices() (int, error) {
	services, err := e.store.UnboundServices()
	if err != nil {
		return 0, err
	}
	if len(services) == 0 {
		return 0, nil
	}

	providers, err := e.store.ActiveProviders()
	if err != nil {
		return 0, err
	}

	bound := 0
	for i := range services {
		prov, ok := MatchProvider(services[i].Platform, providers)
		if !ok {
			continue
		}
		services[i].ProviderID = prov.ID
		if err := e.store.SaveService(&services[i]); err != nil {
			return bound, err
		}
		log.Printf("bound service %d (%q) to provider %d (%s)", services[i].ID, services[i].Platform, prov.ID, prov.Name)
		bound++
	}
	return bound, nil
}

// MatchProvider resolves a platform tag to a provider by case-insensitive
// substring match against provider names: a provider matches when its
// name contains the tag or the tag contains its name. Providers are
// scanned in registration (ID) order and the first match wins, so ties
// resolve deterministically.
func MatchProvider(platform string, providers []db.Provider) (*db.Provider, bool) {
	tag := strings.ToLower(strings.TrimSpace(platform))
	if tag == "" {
		return nil, false
	}
	for i := range providers {
		name := strings.ToLower(strings.TrimSpace(providers[i].Name))
		if name == "" {
			continue
		}
		if strings.Contains(tag, name) || strings.Contains(name, tag) {
			return &providers[i], true
		}
	}
	return nil, false
}
