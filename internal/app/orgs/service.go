package orgs

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/nats-io/nuid"
	"github.com/streamboard/streamboard/internal/app/caption"
	"github.com/streamboard/streamboard/internal/contracts"
	"github.com/streamboard/streamboard/internal/platform/localslot"
)

var (
	ErrNotFound           = errors.New("organization not found")
	ErrNameRequired       = errors.New("organization name is required")
	ErrUnknownTemplateKey = errors.New("unknown template platform key")
)

// Service owns the organization profiles. Profiles live in their own local
// slot and are never mirrored remotely.
type Service struct {
	NewID func() string

	mu       sync.Mutex
	slot     *localslot.Slot
	profiles []contracts.OrganizationProfile
}

func NewService(slot *localslot.Slot) (*Service, error) {
	s := &Service{
		NewID:    nuid.Next,
		slot:     slot,
		profiles: []contracts.OrganizationProfile{},
	}
	if _, err := slot.Load(&s.profiles); err != nil {
		return nil, fmt.Errorf("load organization slot: %w", err)
	}
	if s.profiles == nil {
		s.profiles = []contracts.OrganizationProfile{}
	}
	return s, nil
}

func (s *Service) List() []contracts.OrganizationProfile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneProfiles(s.profiles)
}

func (s *Service) Get(id string) (contracts.OrganizationProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.profiles {
		if p.ID == id {
			return cloneProfile(p), nil
		}
	}
	return contracts.OrganizationProfile{}, ErrNotFound
}

func (s *Service) Create(name string, templates map[string]string) (contracts.OrganizationProfile, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return contracts.OrganizationProfile{}, ErrNameRequired
	}
	if err := validateTemplates(templates); err != nil {
		return contracts.OrganizationProfile{}, err
	}

	profile := contracts.OrganizationProfile{
		ID:        s.NewID(),
		Name:      name,
		Templates: cloneTemplates(templates),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	next := append(cloneProfiles(s.profiles), profile)
	if err := s.slot.Save(next); err != nil {
		return contracts.OrganizationProfile{}, err
	}
	s.profiles = next
	return cloneProfile(profile), nil
}

func (s *Service) Update(id, name string, templates map[string]string) (contracts.OrganizationProfile, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return contracts.OrganizationProfile{}, ErrNameRequired
	}
	if err := validateTemplates(templates); err != nil {
		return contracts.OrganizationProfile{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	idx := -1
	for i, p := range s.profiles {
		if p.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return contracts.OrganizationProfile{}, ErrNotFound
	}

	next := cloneProfiles(s.profiles)
	next[idx].Name = name
	next[idx].Templates = cloneTemplates(templates)
	if err := s.slot.Save(next); err != nil {
		return contracts.OrganizationProfile{}, err
	}
	s.profiles = next
	return cloneProfile(next[idx]), nil
}

// Delete removes a profile; deleting an absent id is a no-op.
func (s *Service) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := -1
	for i, p := range s.profiles {
		if p.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil
	}
	next := cloneProfiles(s.profiles)
	next = append(next[:idx], next[idx+1:]...)
	if err := s.slot.Save(next); err != nil {
		return err
	}
	s.profiles = next
	return nil
}

func validateTemplates(templates map[string]string) error {
	for key := range templates {
		if !caption.KnownPlatform(key) {
			return fmt.Errorf("%w: %q", ErrUnknownTemplateKey, key)
		}
	}
	return nil
}

func cloneProfiles(profiles []contracts.OrganizationProfile) []contracts.OrganizationProfile {
	out := make([]contracts.OrganizationProfile, len(profiles))
	for i, p := range profiles {
		out[i] = cloneProfile(p)
	}
	return out
}

func cloneProfile(p contracts.OrganizationProfile) contracts.OrganizationProfile {
	p.Templates = cloneTemplates(p.Templates)
	return p
}

func cloneTemplates(templates map[string]string) map[string]string {
	out := make(map[string]string, len(templates))
	for k, v := range templates {
		out[k] = v
	}
	return out
}
