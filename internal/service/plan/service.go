package plan

import (
	"context"

	"github.com/google/uuid"
	"github.com/msgdeck/msgdeck/internal/apperr"
	"github.com/msgdeck/msgdeck/internal/store"
	"github.com/rs/zerolog"
)

// Feature keys metered by the usage ledger.
const (
	FeatureMessagesSent      = "messages_sent"
	FeatureAPICalls          = "api_calls"
	FeatureWhatsappInstances = "whatsapp_instances"
	FeatureContacts          = "contacts"
	FeatureCampaigns         = "campaigns"
)

// TrackedFeatures lists every key that receives a usage counter per billing period.
var TrackedFeatures = []string{
	FeatureMessagesSent,
	FeatureAPICalls,
	FeatureWhatsappInstances,
	FeatureContacts,
	FeatureCampaigns,
}

type Service struct {
	repo   store.PlanRepository
	logger *zerolog.Logger
}

func New(repo store.PlanRepository, logger *zerolog.Logger) *Service {
	log := logger.With().Str("channel", "plan_service").Logger()

	return &Service{
		repo:   repo,
		logger: &log,
	}
}

// GetPlan returns a plan including inactive ones. Callers decide whether inactive plans are acceptable.
func (s *Service) GetPlan(ctx context.Context, id uuid.UUID) (*store.Plan, error) {
	return s.repo.GetPlan(ctx, id)
}

// GetSubscribablePlan returns the plan only when it can back a new subscription.
func (s *Service) GetSubscribablePlan(ctx context.Context, id uuid.UUID) (*store.Plan, error) {
	p, err := s.repo.GetPlan(ctx, id)
	if err != nil {
		return nil, err
	}

	if !p.IsActive {
		return nil, apperr.BadRequest("plan %q is not active", p.Name)
	}

	return p, nil
}

func (s *Service) ListPublicPlans(ctx context.Context) ([]*store.Plan, error) {
	return s.repo.ListPlans(ctx, store.PlanFilter{OnlyActive: true, OnlyPublic: true})
}

func (s *Service) ListPlans(ctx context.Context) ([]*store.Plan, error) {
	return s.repo.ListPlans(ctx, store.PlanFilter{})
}

// Ceiling returns the plan limit backing featureKey. A nil limit means unlimited.
// ok is false for keys the plan does not meter.
func Ceiling(p *store.Plan, featureKey string) (limit *int64, ok bool) {
	switch featureKey {
	case FeatureMessagesSent:
		return p.MaxMessagesPerMonth, true
	case FeatureAPICalls:
		return p.MaxAPICallsPerMonth, true
	case FeatureWhatsappInstances:
		return p.MaxWhatsappInstances, true
	case FeatureContacts:
		return p.MaxContacts, true
	case FeatureCampaigns:
		return p.MaxCampaigns, true
	}

	return nil, false
}

func IsTracked(featureKey string) bool {
	_, ok := Ceiling(&store.Plan{}, featureKey)
	return ok
}
