package core

import (
	"context"
	"fmt"

	"datamarket/pkg/domain"
)

// NewPlatformFeeCapRule blocks any configuration whose fee exceeds the cap.
func NewPlatformFeeCapRule() domain.Rule {
	return platformFeeCapRule{}
}

type platformFeeCapRule struct{}

func (platformFeeCapRule) Name() string { return "platform_fee_cap" }

func (r platformFeeCapRule) Evaluate(_ context.Context, view domain.RuleView, _ []domain.Change) (domain.Result, error) {
	cfg, ok := view.PlatformConfig()
	if !ok || cfg.FeeBps <= domain.FeeCapBps {
		return domain.Result{}, nil
	}
	return domain.Result{Violations: []domain.Violation{
		blocking(r.Name(), domain.CodeFeeTooHigh, EntityPlatformConfig, cfg.ID,
			fmt.Sprintf("platform fee %d bps exceeds cap %d", cfg.FeeBps, domain.FeeCapBps)),
	}}, nil
}
