package core

import "datamarket/pkg/domain"

// NewDefaultRulesEngine builds a rules engine with the built-in policy set.
func NewDefaultRulesEngine() *RulesEngine {
	engine := NewRulesEngine()
	engine.Register(NewSinglePurchaseRule())
	engine.Register(NewListingThresholdRule())
	engine.Register(NewCloseGuardRule())
	engine.Register(NewPlatformFeeCapRule())
	engine.Register(NewValueConservationRule())
	return engine
}

func blocking(rule string, code domain.Code, entity EntityType, id, message string) domain.Violation {
	return domain.Violation{
		Rule:     rule,
		Severity: domain.SeverityBlock,
		Code:     code,
		Message:  message,
		Entity:   entity,
		EntityID: id,
	}
}

// createdPurchases decodes the purchases created in a change set.
func createdPurchases(changes []Change) []Purchase {
	var out []Purchase
	for _, c := range changes {
		if c.Entity != EntityPurchase || c.Action != ActionCreate {
			continue
		}
		if p, ok := domain.DecodePayload[Purchase](c.After); ok {
			out = append(out, p)
		}
	}
	return out
}
