package exchange

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MarkoPoloResearchLab/mealswap/pkg/ledger"
)

// PutProfile stores the requester's preferences, replacing any previous version.
func (service *Service) PutProfile(ctx context.Context, profile Profile) (Profile, error) {
	stored, err := service.putProfile(ctx, profile)
	service.logOperation(ctx, OperationLog{Operation: operationPutProfile, ActorID: profile.UserID, Error: err})
	return stored, err
}

func (service *Service) putProfile(ctx context.Context, profile Profile) (Profile, error) {
	if err := requireUser(profile.UserID); err != nil {
		return Profile{}, err
	}
	if profile.TicketBudget != nil && *profile.TicketBudget < 0 {
		return Profile{}, fmt.Errorf("%w: ticket budget must be non-negative", ErrInvalidProfile)
	}
	profile.Location = strings.TrimSpace(profile.Location)
	profile.DietaryRequirements = cleanList(profile.DietaryRequirements)
	profile.Allergies = cleanList(profile.Allergies)
	profile.UpdatedAt = service.now()
	return service.store.PutProfile(ctx, profile)
}

// GetProfile returns the stored profile, or an empty one for users who never saved preferences.
func (service *Service) GetProfile(ctx context.Context, userID ledger.UserID) (Profile, error) {
	if err := requireUser(userID); err != nil {
		return Profile{}, err
	}
	profile, err := service.store.GetProfile(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return Profile{UserID: userID}, nil
	}
	return profile, err
}
