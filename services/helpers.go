package services

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Dosada05/arena-tournaments/models"
)

func validateCreateInput(input *CreateTournamentInput) error {
	input.Name = strings.TrimSpace(input.Name)
	if input.Name == "" {
		return ErrTournamentNameRequired
	}
	if !models.ValidBracketSize(input.BracketSize) {
		return fmt.Errorf("%w: got %d", ErrInvalidBracketSize, input.BracketSize)
	}
	if input.EntryFee < 0 {
		return ErrInvalidEntryFee
	}
	if input.CommissionRate < 0 || input.CommissionRate > 100 {
		return ErrInvalidCommissionRate
	}
	if input.RegistrationStart.IsZero() || input.RegistrationEnd.IsZero() {
		return ErrInvalidRegistrationWindow
	}
	if !input.RegistrationStart.Before(input.RegistrationEnd) {
		return fmt.Errorf("%w: registration start must precede registration end", ErrInvalidRegistrationWindow)
	}
	return validatePrizeDistribution(input.PrizeDistribution)
}

func validatePrizeDistribution(slots []models.PrizeSlot) error {
	var totalPct float64
	seen := make(map[int]bool, len(slots))
	for _, slot := range slots {
		if slot.Position < 1 {
			return fmt.Errorf("%w: position %d", ErrInvalidPrizeDistribution, slot.Position)
		}
		if slot.Percentage <= 0 || slot.Percentage > 100 {
			return fmt.Errorf("%w: percentage %.2f for position %d", ErrInvalidPrizeDistribution, slot.Percentage, slot.Position)
		}
		if seen[slot.Position] {
			return fmt.Errorf("%w: duplicate position %d", ErrInvalidPrizeDistribution, slot.Position)
		}
		seen[slot.Position] = true
		totalPct += slot.Percentage
	}
	if totalPct > 100+1e-9 {
		return fmt.Errorf("%w: percentages sum to %.2f", ErrInvalidPrizeDistribution, totalPct)
	}
	return nil
}

func computePrizePool(entryFee float64, bracketSize int, commissionRate float64) float64 {
	return entryFee * float64(bracketSize) * (1 - commissionRate/100)
}

func roomForTournament(tournamentID int) string {
	return "tournament_" + strconv.Itoa(tournamentID)
}

func dereferenceParticipants(slice []*models.Participant) []models.Participant {
	result := make([]models.Participant, 0, len(slice))
	for _, ptr := range slice {
		if ptr != nil {
			result = append(result, *ptr)
		}
	}
	return result
}

func extensionForContentType(contentType string) (string, error) {
	switch contentType {
	case "image/jpeg", "image/jpg":
		return ".jpg", nil
	case "image/png":
		return ".png", nil
	case "image/gif":
		return ".gif", nil
	case "image/webp":
		return ".webp", nil
	default:
		return "", fmt.Errorf("could not determine file extension from content type %q", contentType)
	}
}
