package competitor

import (
	"context"
)

// Detail is a stored competitor joined back to its business record
type Detail struct {
	BusinessID   string   `json:"businessid"`
	Name         string   `json:"name"`
	Status       *string  `json:"status"`
	Address      *string  `json:"address"`
	Phone        *string  `json:"phone_number"`
	Website      *string  `json:"website"`
	Rating       float64  `json:"rating"`
	ReviewsCount int      `json:"reviews_count"`
	Category     *string  `json:"category"`
	ProfileURL   *string  `json:"profileurl"`
	DistanceM    *float64 `json:"distance_m"`
	DistanceKM   *float64 `json:"distance_km"`
}

// Details returns the stored competitors of businessID with their current
// business data, in rank order. Competitors whose business no longer exists
// are skipped.
func (r *Ranker) Details(ctx context.Context, businessID string) ([]Detail, error) {
	snaps, _, err := r.store.Get(ctx, businessID)
	if err != nil {
		return nil, err
	}
	if len(snaps) == 0 {
		return []Detail{}, nil
	}

	ids := make([]string, len(snaps))
	for i, s := range snaps {
		ids[i] = s.BusinessID
	}
	businesses, err := r.repo.ListByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	bySnap := make(map[string]Snapshot, len(snaps))
	for _, s := range snaps {
		bySnap[s.BusinessID] = s
	}

	details := make([]Detail, 0, len(businesses))
	for _, b := range businesses {
		s := bySnap[b.BusinessID]
		m, km := s.DistanceM, s.DistanceKM
		details = append(details, Detail{
			BusinessID:   b.BusinessID,
			Name:         b.Name,
			Status:       b.Status,
			Address:      b.Address,
			Phone:        b.Phone,
			Website:      b.Website,
			Rating:       b.Rating,
			ReviewsCount: b.ReviewsCount,
			Category:     b.Category,
			ProfileURL:   b.ProfileURL,
			DistanceM:    &m,
			DistanceKM:   &km,
		})
	}
	return details, nil
}
