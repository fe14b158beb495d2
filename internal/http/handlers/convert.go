package handlers

import (
	"ferry77-dispatch/internal/domain"
	"ferry77-dispatch/internal/service/feed"
)

func coordsToDTO(c *domain.Coordinates) *coordinatesDTO {
	if c == nil {
		return nil
	}
	return &coordinatesDTO{Lat: c.Lat, Lng: c.Lng}
}

func partyToDTO(p domain.Party) partyDTO {
	return partyDTO{
		Name:        p.Name,
		Phone:       p.Phone,
		Address:     p.Address,
		Coordinates: coordsToDTO(p.Coords),
	}
}

func jobToDTO(j domain.DeliveryJob) jobDTO {
	return jobDTO{
		ID:               j.ID,
		Source:           string(j.Source),
		Status:           string(j.Status),
		AssignedDriverID: j.AssignedDriverID,
		Customer:         partyToDTO(j.Customer),
		Company:          partyToDTO(j.Company),
		Product: productDTO{
			Name:        j.Product.Name,
			Description: j.Product.Description,
			Image:       j.Product.Image,
			Quantity:    j.Product.Quantity,
		},
		Fee:         j.Fee,
		Total:       j.Total,
		OrderID:     j.OrderID,
		CreatedAt:   j.CreatedAt,
		AcceptedAt:  j.AcceptedAt,
		DeliveredAt: j.DeliveredAt,
		DistanceKm:  j.DistanceKm,
		EtaMinutes:  j.EtaMinutes,
	}
}

func jobsToResponse(list []domain.DeliveryJob) jobListResponse {
	out := make([]jobDTO, 0, len(list))
	for _, j := range list {
		out = append(out, jobToDTO(j))
	}
	return jobListResponse{Jobs: out}
}

func acceptResultToResponse(res domain.AcceptResult) acceptResponse {
	return acceptResponse{
		JobID:            res.JobID,
		Source:           string(res.Source),
		DriverID:         res.DriverID,
		AcceptedAt:       res.AcceptedAt,
		ActiveDeliveries: res.ActiveDeliveries,
	}
}

func completeResultToResponse(res domain.CompleteResult) completeResponse {
	return completeResponse{
		JobID:            res.JobID,
		Source:           string(res.Source),
		DriverID:         res.DriverID,
		DeliveredAt:      res.DeliveredAt,
		ActiveDeliveries: res.ActiveDeliveries,
		TotalDeliveries:  res.TotalDeliveries,
	}
}

func driverToDTO(d *domain.DriverProfile) driverDTO {
	dto := driverDTO{
		ID:               d.ID,
		Name:             d.Name,
		Phone:            d.Phone,
		Status:           string(d.Status),
		ActiveDeliveries: d.ActiveDeliveries,
		TotalDeliveries:  d.TotalDeliveries,
		Location:         coordsToDTO(d.Location),
	}
	if !d.LastStatusUpdate.IsZero() {
		t := d.LastStatusUpdate
		dto.LastStatusUpdate = &t
	}
	return dto
}

func feedToResponse(f feed.Feed) feedResponse {
	out := make([]notificationDTO, 0, len(f.Notifications))
	for _, n := range f.Notifications {
		out = append(out, notificationDTO{
			ID:        n.ID,
			Kind:      string(n.Kind),
			Title:     n.Title,
			Message:   n.Message,
			Read:      n.Read,
			CreatedAt: n.CreatedAt,
		})
	}
	return feedResponse{Notifications: out, Unread: f.Unread}
}
