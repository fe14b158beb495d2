package handlers

import "time"

type coordinatesDTO struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type partyDTO struct {
	Name        string          `json:"name"`
	Phone       string          `json:"phone,omitempty"`
	Address     string          `json:"address,omitempty"`
	Coordinates *coordinatesDTO `json:"coordinates,omitempty"`
}

type productDTO struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Image       string `json:"image,omitempty"`
	Quantity    int    `json:"quantity"`
}

type jobDTO struct {
	ID               string     `json:"id"`
	Source           string     `json:"source"`
	Status           string     `json:"status"`
	AssignedDriverID string     `json:"assigned_driver_id,omitempty"`
	Customer         partyDTO   `json:"customer"`
	Company          partyDTO   `json:"company"`
	Product          productDTO `json:"product"`
	Fee              float64    `json:"fee"`
	Total            float64    `json:"total,omitempty"`
	OrderID          string     `json:"order_id,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	AcceptedAt       *time.Time `json:"accepted_at,omitempty"`
	DeliveredAt      *time.Time `json:"delivered_at,omitempty"`
	DistanceKm       *float64   `json:"distance_km,omitempty"`
	EtaMinutes       *float64   `json:"eta_minutes,omitempty"`
}

type jobListResponse struct {
	Jobs []jobDTO `json:"jobs"`
}

type acceptResponse struct {
	JobID            string    `json:"job_id"`
	Source           string    `json:"source"`
	DriverID         string    `json:"driver_id"`
	AcceptedAt       time.Time `json:"accepted_at"`
	ActiveDeliveries int       `json:"active_deliveries"`
}

type completeResponse struct {
	JobID            string    `json:"job_id"`
	Source           string    `json:"source"`
	DriverID         string    `json:"driver_id"`
	DeliveredAt      time.Time `json:"delivered_at"`
	ActiveDeliveries int       `json:"active_deliveries"`
	TotalDeliveries  int       `json:"total_deliveries"`
}

type driverDTO struct {
	ID               string          `json:"id"`
	Name             string          `json:"name,omitempty"`
	Phone            string          `json:"phone,omitempty"`
	Status           string          `json:"status"`
	ActiveDeliveries int             `json:"active_deliveries"`
	TotalDeliveries  int             `json:"total_deliveries"`
	LastStatusUpdate *time.Time      `json:"last_status_update,omitempty"`
	Location         *coordinatesDTO `json:"location,omitempty"`
}

type setStatusRequest struct {
	Status string `json:"status"`
}

type reportLocationRequest struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type notificationDTO struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}

type feedResponse struct {
	Notifications []notificationDTO `json:"notifications"`
	Unread        int               `json:"unread"`
}

type markReadResponse struct {
	Marked int `json:"marked"`
}
