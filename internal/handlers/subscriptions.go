package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/PortNumber53/tryout-admin/backend/internal/models"
	"github.com/PortNumber53/tryout-admin/backend/internal/store"
)

// SubscriptionTypeStore defines the subscription type storage.
type SubscriptionTypeStore interface {
	GetSubscriptionType(ctx context.Context, id string) (*models.SubscriptionType, error)
	CreateSubscriptionType(ctx context.Context, t *models.SubscriptionType) error
}

// UserSubscriptionLister lists the subscriptions held by a user.
type UserSubscriptionLister interface {
	ListUserSubscriptions(ctx context.Context, userID string, activeOnly bool, at time.Time) ([]models.UserSubscription, error)
}

// CreateSubscriptionTypeRequest is the body of POST /api/subscription-types.
type CreateSubscriptionTypeRequest struct {
	Name         string       `json:"name"`
	Price        int64        `json:"price"`
	DurationDays int          `json:"duration_days"`
	Features     models.JSONB `json:"features,omitempty"`
	IsActive     *bool        `json:"is_active,omitempty"`
}

// CreateSubscriptionType adds a purchasable subscription type.
func CreateSubscriptionType(types SubscriptionTypeStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateSubscriptionTypeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			log.Printf("CreateSubscriptionType: invalid JSON payload: %v", err)
			http.Error(w, "invalid JSON payload", http.StatusBadRequest)
			return
		}

		req.Name = strings.TrimSpace(req.Name)
		if req.Name == "" {
			http.Error(w, "name is required", http.StatusBadRequest)
			return
		}
		if req.Price < 0 {
			http.Error(w, "price must not be negative", http.StatusBadRequest)
			return
		}
		if req.DurationDays < 1 {
			http.Error(w, "duration_days must be at least 1", http.StatusBadRequest)
			return
		}

		active := true
		if req.IsActive != nil {
			active = *req.IsActive
		}

		subType := &models.SubscriptionType{
			Name:         req.Name,
			Price:        req.Price,
			DurationDays: req.DurationDays,
			Features:     req.Features,
			IsActive:     active,
		}
		if err := types.CreateSubscriptionType(r.Context(), subType); err != nil {
			log.Printf("CreateSubscriptionType: failed to insert subscription type: %v", err)
			http.Error(w, "failed to create subscription type", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusCreated, subType, "CreateSubscriptionType")
	}
}

// GetSubscriptionType returns one subscription type.
func GetSubscriptionType(types SubscriptionTypeStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}

		subType, err := types.GetSubscriptionType(r.Context(), id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				http.Error(w, "subscription type not found", http.StatusNotFound)
				return
			}
			log.Printf("GetSubscriptionType: failed to load %s: %v", id, err)
			http.Error(w, "failed to load subscription type", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, subType, "GetSubscriptionType")
	}
}

// UserSubscriptions lists a user's subscriptions. With ?active=true only the
// ones running right now are returned.
func UserSubscriptions(subs UserSubscriptionLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := uuidParam(w, r, "userID")
		if !ok {
			return
		}

		activeOnly := false
		if raw := r.URL.Query().Get("active"); raw != "" {
			parsed, err := strconv.ParseBool(raw)
			if err != nil {
				http.Error(w, "active must be a boolean", http.StatusBadRequest)
				return
			}
			activeOnly = parsed
		}

		list, err := subs.ListUserSubscriptions(r.Context(), userID, activeOnly, time.Now().UTC())
		if err != nil {
			log.Printf("UserSubscriptions: failed to list subscriptions for %s: %v", userID, err)
			http.Error(w, "failed to load subscriptions", http.StatusInternalServerError)
			return
		}
		if list == nil {
			list = []models.UserSubscription{}
		}

		writeJSON(w, http.StatusOK, map[string]any{"subscriptions": list}, "UserSubscriptions")
	}
}
