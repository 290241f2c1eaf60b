// Package cart holds the buyer's cart as an immutable value. Reduce is the only
// way to change it; prices never live here and are resolved at checkout.
package cart

import (
	"fmt"

	"github.com/google/uuid"
)

const MaxItems = 50

type Item struct {
	TrackID   uuid.UUID `json:"track_id" validate:"required"`
	LicenseID uuid.UUID `json:"license_id" validate:"required"`
}

type Cart struct {
	Items []Item `json:"items"`
}

type ActionType string

const (
	ActionAdd    ActionType = "add"
	ActionRemove ActionType = "remove"
	ActionClear  ActionType = "clear"
)

type Action struct {
	Type ActionType `json:"type" validate:"required,oneof=add remove clear"`
	Item Item       `json:"item"`
}

type WarningCode string

const (
	WarningDuplicateTrack WarningCode = "DUPLICATE_TRACK"
	WarningAlreadyInCart  WarningCode = "ALREADY_IN_CART"
	WarningCartFull       WarningCode = "CART_FULL"
	WarningNotInCart      WarningCode = "NOT_IN_CART"
)

type Warning struct {
	Code    WarningCode `json:"code"`
	TrackID uuid.UUID   `json:"track_id"`
	Message string      `json:"message"`
}

// Reduce applies action to c and returns the new cart. The input cart is
// never modified.
//
// Adding a second license for a track that is already in the cart keeps both
// lines and reports WarningDuplicateTrack. Adding an identical line is a no-op.
func Reduce(c Cart, action Action) (Cart, []Warning) {
	switch action.Type {
	case ActionAdd:
		return add(c, action.Item)
	case ActionRemove:
		return remove(c, action.Item)
	case ActionClear:
		return Cart{Items: []Item{}}, nil
	}
	return c.clone(), nil
}

// FromItems folds items into an empty cart with ActionAdd, in order.
func FromItems(items []Item) (Cart, []Warning) {
	c := Cart{Items: []Item{}}
	var warnings []Warning
	for _, item := range items {
		var w []Warning
		c, w = Reduce(c, Action{Type: ActionAdd, Item: item})
		warnings = append(warnings, w...)
	}
	return c, warnings
}

func (c Cart) Contains(item Item) bool {
	for _, existing := range c.Items {
		if existing == item {
			return true
		}
	}
	return false
}

func (c Cart) Len() int {
	return len(c.Items)
}

func (c Cart) clone() Cart {
	items := make([]Item, len(c.Items))
	copy(items, c.Items)
	return Cart{Items: items}
}

func add(c Cart, item Item) (Cart, []Warning) {
	if c.Contains(item) {
		return c.clone(), []Warning{{
			Code:    WarningAlreadyInCart,
			TrackID: item.TrackID,
			Message: "this license is already in your cart",
		}}
	}
	if len(c.Items) >= MaxItems {
		return c.clone(), []Warning{{
			Code:    WarningCartFull,
			TrackID: item.TrackID,
			Message: fmt.Sprintf("a cart holds at most %d items", MaxItems),
		}}
	}

	var warnings []Warning
	for _, existing := range c.Items {
		if existing.TrackID == item.TrackID {
			warnings = append(warnings, Warning{
				Code:    WarningDuplicateTrack,
				TrackID: item.TrackID,
				Message: "your cart already holds another license for this track",
			})
			break
		}
	}

	next := c.clone()
	next.Items = append(next.Items, item)
	return next, warnings
}

func remove(c Cart, item Item) (Cart, []Warning) {
	next := Cart{Items: make([]Item, 0, len(c.Items))}
	for _, existing := range c.Items {
		if existing != item {
			next.Items = append(next.Items, existing)
		}
	}
	if len(next.Items) == len(c.Items) {
		return next, []Warning{{
			Code:    WarningNotInCart,
			TrackID: item.TrackID,
			Message: "item was not in the cart",
		}}
	}
	return next, nil
}
