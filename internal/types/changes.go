package types

import (
	"encoding/json"
	"fmt"
)

type ChangeType string

const (
	ChangeUpdateSettings ChangeType = "update_settings"
	ChangeSetPreset      ChangeType = "set_preset"
	ChangeAddPlace       ChangeType = "add_place"
	ChangeReplacePlace   ChangeType = "replace_place"
	ChangeRemovePlace    ChangeType = "remove_place"
	ChangeAddWishMessage ChangeType = "add_wish_message"
)

type Placement string

const (
	PlacementInSlot Placement = "in_slot"
	PlacementAtTime Placement = "at_time"
	PlacementAuto   Placement = "auto"
)

type UpdateSettingsChange struct {
	Tempo  *Pace   `json:"tempo,omitempty"`
	Start  *Clock  `json:"start,omitempty"`
	End    *Clock  `json:"end,omitempty"`
	Budget *Budget `json:"budget,omitempty"`
}

type SetPresetChange struct {
	Preset string `json:"preset"`
}

type AddPlaceChange struct {
	PlaceID   string    `json:"place_id"`
	Placement Placement `json:"placement,omitempty"`
	SlotIndex *int      `json:"slot_index,omitempty"`
	AtTime    *Clock    `json:"at_time,omitempty"`
}

type ReplacePlaceChange struct {
	FromPlaceID string  `json:"from_place_id"`
	ToPlaceID   *string `json:"to_place_id,omitempty"`
}

type RemovePlaceChange struct {
	PlaceID string `json:"place_id"`
}

type AddWishMessageChange struct {
	Text string `json:"text"`
}

// Change is the tagged variant the day editor consumes. Exactly one payload
// field matching Type is set.
type Change struct {
	Type           ChangeType            `json:"type"`
	UpdateSettings *UpdateSettingsChange `json:"update_settings,omitempty"`
	SetPreset      *SetPresetChange      `json:"set_preset,omitempty"`
	AddPlace       *AddPlaceChange       `json:"add_place,omitempty"`
	ReplacePlace   *ReplacePlaceChange   `json:"replace_place,omitempty"`
	RemovePlace    *RemovePlaceChange    `json:"remove_place,omitempty"`
	AddWishMessage *AddWishMessageChange `json:"add_wish_message,omitempty"`
}

// IsDeterministic reports whether the change mutates blocks directly rather
// than altering the rebuild context.
func (c *Change) IsDeterministic() bool {
	switch c.Type {
	case ChangeAddPlace, ChangeReplacePlace, ChangeRemovePlace:
		return true
	default:
		return false
	}
}

// Validate checks that the payload matching the declared type is present.
func (c *Change) Validate() error {
	switch c.Type {
	case ChangeUpdateSettings:
		if c.UpdateSettings == nil {
			return fmt.Errorf("%w: update_settings payload missing", ErrBadRequest)
		}
	case ChangeSetPreset:
		if c.SetPreset == nil {
			return fmt.Errorf("%w: set_preset payload missing", ErrBadRequest)
		}
	case ChangeAddPlace:
		if c.AddPlace == nil || c.AddPlace.PlaceID == "" {
			return fmt.Errorf("%w: add_place requires place_id", ErrBadRequest)
		}
	case ChangeReplacePlace:
		if c.ReplacePlace == nil || c.ReplacePlace.FromPlaceID == "" {
			return fmt.Errorf("%w: replace_place requires from_place_id", ErrBadRequest)
		}
	case ChangeRemovePlace:
		if c.RemovePlace == nil || c.RemovePlace.PlaceID == "" {
			return fmt.Errorf("%w: remove_place requires place_id", ErrBadRequest)
		}
	case ChangeAddWishMessage:
		if c.AddWishMessage == nil || c.AddWishMessage.Text == "" {
			return fmt.Errorf("%w: add_wish_message requires text", ErrBadRequest)
		}
	default:
		return fmt.Errorf("%w: unknown change type %q", ErrBadRequest, c.Type)
	}
	return nil
}

// UnmarshalJSON also accepts the legacy flat shape where the payload fields
// sit beside "type" instead of under a keyed object.
func (c *Change) UnmarshalJSON(data []byte) error {
	type alias Change
	var typed alias
	if err := json.Unmarshal(data, &typed); err != nil {
		return err
	}
	*c = Change(typed)
	if c.Validate() == nil {
		return nil
	}

	var head struct {
		Type ChangeType `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}
	c.Type = head.Type
	switch head.Type {
	case ChangeUpdateSettings:
		c.UpdateSettings = &UpdateSettingsChange{}
		return json.Unmarshal(data, c.UpdateSettings)
	case ChangeSetPreset:
		c.SetPreset = &SetPresetChange{}
		return json.Unmarshal(data, c.SetPreset)
	case ChangeAddPlace:
		c.AddPlace = &AddPlaceChange{}
		return json.Unmarshal(data, c.AddPlace)
	case ChangeReplacePlace:
		c.ReplacePlace = &ReplacePlaceChange{}
		return json.Unmarshal(data, c.ReplacePlace)
	case ChangeRemovePlace:
		c.RemovePlace = &RemovePlaceChange{}
		return json.Unmarshal(data, c.RemovePlace)
	case ChangeAddWishMessage:
		c.AddWishMessage = &AddWishMessageChange{}
		return json.Unmarshal(data, c.AddWishMessage)
	}
	return fmt.Errorf("%w: unknown change type %q", ErrBadRequest, head.Type)
}
