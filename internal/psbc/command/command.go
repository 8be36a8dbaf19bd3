// Package command defines ResultCommand, the closed tagged-union of
// declarative actions a tool result can ask the Executor (C6) to apply
// to a document (spec §4.3).
package command

import (
	"encoding/json"
	"fmt"

	"github.com/debrief/psbc/internal/psbc/model"
)

// Kind is the closed set of ResultCommand variants.
type Kind string

const (
	KindAddFeatures          Kind = "addFeatures"
	KindUpdateFeatures       Kind = "updateFeatures"
	KindDeleteFeatures       Kind = "deleteFeatures"
	KindSetFeatureCollection Kind = "setFeatureCollection"
	KindSetSelection         Kind = "setSelection"
	KindSetTime              Kind = "setTime"
	KindSetViewport          Kind = "setViewport"
	KindShowText             Kind = "showText"
	KindShowData             Kind = "showData"
	KindShowImage            Kind = "showImage"
	KindLogMessage           Kind = "logMessage"
	KindComposite            Kind = "composite"
)

// ResultCommand is one command in a tool result's declarative batch.
// Exactly one payload field is populated, selected by Kind — following
// the same "discriminator plus typed payload" discipline as
// model.Properties, rather than an untagged map.
type ResultCommand struct {
	Kind Kind `json:"kind"`

	AddFeatures          []model.Feature          `json:"addFeatures,omitempty"`
	UpdateFeatures       []model.Feature          `json:"updateFeatures,omitempty"`
	DeleteFeatures       []model.FeatureID        `json:"deleteFeatures,omitempty"`
	SetFeatureCollection *model.FeatureCollection `json:"setFeatureCollection,omitempty"`
	SetSelection         *model.SelectionState    `json:"setSelection,omitempty"`
	SetTime              *model.TimeState         `json:"setTime,omitempty"`
	SetViewport          *model.ViewportState     `json:"setViewport,omitempty"`
	ShowText             *ShowText                `json:"showText,omitempty"`
	ShowData             *ShowData                `json:"showData,omitempty"`
	ShowImage            *ShowImage               `json:"showImage,omitempty"`
	LogMessage           *LogMessage              `json:"logMessage,omitempty"`
	Composite            []ResultCommand          `json:"composite,omitempty"`
}

// MessageLevel is the severity carried by showText/logMessage.
type MessageLevel string

const (
	LevelInfo  MessageLevel = "info"
	LevelWarn  MessageLevel = "warn"
	LevelError MessageLevel = "error"
)

// ShowText surfaces a message to the user; no state mutation.
type ShowText struct {
	Text  string       `json:"text"`
	Level MessageLevel `json:"level"`
}

// ShowData opens a read-only structured view of an arbitrary value.
type ShowData struct {
	Value any `json:"value"`
}

// ShowImage opens an image view.
type ShowImage struct {
	Bytes []byte `json:"bytes"`
	Mime  string `json:"mime"`
}

// LogMessage appends to a structured log; no user-visible surface.
type LogMessage struct {
	Level MessageLevel `json:"level"`
	Text  string       `json:"text"`
}

// Validate checks that c carries exactly the payload its Kind requires,
// and recurses into composite children.
func (c ResultCommand) Validate() error {
	switch c.Kind {
	case KindAddFeatures:
		if c.AddFeatures == nil {
			return fmt.Errorf("command: %s requires addFeatures", c.Kind)
		}
	case KindUpdateFeatures:
		if c.UpdateFeatures == nil {
			return fmt.Errorf("command: %s requires updateFeatures", c.Kind)
		}
	case KindDeleteFeatures:
		if c.DeleteFeatures == nil {
			return fmt.Errorf("command: %s requires deleteFeatures", c.Kind)
		}
	case KindSetFeatureCollection:
		if c.SetFeatureCollection == nil {
			return fmt.Errorf("command: %s requires setFeatureCollection", c.Kind)
		}
	case KindSetSelection:
		if c.SetSelection == nil {
			return fmt.Errorf("command: %s requires setSelection", c.Kind)
		}
	case KindSetTime:
		if c.SetTime == nil {
			return fmt.Errorf("command: %s requires setTime", c.Kind)
		}
		if err := c.SetTime.Validate(); err != nil {
			return err
		}
	case KindSetViewport:
		if c.SetViewport == nil {
			return fmt.Errorf("command: %s requires setViewport", c.Kind)
		}
		if err := c.SetViewport.Validate(); err != nil {
			return err
		}
	case KindShowText:
		if c.ShowText == nil {
			return fmt.Errorf("command: %s requires showText", c.Kind)
		}
	case KindShowData:
		if c.ShowData == nil {
			return fmt.Errorf("command: %s requires showData", c.Kind)
		}
	case KindShowImage:
		if c.ShowImage == nil {
			return fmt.Errorf("command: %s requires showImage", c.Kind)
		}
	case KindLogMessage:
		if c.LogMessage == nil {
			return fmt.Errorf("command: %s requires logMessage", c.Kind)
		}
	case KindComposite:
		if len(c.Composite) == 0 {
			return fmt.Errorf("command: %s requires at least one child", c.Kind)
		}
		for i, child := range c.Composite {
			if err := child.Validate(); err != nil {
				return fmt.Errorf("command: composite child %d: %w", i, err)
			}
		}
	default:
		return fmt.Errorf("command: unknown kind %q", c.Kind)
	}
	return nil
}

// IsStateMutating reports whether c changes State Store slices (as
// opposed to a side-effect-only command like showText/logMessage). For a
// composite, this is true iff at least one child mutates state; the
// Executor does not rely on this for its own rollback accounting (a
// composite's children can apply a different number of mutations than a
// single plain command), but callers that only need a yes/no answer can.
func (c ResultCommand) IsStateMutating() bool {
	switch c.Kind {
	case KindAddFeatures, KindUpdateFeatures, KindDeleteFeatures, KindSetFeatureCollection,
		KindSetSelection, KindSetTime, KindSetViewport:
		return true
	case KindComposite:
		for _, child := range c.Composite {
			if child.IsStateMutating() {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// ParseBatch decodes a JSON array of ResultCommand and validates each one.
func ParseBatch(data []byte) ([]ResultCommand, error) {
	var batch []ResultCommand
	if err := json.Unmarshal(data, &batch); err != nil {
		return nil, fmt.Errorf("command: decode batch: %w", err)
	}
	for i, c := range batch {
		if err := c.Validate(); err != nil {
			return nil, fmt.Errorf("command: batch[%d]: %w", i, err)
		}
	}
	return batch, nil
}
