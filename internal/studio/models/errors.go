package models

import "fmt"

// ValidationError blocks a submission before any collaborator is called.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// UploadError is recoverable: the affected file degrades to "no URL".
type UploadError struct {
	File string
	Err  error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload %q: %v", e.File, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

// AssetLoadError marks a mesh that could not be decoded for the preview.
type AssetLoadError struct {
	AssetID string
	Err     error
}

func (e *AssetLoadError) Error() string {
	return fmt.Sprintf("load asset %s: %v", e.AssetID, e.Err)
}

func (e *AssetLoadError) Unwrap() error { return e.Err }

type GuardReason string

const (
	GuardSecondPrism  GuardReason = "second_prism"
	GuardTooFewPoints GuardReason = "too_few_points"
	GuardNotDrawing   GuardReason = "not_drawing"
	GuardDrawing      GuardReason = "drawing"
)

// GeometryGuardError is advisory; the rejected action changed nothing.
type GeometryGuardError struct {
	Reason  GuardReason
	Message string
}

func (e *GeometryGuardError) Error() string {
	return e.Message
}
