package orchestrator

import (
	"fmt"

	"rsyaclean/internal/model"
)

// StatusError carries the outcome of one campaign through the worker
type StatusError interface {
	Error() string
	Status() model.CampaignStatus
	Message() string
}

type statusError struct {
	status  model.CampaignStatus
	message string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("%s: %s", e.status, e.message)
}

func (e *statusError) Status() model.CampaignStatus {
	return e.status
}

func (e *statusError) Message() string {
	return e.message
}

func NewSuccessError(message string) StatusError {
	return &statusError{status: model.CampaignSuccess, message: message}
}

func NewFailureError(err error) StatusError {
	return &statusError{status: model.CampaignFailure, message: err.Error()}
}

func NewWarningError(message string) StatusError {
	return &statusError{status: model.CampaignWarning, message: message}
}

func NewSkippedError(message string) StatusError {
	return &statusError{status: model.CampaignSkipped, message: message}
}

func NewPendingError(message string) StatusError {
	return &statusError{status: model.CampaignPending, message: message}
}

// resultFrom folds a status into the campaign result
func resultFrom(result model.CampaignResult, s StatusError) model.CampaignResult {
	result.Status = s.Status()
	result.Message = s.Message()
	return result
}
