package reporting

import (
	"context"
	"errors"
	"time"

	"shelter-platform/internal/calls"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

// Repository abstracts data access for reporting. Implementations must filter by tenant.
type Repository interface {
	ListCalls(ctx context.Context, tenantID string, from, to time.Time) ([]calls.CallRecord, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service { return &Service{repo: repo} }

func (s *Service) CallsSummary(ctx context.Context, req CallsSummaryRequest) (CallsSummary, error) {
	if req.TenantID == "" {
		return CallsSummary{}, ErrInvalidRequest
	}
	if req.Range.From.IsZero() || req.Range.To.IsZero() || !req.Range.To.After(req.Range.From) {
		return CallsSummary{}, ErrInvalidRequest
	}
	if s.repo == nil {
		return CallsSummary{}, errors.New("reporting: repository not configured")
	}

	rows, err := s.repo.ListCalls(ctx, req.TenantID, req.Range.From, req.Range.To)
	if err != nil {
		return CallsSummary{}, err
	}

	out := CallsSummary{TenantID: req.TenantID, Range: req.Range}
	totalWait := 0
	for _, c := range rows {
		out.TotalCalls++
		out.TotalDurationSeconds += c.DurationSeconds
		if c.HasRecording {
			out.RecordedCalls++
		}
		if c.CallbackNeeded {
			out.CallbacksOutstanding++
		}
		switch c.Direction {
		case calls.DirectionInbound:
			out.InboundCalls++
			totalWait += c.WaitSeconds
		case calls.DirectionOutbound:
			out.OutboundCalls++
		}
		switch c.Status {
		case calls.CallStatusAnswered:
			out.AnsweredCalls++
		case calls.CallStatusMissed:
			out.MissedCalls++
		case calls.CallStatusVoicemail:
			out.VoicemailCalls++
		case calls.CallStatusFailed:
			out.FailedCalls++
		}
	}
	if out.TotalCalls > 0 {
		out.AverageDurationSeconds = out.TotalDurationSeconds / out.TotalCalls
	}
	if out.InboundCalls > 0 {
		out.AverageWaitSeconds = totalWait / out.InboundCalls
	}
	return out, nil
}
