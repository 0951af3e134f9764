package queue

import (
	"time"
)

// Status is the lifecycle stage of a queued patient.
type Status string

const (
	StatusWaiting        Status = "waiting"
	StatusCalled         Status = "called"
	StatusInConsultation Status = "in-consultation"
	StatusCompleted      Status = "completed"
	StatusNoShow         Status = "no-show"
)

// MinutesPerPosition is the fixed wait estimate for each patient ahead.
const MinutesPerPosition = 15

// QueuedPatient is a single entry in the walk-in queue.
type QueuedPatient struct {
	ID                string     `json:"id"`
	PatientID         string     `json:"patient_id"`
	Name              string     `json:"name"`
	Email             string     `json:"email"`
	Reason            string     `json:"reason"`
	Position          int        `json:"position"`
	Status            Status     `json:"status"`
	JoinedAt          time.Time  `json:"joined_at"`
	StartTime         *time.Time `json:"start_time,omitempty"`
	EndTime           *time.Time `json:"end_time,omitempty"`
	EstimatedWaitTime int        `json:"estimated_wait_time"`
	ActualWaitTime    *int       `json:"actual_wait_time,omitempty"`
	DoctorID          *string    `json:"doctor_id,omitempty"`
}

// Clone returns a copy that shares no pointers with p.
func (p *QueuedPatient) Clone() *QueuedPatient {
	if p == nil {
		return nil
	}
	c := *p
	if p.StartTime != nil {
		t := *p.StartTime
		c.StartTime = &t
	}
	if p.EndTime != nil {
		t := *p.EndTime
		c.EndTime = &t
	}
	if p.ActualWaitTime != nil {
		m := *p.ActualWaitTime
		c.ActualWaitTime = &m
	}
	if p.DoctorID != nil {
		d := *p.DoctorID
		c.DoctorID = &d
	}
	return &c
}

// QueueState is the ordered queue plus the patient currently being seen.
type QueueState struct {
	Patients         []*QueuedPatient `json:"patients"`
	CurrentlyServing *QueuedPatient   `json:"currently_serving,omitempty"`
	LastUpdated      time.Time        `json:"last_updated"`
}

// Analytics summarises the current queue list.
type Analytics struct {
	Total            int            `json:"total"`
	Waiting          int            `json:"waiting"`
	InConsultation   int            `json:"in_consultation"`
	Completed        int            `json:"completed"`
	AvgWaitTime      int            `json:"avg_wait_time"`
	CurrentlyServing *QueuedPatient `json:"currently_serving,omitempty"`
}

func estimatedWait(position int) int {
	return (position - 1) * MinutesPerPosition
}
