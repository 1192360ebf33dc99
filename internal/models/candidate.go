package models

import (
	"time"
)

type CandidateStatus string

const (
	StatusEnrolled   CandidateStatus = "Enrolled"
	StatusInProgress CandidateStatus = "In Progress"
	StatusCompleted  CandidateStatus = "Completed"
	StatusDropped    CandidateStatus = "Dropped"
)

var candidateStatuses = map[CandidateStatus]bool{
	StatusEnrolled:   true,
	StatusInProgress: true,
	StatusCompleted:  true,
	StatusDropped:    true,
}

func (s CandidateStatus) Valid() bool {
	return candidateStatuses[s]
}

// Categories lists the training categories a candidate can enroll in.
var Categories = []string{
	"Category 1 - Basic Skills",
	"Category 2 - Intermediate Skills",
	"Category 3 - Advanced Skills",
	"Category 4 - Specialized Skills",
}

func ValidCategory(c string) bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

type Candidate struct {
	ID           string `json:"id" dynamodbav:"id"`
	CandidateID  string `json:"candidateId" dynamodbav:"candidate_id"`
	Name         string `json:"name" dynamodbav:"name"`
	DOB          string `json:"dob" dynamodbav:"dob"`
	AadharNumber string `json:"aadharNumber" dynamodbav:"aadhar_number"`
	Mobile       string `json:"mobile" dynamodbav:"mobile"`
	Address      string `json:"address" dynamodbav:"address"`

	Program  string `json:"program" dynamodbav:"program"`
	Category string `json:"category" dynamodbav:"category"`
	Center   string `json:"center" dynamodbav:"center"`
	Trainer  string `json:"trainer" dynamodbav:"trainer"`
	Duration string `json:"duration" dynamodbav:"duration"`

	Status           CandidateStatus `json:"status" dynamodbav:"status"`
	IsVerified       bool            `json:"isVerified" dynamodbav:"is_verified"`
	VerificationDate *time.Time      `json:"verificationDate,omitempty" dynamodbav:"verification_date,omitempty"`
	EnrollmentDate   time.Time       `json:"enrollmentDate" dynamodbav:"enrollment_date"`
	CompletionDate   *time.Time      `json:"completionDate,omitempty" dynamodbav:"completion_date,omitempty"`
	CreatedAt        time.Time       `json:"createdAt" dynamodbav:"created_at"`
	UpdatedAt        time.Time       `json:"updatedAt" dynamodbav:"updated_at"`
}

func (c *Candidate) GetPK() string {
	return "CANDIDATE#" + c.CandidateID
}

func (c *Candidate) GetSK() string {
	return "PROFILE"
}

// CandidateSummary is the public view returned after a duplicate check or registration.
type CandidateSummary struct {
	CandidateID string          `json:"candidateId"`
	Name        string          `json:"name"`
	Status      CandidateStatus `json:"status"`
}

func (c *Candidate) Summary() CandidateSummary {
	return CandidateSummary{
		CandidateID: c.CandidateID,
		Name:        c.Name,
		Status:      c.Status,
	}
}

// CandidateQuery holds the search criteria. Non-empty fields must all match.
type CandidateQuery struct {
	AadharNumber string
	Mobile       string
	CandidateID  string
}

func (q CandidateQuery) Empty() bool {
	return q.AadharNumber == "" && q.Mobile == "" && q.CandidateID == ""
}

func (q CandidateQuery) Matches(c *Candidate) bool {
	if q.AadharNumber != "" && c.AadharNumber != q.AadharNumber {
		return false
	}
	if q.Mobile != "" && c.Mobile != q.Mobile {
		return false
	}
	if q.CandidateID != "" && c.CandidateID != q.CandidateID {
		return false
	}
	return true
}
