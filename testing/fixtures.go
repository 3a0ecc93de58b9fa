package testing

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/CHINMAYKUDALKAR/LINE-sub002/models"
	"github.com/CHINMAYKUDALKAR/LINE-sub002/utils"
)

// TestFixtures provides helper methods for creating test data
type TestFixtures struct {
	DB *TestDB
}

// NewTestFixtures creates a new test fixtures instance
func NewTestFixtures(db *TestDB) *TestFixtures {
	return &TestFixtures{DB: db}
}

func randomDigits(n int) string {
	return fmt.Sprintf("%0*d", n, rand.Intn(pow10(n)))
}

func pow10(n int) int {
	p := 1
	for range n {
		p *= 10
	}
	return p
}

// CreateTestTenant creates an active tenant with a unique slug
func (tf *TestFixtures) CreateTestTenant() (*models.Tenant, error) {
	suffix := randomDigits(6)
	tenant := &models.Tenant{
		Name:        "Acme " + suffix,
		Slug:        "acme-" + suffix,
		Timezone:    "UTC",
		SenderName:  utils.ToPtr("Acme Talent"),
		SenderEmail: utils.ToPtr("talent@acme.example"),
		IsActive:    utils.ToPtr(true),
	}
	if err := tf.DB.DB.Create(tenant).Error; err != nil {
		return nil, fmt.Errorf("failed to create test tenant: %w", err)
	}
	return tenant, nil
}

// CreateTestCandidate creates a candidate with both an email and a phone
func (tf *TestFixtures) CreateTestCandidate(tenantID uint) (*models.Candidate, error) {
	digits := randomDigits(7)
	candidate := &models.Candidate{
		TenantID:  tenantID,
		FirstName: "Jane",
		LastName:  "Doe",
		Email:     utils.ToPtr(fmt.Sprintf("jane.%s@example.com", digits)),
		Phone:     utils.ToPtr("+1555" + digits),
		Stage:     "SCREENING",
		Position:  utils.ToPtr("Backend Engineer"),
	}
	if err := tf.DB.DB.Create(candidate).Error; err != nil {
		return nil, fmt.Errorf("failed to create test candidate: %w", err)
	}
	return candidate, nil
}

// CreateTestUser creates an active tenant member with the given role
func (tf *TestFixtures) CreateTestUser(tenantID uint, role models.UserRole) (*models.User, error) {
	digits := randomDigits(7)
	user := &models.User{
		TenantID: tenantID,
		Name:     "Riley Recruiter",
		Email:    fmt.Sprintf("riley.%s@acme.example", digits),
		Phone:    utils.ToPtr("+1666" + digits),
		Role:     role,
		Status:   models.UserStatusActive,
	}
	if err := tf.DB.DB.Create(user).Error; err != nil {
		return nil, fmt.Errorf("failed to create test user: %w", err)
	}
	return user, nil
}

// CreateTestInterview schedules an interview for a candidate
func (tf *TestFixtures) CreateTestInterview(tenantID, candidateID uint, interviewerID *uint, at time.Time) (*models.Interview, error) {
	interview := &models.Interview{
		TenantID:        tenantID,
		CandidateID:     candidateID,
		InterviewerID:   interviewerID,
		Title:           "Technical interview",
		Type:            models.InterviewTypeVideo,
		Status:          models.InterviewStatusScheduled,
		ScheduledAt:     at.UTC(),
		DurationMinutes: 45,
		MeetingLink:     utils.ToPtr("https://meet.example/abc"),
	}
	if err := tf.DB.DB.Create(interview).Error; err != nil {
		return nil, fmt.Errorf("failed to create test interview: %w", err)
	}
	return interview, nil
}

// CreateTestTemplate creates an active version-1 template
func (tf *TestFixtures) CreateTestTemplate(tenantID uint, name string, channel models.MessageChannel, body string) (*models.Template, error) {
	tpl := &models.Template{
		TenantID:  tenantID,
		Name:      name,
		Channel:   channel,
		Category:  models.TemplateCategoryGeneral,
		Body:      body,
		Variables: []string{},
		Version:   1,
		IsSystem:  utils.ToPtr(false),
		IsActive:  utils.ToPtr(true),
	}
	if channel == models.MessageChannelEmail {
		tpl.Subject = utils.ToPtr("Hello from Acme")
	}
	if err := tf.DB.DB.Create(tpl).Error; err != nil {
		return nil, fmt.Errorf("failed to create test template: %w", err)
	}
	return tpl, nil
}

// CreateTestMessage creates a queued message log addressed to a candidate
func (tf *TestFixtures) CreateTestMessage(tenantID uint, candidate *models.Candidate, channel models.MessageChannel) (*models.MessageLog, error) {
	msg := &models.MessageLog{
		TenantID:       tenantID,
		Channel:        channel,
		RecipientType:  models.RecipientTypeCandidate,
		RecipientID:    fmt.Sprintf("%d", candidate.ID),
		RecipientEmail: candidate.Email,
		RecipientPhone: candidate.Phone,
		Body:           "Hi " + candidate.FirstName,
		Status:         models.MessageStatusQueued,
	}
	if err := tf.DB.DB.Create(msg).Error; err != nil {
		return nil, fmt.Errorf("failed to create test message: %w", err)
	}
	return msg, nil
}
