package helpers

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bizmatters/calculator-studio/internal/auth"
	"github.com/bizmatters/calculator-studio/internal/models"
)

// TestUser represents a test user fixture
type TestUser struct {
	ID       string
	Name     string
	Email    string
	Password string
}

// DefaultTestPassword satisfies the seed-user password rules
const DefaultTestPassword = "test-password-123"

// CreateTestUser inserts a user with a unique email and removes it when the test ends
func (db *TestDatabase) CreateTestUser(t *testing.T, prefix string) TestUser {
	t.Helper()

	hashed, err := auth.HashPassword(DefaultTestPassword)
	if err != nil {
		t.Fatalf("Failed to hash password: %v", err)
	}

	email := fmt.Sprintf("%s-%d@example.com", prefix, time.Now().UnixNano())
	user, err := db.Store.CreateUser(context.Background(), "Test User", email, hashed)
	if err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}
	t.Cleanup(func() { db.DeleteUser(t, user.ID) })

	return TestUser{ID: user.ID, Name: user.Name, Email: email, Password: DefaultTestPassword}
}

// CreateTestCalculator saves a tip calculator owned by userID
func (db *TestDatabase) CreateTestCalculator(t *testing.T, userID string, public bool) *models.Calculator {
	t.Helper()

	calc, err := db.Store.CreateCalculator(context.Background(), userID, TipCalculatorInput(public))
	if err != nil {
		t.Fatalf("Failed to create test calculator: %v", err)
	}
	return calc
}

// TipSpec is a small spec with a known result
func TipSpec() models.CalculatorSpec {
	return models.CalculatorSpec{
		Title: "Tip Calculator",
		Kind:  models.KindTip,
		Fields: []models.CalculatorField{
			{ID: "bill_amount", Label: "Bill Amount", Type: models.FieldTypeNumber, Placeholder: "50.00"},
			{ID: "tip_percentage", Label: "Tip Percentage", Type: models.FieldTypeNumber, Placeholder: "18"},
		},
		Formula: "bill_amount * (tip_percentage / 100)",
		CTA:     "Calculate Tip",
	}
}

// TipCalculatorInput builds a create request for TipSpec
func TipCalculatorInput(public bool) models.CreateCalculatorInput {
	return models.CreateCalculatorInput{
		Title:       "Tip Calculator",
		Description: "Split the bill",
		Prompt:      "tip calculator",
		Spec:        TipSpec(),
		IsPublic:    public,
		Category:    "finance",
		Tags:        []string{"tip", "restaurant"},
	}
}
